package core

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can tell per-pass transient conditions
// from fatal ones.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindConfiguration
	KindConnectivity
	KindAuth
	KindPermission
	KindNotFound
	KindConsistency
	KindIO
	KindParse
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindConfiguration: "configuration",
	KindConnectivity:  "connectivity",
	KindAuth:          "auth",
	KindPermission:    "permission",
	KindNotFound:      "not_found",
	KindConsistency:   "consistency",
	KindIO:            "io",
	KindParse:         "parse",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure. Op names the operation ("list", "fetch",
// "delete", "mkdir", ...) and Path the file or directory involved.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.String()
	if e.Op != "" {
		msg += " error during " + e.Op
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. An error that already carries a kind keeps it; Op
// and Path are filled in when missing. err itself is never modified.
func Wrap(kind Kind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if !errors.As(err, &ce) {
		return &Error{Kind: kind, Op: op, Path: path, Err: err}
	}
	direct, ok := err.(*Error)
	if !ok {
		return &Error{Kind: ce.Kind, Op: op, Path: path, Err: err}
	}
	cp := *direct
	if cp.Op == "" {
		cp.Op = op
	}
	if cp.Path == "" {
		cp.Path = path
	}
	return &cp
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTransient reports whether err should be retried on a later pass without
// operator attention.
func IsTransient(err error) bool {
	return IsKind(err, KindConnectivity)
}
