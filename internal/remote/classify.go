package remote

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"strings"
	"syscall"

	"github.com/ic3tools/enfetch/internal/core"
)

// classify maps transport and filesystem failures onto error kinds.
// Errors that already carry a kind are returned as they are.
func classify(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}

	var kind core.Kind
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = core.KindConnectivity
	case errors.As(err, &dnsErr):
		kind = core.KindConnectivity
	case errors.Is(err, fs.ErrNotExist):
		kind = core.KindNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = core.KindPermission
	case errors.As(err, &netErr):
		kind = core.KindConnectivity
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		kind = core.KindConnectivity
	default:
		kind = classifyMessage(err.Error())
	}

	return &core.Error{Kind: kind, Op: op, Path: path, Err: err}
}

// classifyMessage is the fallback for libraries that only report text.
func classifyMessage(msg string) core.Kind {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "authentication"),
		strings.Contains(msg, "login incorrect"), strings.Contains(msg, "invalid access key"):
		return core.KindAuth
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "access denied"):
		return core.KindPermission
	case strings.Contains(msg, "no such file"), strings.Contains(msg, "not found"), strings.Contains(msg, "does not exist"):
		return core.KindNotFound
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"), strings.Contains(msg, "unreachable"), strings.Contains(msg, "eof"):
		return core.KindConnectivity
	}
	return core.KindUnknown
}
