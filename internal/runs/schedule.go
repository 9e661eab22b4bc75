// Package runs groups remote output files into simulation runs and decides
// which runs have produced their full set of outputs.
package runs

import (
	"fmt"
	"slices"
)

// File name layout: <prefix><run key><suffix>, optionally followed by TempExt.
const (
	PrefixLen = 2
	KeyLen    = 6
	SuffixLen = 2
	NameLen   = PrefixLen + KeyLen + SuffixLen

	// DefaultPrefix is the prefix every ensemble output carries.
	DefaultPrefix = "EN"
	// TempExt marks a file the producer is still writing.
	TempExt = ".tmp"
	// KeyLayout is the time layout of a run key (yymmdd).
	KeyLayout = "060102"
)

// DefaultSuffixes are the 3-hourly time-step outputs of one run.
var DefaultSuffixes = []string{"00", "03", "06", "09", "12", "15", "18", "21"}

// Schedule is the immutable ordered set of suffixes a complete run produces,
// together with the file name prefix.
type Schedule struct {
	prefix   string
	suffixes []string
	index    map[string]int
}

// DefaultSchedule returns the 8-step ensemble schedule with the EN prefix.
func DefaultSchedule() *Schedule {
	s, err := NewSchedule(DefaultPrefix, DefaultSuffixes)
	if err != nil {
		panic(err)
	}
	return s
}

// NewSchedule validates prefix and suffixes. Suffixes must be unique and
// exactly SuffixLen characters; order is kept.
func NewSchedule(prefix string, suffixes []string) (*Schedule, error) {
	if len(prefix) != PrefixLen {
		return nil, fmt.Errorf("schedule prefix %q must be %d characters", prefix, PrefixLen)
	}
	if len(suffixes) == 0 {
		return nil, fmt.Errorf("schedule must contain at least one suffix")
	}
	index := make(map[string]int, len(suffixes))
	for i, s := range suffixes {
		if len(s) != SuffixLen {
			return nil, fmt.Errorf("schedule suffix %q must be %d characters", s, SuffixLen)
		}
		if _, dup := index[s]; dup {
			return nil, fmt.Errorf("schedule suffix %q listed twice", s)
		}
		index[s] = i
	}
	return &Schedule{
		prefix:   prefix,
		suffixes: slices.Clone(suffixes),
		index:    index,
	}, nil
}

// Prefix returns the file name prefix.
func (s *Schedule) Prefix() string { return s.prefix }

// Suffixes returns a copy of the ordered suffixes.
func (s *Schedule) Suffixes() []string { return slices.Clone(s.suffixes) }

// Len is the number of outputs a complete run has.
func (s *Schedule) Len() int { return len(s.suffixes) }

// Contains reports whether suffix is part of the schedule.
func (s *Schedule) Contains(suffix string) bool {
	_, ok := s.index[suffix]
	return ok
}

// FileName builds the output name for a run key and suffix.
func (s *Schedule) FileName(key, suffix string) string {
	return s.prefix + key + suffix
}

// FileNames returns one name per suffix, in schedule order.
func (s *Schedule) FileNames(key string) []string {
	names := make([]string, len(s.suffixes))
	for i, suffix := range s.suffixes {
		names[i] = s.FileName(key, suffix)
	}
	return names
}
