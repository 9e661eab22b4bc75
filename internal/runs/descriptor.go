package runs

import (
	"fmt"
	"time"
)

// Status is the classification of a run within one pass.
type Status string

// Run statuses.
const (
	StatusComplete   Status = "complete"
	StatusInProgress Status = "in_progress"
)

// Descriptor describes one simulation run as seen in a single listing. It is
// rebuilt on every pass and never persisted.
type Descriptor struct {
	// Key is the yymmdd token shared by all of the run's files.
	Key string
	// Date is the simulation date derived from Key (UTC midnight).
	Date   time.Time
	Status Status
	// FileNames are the expected outputs in schedule order, independent of
	// what was observed.
	FileNames []string
	// Observed are the schedule suffixes seen in the listing, in schedule order.
	Observed []string
	// Missing are the schedule suffixes not yet seen, in schedule order.
	Missing []string
}

// IsComplete reports whether every scheduled output was observed.
func (d *Descriptor) IsComplete() bool { return d.Status == StatusComplete }

// JobStatus maps the run onto the batch scheduler vocabulary: DONE when
// complete, EXEC while outputs are still appearing.
func (d *Descriptor) JobStatus() string {
	if d.IsComplete() {
		return "DONE"
	}
	return "EXEC"
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (%s) %s %d/%d", d.Key, d.Date.Format("2006-01-02"), d.Status, len(d.Observed), len(d.FileNames))
}

// ParseKey converts a yymmdd run key into its simulation date.
func ParseKey(key string) (time.Time, error) {
	if len(key) != KeyLen {
		return time.Time{}, fmt.Errorf("run key %q must be %d digits", key, KeyLen)
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return time.Time{}, fmt.Errorf("run key %q must be numeric", key)
		}
	}
	date, err := time.Parse(KeyLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("run key %q is not a valid date: %w", key, err)
	}
	return date, nil
}

// KeyFor formats a simulation date as a run key.
func KeyFor(date time.Time) string {
	return date.Format(KeyLayout)
}

// NewDescriptor builds a descriptor for key from the suffixes observed for it.
func NewDescriptor(schedule *Schedule, key string, observed map[string]struct{}) (*Descriptor, error) {
	date, err := ParseKey(key)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		Key:       key,
		Date:      date,
		FileNames: schedule.FileNames(key),
	}
	for _, suffix := range schedule.suffixes {
		if _, ok := observed[suffix]; ok {
			d.Observed = append(d.Observed, suffix)
		} else {
			d.Missing = append(d.Missing, suffix)
		}
	}
	return d, nil
}
