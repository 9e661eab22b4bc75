package runs

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/ic3tools/enfetch/internal/core"
)

// Reconciler classifies runs from a remote listing snapshot. It holds no
// state between calls.
type Reconciler struct {
	schedule *Schedule
	logger   *slog.Logger
}

// NewReconciler creates a reconciler for schedule. A nil logger discards.
func NewReconciler(schedule *Schedule, logger *slog.Logger) *Reconciler {
	if schedule == nil {
		schedule = DefaultSchedule()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{schedule: schedule, logger: logger}
}

// Schedule returns the schedule runs are checked against.
func (r *Reconciler) Schedule() *Schedule { return r.schedule }

// Reconcile groups names by run key and splits the runs into complete and
// in-progress, each sorted by key. Temporary files and names that do not
// follow the naming convention are skipped. A run reporting more scheduled
// outputs than the schedule defines is a consistency error.
func (r *Reconciler) Reconcile(names []string) (complete, inProgress []*Descriptor, err error) {
	groups := r.group(names)

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		suffixes := groups[key]

		present := 0
		for suffix := range suffixes {
			if r.schedule.Contains(suffix) {
				present++
				continue
			}
			r.logger.Warn("unexpected output suffix", slog.String("run", key), slog.String("suffix", suffix))
		}

		if present > r.schedule.Len() {
			return nil, nil, core.Errorf(core.KindConsistency, "reconcile", key,
				"run has %d scheduled outputs, schedule defines %d", present, r.schedule.Len())
		}

		d, err := NewDescriptor(r.schedule, key, suffixes)
		if err != nil {
			return nil, nil, core.Wrap(core.KindConsistency, "reconcile", key, err)
		}

		if present == r.schedule.Len() {
			d.Status = StatusComplete
			complete = append(complete, d)
		} else {
			d.Status = StatusInProgress
			inProgress = append(inProgress, d)
		}
	}

	r.logger.Debug("reconciled listing",
		slog.Int("files", len(names)),
		slog.Int("complete", len(complete)),
		slog.Int("in_progress", len(inProgress)))

	return complete, inProgress, nil
}

// group maps run key to the set of suffixes seen for it. Duplicate names
// collapse into one entry.
func (r *Reconciler) group(names []string) map[string]map[string]struct{} {
	groups := make(map[string]map[string]struct{})
	for _, name := range names {
		key, suffix, ok := r.split(name)
		if !ok {
			continue
		}
		set, exists := groups[key]
		if !exists {
			set = make(map[string]struct{})
			groups[key] = set
		}
		set[suffix] = struct{}{}
	}
	return groups
}

// split extracts the run key and suffix from a file name, logging why a name
// is skipped.
func (r *Reconciler) split(name string) (key, suffix string, ok bool) {
	if strings.HasSuffix(name, TempExt) {
		r.logger.Debug("skipping temporary file", slog.String("file", name))
		return "", "", false
	}
	if len(name) != NameLen || !strings.HasPrefix(name, r.schedule.Prefix()) {
		r.logger.Debug("skipping file outside naming convention", slog.String("file", name))
		return "", "", false
	}
	key = name[PrefixLen : PrefixLen+KeyLen]
	if _, err := ParseKey(key); err != nil {
		r.logger.Warn("skipping file with invalid run key", slog.String("file", name), slog.String("error", err.Error()))
		return "", "", false
	}
	return key, name[PrefixLen+KeyLen:], true
}
