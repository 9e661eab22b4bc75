package runs

import (
	"testing"
	"time"

	"github.com/ic3tools/enfetch/internal/core"
	"github.com/ic3tools/enfetch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullRun(key string) []string {
	return DefaultSchedule().FileNames(key)
}

func keysOf(ds []*Descriptor) []string {
	keys := make([]string, len(ds))
	for i, d := range ds {
		keys[i] = d.Key
	}
	return keys
}

func TestReconcile_CompleteRun(t *testing.T) {
	r := NewReconciler(DefaultSchedule(), testutil.NewTestLogger(t))

	names := []string{
		"EN14020100", "EN14020103", "EN14020106", "EN14020109",
		"EN14020112", "EN14020115", "EN14020118", "EN14020121",
	}

	complete, inProgress, err := r.Reconcile(names)
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Empty(t, inProgress)

	d := complete[0]
	assert.Equal(t, "140201", d.Key)
	assert.Equal(t, StatusComplete, d.Status)
	assert.Equal(t, time.Date(2014, time.February, 1, 0, 0, 0, 0, time.UTC), d.Date)
	assert.Equal(t, names, d.FileNames)
	assert.Empty(t, d.Missing)
	assert.Equal(t, "DONE", d.JobStatus())
}

func TestReconcile_MissingOneOutputIsInProgress(t *testing.T) {
	r := NewReconciler(DefaultSchedule(), testutil.NewTestLogger(t))

	names := fullRun("140201")
	names = names[:len(names)-1] // drop EN14020121

	complete, inProgress, err := r.Reconcile(names)
	require.NoError(t, err)
	assert.Empty(t, complete)
	require.Len(t, inProgress, 1)

	d := inProgress[0]
	assert.Equal(t, StatusInProgress, d.Status)
	assert.Equal(t, []string{"21"}, d.Missing)
	assert.Len(t, d.FileNames, 8, "expected names always come from the full schedule")
	assert.Equal(t, "EXEC", d.JobStatus())
}

func TestReconcile_TempFilesNeverCount(t *testing.T) {
	r := NewReconciler(DefaultSchedule(), testutil.NewTestLogger(t))

	names := fullRun("140201")[:7]
	names = append(names, "EN140201003.tmp", "EN14020121.tmp")

	complete, inProgress, err := r.Reconcile(names)
	require.NoError(t, err)
	assert.Empty(t, complete)
	require.Len(t, inProgress, 1)
	assert.Equal(t, []string{"21"}, inProgress[0].Missing)
}

func TestReconcile_OnlyTempFiles(t *testing.T) {
	r := NewReconciler(DefaultSchedule(), nil)

	complete, inProgress, err := r.Reconcile([]string{"EN140201003.tmp", "EN14020100.tmp"})
	require.NoError(t, err)
	assert.Empty(t, complete)
	assert.Empty(t, inProgress)
}

func TestReconcile_OrderAndDuplicatesIgnored(t *testing.T) {
	r := NewReconciler(DefaultSchedule(), nil)

	names := fullRun("140201")
	shuffled := []string{names[7], names[3], names[0], names[3], names[5], names[1], names[6], names[2], names[4], names[0]}

	complete, _, err := r.Reconcile(shuffled)
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, names, complete[0].FileNames)
}

func TestReconcile_MultipleRunsSortedByKey(t *testing.T) {
	r := NewReconciler(DefaultSchedule(), nil)

	var names []string
	names = append(names, fullRun("140203")...)
	names = append(names, fullRun("140201")...)
	names = append(names, fullRun("140202")[:3]...)
	names = append(names, fullRun("131231")[:1]...)

	complete, inProgress, err := r.Reconcile(names)
	require.NoError(t, err)
	assert.Equal(t, []string{"140201", "140203"}, keysOf(complete))
	assert.Equal(t, []string{"131231", "140202"}, keysOf(inProgress))
}

func TestReconcile_SkipsNamesOutsideConvention(t *testing.T) {
	r := NewReconciler(DefaultSchedule(), testutil.NewTestLogger(t))

	names := []string{
		"README",
		"XX14020100",   // wrong prefix
		"EN1402010",    // too short
		"EN1402010000", // too long
		"ENab020100",   // non-numeric key
		"EN14139900",   // not a date
		"",
	}

	complete, inProgress, err := r.Reconcile(names)
	require.NoError(t, err)
	assert.Empty(t, complete)
	assert.Empty(t, inProgress)
}

func TestReconcile_UnscheduledSuffixDoesNotCompleteRun(t *testing.T) {
	logger, logs := testutil.NewCaptureLogger()
	r := NewReconciler(DefaultSchedule(), logger)

	names := append(fullRun("140201")[:7], "EN14020101")

	complete, inProgress, err := r.Reconcile(names)
	require.NoError(t, err)
	assert.Empty(t, complete)
	require.Len(t, inProgress, 1)
	assert.Contains(t, logs.String(), "unexpected output suffix")
}

func TestReconcile_Idempotent(t *testing.T) {
	r := NewReconciler(DefaultSchedule(), nil)

	names := append(fullRun("140201"), fullRun("140202")[:4]...)

	c1, p1, err := r.Reconcile(names)
	require.NoError(t, err)
	c2, p2, err := r.Reconcile(names)
	require.NoError(t, err)

	assert.Equal(t, c1, c2)
	assert.Equal(t, p1, p2)
}

func TestReconcile_CustomSchedule(t *testing.T) {
	schedule, err := NewSchedule("HR", []string{"00", "12"})
	require.NoError(t, err)
	r := NewReconciler(schedule, nil)

	complete, inProgress, err := r.Reconcile([]string{"HR14020100", "HR14020112", "HR14020200", "EN14020300"})
	require.NoError(t, err)
	assert.Equal(t, []string{"140201"}, keysOf(complete))
	assert.Equal(t, []string{"140202"}, keysOf(inProgress))
	assert.Equal(t, []string{"HR14020100", "HR14020112"}, complete[0].FileNames)
}

func TestNewDescriptor_InvalidKey(t *testing.T) {
	_, err := NewDescriptor(DefaultSchedule(), "14x201", nil)
	require.Error(t, err)

	wrapped := core.Wrap(core.KindConsistency, "reconcile", "14x201", err)
	assert.Equal(t, core.KindConsistency, core.KindOf(wrapped))
}

func TestReconcile_MoreOutputsThanScheduleIsConsistencyError(t *testing.T) {
	// index knows more suffixes than the schedule lists
	inconsistent := &Schedule{
		prefix:   DefaultPrefix,
		suffixes: []string{"00"},
		index:    map[string]int{"00": 0, "03": 1},
	}
	r := NewReconciler(inconsistent, testutil.NewTestLogger(t))

	complete, inProgress, err := r.Reconcile([]string{"EN14020100", "EN14020103"})

	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConsistency), "got %v", err)
	assert.Contains(t, err.Error(), "run has 2 scheduled outputs, schedule defines 1")
	assert.Nil(t, complete)
	assert.Nil(t, inProgress)
}
