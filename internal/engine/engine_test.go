package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ic3tools/enfetch/internal/core"
	"github.com/ic3tools/enfetch/internal/runs"
	"github.com/ic3tools/enfetch/internal/state"
	"github.com/ic3tools/enfetch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const remoteDir = "/ens"

func fullRun(key string) []string {
	return runs.DefaultSchedule().FileNames(key)
}

func newTestEngine(t *testing.T, fake *testutil.FakeRemote, store state.Store) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	in, err := core.NewInput("ens", "ensemble forecast", remoteDir, filepath.Join(root, "YEAR", "MONTH", "DAY"))
	require.NoError(t, err)

	eng, err := New(Config{
		Input:  in,
		Client: fake,
		Store:  store,
		Logger: testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	return eng, root
}

func newTestStore(t *testing.T) *state.SQLiteStore {
	t.Helper()
	store, err := state.OpenStore(":memory:", testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func remotePaths(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = remoteDir + "/" + n
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	in, err := core.NewInput("ens", "", "/ens", "/data/YEAR")
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing input", Config{Client: testutil.NewFakeRemote()}},
		{"missing client", Config{Input: in}},
		{"invalid input", Config{Input: &core.InputConfig{InputName: "ens"}, Client: testutil.NewFakeRemote()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.True(t, core.IsKind(err, core.KindConfiguration), "got %v", err)
		})
	}
}

func TestRun_TransfersCompleteRun(t *testing.T) {
	fake := testutil.NewFakeRemote()
	fake.PutNames(remoteDir, fullRun("140201")...)
	fake.PutNames(remoteDir, "EN14020200", "EN14020203")
	eng, root := newTestEngine(t, fake, nil)

	pass := eng.Run(context.Background(), false)

	require.NoError(t, pass.Err)
	assert.Equal(t, state.PassStatusCompleted, pass.Status())
	assert.Equal(t, []string{"140201"}, pass.Transferred)
	require.Len(t, pass.Complete, 1)
	require.Len(t, pass.InProgress, 1)
	assert.Equal(t, "140202", pass.InProgress[0].Key)

	localDir := filepath.Join(root, "2014", "02", "01")
	for _, name := range fullRun("140201") {
		data, err := os.ReadFile(filepath.Join(localDir, name))
		require.NoError(t, err, name)
		assert.Equal(t, "data:"+name, string(data))
		assert.False(t, fake.Has(remoteDir+"/"+name), "%s should be deleted remotely", name)
		assert.NoFileExists(t, filepath.Join(localDir, name+partExt))
	}
	assert.True(t, fake.Has(remoteDir+"/EN14020200"), "in-progress run must stay remote")

	// every fetch precedes every delete, both in schedule order
	expected := remotePaths(fullRun("140201"))
	assert.Equal(t, expected, fake.CallsOf("fetch"))
	assert.Equal(t, expected, fake.CallsOf("delete"))
	calls := fake.Calls()
	lastFetch, firstDelete := -1, len(calls)
	for i, c := range calls {
		if c.Op == "fetch" {
			lastFetch = i
		}
		if c.Op == "delete" && i < firstDelete {
			firstDelete = i
		}
	}
	assert.Less(t, lastFetch, firstDelete)
}

func TestRun_DownloadFailureDeletesNothing(t *testing.T) {
	fake := testutil.NewFakeRemote()
	names := fullRun("140201")
	fake.PutNames(remoteDir, names...)
	fake.FailOn("fetch", remoteDir+"/"+names[4], core.Errorf(core.KindPermission, "fetch", names[4], "550 Permission denied"))
	eng, root := newTestEngine(t, fake, nil)
	localDir := filepath.Join(root, "2014", "02", "01")

	pass := eng.Run(context.Background(), false)

	require.Error(t, pass.Err)
	assert.True(t, core.IsKind(pass.Err, core.KindPermission))
	assert.Equal(t, state.PassStatusFailed, pass.Status())
	assert.Empty(t, pass.Transferred)
	assert.Empty(t, fake.CallsOf("delete"), "no delete before the whole run is downloaded")
	assert.Equal(t, remotePaths(names[:5]), fake.CallsOf("fetch"))
	for _, name := range names[:4] {
		assert.FileExists(t, filepath.Join(localDir, name))
	}
	assert.NoFileExists(t, filepath.Join(localDir, names[4]))
	assert.NoFileExists(t, filepath.Join(localDir, names[4]+partExt))

	// the next pass converges
	fake.ClearFailures()
	pass = eng.Run(context.Background(), false)
	require.NoError(t, pass.Err)
	assert.Equal(t, []string{"140201"}, pass.Transferred)
	assert.Equal(t, remotePaths(names), fake.CallsOf("delete"))
}

func TestRun_FailureAbortsRemainingRuns(t *testing.T) {
	fake := testutil.NewFakeRemote()
	fake.PutNames(remoteDir, fullRun("140201")...)
	fake.PutNames(remoteDir, fullRun("140202")...)
	fake.FailOn("delete", remoteDir+"/EN14020100", core.Errorf(core.KindPermission, "delete", "", "refused"))
	eng, _ := newTestEngine(t, fake, nil)

	pass := eng.Run(context.Background(), false)

	require.Error(t, pass.Err)
	assert.Len(t, pass.Complete, 2)
	for _, p := range fake.CallsOf("fetch") {
		assert.NotContains(t, p, "140202", "second run must not be touched")
	}
	assert.True(t, fake.Has(remoteDir+"/EN14020200"))
}

func TestRun_Simulate(t *testing.T) {
	fake := testutil.NewFakeRemote()
	fake.PutNames(remoteDir, fullRun("140201")...)
	fake.PutNames(remoteDir, "EN14020200")
	eng, root := newTestEngine(t, fake, nil)

	sim := eng.Run(context.Background(), true)

	require.NoError(t, sim.Err)
	assert.True(t, sim.Simulate)
	assert.Empty(t, fake.CallsOf("fetch"))
	assert.Empty(t, fake.CallsOf("delete"))
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "simulate must not create local files")

	complete, inProgress, err := eng.Inspect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, complete, sim.Complete)
	assert.Equal(t, inProgress, sim.InProgress)
}

func TestRun_ListingConnectivitySkipsPass(t *testing.T) {
	fake := testutil.NewFakeRemote()
	fake.PutNames(remoteDir, fullRun("140201")...)
	fake.FailList(core.Errorf(core.KindConnectivity, "list", remoteDir, "lookup ftp.example: no such host"))
	store := newTestStore(t)
	eng, _ := newTestEngine(t, fake, store)

	pass := eng.Run(context.Background(), false)

	assert.True(t, pass.Skipped)
	assert.Equal(t, state.PassStatusSkipped, pass.Status())
	assert.Empty(t, fake.CallsOf("fetch"))
	assert.Empty(t, fake.CallsOf("delete"))

	rec, err := store.GetPass(pass.ID)
	require.NoError(t, err)
	assert.Equal(t, state.PassStatusSkipped, rec.Status)
	assert.Contains(t, rec.Error, "no such host")
}

func TestRun_ListingAuthFailureFailsPass(t *testing.T) {
	fake := testutil.NewFakeRemote()
	fake.FailList(core.Errorf(core.KindAuth, "login", "", "530 Login incorrect"))
	eng, _ := newTestEngine(t, fake, nil)

	pass := eng.Run(context.Background(), false)

	assert.False(t, pass.Skipped)
	assert.Equal(t, state.PassStatusFailed, pass.Status())
	assert.True(t, core.IsKind(pass.Err, core.KindAuth))
}

func TestRun_LocalDirectoryErrorIsIO(t *testing.T) {
	fake := testutil.NewFakeRemote()
	fake.PutNames(remoteDir, fullRun("140201")...)
	eng, root := newTestEngine(t, fake, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "2014"), []byte("not a dir"), 0o644))

	pass := eng.Run(context.Background(), false)

	require.Error(t, pass.Err)
	assert.True(t, core.IsKind(pass.Err, core.KindIO), "got %v", pass.Err)
	assert.Empty(t, fake.CallsOf("fetch"))
	assert.Empty(t, fake.CallsOf("delete"))
}

func TestRun_OverwritesExistingLocalFile(t *testing.T) {
	fake := testutil.NewFakeRemote()
	names := fullRun("140201")
	fake.PutNames(remoteDir, names...)
	eng, root := newTestEngine(t, fake, nil)
	localDir := filepath.Join(root, "2014", "02", "01")
	require.NoError(t, os.MkdirAll(localDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(localDir, names[0]), []byte("stale partial"), 0o644))

	pass := eng.Run(context.Background(), false)

	require.NoError(t, pass.Err)
	data, err := os.ReadFile(filepath.Join(localDir, names[0]))
	require.NoError(t, err)
	assert.Equal(t, "data:"+names[0], string(data))
}

func TestRun_DeleteRetriedWithoutRedownload(t *testing.T) {
	fake := testutil.NewFakeRemote()
	names := fullRun("140201")
	fake.PutNames(remoteDir, names...)
	fake.FailOn("delete", remoteDir+"/"+names[0], core.Errorf(core.KindConnectivity, "delete", "", "connection reset"))
	store := newTestStore(t)
	eng, _ := newTestEngine(t, fake, store)

	first := eng.Run(context.Background(), false)
	require.Error(t, first.Err)
	assert.Equal(t, state.PassStatusSkipped, first.Status())
	assert.Len(t, fake.CallsOf("fetch"), 8)

	tr, err := store.GetTransfer("ens", "140201")
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, state.TransferDownloaded, tr.State)

	fake.ClearFailures()
	second := eng.Run(context.Background(), false)
	require.NoError(t, second.Err)
	assert.Equal(t, []string{"140201"}, second.Transferred)
	assert.Len(t, fake.CallsOf("fetch"), 8, "downloaded run must not be fetched again")
	for _, name := range names {
		assert.False(t, fake.Has(remoteDir+"/"+name))
	}

	tr, err = store.GetTransfer("ens", "140201")
	require.NoError(t, err)
	assert.Equal(t, state.TransferDone, tr.State)
}

func TestRun_ResumesPartialDeletion(t *testing.T) {
	fake := testutil.NewFakeRemote()
	names := fullRun("140201")
	fake.PutNames(remoteDir, names...)
	fake.FailOn("delete", remoteDir+"/"+names[3], core.Errorf(core.KindPermission, "delete", "", "refused"))
	store := newTestStore(t)
	eng, _ := newTestEngine(t, fake, store)

	first := eng.Run(context.Background(), false)
	require.Error(t, first.Err)
	assert.False(t, fake.Has(remoteDir+"/"+names[0]), "files before the failure were deleted")

	fake.ClearFailures()
	second := eng.Run(context.Background(), false)
	require.NoError(t, second.Err)
	require.Len(t, second.InProgress, 1, "partially deleted run lists as in progress")
	assert.Equal(t, []string{"140201"}, second.Transferred)
	assert.Len(t, fake.CallsOf("fetch"), 8)
	for _, name := range names {
		assert.False(t, fake.Has(remoteDir+"/"+name))
	}
}

func TestRun_ChangedRemoteFilesAreNotDeleted(t *testing.T) {
	fake := testutil.NewFakeRemote()
	names := fullRun("140201")
	fake.PutNames(remoteDir, names...)
	fake.FailOn("delete", remoteDir+"/"+names[3], core.Errorf(core.KindPermission, "delete", "", "refused"))
	store := newTestStore(t)
	eng, root := newTestEngine(t, fake, store)
	localDir := filepath.Join(root, "2014", "02", "01")

	first := eng.Run(context.Background(), false)
	require.Error(t, first.Err)

	// the producer rewrites one output after it was downloaded
	fake.ClearFailures()
	fake.Put(remoteDir, names[5], []byte("rewritten output, longer than before"))

	second := eng.Run(context.Background(), false)
	require.NoError(t, second.Err)
	assert.Empty(t, second.Transferred)
	for _, name := range names[3:] {
		assert.True(t, fake.Has(remoteDir+"/"+name), "%s must stay remote", name)
	}
	tr, err := store.GetTransfer("ens", "140201")
	require.NoError(t, err)
	assert.Equal(t, state.TransferFailed, tr.State)
	assert.Contains(t, tr.Error, names[5])

	// once complete again the run is fetched from scratch
	fake.PutNames(remoteDir, names[:3]...)
	third := eng.Run(context.Background(), false)
	require.NoError(t, third.Err)
	assert.Equal(t, []string{"140201"}, third.Transferred)
	assert.Len(t, fake.CallsOf("fetch"), 16)
	data, err := os.ReadFile(filepath.Join(localDir, names[5]))
	require.NoError(t, err)
	assert.Equal(t, "rewritten output, longer than before", string(data))
}

func TestRun_ChangedCompleteRunIsDownloadedAgain(t *testing.T) {
	fake := testutil.NewFakeRemote()
	names := fullRun("140201")
	fake.PutNames(remoteDir, names...)
	fake.FailOn("delete", remoteDir+"/"+names[0], core.Errorf(core.KindConnectivity, "delete", "", "connection reset"))
	store := newTestStore(t)
	eng, root := newTestEngine(t, fake, store)
	localDir := filepath.Join(root, "2014", "02", "01")

	first := eng.Run(context.Background(), false)
	require.Error(t, first.Err)
	assert.Len(t, fake.CallsOf("fetch"), 8)

	fake.ClearFailures()
	fake.Put(remoteDir, names[2], []byte("x"))

	second := eng.Run(context.Background(), false)
	require.NoError(t, second.Err)
	assert.Equal(t, []string{"140201"}, second.Transferred)
	assert.Len(t, fake.CallsOf("fetch"), 16)
	data, err := os.ReadFile(filepath.Join(localDir, names[2]))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
	assert.False(t, fake.Has(remoteDir+"/"+names[2]))
}

func TestRun_SizeFailureKeepsRemoteFiles(t *testing.T) {
	fake := testutil.NewFakeRemote()
	names := fullRun("140201")
	fake.PutNames(remoteDir, names...)
	fake.FailOn("delete", remoteDir+"/"+names[0], core.Errorf(core.KindConnectivity, "delete", "", "connection reset"))
	store := newTestStore(t)
	eng, _ := newTestEngine(t, fake, store)

	require.Error(t, eng.Run(context.Background(), false).Err)

	fake.ClearFailures()
	fake.FailOn("size", remoteDir+"/"+names[1], core.Errorf(core.KindConnectivity, "size", "", "timeout"))
	pass := eng.Run(context.Background(), false)

	require.Error(t, pass.Err)
	assert.Equal(t, state.PassStatusSkipped, pass.Status())
	assert.Len(t, fake.CallsOf("delete"), 1, "only the failed delete of the first pass")
}

func TestRun_InProgressRunWithoutDownloadIsLeftAlone(t *testing.T) {
	fake := testutil.NewFakeRemote()
	fake.PutNames(remoteDir, "EN14020100", "EN14020103")
	eng, _ := newTestEngine(t, fake, newTestStore(t))

	pass := eng.Run(context.Background(), false)

	require.NoError(t, pass.Err)
	assert.Empty(t, pass.Transferred)
	assert.Empty(t, fake.CallsOf("delete"))
}

func TestRun_RecordsPassHistory(t *testing.T) {
	fake := testutil.NewFakeRemote()
	fake.PutNames(remoteDir, fullRun("140201")...)
	fake.PutNames(remoteDir, "EN14020200")
	store := newTestStore(t)
	eng, _ := newTestEngine(t, fake, store)

	pass := eng.Run(context.Background(), false)
	require.NoError(t, pass.Err)
	require.NotEmpty(t, pass.ID)

	rec, err := store.GetPass(pass.ID)
	require.NoError(t, err)
	assert.Equal(t, state.PassStatusCompleted, rec.Status)
	assert.Equal(t, 1, rec.Complete)
	assert.Equal(t, 1, rec.InProgress)
	assert.Equal(t, 1, rec.Transferred)
	assert.NotNil(t, rec.CompletedAt)
}

func TestRun_SimulateRecordsNoTransfers(t *testing.T) {
	fake := testutil.NewFakeRemote()
	fake.PutNames(remoteDir, fullRun("140201")...)
	store := newTestStore(t)
	eng, _ := newTestEngine(t, fake, store)

	pass := eng.Run(context.Background(), true)
	require.NoError(t, pass.Err)

	transfers, err := store.ListTransfers("ens")
	require.NoError(t, err)
	assert.Empty(t, transfers)

	rec, err := store.GetPass(pass.ID)
	require.NoError(t, err)
	assert.True(t, rec.Simulate)
}

func TestRun_CanceledContext(t *testing.T) {
	fake := testutil.NewFakeRemote()
	fake.PutNames(remoteDir, fullRun("140201")...)
	eng, _ := newTestEngine(t, fake, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pass := eng.Run(ctx, false)

	require.Error(t, pass.Err)
	assert.Equal(t, state.PassStatusSkipped, pass.Status())
	assert.Empty(t, fake.CallsOf("fetch"))
}

func TestPass_Status(t *testing.T) {
	tests := []struct {
		name string
		pass Pass
		want state.PassStatus
	}{
		{"ok", Pass{}, state.PassStatusCompleted},
		{"skipped", Pass{Skipped: true, Err: core.Errorf(core.KindConnectivity, "list", "", "down")}, state.PassStatusSkipped},
		{"transient transfer", Pass{Err: core.Errorf(core.KindConnectivity, "fetch", "", "reset")}, state.PassStatusSkipped},
		{"permission", Pass{Err: core.Errorf(core.KindPermission, "fetch", "", "denied")}, state.PassStatusFailed},
		{"consistency", Pass{Err: core.Errorf(core.KindConsistency, "reconcile", "", "too many")}, state.PassStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pass.Status())
		})
	}
}
