package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ic3tools/enfetch/internal/core"
	"github.com/ic3tools/enfetch/internal/runs"
	"github.com/ic3tools/enfetch/internal/state"
)

// partExt marks a local file that is still being written.
const partExt = ".part"

// transferRun downloads every expected file of a complete run, then deletes
// the remote copies. No delete is issued unless all downloads succeeded.
func (e *Engine) transferRun(ctx context.Context, pass *Pass, d *runs.Descriptor) error {
	localDir := e.input.LocalPath(d.Date)
	log := e.logger.With("run", d.Key)
	log.Info("downloading run", "remote_path", e.input.RemotePath(), "local_path", localDir, "files", len(d.FileNames))

	if pass.Simulate {
		for _, name := range d.FileNames {
			log.Debug("simulate: download", "file", name, "dest", filepath.Join(localDir, name))
		}
		for _, name := range d.FileNames {
			log.Debug("simulate: delete", "file", e.remoteFile(name))
		}
		return nil
	}

	reuse := e.downloaded(d, localDir)
	if reuse {
		changed, err := e.changedSinceDownload(ctx, localDir, d.FileNames)
		if err != nil {
			e.setTransfer(pass, d.Key, state.TransferDownloaded, err)
			return err
		}
		if len(changed) > 0 {
			log.Warn("remote files changed since download, downloading again", "files", changed)
			reuse = false
		}
	}

	if reuse {
		log.Info("run already downloaded, retrying deletion")
	} else {
		e.setTransfer(pass, d.Key, state.TransferDownloading, nil)
		if err := e.download(ctx, d, localDir); err != nil {
			st := state.TransferFailed
			if core.IsTransient(err) {
				st = state.TransferDownloading
			}
			e.setTransfer(pass, d.Key, st, err)
			return err
		}
		e.setTransfer(pass, d.Key, state.TransferDownloaded, nil)
	}

	log.Debug("deleting remote files")
	if err := e.deleteFiles(ctx, d.FileNames); err != nil {
		e.setTransfer(pass, d.Key, state.TransferDownloaded, err)
		return err
	}
	e.setTransfer(pass, d.Key, state.TransferDone, nil)
	log.Info("run transferred")
	return nil
}

// resumeDeletion finishes a run whose files were all downloaded in an earlier
// pass but whose remote deletion was interrupted. It reports false, and
// marks the run failed so it is fetched again once complete, when a remote
// file no longer matches its local copy.
func (e *Engine) resumeDeletion(ctx context.Context, pass *Pass, d *runs.Descriptor) (bool, error) {
	log := e.logger.With("run", d.Key)
	names := make([]string, 0, len(d.Observed))
	for _, suffix := range d.Observed {
		names = append(names, e.reconciler.Schedule().FileName(d.Key, suffix))
	}
	log.Info("resuming deletion of downloaded run", "remaining", len(names))

	if pass.Simulate {
		for _, name := range names {
			log.Debug("simulate: delete", "file", e.remoteFile(name))
		}
		return true, nil
	}

	changed, err := e.changedSinceDownload(ctx, e.input.LocalPath(d.Date), names)
	if err != nil {
		e.setTransfer(pass, d.Key, state.TransferDownloaded, err)
		return false, err
	}
	if len(changed) > 0 {
		log.Warn("remote files changed since download, keeping run", "files", changed)
		e.setTransfer(pass, d.Key, state.TransferFailed,
			fmt.Errorf("remote files changed since download: %s", strings.Join(changed, " ")))
		return false, nil
	}

	if err := e.deleteFiles(ctx, names); err != nil {
		e.setTransfer(pass, d.Key, state.TransferDownloaded, err)
		return false, err
	}
	e.setTransfer(pass, d.Key, state.TransferDone, nil)
	return true, nil
}

// changedSinceDownload returns the names whose remote size differs from the
// local copy. Files already gone from the remote are not reported.
func (e *Engine) changedSinceDownload(ctx context.Context, localDir string, names []string) ([]string, error) {
	var changed []string
	for _, name := range names {
		fi, err := os.Stat(filepath.Join(localDir, name))
		if err != nil {
			changed = append(changed, name)
			continue
		}
		p := e.remoteFile(name)
		size, err := e.client.Size(ctx, p)
		switch {
		case core.IsKind(err, core.KindNotFound):
			continue
		case err != nil:
			return nil, core.Wrap(core.KindUnknown, "size", p, err)
		}
		if size != fi.Size() {
			changed = append(changed, name)
		}
	}
	return changed, nil
}

// downloaded reports whether the store recorded the run as downloaded and
// every expected file is still present locally.
func (e *Engine) downloaded(d *runs.Descriptor, localDir string) bool {
	if e.store == nil {
		return false
	}
	tr, err := e.store.GetTransfer(e.input.Name(), d.Key)
	if err != nil {
		e.logger.Warn("failed to read transfer state", "run", d.Key, "error", err)
		return false
	}
	if tr == nil || tr.State != state.TransferDownloaded {
		return false
	}
	for _, name := range d.FileNames {
		fi, err := os.Stat(filepath.Join(localDir, name))
		if err != nil || !fi.Mode().IsRegular() {
			return false
		}
	}
	return true
}

func (e *Engine) download(ctx context.Context, d *runs.Descriptor, localDir string) error {
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return core.Wrap(core.KindIO, "mkdir", localDir, err)
	}
	for i, name := range d.FileNames {
		if err := e.fetchFile(ctx, e.remoteFile(name), filepath.Join(localDir, name)); err != nil {
			return err
		}
		e.logger.Debug("downloaded", "run", d.Key, "file", name, "n", i+1, "of", len(d.FileNames))
	}
	return nil
}

// fetchFile writes src to dst through a temporary name so dst only ever
// holds a complete file.
func (e *Engine) fetchFile(ctx context.Context, src, dst string) error {
	tmp := dst + partExt
	f, err := os.Create(tmp)
	if err != nil {
		return core.Wrap(core.KindIO, "create", tmp, err)
	}

	w := &localWriter{w: f}
	fetchErr := e.client.Fetch(ctx, src, w)
	closeErr := f.Close()

	switch {
	case w.err != nil:
		_ = os.Remove(tmp)
		return &core.Error{Kind: core.KindIO, Op: "write", Path: tmp, Err: w.err}
	case fetchErr != nil:
		_ = os.Remove(tmp)
		return core.Wrap(core.KindUnknown, "fetch", src, fetchErr)
	case closeErr != nil:
		_ = os.Remove(tmp)
		return core.Wrap(core.KindIO, "close", tmp, closeErr)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return core.Wrap(core.KindIO, "rename", dst, err)
	}
	return nil
}

// deleteFiles removes names from the remote directory in order. A file that
// is already gone counts as deleted.
func (e *Engine) deleteFiles(ctx context.Context, names []string) error {
	for _, name := range names {
		p := e.remoteFile(name)
		err := e.client.Delete(ctx, p)
		switch {
		case err == nil:
			e.logger.Debug("deleted", "file", p)
		case core.IsKind(err, core.KindNotFound):
			e.logger.Debug("already deleted", "file", p)
		default:
			return core.Wrap(core.KindUnknown, "delete", p, err)
		}
	}
	return nil
}

func (e *Engine) remoteFile(name string) string {
	return path.Join(e.input.RemotePath(), name)
}

// localWriter remembers the first local write error so it is not mistaken
// for a remote failure.
type localWriter struct {
	w   io.Writer
	err error
}

func (lw *localWriter) Write(p []byte) (int, error) {
	n, err := lw.w.Write(p)
	if err != nil && lw.err == nil {
		lw.err = err
	}
	return n, err
}
