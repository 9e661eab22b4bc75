package testutil

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/ic3tools/enfetch/internal/core"
)

// Call is one recorded remote operation.
type Call struct {
	Op   string
	Path string
}

// FakeRemote is an in-memory remote store. Files are keyed by full path.
// Failures can be injected per operation and path.
type FakeRemote struct {
	mu      sync.Mutex
	files   map[string][]byte
	fail    map[Call]error
	listErr error
	calls   []Call
	closed  bool
}

// NewFakeRemote returns an empty fake store.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		files: make(map[string][]byte),
		fail:  make(map[Call]error),
	}
}

// Put stores a file under dir.
func (f *FakeRemote) Put(dir, name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path.Join(dir, name)] = data
}

// PutNames stores each name under dir with its name as content.
func (f *FakeRemote) PutNames(dir string, names ...string) {
	for _, n := range names {
		f.Put(dir, n, []byte("data:"+n))
	}
}

// Has reports whether a file exists at full path p.
func (f *FakeRemote) Has(p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[p]
	return ok
}

// FailList makes every List call return err.
func (f *FakeRemote) FailList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// FailOn makes op ("fetch", "delete" or "size") on path p return err.
func (f *FakeRemote) FailOn(op, p string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[Call{Op: op, Path: p}] = err
}

// ClearFailures removes every injected failure.
func (f *FakeRemote) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = make(map[Call]error)
	f.listErr = nil
}

// Calls returns the operations performed so far.
func (f *FakeRemote) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsOf returns the paths passed to op, in call order.
func (f *FakeRemote) CallsOf(op string) []string {
	var out []string
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c.Path)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (f *FakeRemote) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeRemote) List(_ context.Context, dir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "list", Path: dir})
	if f.listErr != nil {
		return nil, f.listErr
	}
	prefix := strings.TrimRight(dir, "/") + "/"
	var names []string
	for p := range f.files {
		if strings.HasPrefix(p, prefix) && !strings.Contains(p[len(prefix):], "/") {
			names = append(names, p[len(prefix):])
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *FakeRemote) Fetch(_ context.Context, p string, w io.Writer) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: "fetch", Path: p})
	err := f.fail[Call{Op: "fetch", Path: p}]
	data, ok := f.files[p]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return core.Errorf(core.KindNotFound, "fetch", p, "no such file")
	}
	_, werr := w.Write(data)
	return werr
}

func (f *FakeRemote) Delete(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "delete", Path: p})
	if err := f.fail[Call{Op: "delete", Path: p}]; err != nil {
		return err
	}
	if _, ok := f.files[p]; !ok {
		return core.Errorf(core.KindNotFound, "delete", p, "no such file")
	}
	delete(f.files, p)
	return nil
}

func (f *FakeRemote) Size(_ context.Context, p string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "size", Path: p})
	if err := f.fail[Call{Op: "size", Path: p}]; err != nil {
		return 0, err
	}
	data, ok := f.files[p]
	if !ok {
		return 0, core.Errorf(core.KindNotFound, "size", p, "no such file")
	}
	return int64(len(data)), nil
}

func (f *FakeRemote) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var _ core.RemoteClient = (*FakeRemote)(nil)
