package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ic3tools/enfetch/internal/core"
	"github.com/ic3tools/enfetch/internal/testutil"
	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendSelfRegistration(t *testing.T) {
	assert.Equal(t, []string{"file", "ftp", "s3", "sftp"}, ListTypes())
}

func TestIsRegistered(t *testing.T) {
	tests := []struct {
		name     string
		backend  string
		expected bool
	}{
		{"ftp registered", "ftp", true},
		{"case insensitive", "SFTP", true},
		{"unknown not registered", "gopher", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRegistered(tt.backend), "IsRegistered(%q)", tt.backend)
		})
	}
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(Config{Type: "gopher"}, nil)
	require.Error(t, err)

	var unknownErr *UnknownTypeError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "gopher", unknownErr.Type)
	assert.Contains(t, unknownErr.Available, "ftp")
	assert.True(t, core.IsKind(err, core.KindConfiguration))
}

func TestNew_FileBackend(t *testing.T) {
	client, err := New(Config{Type: "file", Timeout: -1}, testutil.NewTestLogger(t))
	require.NoError(t, err)
	defer client.Close()

	_, guarded := client.(*guarded)
	assert.False(t, guarded, "disabled timeout and rate limit should not wrap")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"missing type", Config{}, "remote type is required"},
		{"ftp without host", Config{Type: "ftp"}, "ftp remote requires host"},
		{"sftp without host", Config{Type: "sftp"}, "sftp remote requires host"},
		{"s3 without bucket", Config{Type: "s3", Host: "minio:9000"}, "requires host and bucket"},
		{"s3 without keys", Config{Type: "s3", Host: "minio:9000", Bucket: "ens"}, "access_key and secret_key"},
		{"bad port", Config{Type: "ftp", Host: "h", Port: 70000}, "out of range"},
		{"negative rate", Config{Type: "file", RateLimit: -1}, "rate_limit"},
		{"valid ftp", Config{Type: "ftp", Host: "h"}, ""},
		{"valid file", Config{Type: "file"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, core.IsKind(err, core.KindConfiguration))
		})
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := Config{Host: "ecmwf.example", Password: "pw", SecretKey: "sk"}

	assert.Equal(t, "ecmwf.example:21", cfg.Address(21))
	cfg.Port = 2121
	assert.Equal(t, "ecmwf.example:2121", cfg.Address(21))

	assert.Equal(t, DefaultTimeout, cfg.EffectiveTimeout())
	cfg.Timeout = -1
	assert.Equal(t, time.Duration(0), cfg.EffectiveTimeout())
	cfg.Timeout = time.Second
	assert.Equal(t, time.Second, cfg.EffectiveTimeout())

	red := cfg.Redacted()
	assert.Equal(t, "********", red.Password)
	assert.Equal(t, "********", red.SecretKey)
	assert.Equal(t, "pw", cfg.Password, "original must be untouched")
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "EN14020100"), []byte("grib"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	client, err := newFileClient(Config{}, testutil.NewTestLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	names, err := client.List(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"EN14020100"}, names, "directories are not listed")

	var buf bytes.Buffer
	require.NoError(t, client.Fetch(ctx, filepath.Join(dir, "EN14020100"), &buf))
	assert.Equal(t, "grib", buf.String())

	size, err := client.Size(ctx, filepath.Join(dir, "EN14020100"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)

	require.NoError(t, client.Delete(ctx, filepath.Join(dir, "EN14020100")))
	_, err = os.Stat(filepath.Join(dir, "EN14020100"))
	assert.True(t, os.IsNotExist(err))

	err = client.Delete(ctx, filepath.Join(dir, "EN14020100"))
	assert.True(t, core.IsKind(err, core.KindNotFound), "got %v", err)
	_, err = client.Size(ctx, filepath.Join(dir, "EN14020100"))
	assert.True(t, core.IsKind(err, core.KindNotFound), "got %v", err)

	_, err = client.List(ctx, filepath.Join(dir, "missing"))
	assert.True(t, core.IsKind(err, core.KindNotFound), "got %v", err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want core.Kind
	}{
		{"deadline", context.DeadlineExceeded, core.KindConnectivity},
		{"not exist", fs.ErrNotExist, core.KindNotFound},
		{"permission", fmt.Errorf("open: %w", fs.ErrPermission), core.KindPermission},
		{"unexpected eof", io.ErrUnexpectedEOF, core.KindConnectivity},
		{"ssh auth", errors.New("ssh: handshake failed: ssh: unable to authenticate"), core.KindAuth},
		{"text permission", errors.New("sftp: permission denied"), core.KindPermission},
		{"unclassified", errors.New("boom"), core.KindUnknown},
		{"already classified", core.Errorf(core.KindIO, "write", "/x", "disk full"), core.KindIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("fetch", "/p", tt.err)
			assert.Equal(t, tt.want, core.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, classify("fetch", "/p", nil))
}

func TestClassifyFTP(t *testing.T) {
	tests := []struct {
		name string
		code int
		msg  string
		want core.Kind
	}{
		{"not logged in", ftp.StatusNotLoggedIn, "Login incorrect.", core.KindAuth},
		{"missing file", ftp.StatusFileUnavailable, "No such file or directory", core.KindNotFound},
		{"refused", ftp.StatusFileUnavailable, "Permission denied", core.KindPermission},
		{"transient", ftp.StatusNotAvailable, "Service not available", core.KindConnectivity},
		{"bad command", ftp.StatusBadCommand, "Unknown command", core.KindPermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyFTP("fetch", "/p", &textproto.Error{Code: tt.code, Msg: tt.msg})
			assert.Equal(t, tt.want, core.KindOf(err))
		})
	}
}

func TestIsEmptyListing(t *testing.T) {
	assert.True(t, isEmptyListing(&textproto.Error{Code: ftp.StatusFileUnavailable, Msg: "No files found"}))
	assert.True(t, isEmptyListing(&textproto.Error{Code: ftp.StatusFileActionIgnored, Msg: "No files found."}))
	assert.False(t, isEmptyListing(&textproto.Error{Code: ftp.StatusFileUnavailable, Msg: "Permission denied"}))
	assert.False(t, isEmptyListing(errors.New("no files")))
}

func TestS3KeyHelpers(t *testing.T) {
	assert.Equal(t, "", dirPrefix("/"))
	assert.Equal(t, "ens/in/", dirPrefix("/ens/in/"))
	assert.Equal(t, "ens/in/EN14020100", objectKey("/ens/in/EN14020100"))
}

// blockingRemote blocks Fetch until its context ends.
type blockingRemote struct {
	*testutil.FakeRemote
}

func (b blockingRemote) Fetch(ctx context.Context, _ string, _ io.Writer) error {
	<-ctx.Done()
	return errors.New("transfer interrupted")
}

func TestGuard_TimeoutIsConnectivity(t *testing.T) {
	client := Guard(blockingRemote{testutil.NewFakeRemote()}, 20*time.Millisecond, 0)

	err := client.Fetch(context.Background(), "/in/EN14020100", io.Discard)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConnectivity), "got %v", err)
}

func TestGuard_PassesThrough(t *testing.T) {
	fake := testutil.NewFakeRemote()
	fake.PutNames("/in", "EN14020100")
	client := Guard(fake, time.Second, 1000)

	names, err := client.List(context.Background(), "/in")
	require.NoError(t, err)
	assert.Equal(t, []string{"EN14020100"}, names)

	size, err := client.Size(context.Background(), "/in/EN14020100")
	require.NoError(t, err)
	assert.Equal(t, int64(len("data:EN14020100")), size)

	require.NoError(t, client.Delete(context.Background(), "/in/EN14020100"))
	err = client.Delete(context.Background(), "/in/EN14020100")
	assert.True(t, core.IsKind(err, core.KindNotFound), "got %v", err)

	require.NoError(t, client.Close())
	assert.True(t, fake.Closed())
}

func TestGuard_RateLimitHonoursContext(t *testing.T) {
	fake := testutil.NewFakeRemote()
	client := Guard(fake, 0, 0.001)

	_, err := client.List(context.Background(), "/in")
	require.NoError(t, err, "first call uses the burst")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.List(ctx, "/in")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConnectivity))
	assert.Len(t, fake.CallsOf("list"), 1)
}

func TestCallWithContext(t *testing.T) {
	t.Run("returns result", func(t *testing.T) {
		err := callWithContext(context.Background(), func() {}, func() error { return nil })
		assert.NoError(t, err)
	})

	t.Run("aborts on cancel", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		unblock := make(chan struct{})
		aborted := false
		err := callWithContext(ctx, func() {
			aborted = true
			close(unblock)
		}, func() error {
			<-unblock
			return errors.New("closed")
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, aborted)
	})
}
