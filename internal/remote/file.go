package remote

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/ic3tools/enfetch/internal/core"
)

func init() {
	Register(TypeFile, newFileClient)
}

// fileClient serves a directory on a mounted filesystem as the remote store.
type fileClient struct {
	logger *slog.Logger
}

func newFileClient(_ Config, logger *slog.Logger) (core.RemoteClient, error) {
	return &fileClient{logger: logger}, nil
}

func (c *fileClient) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("list", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, classify("list", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (c *fileClient) Fetch(ctx context.Context, p string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return classify("fetch", p, err)
	}
	f, err := os.Open(p)
	if err != nil {
		return classify("fetch", p, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return classify("fetch", p, err)
	}
	return nil
}

func (c *fileClient) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return classify("delete", p, err)
	}
	return classify("delete", p, os.Remove(p))
}

func (c *fileClient) Size(ctx context.Context, p string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, classify("size", p, err)
	}
	fi, err := os.Stat(p)
	if err != nil {
		return 0, classify("size", p, err)
	}
	return fi.Size(), nil
}

func (c *fileClient) Close() error { return nil }
