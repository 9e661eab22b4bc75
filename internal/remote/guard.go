package remote

import (
	"context"
	"io"
	"time"

	"github.com/ic3tools/enfetch/internal/core"
	"golang.org/x/time/rate"
)

// guarded bounds every call of the wrapped client by a timeout and an
// optional rate limit. A timeout surfaces as a connectivity error.
type guarded struct {
	next    core.RemoteClient
	timeout time.Duration
	limiter *rate.Limiter
}

// Guard wraps client. timeout <= 0 disables the bound and perSecond <= 0
// disables rate limiting; with both disabled client is returned unchanged.
func Guard(client core.RemoteClient, timeout time.Duration, perSecond float64) core.RemoteClient {
	if timeout <= 0 && perSecond <= 0 {
		return client
	}
	g := &guarded{next: client, timeout: timeout}
	if perSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return g
}

func (g *guarded) begin(ctx context.Context, op, path string) (context.Context, context.CancelFunc, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, nil, core.Wrap(core.KindConnectivity, op, path, err)
		}
	}
	if g.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}

func (g *guarded) List(ctx context.Context, dir string) ([]string, error) {
	ctx, cancel, err := g.begin(ctx, "list", dir)
	if err != nil {
		return nil, err
	}
	defer cancel()
	names, err := g.next.List(ctx, dir)
	return names, timeoutAware(ctx, "list", dir, err)
}

func (g *guarded) Fetch(ctx context.Context, path string, w io.Writer) error {
	ctx, cancel, err := g.begin(ctx, "fetch", path)
	if err != nil {
		return err
	}
	defer cancel()
	return timeoutAware(ctx, "fetch", path, g.next.Fetch(ctx, path, w))
}

func (g *guarded) Delete(ctx context.Context, path string) error {
	ctx, cancel, err := g.begin(ctx, "delete", path)
	if err != nil {
		return err
	}
	defer cancel()
	return timeoutAware(ctx, "delete", path, g.next.Delete(ctx, path))
}

func (g *guarded) Size(ctx context.Context, path string) (int64, error) {
	ctx, cancel, err := g.begin(ctx, "size", path)
	if err != nil {
		return 0, err
	}
	defer cancel()
	n, err := g.next.Size(ctx, path)
	return n, timeoutAware(ctx, "size", path, err)
}

func (g *guarded) Close() error { return g.next.Close() }

// timeoutAware reclassifies a failure caused by the deadline expiring.
func timeoutAware(ctx context.Context, op, path string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && !core.IsKind(err, core.KindConnectivity) {
		return &core.Error{Kind: core.KindConnectivity, Op: op, Path: path, Err: err}
	}
	return err
}

// callWithContext runs a blocking call that does not take a context. When
// ctx ends first, abort is invoked to unblock the call (typically by closing
// the connection) and the context error is returned once the call returns.
func callWithContext(ctx context.Context, abort func(), fn func() error) error {
	if ctx.Done() == nil {
		return fn()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		abort()
		<-done
		return ctx.Err()
	}
}
