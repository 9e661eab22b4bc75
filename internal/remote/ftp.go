package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/ic3tools/enfetch/internal/core"
	"github.com/jlaffaye/ftp"
)

func init() {
	Register(TypeFTP, newFTPClient)
}

// ftpClient keeps one logged-in control connection per pass and redials
// lazily after a failure.
type ftpClient struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	conn *ftp.ServerConn
	live liveConns
}

func newFTPClient(cfg Config, logger *slog.Logger) (core.RemoteClient, error) {
	return &ftpClient{cfg: cfg, logger: logger}, nil
}

// liveConns tracks the sockets under the current session. The library dials
// data connections through the same function as the control connection, so
// every socket a call blocks on is known here and can be interrupted from
// another goroutine.
type liveConns struct {
	mu   sync.Mutex
	ctx  context.Context
	ctrl net.Conn
	data net.Conn
}

func (l *liveConns) dialFunc(timeout time.Duration) func(network, addr string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	return func(network, addr string) (net.Conn, error) {
		l.mu.Lock()
		ctx := l.ctx
		l.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}

		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetDeadline(deadline)
		}

		l.mu.Lock()
		if l.ctrl == nil {
			l.ctrl = conn
		} else {
			l.data = conn
		}
		l.mu.Unlock()
		return conn, nil
	}
}

// bind makes ctx the bound for the control connection and for data
// connections dialed during the call. A ctx without deadline clears it.
func (l *liveConns) bind(ctx context.Context) {
	l.mu.Lock()
	l.ctx = ctx
	ctrl := l.ctrl
	l.mu.Unlock()
	if ctrl != nil {
		deadline, _ := ctx.Deadline()
		_ = ctrl.SetDeadline(deadline)
	}
}

// interrupt fails any pending read or write on the live sockets.
func (l *liveConns) interrupt() {
	l.mu.Lock()
	defer l.mu.Unlock()
	past := time.Unix(1, 0)
	if l.ctrl != nil {
		_ = l.ctrl.SetDeadline(past)
	}
	if l.data != nil {
		_ = l.data.SetDeadline(past)
	}
}

func (l *liveConns) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ctx, l.ctrl, l.data = nil, nil, nil
}

func (c *ftpClient) connect() (*ftp.ServerConn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	addr := c.cfg.Address(21)
	c.logger.Debug("connecting", slog.String("addr", addr))
	conn, err := ftp.Dial(addr, ftp.DialWithDialFunc(c.live.dialFunc(c.cfg.EffectiveTimeout())))
	if err != nil {
		c.live.reset()
		return nil, classifyFTP("connect", addr, err)
	}
	if err := conn.Login(c.cfg.User, c.cfg.Password); err != nil {
		_ = conn.Quit()
		c.live.reset()
		return nil, classifyFTP("login", addr, err)
	}

	c.conn = conn
	return conn, nil
}

// drop closes the session. Callers hold mu and no call is in flight.
func (c *ftpClient) drop() {
	if c.conn != nil {
		_ = c.conn.Quit()
		c.conn = nil
	}
	c.live.reset()
}

// call runs fn on a live connection bounded by ctx. Connectivity failures
// drop the connection so the next call redials.
func (c *ftpClient) call(ctx context.Context, op, p string, fn func(conn *ftp.ServerConn) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.live.bind(ctx)
	conn, err := c.connect()
	if err != nil {
		return err
	}

	err = callWithContext(ctx, c.live.interrupt, func() error { return fn(conn) })
	if err == nil {
		c.live.bind(context.Background())
		return nil
	}
	err = classifyFTP(op, p, err)
	if core.IsTransient(err) {
		c.drop()
	} else {
		c.live.bind(context.Background())
	}
	return err
}

func (c *ftpClient) List(ctx context.Context, dir string) ([]string, error) {
	var names []string
	err := c.call(ctx, "list", dir, func(conn *ftp.ServerConn) error {
		entries, err := conn.NameList(dir)
		if err != nil {
			if isEmptyListing(err) {
				return nil
			}
			return err
		}
		for _, e := range entries {
			// Some servers return paths relative to the login directory.
			if base := path.Base(e); base != "." && base != "/" {
				names = append(names, base)
			}
		}
		return nil
	})
	return names, err
}

func (c *ftpClient) Fetch(ctx context.Context, p string, w io.Writer) error {
	return c.call(ctx, "fetch", p, func(conn *ftp.ServerConn) error {
		resp, err := conn.Retr(p)
		if err != nil {
			return err
		}
		if deadline, ok := ctx.Deadline(); ok {
			_ = resp.SetDeadline(deadline)
		}
		_, copyErr := io.Copy(w, resp)
		closeErr := resp.Close()
		if copyErr != nil {
			return copyErr
		}
		return closeErr
	})
}

func (c *ftpClient) Delete(ctx context.Context, p string) error {
	return c.call(ctx, "delete", p, func(conn *ftp.ServerConn) error {
		return conn.Delete(p)
	})
}

func (c *ftpClient) Size(ctx context.Context, p string) (int64, error) {
	var size int64
	err := c.call(ctx, "size", p, func(conn *ftp.ServerConn) error {
		n, err := conn.FileSize(p)
		size = n
		return err
	})
	return size, err
}

func (c *ftpClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.live.bind(context.Background())
	err := c.conn.Quit()
	c.conn = nil
	c.live.reset()
	return err
}

// isEmptyListing recognises servers that answer NLST on an empty directory
// with an error reply.
func isEmptyListing(err error) bool {
	var tpErr *textproto.Error
	if !errors.As(err, &tpErr) {
		return false
	}
	msg := strings.ToLower(tpErr.Msg)
	return (tpErr.Code == ftp.StatusFileUnavailable || tpErr.Code == ftp.StatusFileActionIgnored) &&
		strings.Contains(msg, "no files")
}

// classifyFTP maps FTP reply codes: 530 is an auth failure, 550 a missing
// file or refused action, other 5xx permanent refusals, 4xx transient.
func classifyFTP(op, p string, err error) error {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if !errors.As(err, &tpErr) {
		return classify(op, p, err)
	}

	kind := core.KindPermission
	switch {
	case tpErr.Code == ftp.StatusNotLoggedIn:
		kind = core.KindAuth
	case tpErr.Code == ftp.StatusFileUnavailable && classifyMessage(tpErr.Msg) == core.KindNotFound:
		kind = core.KindNotFound
	case tpErr.Code >= 400 && tpErr.Code < 500:
		kind = core.KindConnectivity
	}
	return &core.Error{Kind: kind, Op: op, Path: p, Err: err}
}
