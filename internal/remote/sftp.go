package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/ic3tools/enfetch/internal/core"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

func init() {
	Register(TypeSFTP, newSFTPClient)
}

type sftpClient struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	sshConn *ssh.Client
	client  *sftp.Client
}

func newSFTPClient(cfg Config, logger *slog.Logger) (core.RemoteClient, error) {
	if cfg.Password == "" && cfg.KeyFile == "" {
		return nil, fmt.Errorf("sftp remote requires password or key_file")
	}
	return &sftpClient{cfg: cfg, logger: logger}, nil
}

func (c *sftpClient) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if c.cfg.KeyFile != "" {
		pem, err := os.ReadFile(c.cfg.KeyFile)
		if err != nil {
			return nil, core.Wrap(core.KindConfiguration, "read key", c.cfg.KeyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, core.Wrap(core.KindConfiguration, "parse key", c.cfg.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if c.cfg.Password != "" {
		auth = append(auth, ssh.Password(c.cfg.Password))
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if c.cfg.KnownHosts != "" {
		cb, err := knownhosts.New(c.cfg.KnownHosts)
		if err != nil {
			return nil, core.Wrap(core.KindConfiguration, "read known_hosts", c.cfg.KnownHosts, err)
		}
		hostKey = cb
	} else {
		c.logger.Warn("host key verification disabled, set remote.known_hosts")
	}

	return &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         c.cfg.EffectiveTimeout(),
	}, nil
}

func (c *sftpClient) connect(ctx context.Context) (*sftp.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	conf, err := c.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := c.cfg.Address(22)
	c.logger.Debug("connecting", slog.String("addr", addr))

	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classify("connect", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, conf)
	if err != nil {
		_ = netConn.Close()
		return nil, classify("login", addr, err)
	}
	c.sshConn = ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(c.sshConn)
	if err != nil {
		_ = c.sshConn.Close()
		c.sshConn = nil
		return nil, classify("connect", addr, err)
	}
	c.client = client
	return client, nil
}

func (c *sftpClient) abort() {
	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}
	if c.sshConn != nil {
		_ = c.sshConn.Close()
		c.sshConn = nil
	}
}

func (c *sftpClient) call(ctx context.Context, op, p string, fn func(client *sftp.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.connect(ctx)
	if err != nil {
		return err
	}

	err = classify(op, p, callWithContext(ctx, c.abort, func() error { return fn(client) }))
	if core.IsTransient(err) {
		c.abort()
	}
	return err
}

func (c *sftpClient) List(ctx context.Context, dir string) ([]string, error) {
	var names []string
	err := c.call(ctx, "list", dir, func(client *sftp.Client) error {
		entries, err := client.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		return nil
	})
	return names, err
}

func (c *sftpClient) Fetch(ctx context.Context, p string, w io.Writer) error {
	return c.call(ctx, "fetch", p, func(client *sftp.Client) error {
		f, err := client.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.WriteTo(w)
		return err
	})
}

func (c *sftpClient) Delete(ctx context.Context, p string) error {
	return c.call(ctx, "delete", p, func(client *sftp.Client) error {
		return client.Remove(p)
	})
}

func (c *sftpClient) Size(ctx context.Context, p string) (int64, error) {
	var size int64
	err := c.call(ctx, "size", p, func(client *sftp.Client) error {
		fi, err := client.Stat(p)
		if err != nil {
			return err
		}
		size = fi.Size()
		return nil
	})
	return size, err
}

func (c *sftpClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abort()
	return nil
}
