package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ic3tools/enfetch/internal/core"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func init() {
	Register(TypeS3, newS3Client)
}

// s3Client treats a remote directory as an object key prefix inside the
// configured bucket.
type s3Client struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

func newS3Client(cfg Config, logger *slog.Logger) (core.RemoteClient, error) {
	endpoint := cfg.Host
	if cfg.Port != 0 {
		endpoint = cfg.Address(0)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &s3Client{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// objectKey strips the leading slash of a remote path.
func objectKey(p string) string {
	return strings.TrimPrefix(p, "/")
}

// dirPrefix turns a directory into a key prefix ending in "/", or "" for the
// bucket root.
func dirPrefix(dir string) string {
	p := strings.Trim(dir, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func (c *s3Client) List(ctx context.Context, dir string) ([]string, error) {
	prefix := dirPrefix(dir)
	var names []string
	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, classifyS3("list", dir, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		names = append(names, name)
	}
	c.logger.Debug("listed objects", slog.String("prefix", prefix), slog.Int("count", len(names)))
	return names, nil
}

func (c *s3Client) Fetch(ctx context.Context, p string, w io.Writer) error {
	obj, err := c.client.GetObject(ctx, c.bucket, objectKey(p), minio.GetObjectOptions{})
	if err != nil {
		return classifyS3("fetch", p, err)
	}
	defer obj.Close()

	if _, err := io.Copy(w, obj); err != nil {
		return classifyS3("fetch", p, err)
	}
	return nil
}

func (c *s3Client) Delete(ctx context.Context, p string) error {
	if err := c.client.RemoveObject(ctx, c.bucket, objectKey(p), minio.RemoveObjectOptions{}); err != nil {
		return classifyS3("delete", p, err)
	}
	return nil
}

func (c *s3Client) Size(ctx context.Context, p string) (int64, error) {
	info, err := c.client.StatObject(ctx, c.bucket, objectKey(p), minio.StatObjectOptions{})
	if err != nil {
		return 0, classifyS3("size", p, err)
	}
	return info.Size, nil
}

func (c *s3Client) Close() error { return nil }

// classifyS3 converts minio-go error responses to error kinds.
func classifyS3(op, p string, err error) error {
	if err == nil {
		return nil
	}

	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return &core.Error{Kind: core.KindNotFound, Op: op, Path: p, Err: err}
	case "AccessDenied":
		return &core.Error{Kind: core.KindPermission, Op: op, Path: p, Err: err}
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return &core.Error{Kind: core.KindAuth, Op: op, Path: p, Err: err}
	case "SlowDown", "ServiceUnavailable", "InternalError", "RequestTimeout":
		return &core.Error{Kind: core.KindConnectivity, Op: op, Path: p, Err: err}
	}
	return classify(op, p, err)
}
