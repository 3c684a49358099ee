// Package objectstore mirrors simulator model files in an S3 compatible bucket. A
// connector that restarts often, or several connectors sharing a site, read model
// files from the mirror instead of the platform file API.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/models"
)

// ErrNotFound is returned when an object does not exist in the bucket.
var ErrNotFound = errors.New("object not found")

// Config holds the bucket connection settings.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// Enabled reports whether a mirror is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}

// FileSource fetches the file of a model revision.
type FileSource interface {
	Fetch(ctx context.Context, rev models.ModelRevision, w io.Writer) (int64, error)
}

// PlatformDownloader is the part of the platform client that streams stored files.
type PlatformDownloader interface {
	DownloadFile(ctx context.Context, fileID int64, w io.Writer) (int64, error)
}

// PlatformSource reads model files from the platform file API.
type PlatformSource struct {
	Files PlatformDownloader
}

func (p PlatformSource) Fetch(ctx context.Context, rev models.ModelRevision, w io.Writer) (int64, error) {
	return p.Files.DownloadFile(ctx, rev.FileID, w)
}

// objects is the bucket surface used by Mirror.
type objects interface {
	Download(ctx context.Context, key string, w io.Writer) (int64, error)
	Upload(ctx context.Context, key string, r io.Reader, size int64) error
}

// Mirror serves model files from the bucket, filling it from fallback on a miss.
type Mirror struct {
	objects  objects
	prefix   string
	fallback FileSource
	log      logger.Logger
}

// NewMirror connects to the bucket in cfg. Misses are fetched from fallback and
// uploaded.
func NewMirror(ctx context.Context, cfg Config, fallback FileSource) (*Mirror, error) {
	client, err := NewMinIOClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", cfg.Bucket, err)
	}
	return newMirror(&minioObjects{client: client, bucket: cfg.Bucket}, cfg.Prefix, fallback), nil
}

func newMirror(objs objects, prefix string, fallback FileSource) *Mirror {
	return &Mirror{
		objects:  objs,
		prefix:   prefix,
		fallback: fallback,
		log:      logger.WithPrefix("objectstore"),
	}
}

// ObjectKey is the bucket key holding the file of rev.
func (m *Mirror) ObjectKey(rev models.ModelRevision) string {
	name := rev.ExternalID + path.Ext(rev.FileName)
	return path.Join(m.prefix, rev.ModelExternalID, name)
}

func (m *Mirror) Fetch(ctx context.Context, rev models.ModelRevision, w io.Writer) (int64, error) {
	key := m.ObjectKey(rev)

	var buf bytes.Buffer
	n, err := m.objects.Download(ctx, key, &buf)
	if err == nil {
		m.log.Debugf("Read %s from mirror (%d bytes)", key, n)
		return io.Copy(w, &buf)
	}
	if !errors.Is(err, ErrNotFound) {
		m.log.Warnf("Mirror read of %s failed, using platform: %v", key, err)
	}
	if m.fallback == nil {
		return 0, fmt.Errorf("failed to fetch %s: %w", key, err)
	}

	buf.Reset()
	n, err = m.fallback.Fetch(ctx, rev, &buf)
	if err != nil {
		return 0, err
	}
	if err := m.objects.Upload(ctx, key, bytes.NewReader(buf.Bytes()), n); err != nil {
		m.log.Warnf("Failed to mirror %s: %v", key, err)
	}

	return io.Copy(w, &buf)
}

// NewMinIOClient creates a client for the bucket endpoint in cfg.
func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

type minioObjects struct {
	client *minio.Client
	bucket string
}

func (o *minioObjects) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	obj, err := o.client.GetObject(ctx, o.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return 0, mapError(err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return 0, mapError(err)
	}
	n, err := io.Copy(w, obj)
	if err != nil {
		return n, mapError(err)
	}
	return n, nil
}

func (o *minioObjects) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := o.client.PutObject(ctx, o.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func mapError(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return err
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
