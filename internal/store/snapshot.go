package store

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"repotutor/internal/apperr"
)

type SnapshotConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

// Enabled reports whether the config names a reachable bucket.
func (c SnapshotConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" &&
		strings.TrimSpace(c.AccessKey) != "" &&
		strings.TrimSpace(c.SecretKey) != "" &&
		strings.TrimSpace(c.Bucket) != ""
}

// Bucket is an S3-compatible bucket holding JSON snapshots.
type Bucket struct {
	client *minio.Client
	name   string
	region string

	mu    sync.Mutex
	ready bool
}

func NewBucket(cfg SnapshotConfig) (*Bucket, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("snapshot store needs endpoint, credentials and bucket")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(strings.TrimSpace(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &Bucket{client: client, name: strings.TrimSpace(cfg.Bucket), region: region}, nil
}

// ensure creates the bucket on first use. A failed check is retried on the
// next call.
func (b *Bucket) ensure(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return nil
	}
	exists, err := b.client.BucketExists(ctx, b.name)
	if err != nil {
		return err
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.name, minio.MakeBucketOptions{Region: b.region}); err != nil {
			return err
		}
	}
	b.ready = true
	return nil
}

func (b *Bucket) put(ctx context.Context, key string, data []byte) error {
	if err := b.ensure(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	_, err := b.client.PutObject(ctx, b.name, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (b *Bucket) get(ctx context.Context, key string) ([]byte, error) {
	if err := b.ensure(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	obj, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "NoSuchKey" || code == "NoSuchBucket" {
			return nil, apperr.New(apperr.KindNotFound, "snapshot %s not found", key)
		}
		return nil, err
	}
	return data, nil
}

func (b *Bucket) remove(ctx context.Context, key string) error {
	if err := b.ensure(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	return b.client.RemoveObject(ctx, b.name, key, minio.RemoveObjectOptions{})
}

// Snapshot is a write-through KV: values live in the front cache and are
// mirrored as JSON objects so a restarted process can reload completed
// indexes instead of rebuilding them.
type Snapshot[V any] struct {
	front  KV[V]
	bucket *Bucket
	prefix string
	log    *zap.Logger
}

func NewSnapshot[V any](front KV[V], bucket *Bucket, prefix string, log *zap.Logger) *Snapshot[V] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Snapshot[V]{front: front, bucket: bucket, prefix: strings.Trim(prefix, "/"), log: log}
}

// objectKey hides repo paths and branch names behind a digest so that any
// repoKey maps to a valid object name.
func objectKey(prefix, key string) string {
	sum := sha1.Sum([]byte(key))
	return prefix + "/" + hex.EncodeToString(sum[:]) + ".json"
}

func (s *Snapshot[V]) Get(ctx context.Context, key string) (V, error) {
	v, err := s.front.Get(ctx, key)
	if err == nil || !apperr.IsKind(err, apperr.KindNotFound) {
		return v, err
	}
	var zero V
	data, err := s.bucket.get(ctx, objectKey(s.prefix, key))
	if err != nil {
		return zero, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, fmt.Errorf("decode %s snapshot for %s: %w", s.prefix, key, err)
	}
	_ = s.front.Put(ctx, key, v)
	return v, nil
}

// Put writes the front cache first. A failed upload is logged and does not
// fail the caller; the value is still served from memory.
func (s *Snapshot[V]) Put(ctx context.Context, key string, v V) error {
	if err := s.front.Put(ctx, key, v); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s snapshot for %s: %w", s.prefix, key, err)
	}
	if err := s.bucket.put(ctx, objectKey(s.prefix, key), data); err != nil {
		s.log.Warn("snapshot upload failed", zap.String("kind", s.prefix), zap.String("repo", key), zap.Error(err))
	}
	return nil
}

func (s *Snapshot[V]) Delete(ctx context.Context, key string) error {
	if err := s.front.Delete(ctx, key); err != nil {
		return err
	}
	if err := s.bucket.remove(ctx, objectKey(s.prefix, key)); err != nil {
		return fmt.Errorf("remove %s snapshot for %s: %w", s.prefix, key, err)
	}
	return nil
}
