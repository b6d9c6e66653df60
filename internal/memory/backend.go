package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSnapshot is returned by Backend.Read when nothing has been persisted.
var ErrNoSnapshot = errors.New("memory: no snapshot")

// Backend stores one opaque snapshot blob.
type Backend interface {
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context) ([]byte, error)
	String() string
}

// FileBackend keeps the snapshot in a single file.
type FileBackend struct {
	path string
}

// NewFileBackend stores the snapshot at dir/filename, creating dir if needed.
func NewFileBackend(dir, filename string) (*FileBackend, error) {
	if filename == "" {
		filename = DefaultFilename
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("memory: creating storage dir: %w", err)
	}
	return &FileBackend{path: filepath.Join(dir, filename)}, nil
}

// Path returns the snapshot file path.
func (f *FileBackend) Path() string { return f.path }

func (f *FileBackend) String() string { return "file:" + f.path }

// Write replaces the file atomically via a temp file and rename.
func (f *FileBackend) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".memories-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (f *FileBackend) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	return data, err
}

// DefaultRedisKey is the key used when none is configured.
const DefaultRedisKey = "vtuber:memories"

// RedisBackend keeps the snapshot under a single redis key.
type RedisBackend struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisBackend stores the snapshot at key. A zero ttl never expires.
func NewRedisBackend(client *redis.Client, key string, ttl time.Duration) *RedisBackend {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisBackend{client: client, key: key, ttl: ttl}
}

func (r *RedisBackend) String() string { return "redis:" + r.key }

func (r *RedisBackend) Write(ctx context.Context, data []byte) error {
	return r.client.Set(ctx, r.key, data, r.ttl).Err()
}

func (r *RedisBackend) Read(ctx context.Context) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}
