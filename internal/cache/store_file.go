package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

const fileSuffix = ".cache"

// fileEnvelope is what a cache file holds once decompressed.
type fileEnvelope struct {
	ExpiresAt int64  `msgpack:"expires_at"` // unix nanoseconds, 0 = never
	Data      []byte `msgpack:"data"`
}

// FileStore keeps one zstd-compressed file per entry below a directory.
// Several processes may share the directory; writes go through a rename so
// readers never observe a partial file.
type FileStore struct {
	dir string
	now func() time.Time
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithFileClock replaces time.Now, mostly for expiry tests.
func WithFileClock(now func() time.Time) FileOption {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewFileStore creates the directory if needed and returns a store rooted there.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	s := &FileStore{dir: dir, now: time.Now, enc: enc, dec: dec}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string { return s.dir }

// path maps an entry name onto a file name that is safe on every platform.
func (s *FileStore) path(name string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	return filepath.Join(s.dir, safe+fileSuffix)
}

func (s *FileStore) read(name string) (*fileEnvelope, error) {
	raw, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	plain, err := s.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %q: %w", name, err)
	}
	var env fileEnvelope
	if err := msgpack.Unmarshal(plain, &env); err != nil {
		return nil, fmt.Errorf("decode %q: %w", name, err)
	}
	if env.ExpiresAt != 0 && !s.now().Before(time.Unix(0, env.ExpiresAt)) {
		_ = os.Remove(s.path(name))
		return nil, ErrMiss
	}
	return &env, nil
}

func (s *FileStore) Contains(ctx context.Context, name string) (bool, error) {
	// A corrupt file is a miss for the caller; the next Set replaces it.
	_, err := s.read(name)
	return err == nil, nil
}

func (s *FileStore) Get(ctx context.Context, name string) ([]byte, error) {
	env, err := s.read(name)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (s *FileStore) Set(ctx context.Context, name string, data []byte, lifetime time.Duration) error {
	env := fileEnvelope{Data: data}
	if deadline := expiry(s.now(), lifetime); !deadline.IsZero() {
		env.ExpiresAt = deadline.UnixNano()
	}
	plain, err := msgpack.Marshal(&env)
	if err != nil {
		return fmt.Errorf("encode %q: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(s.enc.EncodeAll(plain, nil)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(name))
}

func (s *FileStore) Delete(ctx context.Context, name string) error {
	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Clear removes every cache file but leaves the directory and anything
// else in it alone.
func (s *FileStore) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
