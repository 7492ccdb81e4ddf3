// Package cache provides the named, expiring blob stores the kernel keeps
// its derived data in, and Remember, the compute-or-fetch primitive built
// on top of them.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/infernum/internal/ctxlog"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrMiss is returned by Store.Get when no live entry exists for a name.
var ErrMiss = errors.New("cache miss")

// Store is a set of named byte blobs with a lifetime. A lifetime of zero or
// less keeps the entry until it is deleted.
type Store interface {
	Contains(ctx context.Context, name string) (bool, error)
	Get(ctx context.Context, name string) ([]byte, error)
	Set(ctx context.Context, name string, data []byte, lifetime time.Duration) error
	Delete(ctx context.Context, name string) error
	Clear(ctx context.Context) error
}

// DefaultLifetime is used by callers that do not pick a lifetime themselves.
const DefaultLifetime = 86400 * time.Second

// Remember returns the value cached under name, or runs produce, stores its
// result for lifetime and returns it.
//
// There is no locking: two callers missing at the same time both run
// produce and the last write wins. produce must therefore be idempotent.
// An entry that cannot be decoded counts as a miss and is overwritten.
func Remember[T any](ctx context.Context, store Store, name string, lifetime time.Duration, produce func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	logger := ctxlog.FromContext(ctx)

	ok, err := store.Contains(ctx, name)
	if err != nil {
		return zero, fmt.Errorf("cache lookup %q: %w", name, err)
	}
	if ok {
		data, err := store.Get(ctx, name)
		switch {
		case err == nil:
			var v T
			if err := msgpack.Unmarshal(data, &v); err == nil {
				return v, nil
			}
			logger.Warn("Discarding undecodable cache entry.", "name", name, "error", err)
		case errors.Is(err, ErrMiss):
			// Expired between Contains and Get.
		default:
			return zero, fmt.Errorf("cache read %q: %w", name, err)
		}
	}

	v, err := produce(ctx)
	if err != nil {
		return zero, err
	}

	data, err := msgpack.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("cache encode %q: %w", name, err)
	}
	if err := store.Set(ctx, name, data, lifetime); err != nil {
		return zero, fmt.Errorf("cache write %q: %w", name, err)
	}
	logger.Debug("Cache entry computed.", "name", name, "bytes", len(data), "lifetime", lifetime)
	return v, nil
}

// Recorder receives hit and miss notifications from an observed store.
type Recorder interface {
	CacheHit(name string)
	CacheMiss(name string)
}

type observed struct {
	Store
	rec Recorder
}

// Observe wraps store so that every Contains call is reported to rec.
func Observe(store Store, rec Recorder) Store {
	if rec == nil {
		return store
	}
	return &observed{Store: store, rec: rec}
}

func (o *observed) Contains(ctx context.Context, name string) (bool, error) {
	ok, err := o.Store.Contains(ctx, name)
	if err != nil {
		return ok, err
	}
	if ok {
		o.rec.CacheHit(name)
	} else {
		o.rec.CacheMiss(name)
	}
	return ok, nil
}

// expiry converts a lifetime into an absolute deadline, zero meaning never.
func expiry(now time.Time, lifetime time.Duration) time.Time {
	if lifetime <= 0 {
		return time.Time{}
	}
	return now.Add(lifetime)
}
