package cache

import (
	"context"
	"reflect"
	"runtime"
	"time"
)

// MemoOption configures a memoized function.
type MemoOption func(*memoOptions)

type memoOptions struct {
	name string
}

// WithName sets the identity used as the key prefix. By default the
// function's symbol name is used, which is shared by every closure created
// from the same function literal; closures that capture different state
// need distinct names.
func WithName(name string) MemoOption {
	return func(o *memoOptions) {
		o.name = name
	}
}

// memoized boxes results so that nil values of interface type are still
// recognised as hits and results of one function are never returned as
// another result type.
type memoized[R any] struct {
	value R
}

type memoizer[R any] struct {
	cache *Cache
	name  string
	ttl   time.Duration
}

func newMemoizer[R any](c *Cache, fn any, ttl time.Duration, opts []MemoOption) *memoizer[R] {
	var o memoOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = funcName(fn)
	}
	return &memoizer[R]{cache: c, name: o.name, ttl: ttl}
}

// do is shared by every call style. The cache lock is held only inside
// Get and SetTTL; invoke runs unlocked.
//
// Concurrent misses on the same key each run invoke and the last write
// wins. Calls are not coalesced.
func (m *memoizer[R]) do(invoke func() (R, error), args ...any) (R, error) {
	var zero R

	key, err := DeriveKey(m.name, args...)
	if err != nil {
		m.cache.logger.Warn("memoized call has an unusable argument", "func", m.name, "error", err)
		return zero, err
	}

	if v, ok := m.cache.Get(key); ok {
		if hit, ok := v.(memoized[R]); ok {
			return hit.value, nil
		}
	}

	result, err := invoke()
	if err != nil {
		return zero, err
	}

	m.cache.SetTTL(key, memoized[R]{value: result}, m.ttl)
	return result, nil
}

// Memoize wraps fn so that calls with equal arguments within ttl return the
// cached result instead of running fn again. A non-positive ttl uses the
// cache default. Failed calls are not cached.
//
// Multiple or keyword-style arguments can be passed as a struct.
func Memoize[A, R any](c *Cache, fn func(A) (R, error), ttl time.Duration, opts ...MemoOption) func(A) (R, error) {
	m := newMemoizer[R](c, fn, ttl, opts)
	return func(a A) (R, error) {
		return m.do(func() (R, error) { return fn(a) }, a)
	}
}

// Memoize2 is Memoize for two-argument functions.
func Memoize2[A, B, R any](c *Cache, fn func(A, B) (R, error), ttl time.Duration, opts ...MemoOption) func(A, B) (R, error) {
	m := newMemoizer[R](c, fn, ttl, opts)
	return func(a A, b B) (R, error) {
		return m.do(func() (R, error) { return fn(a, b) }, a, b)
	}
}

// MemoizeContext wraps a function that may wait on external work. The
// context is passed to fn unchanged and is not part of the key. On a miss
// the caller waits for fn; the cache imposes no timeout of its own.
func MemoizeContext[A, R any](c *Cache, fn func(context.Context, A) (R, error), ttl time.Duration, opts ...MemoOption) func(context.Context, A) (R, error) {
	m := newMemoizer[R](c, fn, ttl, opts)
	return func(ctx context.Context, a A) (R, error) {
		return m.do(func() (R, error) { return fn(ctx, a) }, a)
	}
}

// MemoizeContext2 is MemoizeContext for two-argument functions.
func MemoizeContext2[A, B, R any](c *Cache, fn func(context.Context, A, B) (R, error), ttl time.Duration, opts ...MemoOption) func(context.Context, A, B) (R, error) {
	m := newMemoizer[R](c, fn, ttl, opts)
	return func(ctx context.Context, a A, b B) (R, error) {
		return m.do(func() (R, error) { return fn(ctx, a, b) }, a, b)
	}
}

func funcName(fn any) string {
	if f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); f != nil {
		return f.Name()
	}
	return reflect.TypeOf(fn).String()
}
