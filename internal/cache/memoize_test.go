package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/socialchef/ttlcache/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoize_DoubleScenario(t *testing.T) {
	c, _ := newTestCache(DefaultMaxEntries, DefaultTTL)

	var calls atomic.Int32
	double := Memoize(c, func(x int) (int, error) {
		calls.Add(1)
		return x * 2, nil
	}, 300*time.Second)

	first, err := double(3)
	require.NoError(t, err)
	second, err := double(3)
	require.NoError(t, err)

	assert.Equal(t, 6, first)
	assert.Equal(t, 6, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMemoize_DistinctArguments(t *testing.T) {
	c, _ := newTestCache(DefaultMaxEntries, DefaultTTL)

	var calls atomic.Int32
	double := Memoize(c, func(x int) (int, error) {
		calls.Add(1)
		return x * 2, nil
	}, 0)

	a, err := double(1)
	require.NoError(t, err)
	b, err := double(2)
	require.NoError(t, err)

	assert.Equal(t, 2, a)
	assert.Equal(t, 4, b)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoize_ExpiresAfterTTL(t *testing.T) {
	c, mock := newTestCache(DefaultMaxEntries, DefaultTTL)

	var calls atomic.Int32
	fn := Memoize(c, func(s string) (string, error) {
		calls.Add(1)
		return s + "!", nil
	}, 300*time.Second)

	_, _ = fn("hi")
	mock.Add(299 * time.Second)
	_, _ = fn("hi")
	assert.Equal(t, int32(1), calls.Load())

	mock.Add(time.Second)
	_, _ = fn("hi")
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoize_ErrorIsNotCached(t *testing.T) {
	c, _ := newTestCache(DefaultMaxEntries, DefaultTTL)

	errBoom := errors.New("boom")
	var calls atomic.Int32
	fn := Memoize(c, func(x int) (int, error) {
		if calls.Add(1) == 1 {
			return 0, errBoom
		}
		return x, nil
	}, 0)

	_, err := fn(7)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, c.Len())

	v, err := fn(7)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoize_NilResultIsCached(t *testing.T) {
	c, _ := newTestCache(DefaultMaxEntries, DefaultTTL)

	var calls atomic.Int32
	fn := Memoize(c, func(string) (any, error) {
		calls.Add(1)
		return nil, nil
	}, 0)

	for i := 0; i < 3; i++ {
		v, err := fn("q")
		require.NoError(t, err)
		assert.Nil(t, v)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestMemoize_StructArguments(t *testing.T) {
	type query struct {
		Term  string
		Limit int
		Tags  map[string]bool
	}
	c, _ := newTestCache(DefaultMaxEntries, DefaultTTL)

	var calls atomic.Int32
	search := Memoize(c, func(q *query) ([]string, error) {
		calls.Add(1)
		return []string{q.Term}, nil
	}, 0)

	// equal values behind distinct pointers share a key
	_, err := search(&query{Term: "soup", Limit: 10, Tags: map[string]bool{"a": true, "b": false}})
	require.NoError(t, err)
	_, err = search(&query{Term: "soup", Limit: 10, Tags: map[string]bool{"b": false, "a": true}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = search(&query{Term: "soup", Limit: 11})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoize2(t *testing.T) {
	c, _ := newTestCache(DefaultMaxEntries, DefaultTTL)

	var calls atomic.Int32
	concat := Memoize2(c, func(a, b string) (string, error) {
		calls.Add(1)
		return a + b, nil
	}, 0)

	v1, _ := concat("ab", "c")
	v2, _ := concat("a", "bc")
	v3, _ := concat("ab", "c")

	assert.Equal(t, "abc", v1)
	assert.Equal(t, "abc", v2)
	assert.Equal(t, "abc", v3)
	assert.Equal(t, int32(2), calls.Load(), "argument boundaries are part of the key")
}

func TestMemoizeContext(t *testing.T) {
	c, _ := newTestCache(DefaultMaxEntries, DefaultTTL)

	type ctxKey struct{}
	var calls atomic.Int32
	fetch := MemoizeContext(c, func(ctx context.Context, id int) (string, error) {
		calls.Add(1)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
		return ctx.Value(ctxKey{}).(string), nil
	}, 0)

	ctx := context.WithValue(context.Background(), ctxKey{}, "first")
	v, err := fetch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	// the context is not part of the key
	other := context.WithValue(context.Background(), ctxKey{}, "second")
	v, err = fetch(other, 1)
	require.NoError(t, err)
	assert.Equal(t, "first", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMemoizeContext_CancelledCallIsNotCached(t *testing.T) {
	c, _ := newTestCache(DefaultMaxEntries, DefaultTTL)

	fetch := MemoizeContext(c, func(ctx context.Context, id int) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return id, nil
	}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetch(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.Len())

	v, err := fetch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestMemoizeContext2(t *testing.T) {
	c, _ := newTestCache(DefaultMaxEntries, DefaultTTL)

	var calls atomic.Int32
	add := MemoizeContext2(c, func(_ context.Context, a, b int) (int, error) {
		calls.Add(1)
		return a + b, nil
	}, 0)

	v, err := add(context.Background(), 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	_, _ = add(context.Background(), 2, 3)
	_, _ = add(context.Background(), 3, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoize_BlockingAndContextStylesShareKeys(t *testing.T) {
	c, _ := newTestCache(DefaultMaxEntries, DefaultTTL)

	blocking := Memoize(c, func(x int) (int, error) { return x * 2, nil }, 0, WithName("double"))
	suspending := MemoizeContext(c, func(_ context.Context, x int) (int, error) {
		t.Fatal("cached result must be reused")
		return 0, nil
	}, 0, WithName("double"))

	_, err := blocking(4)
	require.NoError(t, err)
	v, err := suspending(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 8, v)
}

func TestMemoize_WithNameSeparatesClosures(t *testing.T) {
	c, _ := newTestCache(DefaultMaxEntries, DefaultTTL)

	makeMul := func(factor int) func(int) (int, error) {
		return Memoize(c, func(x int) (int, error) {
			return x * factor, nil
		}, 0, WithName("mul-by-"+strconv.Itoa(factor)))
	}
	double, triple := makeMul(2), makeMul(3)

	a, _ := double(5)
	b, _ := triple(5)
	assert.Equal(t, 10, a)
	assert.Equal(t, 15, b)
}

func TestMemoize_ResultTypeMismatchIsAMiss(t *testing.T) {
	c, _ := newTestCache(DefaultMaxEntries, DefaultTTL)

	asInt := Memoize(c, func(x int) (int, error) { return x, nil }, 0, WithName("shared"))
	asString := Memoize(c, func(x int) (string, error) { return "s", nil }, 0, WithName("shared"))

	_, err := asInt(1)
	require.NoError(t, err)
	v, err := asString(1)
	require.NoError(t, err)
	assert.Equal(t, "s", v)
}

func TestMemoize_UnsupportedArgument(t *testing.T) {
	c, _ := newTestCache(DefaultMaxEntries, DefaultTTL)

	var calls atomic.Int32
	fn := Memoize(c, func(ch chan int) (int, error) {
		calls.Add(1)
		return 1, nil
	}, 0)

	_, err := fn(make(chan int))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedArgument)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrorTypeKeyDerivation, appErr.Type)
	assert.Equal(t, int32(0), calls.Load(), "fn must not run without a key")
}

func TestMemoize_ConcurrentMiss(t *testing.T) {
	c, _ := newTestCache(DefaultMaxEntries, DefaultTTL)

	var (
		calls   atomic.Int32
		entered sync.WaitGroup
	)
	entered.Add(2)
	slow := Memoize(c, func(x int) (int, error) {
		calls.Add(1)
		// both callers are inside fn at once, so both missed
		entered.Done()
		entered.Wait()
		return x * 10, nil
	}, 0)

	var wg sync.WaitGroup
	results := make([]int, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = slow(9)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, 90, results[i])
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, c.Len())
}
