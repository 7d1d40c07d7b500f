package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetMemoizes(t *testing.T) {
	var calls int32
	l := NewLookup(func(ctx context.Context, key string) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "profile:" + key, nil
	})

	v, err := l.Get(context.Background(), "0xabc")
	assert.NoError(t, err)
	assert.Equal(t, "profile:0xabc", v)

	_, _ = l.Get(context.Background(), "0xabc")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	_, ok := l.Peek("0xabc")
	assert.True(t, ok)
	_, ok = l.Peek("0xdef")
	assert.False(t, ok)
}

func TestConcurrentGetsCoalesce(t *testing.T) {
	var calls int32
	gate := make(chan struct{})
	l := NewLookup(func(ctx context.Context, key string) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-gate
		return key, nil
	})

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := l.Get(context.Background(), "0xabc")
			assert.NoError(t, err)
			assert.Equal(t, "0xabc", v)
		}()
	}

	close(gate)
	wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestErrorsNotCached(t *testing.T) {
	var calls int32
	l := NewLookup(func(ctx context.Context, key string) (interface{}, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("upstream down")
		}
		return "ok", nil
	})

	_, err := l.Get(context.Background(), "k")
	assert.Error(t, err)

	v, err := l.Get(context.Background(), "k")
	assert.NoError(t, err)
	assert.Equal(t, "ok", v)
}
