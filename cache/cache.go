// Package cache provides the process-wide read-through lookup cache used
// for per-wallet metadata (profiles, avatars): memoized forever, with
// concurrent lookups for the same key coalesced into one upstream call.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// LookupFunc fetches the value for a key from upstream.
type LookupFunc func(ctx context.Context, key string) (interface{}, error)

// Lookup is a memoizing, coalescing cache. No eviction: the key space is
// wallets the user actually chats with, small by construction.
type Lookup struct {
	mu     sync.RWMutex
	values map[string]interface{}

	group singleflight.Group
	fn    LookupFunc
}

func NewLookup(fn LookupFunc) *Lookup {
	return &Lookup{
		values: make(map[string]interface{}),
		fn:     fn,
	}
}

// Get returns the cached value for key, fetching it at most once no matter
// how many callers race. Errors are not cached; the next Get retries.
func (l *Lookup) Get(ctx context.Context, key string) (interface{}, error) {
	l.mu.RLock()
	v, ok := l.values[key]
	l.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		// re-check: another flight may have filled the map already
		l.mu.RLock()
		v, ok := l.values[key]
		l.mu.RUnlock()
		if ok {
			return v, nil
		}

		v, err := l.fn(ctx, key)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.values[key] = v
		l.mu.Unlock()
		return v, nil
	})
	return v, err
}

// Peek reports the cached value without triggering a fetch.
func (l *Lookup) Peek(key string) (interface{}, bool) {
	l.mu.RLock()
	v, ok := l.values[key]
	l.mu.RUnlock()
	return v, ok
}
