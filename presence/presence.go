// Package presence tracks the two ephemeral per-peer signals: typing and
// last-known online status. Nothing here is ever persisted.
package presence

import (
	"sync"
	"time"
)

const (
	// TypingTTL is how long a typing signal stays live without a refresh.
	TypingTTL = 5 * time.Second

	// TypingSendInterval throttles outbound typing signals per scope.
	TypingSendInterval = 3 * time.Second

	// OnlineMaxAge is how long a last-known online flag is trusted before
	// Online reports unknown again. Status is pull-based and can otherwise
	// go stale forever.
	OnlineMaxAge = 5 * time.Minute
)

type onlineState struct {
	online bool
	seenAt time.Time
}

// Tracker holds typing and online state. The session dispatcher writes,
// anyone may read.
type Tracker struct {
	sync.RWMutex

	typing map[string]time.Time
	online map[string]onlineState
}

func NewTracker() *Tracker {
	return &Tracker{
		typing: make(map[string]time.Time),
		online: make(map[string]onlineState),
	}
}

// Typed records a typing frame from peer at now.
func (t *Tracker) Typed(peer string, now time.Time) {
	t.Lock()
	t.typing[peer] = now
	t.Unlock()
}

// IsTyping reports whether peer signalled typing within TypingTTL.
func (t *Tracker) IsTyping(peer string, now time.Time) bool {
	t.RLock()
	at, ok := t.typing[peer]
	t.RUnlock()
	return ok && now.Sub(at) < TypingTTL
}

// TypingPeers lists every peer currently typing.
func (t *Tracker) TypingPeers(now time.Time) []string {
	t.RLock()
	defer t.RUnlock()

	var out []string
	for peer, at := range t.typing {
		if now.Sub(at) < TypingTTL {
			out = append(out, peer)
		}
	}
	return out
}

// Sweep prunes expired typing entries. Called from the session's periodic
// sweep so memory stays bounded no matter how many peers typed once.
func (t *Tracker) Sweep(now time.Time) {
	t.Lock()
	for peer, at := range t.typing {
		if now.Sub(at) >= TypingTTL {
			delete(t.typing, peer)
		}
	}
	t.Unlock()
}

// SetOnline records a status observation for peer.
func (t *Tracker) SetOnline(peer string, online bool, now time.Time) {
	t.Lock()
	t.online[peer] = onlineState{online: online, seenAt: now}
	t.Unlock()
}

// Online reports the last-known online flag. known is false when the peer
// was never observed or the observation is older than OnlineMaxAge.
func (t *Tracker) Online(peer string, now time.Time) (online, known bool) {
	t.RLock()
	st, ok := t.online[peer]
	t.RUnlock()
	if !ok || now.Sub(st.seenAt) > OnlineMaxAge {
		return false, false
	}
	return st.online, true
}

// Reset drops all state. Used on identity change and teardown.
func (t *Tracker) Reset() {
	t.Lock()
	t.typing = make(map[string]time.Time)
	t.online = make(map[string]onlineState)
	t.Unlock()
}

// Throttle rate-limits outbound typing signals: at most one per
// TypingSendInterval per scope. Scope "" is the general channel, otherwise
// the focused DM peer.
type Throttle struct {
	sync.Mutex
	lastSent map[string]time.Time
}

func NewThrottle() *Throttle {
	return &Throttle{lastSent: make(map[string]time.Time)}
}

// Allow reports whether a typing signal may go out for scope now, and if
// so records the send.
func (t *Throttle) Allow(scope string, now time.Time) bool {
	t.Lock()
	defer t.Unlock()

	if at, ok := t.lastSent[scope]; ok && now.Sub(at) < TypingSendInterval {
		return false
	}
	t.lastSent[scope] = now
	return true
}
