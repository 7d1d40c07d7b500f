// Package inbox decides which DM threads are open as tabs and tracks the
// per-peer read cursors. Everything is persisted in bbolt, bucketed by the
// caller's own wallet, so switching accounts never leaks another account's
// thread list.
package inbox

import (
	"encoding/binary"
	"encoding/json"
	"sync"

	"github.com/golang/glog"
	bolt "go.etcd.io/bbolt"
)

const (
	keyTabs       = "tabs"
	bucketClosed  = "closed"
	bucketCursors = "cursors"
)

// Controller is the tab set plus read cursors for one identity at a time.
// Use() switches identities, replacing all in-memory state.
type Controller struct {
	sync.RWMutex

	db *bolt.DB

	identity string
	tabs     []string // open DM peers, tab order
	closed   map[string]bool
	cursors  map[string]int64
	focus    string // "" is the general channel
}

func Open(path string) (*Controller, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	return &Controller{db: db}, nil
}

func (c *Controller) Close() error {
	return c.db.Close()
}

// Use switches to identity: all in-memory state is replaced by that
// identity's persisted buckets. Never merges two identities.
func (c *Controller) Use(identity string) error {
	c.Lock()
	defer c.Unlock()

	c.identity = identity
	c.tabs = nil
	c.closed = make(map[string]bool)
	c.cursors = make(map[string]int64)
	c.focus = ""

	return c.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(identity))
		if root == nil {
			return nil // first run for this identity
		}
		if data := root.Get([]byte(keyTabs)); data != nil {
			if err := json.Unmarshal(data, &c.tabs); err != nil {
				glog.Errorf("Use(): corrupt tab list for %s: %v", identity, err)
				c.tabs = nil
			}
		}
		if b := root.Bucket([]byte(bucketClosed)); b != nil {
			_ = b.ForEach(func(k, _ []byte) error {
				c.closed[string(k)] = true
				return nil
			})
		}
		if b := root.Bucket([]byte(bucketCursors)); b != nil {
			_ = b.ForEach(func(k, v []byte) error {
				if len(v) == 8 {
					c.cursors[string(k)] = int64(binary.BigEndian.Uint64(v))
				}
				return nil
			})
		}
		return nil
	})
}

// persistLocked writes the current tab list, closed set and cursors for
// the active identity. Called with the lock held.
func (c *Controller) persistLocked() {
	if c.identity == "" {
		return
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(c.identity))
		if err != nil {
			return err
		}

		data, err := json.Marshal(c.tabs)
		if err != nil {
			return err
		}
		if err := root.Put([]byte(keyTabs), data); err != nil {
			return err
		}

		if err := root.DeleteBucket([]byte(bucketClosed)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		cb, err := root.CreateBucket([]byte(bucketClosed))
		if err != nil {
			return err
		}
		for peer := range c.closed {
			if err := cb.Put([]byte(peer), []byte{1}); err != nil {
				return err
			}
		}

		curb, err := root.CreateBucketIfNotExists([]byte(bucketCursors))
		if err != nil {
			return err
		}
		for peer, at := range c.cursors {
			var v [8]byte
			binary.BigEndian.PutUint64(v[:], uint64(at))
			if err := curb.Put([]byte(peer), v[:]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		glog.Errorf("persistLocked(): bbolt update error: %v", err)
	}
}

// OpenTab opens peer's thread: adds the tab if absent, un-sticks a prior
// close, and advances the read cursor to now (epoch ms). Returns whether
// the tab was newly added.
func (c *Controller) OpenTab(peer string, now int64) bool {
	c.Lock()
	defer c.Unlock()

	delete(c.closed, peer)
	c.advanceCursorLocked(peer, now)

	for _, p := range c.tabs {
		if p == peer {
			c.persistLocked()
			return false
		}
	}
	c.tabs = append(c.tabs, peer)
	c.persistLocked()
	return true
}

// CloseTab removes peer's tab and records the close as sticky: inbox sync
// must not resurrect it. Focus falls back to the general channel if the
// closed thread was focused.
func (c *Controller) CloseTab(peer string) {
	c.Lock()
	defer c.Unlock()

	for i, p := range c.tabs {
		if p == peer {
			c.tabs = append(c.tabs[:i], c.tabs[i+1:]...)
			break
		}
	}
	c.closed[peer] = true
	if c.focus == peer {
		c.focus = ""
	}
	c.persistLocked()
}

// SyncOpen opens peer's thread on behalf of an inbox sync. A peer the user
// deliberately closed, or the caller itself, stays shut. Unlike OpenTab it
// does not touch the read cursor.
func (c *Controller) SyncOpen(peer string) bool {
	c.Lock()
	defer c.Unlock()

	if peer == "" || peer == c.identity || c.closed[peer] {
		return false
	}
	for _, p := range c.tabs {
		if p == peer {
			return false
		}
	}
	c.tabs = append(c.tabs, peer)
	c.persistLocked()
	return true
}

// ReopenOnMessage opens peer's thread because a new live message arrived
// from it. This is the one event that overrides a sticky close.
func (c *Controller) ReopenOnMessage(peer string) bool {
	c.Lock()
	defer c.Unlock()

	if peer == "" || peer == c.identity {
		return false
	}
	delete(c.closed, peer)
	for _, p := range c.tabs {
		if p == peer {
			return false
		}
	}
	c.tabs = append(c.tabs, peer)
	c.persistLocked()
	return true
}

// AdvanceCursor moves peer's read cursor forward to at. Earlier values are
// ignored; the cursor never rolls back.
func (c *Controller) AdvanceCursor(peer string, at int64) {
	c.Lock()
	c.advanceCursorLocked(peer, at)
	c.persistLocked()
	c.Unlock()
}

func (c *Controller) advanceCursorLocked(peer string, at int64) {
	if at > c.cursors[peer] {
		c.cursors[peer] = at
	}
}

// Cursor reads peer's cursor; 0 when none.
func (c *Controller) Cursor(peer string) int64 {
	c.RLock()
	at := c.cursors[peer]
	c.RUnlock()
	return at
}

// Cursors is a copy of all cursors, as the conversation index wants them.
func (c *Controller) Cursors() map[string]int64 {
	c.RLock()
	defer c.RUnlock()

	out := make(map[string]int64, len(c.cursors))
	for k, v := range c.cursors {
		out[k] = v
	}
	return out
}

// OpenTabs is a copy of the open peers in tab order.
func (c *Controller) OpenTabs() []string {
	c.RLock()
	defer c.RUnlock()
	return append([]string(nil), c.tabs...)
}

func (c *Controller) IsOpen(peer string) bool {
	c.RLock()
	defer c.RUnlock()
	for _, p := range c.tabs {
		if p == peer {
			return true
		}
	}
	return false
}

func (c *Controller) IsClosed(peer string) bool {
	c.RLock()
	v := c.closed[peer]
	c.RUnlock()
	return v
}

// Focus returns the focused thread; "" is the general channel.
func (c *Controller) Focus() string {
	c.RLock()
	f := c.focus
	c.RUnlock()
	return f
}

// SetFocus focuses a thread. Focusing a peer requires its tab to be open.
func (c *Controller) SetFocus(peer string) bool {
	c.Lock()
	defer c.Unlock()

	if peer == "" {
		c.focus = ""
		return true
	}
	for _, p := range c.tabs {
		if p == peer {
			c.focus = peer
			return true
		}
	}
	return false
}
