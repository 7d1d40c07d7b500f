// Package notify carries the few conditions that must cross the core/UI
// boundary as discrete, dismissable notices: bans, mutes, kicks and
// rejected moderation actions. Everything recoverable stays inside the
// session state machine and never shows up here.
package notify

import (
	"sync"
	"time"
)

// TransientTTL is how long a non-sticky notice stays up before the sweep
// auto-dismisses it.
const TransientTTL = 8 * time.Second

type Kind string

const (
	KindBanned        Kind = "banned"
	KindMuted         Kind = "muted"
	KindKicked        Kind = "kicked"
	KindModRejected   Kind = "mod_rejected"
	KindSupportTicket Kind = "support_ticket"
	KindInfo          Kind = "info"
)

// Notice is one user-facing condition. Sticky notices never auto-expire
// and must be dismissed explicitly.
type Notice struct {
	ID     int
	Kind   Kind
	Text   string
	Sticky bool

	expiresAt time.Time
}

// Center holds active notices behind a mutex.
type Center struct {
	sync.Mutex

	nextID  int
	notices []*Notice
}

func NewCenter() *Center {
	return &Center{}
}

// Push adds a notice; sticky kinds (banned, muted, kicked) get no expiry.
func (c *Center) Push(kind Kind, text string) int {
	sticky := kind == KindBanned || kind == KindMuted || kind == KindKicked

	c.Lock()
	defer c.Unlock()

	c.nextID++
	n := &Notice{
		ID:     c.nextID,
		Kind:   kind,
		Text:   text,
		Sticky: sticky,
	}
	if !sticky {
		n.expiresAt = time.Now().Add(TransientTTL)
	}
	c.notices = append(c.notices, n)
	return n.ID
}

// Dismiss removes one notice by id.
func (c *Center) Dismiss(id int) {
	c.Lock()
	defer c.Unlock()
	for i, n := range c.notices {
		if n.ID == id {
			c.notices = append(c.notices[:i], c.notices[i+1:]...)
			return
		}
	}
}

// Sweep drops expired transient notices. Driven by the session's periodic
// sweep rather than one timer per notice.
func (c *Center) Sweep(now time.Time) {
	c.Lock()
	defer c.Unlock()

	kept := c.notices[:0]
	for _, n := range c.notices {
		if n.Sticky || now.Before(n.expiresAt) {
			kept = append(kept, n)
		}
	}
	c.notices = kept
}

// Active returns a copy of the current notices in push order.
func (c *Center) Active() []Notice {
	c.Lock()
	defer c.Unlock()

	out := make([]Notice, 0, len(c.notices))
	for _, n := range c.notices {
		out = append(out, *n)
	}
	return out
}
