// Package store keeps the canonical client-side message log: every message
// seen on the general channel or in any DM thread, deduplicated by id and
// ordered by server timestamp.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/walletchat/chatcore/frame"
)

// MinDeletingWindow is how long a message must stay visible in its
// `deleting` state before it may be physically removed.
const MinDeletingWindow = 300 * time.Millisecond

type entry struct {
	msg      *frame.Message
	deleting bool
}

// MessageStore is the append-only, deduplicated log. The session dispatcher
// is the only writer; reads may happen from any goroutine.
type MessageStore struct {
	sync.RWMutex

	order []*entry          // iteration order; append for live, re-sorted on history merge
	byID  map[string]*entry // dedup index
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		byID: make(map[string]*entry),
	}
}

// Ingest appends one live message. A duplicate id is ignored regardless of
// which path delivered it first (live, history, inbox hydration).
func (s *MessageStore) Ingest(m *frame.Message) bool {
	if m == nil || m.ID == "" {
		glog.Errorf("Ingest(): dropping message without id")
		return false
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.byID[m.ID]; ok {
		glog.V(5).Infof("Ingest(): duplicate id %s ignored", m.ID)
		return false
	}

	e := &entry{msg: m}
	s.byID[m.ID] = e
	s.order = append(s.order, e)
	return true
}

// MergeHistory folds a history batch into the log. Batches may arrive out
// of order relative to live traffic, so the whole log is re-sorted by
// timestamp ascending afterwards. Returns the number of new messages.
func (s *MessageStore) MergeHistory(batch []*frame.Message) int {
	s.Lock()
	defer s.Unlock()

	var added int
	for _, m := range batch {
		if m == nil || m.ID == "" {
			continue
		}
		if _, ok := s.byID[m.ID]; ok {
			continue
		}
		e := &entry{msg: m}
		s.byID[m.ID] = e
		s.order = append(s.order, e)
		added++
	}

	if added > 0 {
		s.sortLocked()
	}
	return added
}

// stable: entries with equal timestamps keep their relative arrival order.
func (s *MessageStore) sortLocked() {
	sort.SliceStable(s.order, func(i, j int) bool {
		return s.order[i].msg.Timestamp < s.order[j].msg.Timestamp
	})
}

// MarkRead applies a read receipt: every private message sent by `self` to
// `peer` with timestamp <= at gets ReadAt = at, unless an equal-or-later
// receipt already applied. Idempotent and monotonic.
func (s *MessageStore) MarkRead(self, peer string, at int64) int {
	s.Lock()
	defer s.Unlock()

	var changed int
	for _, e := range s.order {
		m := e.msg
		if !m.Private || m.From != self || m.To != peer || m.Timestamp > at {
			continue
		}
		if m.ReadAt >= at {
			continue
		}
		m.ReadAt = at
		changed++
	}
	return changed
}

// MarkDeleting starts the two-phase delete: the message stays in the log,
// flagged, until Remove is called after MinDeletingWindow. Unknown ids are
// a no-op. Returns whether the id was found.
func (s *MessageStore) MarkDeleting(id string) bool {
	s.Lock()
	defer s.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return false
	}
	e.deleting = true
	return true
}

// Remove physically drops a message from the log.
func (s *MessageStore) Remove(id string) {
	s.Lock()
	defer s.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	for i, x := range s.order {
		if x == e {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Has reports whether a message id is stored.
func (s *MessageStore) Has(id string) bool {
	s.RLock()
	_, ok := s.byID[id]
	s.RUnlock()
	return ok
}

// Len reports the number of stored messages, deleting ones included.
func (s *MessageStore) Len() int {
	s.RLock()
	n := len(s.order)
	s.RUnlock()
	return n
}

// Snapshot is one consistent, copied view of the log in iteration order.
// Deleting messages are included with Deleting set so the UI can fade them.
func (s *MessageStore) Snapshot() []Stored {
	s.RLock()
	defer s.RUnlock()

	out := make([]Stored, 0, len(s.order))
	for _, e := range s.order {
		m := *e.msg
		out = append(out, Stored{Message: m, Deleting: e.deleting})
	}
	return out
}

// Thread is the Snapshot filtered to one DM peer (both directions), or to
// the general channel when peer is empty.
func (s *MessageStore) Thread(self, peer string) []Stored {
	s.RLock()
	defer s.RUnlock()

	var out []Stored
	for _, e := range s.order {
		m := e.msg
		if peer == "" {
			if m.Private {
				continue
			}
		} else if !m.Private || (m.From != peer || m.To != self) && (m.From != self || m.To != peer) {
			continue
		}
		out = append(out, Stored{Message: *m, Deleting: e.deleting})
	}
	return out
}

// Reset drops everything. Used when the authenticated identity changes.
func (s *MessageStore) Reset() {
	s.Lock()
	s.order = nil
	s.byID = make(map[string]*entry)
	s.Unlock()
}

// Stored is one message as handed to readers.
type Stored struct {
	frame.Message
	Deleting bool
}
