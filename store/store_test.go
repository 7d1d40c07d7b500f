package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/walletchat/chatcore/frame"
)

func msg(id, from, to string, ts int64, private bool) *frame.Message {
	return &frame.Message{
		ID:        id,
		From:      from,
		To:        to,
		Body:      "x",
		Timestamp: ts,
		Private:   private,
	}
}

func ids(slice []Stored) []string {
	out := make([]string, 0, len(slice))
	for _, m := range slice {
		out = append(out, m.ID)
	}
	return out
}

func TestIngestDedup(t *testing.T) {
	s := NewMessageStore()

	assert.True(t, s.Ingest(msg("m1", "a", "", 100, false)))
	assert.False(t, s.Ingest(msg("m1", "a", "", 100, false)))

	// same id via the history path is dropped too
	assert.Equal(t, 0, s.MergeHistory([]*frame.Message{msg("m1", "a", "", 100, false)}))
	assert.Equal(t, 1, s.Len())

	// no id, no entry
	assert.False(t, s.Ingest(&frame.Message{From: "a", Timestamp: 1}))
	assert.Equal(t, 1, s.Len())
}

func TestLiveOrderAndHistoryMerge(t *testing.T) {
	s := NewMessageStore()

	// live messages keep arrival order even when timestamps disagree
	s.Ingest(msg("m1", "a", "", 100, false))
	s.Ingest(msg("m2", "b", "", 50, false))
	assert.Equal(t, []string{"m1", "m2"}, ids(s.Snapshot()))

	// a merged history batch re-sorts the whole log ascending by timestamp
	added := s.MergeHistory([]*frame.Message{msg("m3", "c", "", 75, false)})
	assert.Equal(t, 1, added)
	assert.Equal(t, []string{"m2", "m3", "m1"}, ids(s.Snapshot()))
}

func TestMarkReadMonotonic(t *testing.T) {
	s := NewMessageStore()
	s.Ingest(msg("m1", "me", "peer", 100, true))
	s.Ingest(msg("m2", "me", "peer", 200, true))
	s.Ingest(msg("m3", "peer", "me", 150, true)) // inbound, never touched
	s.Ingest(msg("m4", "me", "other", 100, true))

	assert.Equal(t, 1, s.MarkRead("me", "peer", 120))
	snap := s.Snapshot()
	assert.EqualValues(t, 120, snap[0].ReadAt)
	assert.EqualValues(t, 0, snap[2].ReadAt)

	// earlier receipt never rolls ReadAt back
	assert.Equal(t, 0, s.MarkRead("me", "peer", 110))
	assert.EqualValues(t, 120, s.Snapshot()[0].ReadAt)

	// later receipt covers both messages
	assert.Equal(t, 2, s.MarkRead("me", "peer", 250))
	snap = s.Snapshot()
	assert.EqualValues(t, 250, snap[0].ReadAt)
	assert.EqualValues(t, 250, snap[1].ReadAt)

	// other thread untouched
	assert.EqualValues(t, 0, snap[3].ReadAt)
}

func TestTwoPhaseDelete(t *testing.T) {
	s := NewMessageStore()
	s.Ingest(msg("m1", "a", "", 100, false))

	assert.True(t, s.MarkDeleting("m1"))
	snap := s.Snapshot()
	assert.Len(t, snap, 1)
	assert.True(t, snap[0].Deleting)

	s.Remove("m1")
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has("m1"))

	// unknown ids are no-ops
	assert.False(t, s.MarkDeleting("nope"))
	s.Remove("nope")
}

func TestThreadFilter(t *testing.T) {
	s := NewMessageStore()
	s.Ingest(msg("g1", "a", "", 10, false))
	s.Ingest(msg("d1", "me", "peer", 20, true))
	s.Ingest(msg("d2", "peer", "me", 30, true))
	s.Ingest(msg("d3", "other", "me", 40, true))

	assert.Equal(t, []string{"g1"}, ids(s.Thread("me", "")))
	assert.Equal(t, []string{"d1", "d2"}, ids(s.Thread("me", "peer")))
	assert.Equal(t, []string{"d3"}, ids(s.Thread("me", "other")))
}

func TestUnreadDerivation(t *testing.T) {
	s := NewMessageStore()
	s.Ingest(msg("d1", "peer", "me", 200, true))

	cursors := map[string]int64{"peer": 100}
	convs := s.Conversations("me", cursors)
	assert.Len(t, convs, 1)
	assert.Equal(t, "peer", convs[0].Peer)
	assert.True(t, convs[0].Unread)

	// cursor advanced past the last message clears the flag
	cursors["peer"] = 250
	assert.False(t, s.Conversations("me", cursors)[0].Unread)

	// a newer message from the peer flips it back
	s.Ingest(msg("d2", "peer", "me", 300, true))
	assert.True(t, s.Conversations("me", cursors)[0].Unread)

	// an own reply is never unread
	s.Ingest(msg("d3", "me", "peer", 400, true))
	assert.False(t, s.Conversations("me", cursors)[0].Unread)
}

func TestConversationsOrderingAndTieBreak(t *testing.T) {
	s := NewMessageStore()
	s.Ingest(msg("a1", "alice", "me", 100, true))
	s.Ingest(msg("b1", "bob", "me", 300, true))
	s.Ingest(msg("a2", "alice", "me", 100, true)) // tie: later arrival wins

	convs := s.Conversations("me", nil)
	assert.Len(t, convs, 2)
	assert.Equal(t, "bob", convs[0].Peer)
	assert.Equal(t, "alice", convs[1].Peer)
	assert.Equal(t, "a2", convs[1].Last.ID)
}

func TestResetClearsLog(t *testing.T) {
	s := NewMessageStore()
	s.Ingest(msg("m1", "a", "", 100, false))
	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Ingest(msg("m1", "a", "", 100, false)))
}
