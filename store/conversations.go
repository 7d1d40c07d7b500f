package store

import "sort"

// Conversation is one derived DM thread summary: the peer, the most recent
// message exchanged with it, and whether that message is unread.
type Conversation struct {
	Peer   string
	Last   Stored
	Unread bool
}

// Conversations derives the DM thread list from the log and the caller's
// read cursors. It is a full rescan on purpose: the index is recomputed,
// never patched, so it cannot drift from the log. Cursors map peer ->
// epoch-ms watermark; a missing peer reads as 0.
//
// unread(P) = last message was sent by P AND its timestamp > cursor(P).
// On a peer+timestamp tie the later message in iteration order wins.
func (s *MessageStore) Conversations(self string, cursors map[string]int64) []Conversation {
	s.RLock()
	latest := make(map[string]Stored)
	for _, e := range s.order {
		m := e.msg
		if !m.Private {
			continue
		}
		peer := m.From
		if peer == self {
			peer = m.To
		}
		if peer == "" || peer == self {
			continue
		}
		if prev, ok := latest[peer]; ok && prev.Timestamp > m.Timestamp {
			continue
		}
		latest[peer] = Stored{Message: *m, Deleting: e.deleting}
	}
	s.RUnlock()

	out := make([]Conversation, 0, len(latest))
	for peer, last := range latest {
		unread := last.From == peer && last.Timestamp > cursors[peer]
		out = append(out, Conversation{Peer: peer, Last: last, Unread: unread})
	}

	// most recent thread first, peer id as tie-break for a stable listing
	sort.Slice(out, func(i, j int) bool {
		if out[i].Last.Timestamp != out[j].Last.Timestamp {
			return out[i].Last.Timestamp > out[j].Last.Timestamp
		}
		return out[i].Peer < out[j].Peer
	})
	return out
}
