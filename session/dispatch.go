package session

import (
	"time"

	"github.com/golang/glog"

	"github.com/walletchat/chatcore/frame"
	"github.com/walletchat/chatcore/moderation"
	"github.com/walletchat/chatcore/notify"
	"github.com/walletchat/chatcore/store"
)

// handleFrame routes one inbound frame. The switch is exhaustive over the
// closed kind set; anything else is dropped with a diagnostic, never a
// panic.
func (s *Session) handleFrame(f *frame.Server) {
	switch f.Type {
	case frame.KindAuthenticated:
		s.handleAuthenticated(f)
	case frame.KindInit:
		s.conf.Store.MergeHistory(f.Messages)
	case frame.KindInbox:
		s.handleInbox(f)
	case frame.KindMessage, frame.KindPrivate:
		s.handleMessage(f)
	case frame.KindHistory:
		s.conf.Store.MergeHistory(f.Messages)
	case frame.KindReadReceipt:
		s.conf.Store.MarkRead(s.Wallet(), f.From, f.ReadAt)
	case frame.KindTyping:
		s.conf.Presence.Typed(f.From, time.Now())
	case frame.KindStatus:
		s.conf.Presence.SetOnline(f.From, f.Online, time.Now())
	case frame.KindDeleted:
		s.handleDeleted(f.ID)
	case frame.KindUserCount:
		s.mu.Lock()
		s.userCount = f.Count
		s.mu.Unlock()
	case frame.KindError:
		s.handleError(f)
	case frame.KindKicked:
		s.handleKicked(f)
	case frame.KindSupportTicket:
		s.conf.Notices.Push(notify.KindSupportTicket, "support ticket updated: "+f.TicketID)
	default:
		glog.Errorf("handleFrame(): unknown frame kind %q dropped", f.Type)
		framesDropped.Inc()
		return
	}
	framesTotal.WithLabelValues(string(f.Type)).Inc()
}

func (s *Session) handleAuthenticated(f *frame.Server) {
	id := f.User
	if id == nil {
		glog.Errorf("handleAuthenticated(): frame without identity dropped")
		framesDropped.Inc()
		return
	}

	// The locally-known wallet wins over whatever the server embedded; a
	// stale server-side cache must not flip who we think we are.
	if id.Wallet != s.conf.Wallet {
		glog.Errorf("handleAuthenticated(): identity mismatch, frame: %s, local: %s", id.Wallet, s.conf.Wallet)
		id.Wallet = s.conf.Wallet
	}

	level := moderation.DeriveLevel(id)

	s.mu.Lock()
	identityChanged := s.identity != nil && s.identity.Wallet != id.Wallet
	s.identity = id
	s.gate = moderation.NewGate(level)
	s.setStatusLocked(StatusAuthenticated)
	s.mu.Unlock()

	if identityChanged {
		// never mix two identities' derived state
		s.conf.Store.Reset()
		s.conf.Presence.Reset()
	}
	if err := s.conf.Inbox.Use(id.Wallet); err != nil {
		glog.Errorf("handleAuthenticated(): inbox load error: %v", err)
	}

	glog.Infof("authenticated as %s, tier: %s, level: %s", id.Wallet, id.Tier, level)

	// repair any gap from time spent disconnected
	for _, peer := range s.conf.Inbox.OpenTabs() {
		s.requestThreadSync(peer)
	}
}

func (s *Session) handleMessage(f *frame.Server) {
	m := f.Message
	if m == nil {
		glog.Errorf("handleMessage(): %s frame without payload dropped", f.Type)
		framesDropped.Inc()
		return
	}
	if !s.conf.Store.Ingest(m) {
		return
	}
	if !m.Private {
		return
	}

	peer := m.From
	if peer == s.Wallet() {
		peer = m.To
	}
	// a fresh inbound DM overrides a sticky close
	if peer != "" && peer != s.Wallet() && m.From != s.Wallet() {
		if s.conf.Inbox.ReopenOnMessage(peer) {
			glog.V(5).Infof("handleMessage(): reopened thread %s", peer)
		}
	}
}

func (s *Session) handleInbox(f *frame.Server) {
	for _, c := range f.Conversations {
		if c == nil || c.Peer == "" {
			continue
		}
		if c.Last != nil {
			s.conf.Store.Ingest(c.Last) // dedup applies
		}
		if c.ReadAt > 0 {
			s.conf.Inbox.AdvanceCursor(c.Peer, c.ReadAt)
		}
		if s.conf.Inbox.SyncOpen(c.Peer) {
			glog.V(5).Infof("handleInbox(): opened thread %s", c.Peer)
		}
		s.conf.Presence.SetOnline(c.Peer, c.Online, time.Now())
	}
}

// handleDeleted runs the two-phase delete: flag now, remove after the
// minimum visible window. The timer is tracked so teardown can cancel it.
func (s *Session) handleDeleted(id string) {
	if id == "" || !s.conf.Store.MarkDeleting(id) {
		return
	}

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		s.conf.Store.Remove(id)
		return
	}
	s.deleteTimers[id] = time.AfterFunc(store.MinDeletingWindow, func() {
		s.conf.Store.Remove(id)
		s.mu.Lock()
		delete(s.deleteTimers, id)
		s.mu.Unlock()
	})
	s.mu.Unlock()
}

func (s *Session) handleError(f *frame.Server) {
	switch f.Code {
	case frame.ErrCodeBanned:
		s.conf.Notices.Push(notify.KindBanned, "your account is banned from chat")
		s.block("banned")
	case frame.ErrCodeMuted:
		s.conf.Notices.Push(notify.KindMuted, "your account is muted")
	default:
		glog.Errorf("handleError(): server error frame, code: %s, reason: %s", f.Code, f.Reason)
		s.conf.Notices.Push(notify.KindInfo, "chat error: "+f.Reason)
	}
}

func (s *Session) handleKicked(f *frame.Server) {
	s.conf.Notices.Push(notify.KindKicked, "disconnected by server: "+f.Reason)
	s.block("kicked")
}

// block suppresses reconnect attempts until the next explicit Connect.
func (s *Session) block(cause string) {
	s.mu.Lock()
	s.blocked = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.mu.Unlock()
	glog.Infof("block(): reconnects suppressed, cause: %s", cause)
}

func (s *Session) setStatusLocked(st Status) {
	if s.status == st {
		return
	}
	s.status = st
	if cb := s.conf.OnStatus; cb != nil {
		go cb(st)
	}
}
