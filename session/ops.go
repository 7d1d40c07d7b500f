package session

import (
	"time"
	"unicode/utf8"

	"github.com/golang/glog"

	"github.com/walletchat/chatcore/frame"
	"github.com/walletchat/chatcore/moderation"
)

// send writes one outbound frame. Only an authenticated session sends;
// anything else is refused here with no network attempt.
func (s *Session) send(f *frame.Client) error {
	data, err := frame.Encode(f)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.status != StatusAuthenticated || s.transport == nil {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	tr := s.transport
	s.mu.Unlock()

	if err := tr.WriteMessage(data); err != nil {
		glog.Errorf("send(): write error: %v", err)
		return err
	}
	sendsTotal.WithLabelValues(string(f.Type)).Inc()
	return nil
}

func validateBody(body string) error {
	if body == "" {
		return ErrEmptyBody
	}
	if utf8.RuneCountInString(body) > frame.MaxBodyChars {
		return ErrBodyTooLong
	}
	return nil
}

// SendMessage posts to the general channel. Fire-and-forget: the message
// shows up when the server echoes it back with an id.
func (s *Session) SendMessage(body string) error {
	if err := validateBody(body); err != nil {
		return err
	}
	return s.send(&frame.Client{Type: frame.KindMessage, Body: body})
}

// SendDM posts to one peer's thread.
func (s *Session) SendDM(peer, body string) error {
	if err := validateBody(body); err != nil {
		return err
	}
	return s.send(&frame.Client{Type: frame.KindPrivate, To: peer, Body: body})
}

// SendTyping signals typing for the focused thread, at most once per
// throttle interval per scope. A swallowed signal is not an error.
func (s *Session) SendTyping() error {
	scope := s.conf.Inbox.Focus()
	if !s.throttle.Allow(scope, time.Now()) {
		return nil
	}
	return s.send(&frame.Client{Type: frame.KindTyping, To: scope})
}

// OpenThread opens peer's tab and, when authenticated, requests history,
// acknowledges reads and asks for the peer's status.
func (s *Session) OpenThread(peer string) {
	now := time.Now().UnixMilli()
	s.conf.Inbox.OpenTab(peer, now)

	if s.Status() != StatusAuthenticated {
		return
	}
	s.requestThreadSync(peer)
	if err := s.send(&frame.Client{Type: frame.KindRead, With: peer}); err != nil {
		glog.Errorf("OpenThread(): read ack error: %v", err)
	}
}

// CloseThread closes peer's tab; the close is sticky against inbox sync.
func (s *Session) CloseThread(peer string) {
	s.conf.Inbox.CloseTab(peer)
}

// FocusThread focuses a thread; empty peer focuses the general channel.
func (s *Session) FocusThread(peer string) bool {
	return s.conf.Inbox.SetFocus(peer)
}

// MarkThreadRead advances peer's read cursor to now and acknowledges to
// the server when possible. The cursor never moves backward.
func (s *Session) MarkThreadRead(peer string) {
	s.conf.Inbox.AdvanceCursor(peer, time.Now().UnixMilli())
	if s.Status() != StatusAuthenticated {
		return
	}
	if err := s.send(&frame.Client{Type: frame.KindRead, With: peer}); err != nil {
		glog.Errorf("MarkThreadRead(): %v", err)
	}
}

// DeleteMessage asks the server to delete one of the caller's messages.
// The store changes only when the deleted frame comes back.
func (s *Session) DeleteMessage(id string) error {
	return s.send(&frame.Client{Type: frame.KindDelete, ID: id})
}

// RequestStatus asks for a peer's online flag.
func (s *Session) RequestStatus(peer string) error {
	return s.send(&frame.Client{Type: frame.KindStatus, Wallet: peer})
}

// RequestHistory asks for a peer's DM history.
func (s *Session) RequestHistory(peer string) error {
	return s.send(&frame.Client{Type: frame.KindHistory, With: peer})
}

func (s *Session) requestThreadSync(peer string) {
	if err := s.RequestHistory(peer); err != nil {
		glog.Errorf("requestThreadSync(): history error: %v", err)
	}
	if err := s.RequestStatus(peer); err != nil {
		glog.Errorf("requestThreadSync(): status error: %v", err)
	}
}

// Status reports the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	return st
}

// Wallet is the caller's identity.
func (s *Session) Wallet() string {
	return s.conf.Wallet
}

// Identity is a copy of the authenticated identity, nil before auth.
func (s *Session) Identity() *frame.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Gate is the moderation gate for the authenticated identity; a deny-all
// gate before authentication.
func (s *Session) Gate() *moderation.Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate == nil {
		return moderation.NewGate(moderation.LevelNone)
	}
	return s.gate
}

// UserCount is the last server-reported general channel population.
func (s *Session) UserCount() int {
	s.mu.Lock()
	n := s.userCount
	s.mu.Unlock()
	return n
}
