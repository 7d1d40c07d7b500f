// Package session owns the single live transport to the chat backend and
// drives it through the connect / authenticate / reconnect lifecycle.
// Every inbound frame passes through its dispatcher, which is the only
// writer of the message store, presence tracker and inbox state.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/walletchat/chatcore/api"
	"github.com/walletchat/chatcore/frame"
	"github.com/walletchat/chatcore/inbox"
	"github.com/walletchat/chatcore/moderation"
	"github.com/walletchat/chatcore/notify"
	"github.com/walletchat/chatcore/presence"
	"github.com/walletchat/chatcore/store"
)

const (
	// application-level ping while authenticated.
	keepaliveInterval = 30 * time.Second

	// periodic sweep for typing state and transient notices.
	sweepInterval = 5 * time.Second

	retryDelayMin = 3 * time.Second
	retryDelayMax = 60 * time.Second
)

var (
	// ErrNotAuthenticated: the send was refused client-side, no network
	// attempt was made.
	ErrNotAuthenticated = errors.New("session: not authenticated")

	ErrEmptyBody   = errors.New("session: empty message body")
	ErrBodyTooLong = errors.New("session: message body exceeds limit")
)

// Status is the session lifecycle state.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Config wires the session to its collaborators. Wallet is the caller's
// identity; with an empty Wallet, Connect is a no-op.
type Config struct {
	Wallet   string
	Tokens   api.TokenSource
	Dialer   Dialer
	Store    *store.MessageStore
	Presence *presence.Tracker
	Inbox    *inbox.Controller
	Notices  *notify.Center

	// OnStatus, when set, observes lifecycle transitions.
	OnStatus func(Status)
}

// Session is the connection lifecycle state machine.
type Session struct {
	mu   sync.Mutex
	conf Config

	ctx    context.Context
	cancel context.CancelFunc

	active  bool // feature open and identified; reconnects allowed
	blocked bool // ban/kick received; reconnects suppressed
	status  Status

	identity  *frame.Identity
	gate      *moderation.Gate
	userCount int

	gen       int // connection generation; stale read errors are ignored
	transport Transport
	connID    string

	retryDelay     time.Duration
	reconnectTimer *time.Timer

	throttle     *presence.Throttle
	deleteTimers map[string]*time.Timer

	wg sync.WaitGroup
}

func New(conf Config) *Session {
	return &Session{
		conf:         conf,
		retryDelay:   retryDelayMin,
		throttle:     presence.NewThrottle(),
		deleteTimers: make(map[string]*time.Timer),
	}
}

// Connect starts the session. Without a caller identity it does nothing:
// the unauthenticated fallback poller covers that case.
func (s *Session) Connect() {
	if s.conf.Wallet == "" {
		glog.V(5).Infof("Connect(): no identity, skipping")
		return
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.blocked = false
	s.retryDelay = retryDelayMin
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	go s.attempt(false)
}

// Close tears the session down: pending reconnect canceled, keepalive and
// sweep stopped, delete timers canceled, transport closed without
// triggering its own reconnect path. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.active && s.transport == nil {
		s.mu.Unlock()
		return
	}
	s.active = false
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	for id, t := range s.deleteTimers {
		t.Stop()
		delete(s.deleteTimers, id)
	}
	s.gen++ // detach: the closing transport's read error is now stale
	tr := s.transport
	s.transport = nil
	s.identity = nil
	s.gate = nil
	s.setStatusLocked(StatusDisconnected)
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if tr != nil {
		_ = tr.Close()
	}
	s.wg.Wait()
	glog.Infof("Close(): session stopped")
}

// attempt runs one connection attempt: token fetch, dial, loop start.
func (s *Session) attempt(retry bool) {
	s.mu.Lock()
	if !s.active || s.blocked || s.transport != nil {
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = nil
	s.setStatusLocked(StatusConnecting)
	ctx := s.ctx
	wallet := s.conf.Wallet
	s.mu.Unlock()

	if retry {
		reconnectsTotal.Inc()
	}

	endpoint, err := s.conf.Tokens.Endpoint(ctx, wallet)
	if err != nil {
		glog.Errorf("attempt(): session endpoint error: %v", err)
		s.connectFailed()
		return
	}

	tr, err := s.conf.Dialer.Dial(ctx, endpoint)
	if err != nil {
		glog.Errorf("attempt(): dial error: %v", err)
		s.connectFailed()
		return
	}

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		_ = tr.Close()
		return
	}
	s.gen++
	gen := s.gen
	s.transport = tr
	s.connID = strings.ReplaceAll(uuid.New(), "-", "")
	s.retryDelay = retryDelayMin // successful connect resets backoff
	s.setStatusLocked(StatusConnected)
	s.mu.Unlock()

	glog.Infof("attempt(): transport open, conn: %s", s.connID)

	frameC := make(chan *frame.Server, 16)
	s.wg.Add(2)
	go s.readLoop(gen, tr, frameC)
	go s.runLoop(frameC)
}

func (s *Session) connectFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setStatusLocked(StatusDisconnected)
	if !s.active || s.blocked {
		return
	}
	s.scheduleReconnectLocked()
}

func (s *Session) scheduleReconnectLocked() {
	d := s.retryDelay
	s.retryDelay = nextDelay(d)
	glog.Infof("scheduling reconnect in %s", d)
	s.reconnectTimer = time.AfterFunc(d, func() { s.attempt(true) })
}

// nextDelay doubles the backoff up to the cap.
func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > retryDelayMax {
		d = retryDelayMax
	}
	return d
}

// onTransportError handles a read error or peer close from connection
// generation gen. A stale generation means the session already moved on
// (teardown or a newer connection) and must not reconnect again.
func (s *Session) onTransportError(gen int, err error) {
	s.mu.Lock()
	if gen != s.gen || s.transport == nil {
		s.mu.Unlock()
		return
	}
	glog.Errorf("onTransportError(): conn %s: %v", s.connID, err)

	_ = s.transport.Close()
	s.transport = nil
	s.identity = nil
	s.gate = nil
	s.setStatusLocked(StatusDisconnected)
	if s.active && !s.blocked {
		s.scheduleReconnectLocked()
	}
	s.mu.Unlock()
}

// readLoop pulls frames off the transport and feeds the dispatcher.
// Malformed frames are dropped here; one bad frame never takes the
// session down.
func (s *Session) readLoop(gen int, tr Transport, frameC chan<- *frame.Server) {
	defer s.wg.Done()
	defer close(frameC)

	for {
		data, err := tr.ReadMessage()
		if err != nil {
			s.onTransportError(gen, err)
			return
		}
		glog.V(5).Infof("readLoop(): inbound: %s", string(data))

		f, err := frame.Decode(data)
		if err != nil {
			glog.Errorf("readLoop(): dropping malformed frame: %v", err)
			framesDropped.Inc()
			continue
		}
		frameC <- f
	}
}

// runLoop is the single-writer dispatcher plus the session timers. It
// exits when the read loop closes frameC.
func (s *Session) runLoop(frameC <-chan *frame.Server) {
	defer s.wg.Done()

	keepalive := time.NewTicker(keepaliveInterval)
	sweep := time.NewTicker(sweepInterval)
	defer keepalive.Stop()
	defer sweep.Stop()

	for {
		select {
		case f, ok := <-frameC:
			if !ok {
				glog.V(5).Infof("runLoop(): exited")
				return
			}
			s.handleFrame(f)
		case <-keepalive.C:
			if s.Status() == StatusAuthenticated {
				if err := s.send(&frame.Client{Type: frame.KindPing}); err != nil {
					glog.Errorf("runLoop(): keepalive error: %v", err)
				}
			}
		case <-sweep.C:
			now := time.Now()
			s.conf.Presence.Sweep(now)
			s.conf.Notices.Sweep(now)
		}
	}
}
