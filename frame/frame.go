// Package frame defines the websocket wire protocol: one JSON object per
// websocket text message, tagged with a `type` discriminator.
package frame

import (
	"encoding/json"
	"fmt"
)

// Kind is the closed set of frame discriminators. The dispatcher switches
// over every inbound kind; an unlisted kind is dropped, not dispatched.
type Kind string

// Inbound (server -> client) kinds.
const (
	KindAuthenticated Kind = "authenticated"
	KindInit          Kind = "init"
	KindInbox         Kind = "inbox"
	KindMessage       Kind = "message"
	KindPrivate       Kind = "private"
	KindHistory       Kind = "history"
	KindReadReceipt   Kind = "read_receipt"
	KindTyping        Kind = "typing"
	KindStatus        Kind = "status"
	KindDeleted       Kind = "deleted"
	KindUserCount     Kind = "userCount"
	KindError         Kind = "error"
	KindKicked        Kind = "kicked"
	KindSupportTicket Kind = "support_ticket"
)

// Outbound (client -> server) kinds. KindMessage, KindPrivate, KindTyping,
// KindHistory, KindStatus are shared with the inbound set.
const (
	KindRead   Kind = "read"
	KindPing   Kind = "ping"
	KindDelete Kind = "delete"
)

// Error frame codes.
const (
	ErrCodeBanned  = "banned"
	ErrCodeMuted   = "muted"
	ErrCodeGeneric = "error"
)

// MaxBodyChars is the hard limit on a message body, counted in runes.
const MaxBodyChars = 256

// Message is one chat message as it travels on the wire and as the store
// keeps it. Timestamp is server-assigned epoch ms. ReadAt is set at most
// once, by a read_receipt.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Body      string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Tier      string `json:"tier,omitempty"`
	Private   bool   `json:"private,omitempty"`
	ReadAt    int64  `json:"readAt,omitempty"`
}

// Identity is the caller description carried by an authenticated frame.
type Identity struct {
	Wallet string   `json:"address"`
	Tier   string   `json:"tier"`
	Roles  []string `json:"roles,omitempty"`
}

// ConversationSummary is one entry of an inbox frame: the peer, the last
// known message with that peer, and the server-side read cursor.
type ConversationSummary struct {
	Peer   string   `json:"address"`
	Last   *Message `json:"message,omitempty"`
	ReadAt int64    `json:"readAt,omitempty"`
	Unread int      `json:"unread,omitempty"`
	Online bool     `json:"online,omitempty"`
}

// Server is an inbound frame. Exactly one payload group is meaningful for
// a given Type; the rest stay at their zero values.
type Server struct {
	Type Kind `json:"type"`

	// authenticated
	User *Identity `json:"user,omitempty"`

	// message / private / deleted / typing / status / read_receipt
	Message *Message `json:"data,omitempty"`
	ID      string   `json:"id,omitempty"`
	From    string   `json:"from,omitempty"`
	Online  bool     `json:"online,omitempty"`
	ReadAt  int64    `json:"readAt,omitempty"`

	// init / history
	Messages []*Message `json:"messages,omitempty"`
	With     string     `json:"with,omitempty"`

	// inbox
	Conversations []*ConversationSummary `json:"conversations,omitempty"`

	// userCount
	Count int `json:"count,omitempty"`

	// error / kicked
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`

	// support_ticket
	TicketID string `json:"ticketId,omitempty"`
}

// Client is an outbound frame.
type Client struct {
	Type Kind `json:"type"`

	Body   string `json:"message,omitempty"`
	To     string `json:"to,omitempty"`
	With   string `json:"with,omitempty"`
	Wallet string `json:"wallet,omitempty"`
	ID     string `json:"id,omitempty"`
}

// Decode parses one inbound websocket text message. A missing or empty
// `type` is an error; an unknown `type` is not, the dispatcher decides.
func Decode(data []byte) (*Server, error) {
	var f Server
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("frame: decode error: %v", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("frame: missing type discriminator")
	}
	return &f, nil
}

// Encode serializes an outbound frame.
func Encode(f *Client) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("frame: encode error: %v", err)
	}
	return data, nil
}
