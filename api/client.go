// Package api holds the HTTP collaborators of the chat core: session token
// issuance, mark-chat-read, moderation actions, the unauthenticated
// fallback fetch and the profile lookup. None of these carry protocol
// state; they are plain request/response.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const requestTimeout = 10 * time.Second

// Client talks to the chat backend's REST surface.
type Client struct {
	base string
	hc   *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		base: base,
		hc:   &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrapf(err, "api: new request %s", path)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "api: GET %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("api: GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "api: GET %s: decode", path)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrapf(err, "api: marshal %s", path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return errors.Wrapf(err, "api: new request %s", path)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "api: POST %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ServerError{Status: resp.StatusCode, Body: string(msg)}
	}
	return nil
}

// ServerError is a non-2xx response to a side-effecting call, surfaced to
// the UI as a transient notice rather than a crash.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server rejected request: status %d: %s", e.Status, e.Body)
}

// MarkRead tells the backend the caller has read peer's messages up to
// readAt (epoch ms).
func (c *Client) MarkRead(ctx context.Context, wallet, peer string, readAt int64) error {
	return c.postJSON(ctx, "/v1/chat/read", map[string]interface{}{
		"wallet": wallet,
		"peer":   peer,
		"readAt": readAt,
	})
}
