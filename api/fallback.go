package api

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/walletchat/chatcore/frame"
)

// PollInterval is how often the fallback poller refetches the general
// channel for callers without an identity (no session possible).
const PollInterval = 10 * time.Second

// Recent fetches the latest general channel messages without a session.
func (c *Client) Recent(ctx context.Context) ([]*frame.Message, error) {
	var out struct {
		Messages []*frame.Message `json:"messages"`
	}
	if err := c.getJSON(ctx, "/v1/chat/recent", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Poll fetches Recent every PollInterval and hands each batch to sink
// until ctx is canceled. It is only used while no session exists; the
// caller stops it as soon as an identity shows up.
func (c *Client) Poll(ctx context.Context, sink func([]*frame.Message)) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	fetch := func() {
		msgs, err := c.Recent(ctx)
		if err != nil {
			glog.Errorf("Poll(): recent fetch error: %v", err)
			return
		}
		sink(msgs)
	}

	fetch()
	for {
		select {
		case <-ctx.Done():
			glog.V(5).Infof("Poll(): stopped")
			return
		case <-ticker.C:
			fetch()
		}
	}
}
