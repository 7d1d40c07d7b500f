package api

import (
	"context"

	"github.com/pkg/errors"
)

// ModAction is one of the four moderation verbs.
type ModAction string

const (
	ActionMute   ModAction = "mute"
	ActionUnmute ModAction = "unmute"
	ActionBan    ModAction = "ban"
	ActionUnban  ModAction = "unban"
)

// Moderate submits a moderation action against target. The local gate only
// decides whether the call may be attempted; a *ServerError return means
// the server said no, which callers surface as a transient notice.
func (c *Client) Moderate(ctx context.Context, actor string, action ModAction, target string) error {
	switch action {
	case ActionMute, ActionUnmute, ActionBan, ActionUnban:
	default:
		return errors.Errorf("api: unknown moderation action %q", action)
	}
	return c.postJSON(ctx, "/v1/chat/moderation", map[string]interface{}{
		"actor":  actor,
		"action": string(action),
		"target": target,
	})
}
