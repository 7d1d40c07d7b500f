package api

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// tokenCacheTTL must stay under the server-side validity of the signed
// connection URL (5 minutes) so a cached URL is never presented after it
// expired on the server.
const tokenCacheTTL = 4 * time.Minute

// TokenSource hands out the signed websocket endpoint for one wallet.
// The session manager re-asks it on every (re)connect.
type TokenSource interface {
	Endpoint(ctx context.Context, wallet string) (string, error)
}

// CachedTokenSource fetches the endpoint over HTTP and reuses it for
// tokenCacheTTL.
type CachedTokenSource struct {
	sync.Mutex

	client *Client

	wallet    string
	endpoint  string
	fetchedAt time.Time
}

func NewTokenSource(client *Client) *CachedTokenSource {
	return &CachedTokenSource{client: client}
}

// Endpoint implements TokenSource.
func (s *CachedTokenSource) Endpoint(ctx context.Context, wallet string) (string, error) {
	s.Lock()
	defer s.Unlock()

	if s.endpoint != "" && s.wallet == wallet && time.Since(s.fetchedAt) < tokenCacheTTL {
		glog.V(5).Infof("Endpoint(): reusing cached session url for %s", wallet)
		return s.endpoint, nil
	}

	var out struct {
		URL string `json:"url"`
	}
	q := url.Values{"wallet": {wallet}}
	if err := s.client.getJSON(ctx, "/v1/chat/session", q, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.New("api: session endpoint response without url")
	}

	s.wallet = wallet
	s.endpoint = out.URL
	s.fetchedAt = time.Now()
	return out.URL, nil
}

// Invalidate drops the cached endpoint, forcing a refetch on next use.
func (s *CachedTokenSource) Invalidate() {
	s.Lock()
	s.endpoint = ""
	s.Unlock()
}
