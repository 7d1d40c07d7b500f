package api

import (
	"context"

	"github.com/walletchat/chatcore/cache"
)

// Profile is the per-wallet display metadata many widgets resolve.
type Profile struct {
	Wallet string `json:"address"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// ProfileClient is the shared read-through profile lookup: fetched once
// per wallet for the life of the process, concurrent lookups coalesced.
type ProfileClient struct {
	lookup *cache.Lookup
}

func NewProfileClient(client *Client) *ProfileClient {
	return &ProfileClient{
		lookup: cache.NewLookup(func(ctx context.Context, wallet string) (interface{}, error) {
			var out Profile
			if err := client.getJSON(ctx, "/v1/profile/"+wallet, nil, &out); err != nil {
				return nil, err
			}
			return &out, nil
		}),
	}
}

// Get resolves a wallet's profile through the cache.
func (p *ProfileClient) Get(ctx context.Context, wallet string) (*Profile, error) {
	v, err := p.lookup.Get(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return v.(*Profile), nil
}
