package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/walletchat/chatcore/frame"
)

func TestDeriveLevel(t *testing.T) {
	cases := []struct {
		name string
		id   *frame.Identity
		want Level
	}{
		{"nil identity", nil, LevelNone},
		{"no tier no roles", &frame.Identity{Wallet: "0xa"}, LevelNone},
		{"admin role", &frame.Identity{Tier: TierShrimp, Roles: []string{RoleAdmin}}, LevelAdmin},
		{"moderator role", &frame.Identity{Roles: []string{"support", RoleModerator}}, LevelAdmin},
		{"team tier", &frame.Identity{Tier: TierTeam}, LevelAdmin},
		{"whale tier", &frame.Identity{Tier: TierWhale}, LevelVerified},
		{"fish tier", &frame.Identity{Tier: TierFish}, LevelNone},
		{"unknown tier", &frame.Identity{Tier: "mystery"}, LevelNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveLevel(tc.id))
		})
	}
}

func TestGate(t *testing.T) {
	admin := NewGate(LevelAdmin)
	verified := NewGate(LevelVerified)
	none := NewGate(LevelNone)

	assert.True(t, admin.CanBan())
	assert.False(t, verified.CanBan())
	assert.False(t, none.CanBan())

	// admins may mute anyone, staff included
	assert.True(t, admin.CanMute(TierTeam))
	assert.True(t, admin.CanMute(TierWhale))

	// verified callers only reach the allow-listed tiers
	assert.True(t, verified.CanMute(TierPlankton))
	assert.True(t, verified.CanMute(TierDolphin))
	assert.False(t, verified.CanMute(TierWhale))
	assert.False(t, verified.CanMute(TierTeam))

	// unknown target tier fails closed
	assert.False(t, verified.CanMute(""))
	assert.False(t, verified.CanMute("mystery"))

	assert.False(t, none.CanMute(TierPlankton))
}
