// Package moderation decides whether the local caller may attempt mute and
// ban actions. It is a pure authorization check: the server is the final
// authority and may still reject the call.
package moderation

import "github.com/walletchat/chatcore/frame"

// Tier ladder, lowest to highest. TierTeam is the reserved staff tier.
const (
	TierPlankton = "plankton"
	TierShrimp   = "shrimp"
	TierFish     = "fish"
	TierDolphin  = "dolphin"
	TierWhale    = "whale"
	TierTeam     = "team"
)

const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
)

// Level is the derived moderation capability of the caller.
type Level int

const (
	LevelNone Level = iota
	LevelVerified
	LevelAdmin
)

func (l Level) String() string {
	switch l {
	case LevelAdmin:
		return "admin"
	case LevelVerified:
		return "verified"
	default:
		return "none"
	}
}

// mutableByVerified is the fixed allow-list of target tiers a verified
// caller may mute. Anything outside it, unknown tiers included, fails
// closed.
var mutableByVerified = map[string]bool{
	TierPlankton: true,
	TierShrimp:   true,
	TierFish:     true,
	TierDolphin:  true,
}

// DeriveLevel maps an authenticated identity to its moderation level.
func DeriveLevel(id *frame.Identity) Level {
	if id == nil {
		return LevelNone
	}
	for _, role := range id.Roles {
		if role == RoleAdmin || role == RoleModerator {
			return LevelAdmin
		}
	}
	switch id.Tier {
	case TierTeam:
		return LevelAdmin
	case TierWhale:
		return LevelVerified
	}
	return LevelNone
}

// Gate answers capability questions for one derived level.
type Gate struct {
	level Level
}

func NewGate(level Level) *Gate {
	return &Gate{level: level}
}

func (g *Gate) Level() Level { return g.level }

// CanBan: admins only.
func (g *Gate) CanBan() bool {
	return g.level == LevelAdmin
}

// CanMute: admins may mute anyone; verified callers only the allow-listed
// tiers.
func (g *Gate) CanMute(targetTier string) bool {
	switch g.level {
	case LevelAdmin:
		return true
	case LevelVerified:
		return mutableByVerified[targetTier]
	}
	return false
}
