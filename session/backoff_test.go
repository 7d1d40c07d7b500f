package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelay(t *testing.T) {
	want := []time.Duration{
		6 * time.Second,
		12 * time.Second,
		24 * time.Second,
		48 * time.Second,
		60 * time.Second, // capped
		60 * time.Second, // stays capped
	}

	d := retryDelayMin
	for i, w := range want {
		d = nextDelay(d)
		assert.Equal(t, w, d, "step %d", i)
	}
}

func TestBackoffProgression(t *testing.T) {
	s := New(Config{Wallet: "0xme"})
	s.active = true

	// consecutive failures schedule 3s, 6s, 12s and double the next delay
	assert.Equal(t, 3*time.Second, s.retryDelay)

	s.connectFailed()
	assert.NotNil(t, s.reconnectTimer)
	s.reconnectTimer.Stop()
	assert.Equal(t, 6*time.Second, s.retryDelay)

	s.connectFailed()
	s.reconnectTimer.Stop()
	assert.Equal(t, 12*time.Second, s.retryDelay)

	s.connectFailed()
	s.reconnectTimer.Stop()
	assert.Equal(t, 24*time.Second, s.retryDelay)
}

func TestConnectFailedRespectsTeardownAndBlock(t *testing.T) {
	s := New(Config{Wallet: "0xme"})

	// inactive session never schedules a reconnect
	s.connectFailed()
	assert.Nil(t, s.reconnectTimer)

	// a blocked session (ban/kick) never schedules one either
	s.active = true
	s.blocked = true
	s.connectFailed()
	assert.Nil(t, s.reconnectTimer)
}

func TestConnectWithoutIdentityIsNoop(t *testing.T) {
	s := New(Config{})
	s.Connect()
	assert.False(t, s.active)
	assert.Equal(t, StatusDisconnected, s.Status())
}
