package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChallengesSingleUse(t *testing.T) {
	c := NewChallenges(time.Minute)
	nonce := c.Issue("0xA")
	require.Len(t, nonce, 64)

	require.ErrorIs(t, c.Consume("0xB", nonce), ErrChallengeNotFound)
	require.NoError(t, c.Consume("0xA", nonce))
	require.ErrorIs(t, c.Consume("0xA", nonce), ErrChallengeNotFound)
}

func TestChallengesExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewChallenges(0)
	c.now = func() time.Time { return now }

	nonce := c.Issue("0xA")
	now = now.Add(DefaultChallengeTTL + time.Second)
	require.ErrorIs(t, c.Consume("0xA", nonce), ErrChallengeExpired)

	stale := c.Issue("0xA")
	now = now.Add(DefaultChallengeTTL + time.Second)
	c.Issue("0xA") // collects stale
	require.ErrorIs(t, c.Consume("0xA", stale), ErrChallengeNotFound)
}
