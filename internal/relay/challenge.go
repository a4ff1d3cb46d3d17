package relay

import (
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/harrylevesque/dwetransfer/internal/crypto"
)

var (
	// ErrChallengeNotFound is returned for unknown or already used nonces.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeExpired is returned when a nonce outlived its TTL.
	ErrChallengeExpired = errors.New("challenge expired")
)

// DefaultChallengeTTL bounds how long an inbox nonce stays valid.
const DefaultChallengeTTL = 30 * time.Second

type challenge struct {
	address   string
	expiresAt time.Time
}

// Challenges mints single-use nonces bound to an address.
type Challenges struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]challenge
	now   func() time.Time
}

func NewChallenges(ttl time.Duration) *Challenges {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &Challenges{ttl: ttl, items: make(map[string]challenge), now: time.Now}
}

// Issue returns a fresh 32-byte hex nonce for address.
func (c *Challenges) Issue(address string) string {
	nonce := hex.EncodeToString(crypto.MustRandom(32))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gc()
	c.items[nonce] = challenge{address: address, expiresAt: c.now().Add(c.ttl)}
	return nonce
}

// Consume removes nonce and checks it was issued to address and is still live.
func (c *Challenges) Consume(address, nonce string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.items[nonce]
	if !ok || ch.address != address {
		return ErrChallengeNotFound
	}
	delete(c.items, nonce)
	if c.now().After(ch.expiresAt) {
		return ErrChallengeExpired
	}
	return nil
}

// gc drops expired nonces. Caller holds mu.
func (c *Challenges) gc() {
	now := c.now()
	for k, ch := range c.items {
		if now.After(ch.expiresAt) {
			delete(c.items, k)
		}
	}
}
