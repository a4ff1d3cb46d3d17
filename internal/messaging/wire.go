package messaging

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// Contact is a published messaging identity: the secp256k1 public key
// behind an address, signed by that address.
type Contact struct {
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// Envelope carries one encrypted message through the relay.
type Envelope struct {
	ID         string    `json:"id,omitempty"`
	Sender     string    `json:"sender"`
	Recipient  string    `json:"recipient"`
	Ciphertext []byte    `json:"ciphertext"`
	Signature  string    `json:"signature"`
	SentAt     time.Time `json:"sent_at"`
}

// ContactPayload is what an address signs to publish its public key.
func ContactPayload(publicKeyHex string) []byte {
	return []byte("dwetransfer contact:" + strings.ToLower(publicKeyHex))
}

// EnvelopePayload is what a sender signs for an envelope.
func EnvelopePayload(recipient string, sentAt time.Time, ciphertext []byte) []byte {
	sum := sha256.Sum256(ciphertext)
	return []byte(fmt.Sprintf("dwetransfer envelope:%s:%d:%x", strings.ToLower(recipient), sentAt.UnixMilli(), sum))
}

// ChallengePayload is what an inbox owner signs to read messages.
func ChallengePayload(nonce string) []byte {
	return []byte("dwetransfer inbox:" + nonce)
}
