// Package messaging delivers end-to-end encrypted wallet-to-wallet messages
// through the relay. A peer can be messaged once it has published a contact.
package messaging

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"

	"github.com/harrylevesque/dwetransfer/internal/wallet"
)

var (
	ErrRecipientNotOnNetwork = errors.New("messaging: recipient is not on the network")
	ErrInvalidContact        = errors.New("messaging: contact signature does not match address")
)

// StatusError is a non-2xx relay response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay: status %d: %s", e.Status, e.Body)
}

// Message is a decrypted inbox entry.
type Message struct {
	ID     string
	Sender common.Address
	SentAt time.Time
	Text   string
}

type Client struct {
	relay   string
	account *wallet.Account
	http    *http.Client
	now     func() time.Time
}

// NewClient publishes the account's contact on the relay and returns a client.
func NewClient(ctx context.Context, relayURL string, acct *wallet.Account, hc *http.Client) (*Client, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	c := &Client{relay: strings.TrimRight(relayURL, "/"), account: acct, http: hc, now: time.Now}
	if err := c.publishContact(ctx); err != nil {
		return nil, fmt.Errorf("publish contact: %w", err)
	}
	return c, nil
}

// Address is the client's own address.
func (c *Client) Address() common.Address { return c.account.Address }

func (c *Client) publishContact(ctx context.Context) error {
	pub := hexutil.Encode(c.account.PublicKeyBytes())
	sig, err := c.account.SignMessage(ContactPayload(pub))
	if err != nil {
		return err
	}
	contact := Contact{Address: c.account.Address.Hex(), PublicKey: pub, Signature: wallet.SignatureHex(sig)}
	return c.do(ctx, http.MethodPut, "/contacts/"+contact.Address, contact, nil)
}

func (c *Client) contact(ctx context.Context, address string) (*ecies.PublicKey, error) {
	var ct Contact
	err := c.do(ctx, http.MethodGet, "/contacts/"+url.PathEscape(address), nil, &ct)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return nil, ErrRecipientNotOnNetwork
	}
	if err != nil {
		return nil, err
	}
	raw, err := hexutil.Decode(ct.PublicKey)
	if err != nil {
		return nil, ErrInvalidContact
	}
	pub, err := crypto.UnmarshalPubkey(raw)
	if err != nil || crypto.PubkeyToAddress(*pub) != common.HexToAddress(address) {
		return nil, ErrInvalidContact
	}
	sig, err := wallet.DecodeSignature(ct.Signature)
	if err != nil || !wallet.VerifyMessage(common.HexToAddress(address), ContactPayload(ct.PublicKey), sig) {
		return nil, ErrInvalidContact
	}
	return ecies.ImportECDSAPublic(pub), nil
}

// CanMessage reports whether address has published a contact.
func (c *Client) CanMessage(ctx context.Context, address string) (bool, error) {
	_, err := c.contact(ctx, address)
	if errors.Is(err, ErrRecipientNotOnNetwork) {
		return false, nil
	}
	return err == nil, err
}

// Conversation is a one-way channel to a peer.
type Conversation struct {
	client *Client
	peer   common.Address
	key    *ecies.PublicKey
}

// NewConversation resolves the peer's contact.
func (c *Client) NewConversation(ctx context.Context, address string) (*Conversation, error) {
	if !wallet.IsAddress(address) {
		return nil, fmt.Errorf("messaging: invalid address %q", address)
	}
	key, err := c.contact(ctx, address)
	if err != nil {
		return nil, err
	}
	return &Conversation{client: c, peer: common.HexToAddress(address), key: key}, nil
}

// Peer is the conversation's other party.
func (cv *Conversation) Peer() common.Address { return cv.peer }

// Send encrypts text to the peer and posts a signed envelope.
func (cv *Conversation) Send(ctx context.Context, text string) error {
	ct, err := ecies.Encrypt(rand.Reader, cv.key, []byte(text), nil, nil)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}
	c := cv.client
	sentAt := c.now().UTC()
	recipient := cv.peer.Hex()
	sig, err := c.account.SignMessage(EnvelopePayload(recipient, sentAt, ct))
	if err != nil {
		return err
	}
	env := Envelope{
		Sender:     c.account.Address.Hex(),
		Recipient:  recipient,
		Ciphertext: ct,
		Signature:  wallet.SignatureHex(sig),
		SentAt:     sentAt,
	}
	return c.do(ctx, http.MethodPost, "/messages/"+recipient, env, nil)
}

// Inbox authenticates with a signed challenge and returns decrypted
// messages. Envelopes with a bad signature or that fail to decrypt are skipped.
func (c *Client) Inbox(ctx context.Context) ([]Message, error) {
	addr := c.account.Address.Hex()
	var ch struct {
		Nonce string `json:"nonce"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/challenge/"+addr, nil, &ch); err != nil {
		return nil, fmt.Errorf("challenge: %w", err)
	}
	sig, err := c.account.SignMessage(ChallengePayload(ch.Nonce))
	if err != nil {
		return nil, err
	}
	q := url.Values{"nonce": {ch.Nonce}, "signature": {wallet.SignatureHex(sig)}}
	var envs []Envelope
	if err := c.do(ctx, http.MethodGet, "/messages/"+addr+"?"+q.Encode(), nil, &envs); err != nil {
		return nil, err
	}

	priv := ecies.ImportECDSA(c.account.PrivateKey)
	out := make([]Message, 0, len(envs))
	for _, e := range envs {
		esig, err := wallet.DecodeSignature(e.Signature)
		if err != nil || !wallet.VerifyMessage(common.HexToAddress(e.Sender), EnvelopePayload(addr, e.SentAt, e.Ciphertext), esig) {
			continue
		}
		pt, err := priv.Decrypt(e.Ciphertext, nil, nil)
		if err != nil {
			continue
		}
		out = append(out, Message{ID: e.ID, Sender: common.HexToAddress(e.Sender), SentAt: e.SentAt, Text: string(pt)})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.relay+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(b, out)
}
