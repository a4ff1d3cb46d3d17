package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/harrylevesque/dwetransfer/internal/messaging"
	"github.com/harrylevesque/dwetransfer/internal/relay/store"
	"github.com/harrylevesque/dwetransfer/internal/utils"
	"github.com/harrylevesque/dwetransfer/internal/wallet"
)

// maxEnvelopeBytes caps a posted envelope body.
const maxEnvelopeBytes = 1 << 20

// Store is the persistence the relay needs.
type Store interface {
	Ping(ctx context.Context) error
	PutContact(ctx context.Context, c messaging.Contact) error
	GetContact(ctx context.Context, address string) (messaging.Contact, error)
	AddMessage(ctx context.Context, env messaging.Envelope) (string, error)
	ListMessages(ctx context.Context, recipient string) ([]messaging.Envelope, error)
}

// Server holds the handler dependencies.
type Server struct {
	store      Store
	challenges *Challenges
	log        *utils.Logger
}

func NewServer(st Store, challenges *Challenges, log *utils.Logger) *Server {
	if log == nil {
		log = utils.Nop()
	}
	return &Server{store: st, challenges: challenges, log: log}
}

// addressVar parses {address} into its checksummed form.
func addressVar(r *http.Request) (string, bool) {
	a := mux.Vars(r)["address"]
	if !wallet.IsAddress(a) {
		return "", false
	}
	return common.HexToAddress(a).Hex(), true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("OK\n"))
}

// GetTimeHandler returns the current server time in RFC3339 format
func GetTimeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) putContact(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(r)
	if !ok {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	var c messaging.Contact
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEnvelopeBytes)).Decode(&c); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	pub, err := hexutil.Decode(c.PublicKey)
	if err != nil {
		http.Error(w, "invalid public key", http.StatusBadRequest)
		return
	}
	key, err := crypto.UnmarshalPubkey(pub)
	if err != nil || crypto.PubkeyToAddress(*key).Hex() != addr {
		http.Error(w, "public key does not match address", http.StatusBadRequest)
		return
	}
	if !verify(addr, messaging.ContactPayload(c.PublicKey), c.Signature) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	c.Address = addr
	if err := s.store.PutContact(r.Context(), c); err != nil {
		s.log.Error("put contact", zap.String("address", addr), zap.Error(err))
		http.Error(w, "failed to save contact", http.StatusInternalServerError)
		return
	}
	s.log.Info("contact published", zap.String("address", addr))
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) getContact(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(r)
	if !ok {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	c, err := s.store.GetContact(r.Context(), addr)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "contact not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("get contact", zap.String("address", addr), zap.Error(err))
		http.Error(w, "failed to load contact", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	recipient, ok := addressVar(r)
	if !ok {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	var env messaging.Envelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEnvelopeBytes)).Decode(&env); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !wallet.IsAddress(env.Sender) || len(env.Ciphertext) == 0 {
		http.Error(w, "invalid envelope", http.StatusBadRequest)
		return
	}
	env.Sender = common.HexToAddress(env.Sender).Hex()
	env.Recipient = recipient
	if !verify(env.Sender, messaging.EnvelopePayload(recipient, env.SentAt, env.Ciphertext), env.Signature) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	if _, err := s.store.GetContact(r.Context(), recipient); err != nil {
		http.Error(w, "recipient is not on the network", http.StatusNotFound)
		return
	}
	id, err := s.store.AddMessage(r.Context(), env)
	if err != nil {
		s.log.Error("add message", zap.String("recipient", recipient), zap.Error(err))
		http.Error(w, "failed to store message", http.StatusInternalServerError)
		return
	}
	s.log.Info("message stored", zap.String("id", id), zap.String("sender", env.Sender), zap.String("recipient", recipient))
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) challenge(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(r)
	if !ok {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nonce": s.challenges.Issue(addr)})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(r)
	if !ok {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	nonce := q.Get("nonce")
	if err := s.challenges.Consume(addr, nonce); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if !verify(addr, messaging.ChallengePayload(nonce), q.Get("signature")) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	msgs, err := s.store.ListMessages(r.Context(), addr)
	if err != nil {
		s.log.Error("list messages", zap.String("address", addr), zap.Error(err))
		http.Error(w, "failed to load messages", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []messaging.Envelope{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func verify(address string, payload []byte, signature string) bool {
	sig, err := wallet.DecodeSignature(signature)
	if err != nil {
		return false
	}
	return wallet.VerifyMessage(common.HexToAddress(address), payload, sig)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
