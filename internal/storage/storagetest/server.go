// Package storagetest runs an in-memory storage service for tests.
package storagetest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/harrylevesque/dwetransfer/internal/storage"
	"github.com/harrylevesque/dwetransfer/internal/wallet"
)

// AuthMessagePrefix starts every auth message the fake hands out.
const AuthMessagePrefix = "Please sign this message to prove you are owner of this account: "

// Server fakes the node, encryption and gateway endpoints on one listener.
type Server struct {
	*httptest.Server
	APIKey string

	mu      sync.Mutex
	files   map[string][]byte
	keys    map[string]map[common.Address]string
	owner   map[string]common.Address
	uploads int
}

func New(apiKey string) *Server {
	s := &Server{
		APIKey: apiKey,
		files:  map[string][]byte{},
		keys:   map[string]map[common.Address]string{},
		owner:  map[string]common.Address{},
	}
	r := mux.NewRouter()
	r.HandleFunc("/api/message/{address}", s.message).Methods("GET")
	r.HandleFunc("/api/v0/add", s.add).Methods("POST")
	r.HandleFunc("/api/setSharedKey", s.setKey).Methods("POST")
	r.HandleFunc("/api/shareToAddress", s.share).Methods("POST")
	r.HandleFunc("/api/getSharedKey", s.getKey).Methods("POST")
	r.HandleFunc("/ipfs/{cid}", s.gateway).Methods("GET")
	s.Server = httptest.NewServer(r)
	return s
}

// Config points a storage client at the fake.
func (s *Server) Config() storage.Config {
	return storage.Config{
		NodeURL:       s.URL,
		EncryptionURL: s.URL,
		GatewayURL:    s.URL,
		ViewHost:      "files.example.test",
		APIKey:        s.APIKey,
	}
}

// Uploads counts accepted uploads.
func (s *Server) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

// File returns the stored ciphertext of cid.
func (s *Server) File(cid string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[cid]
	return b, ok
}

// HasAccess reports whether addr may fetch the key of cid.
func (s *Server) HasAccess(cid string, addr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[cid][addr]
	return ok
}

func authMessage(address string) string {
	return AuthMessagePrefix + strings.ToLower(address)
}

func (s *Server) verify(address, signature string) bool {
	if !wallet.IsAddress(address) {
		return false
	}
	sig, err := wallet.DecodeSignature(signature)
	if err != nil {
		return false
	}
	return wallet.VerifyMessage(common.HexToAddress(address), []byte(authMessage(address)), sig)
}

func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]
	writeJSON(w, http.StatusOK, []map[string]string{{"message": authMessage(addr)}})
}

func (s *Server) add(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+s.APIKey {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sum := sha256.Sum256(data)
	cid := "bafy" + hex.EncodeToString(sum[:16])
	s.mu.Lock()
	s.files[cid] = data
	s.uploads++
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"Name": hdr.Filename, "Hash": cid, "Size": "0"})
}

func (s *Server) setKey(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Address, CID, Key, Signature string
	}
	if !decode(w, r, &in) {
		return
	}
	if !s.verify(in.Address, in.Signature) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	addr := common.HexToAddress(in.Address)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[in.CID] = map[common.Address]string{addr: in.Key}
	s.owner[in.CID] = addr
	writeJSON(w, http.StatusOK, map[string]string{"message": "success"})
}

func (s *Server) share(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Address   string   `json:"address"`
		CID       string   `json:"cid"`
		ShareTo   []string `json:"shareTo"`
		Signature string   `json:"signature"`
	}
	if !decode(w, r, &in) {
		return
	}
	if !s.verify(in.Address, in.Signature) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.owner[in.CID]
	if !ok || owner != common.HexToAddress(in.Address) {
		http.Error(w, "not owner", http.StatusForbidden)
		return
	}
	key := s.keys[in.CID][owner]
	for _, to := range in.ShareTo {
		s.keys[in.CID][common.HexToAddress(to)] = key
	}
	writeJSON(w, http.StatusOK, map[string]any{"cid": in.CID, "shareTo": in.ShareTo, "status": "Success"})
}

func (s *Server) getKey(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Address, CID, Signature string
	}
	if !decode(w, r, &in) {
		return
	}
	if !s.verify(in.Address, in.Signature) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	key, ok := s.keys[in.CID][common.HexToAddress(in.Address)]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "access denied", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key})
}

func (s *Server) gateway(w http.ResponseWriter, r *http.Request) {
	data, ok := s.File(mux.Vars(r)["cid"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(data)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
