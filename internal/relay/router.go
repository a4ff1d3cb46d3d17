// Package relay serves the wallet-to-wallet message relay: contact
// publication, signed envelope delivery and challenge-gated inbox reads.
package relay

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/health", s.health).Methods("GET")
	r.HandleFunc("/time", GetTimeHandler).Methods("GET")
	r.HandleFunc("/contacts/{address}", s.getContact).Methods("GET")
	r.HandleFunc("/contacts/{address}", s.putContact).Methods("PUT")
	r.HandleFunc("/auth/challenge/{address}", s.challenge).Methods("POST")
	r.HandleFunc("/messages/{address}", s.postMessage).Methods("POST")
	r.HandleFunc("/messages/{address}", s.listMessages).Methods("GET")
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Duration("took", time.Since(start)))
	})
}
