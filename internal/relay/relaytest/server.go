// Package relaytest runs a relay backed by a temporary sqlite database.
package relaytest

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/harrylevesque/dwetransfer/internal/relay"
	"github.com/harrylevesque/dwetransfer/internal/relay/store"
)

// New starts a relay for the duration of t.
func New(t testing.TB) *httptest.Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open relay store: %v", err)
	}
	srv := httptest.NewServer(relay.NewServer(st, relay.NewChallenges(0), nil).Router())
	t.Cleanup(func() {
		srv.Close()
		_ = st.Close()
	})
	return srv
}
