package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/dwetransfer/internal/messaging"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestContacts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTest(t)

	_, err := s.GetContact(ctx, "0xabc")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutContact(ctx, messaging.Contact{Address: "0xabc", PublicKey: "0x04aa", Signature: "0x01"}))
	require.NoError(t, s.PutContact(ctx, messaging.Contact{Address: "0xabc", PublicKey: "0x04bb", Signature: "0x02"}))

	c, err := s.GetContact(ctx, "0xabc")
	require.NoError(t, err)
	require.Equal(t, "0x04bb", c.PublicKey)
	require.Equal(t, "0x02", c.Signature)
}

func TestMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTest(t)

	sent := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, body := range []string{"first", "second"} {
		id, err := s.AddMessage(ctx, messaging.Envelope{
			Sender: "0xsender", Recipient: "0xrcpt", Ciphertext: []byte(body), Signature: "0xsig", SentAt: sent,
		})
		require.NoError(t, err)
		require.NotEmpty(t, id)
	}
	_, err := s.AddMessage(ctx, messaging.Envelope{Sender: "0xsender", Recipient: "0xother", Ciphertext: []byte("x"), SentAt: sent})
	require.NoError(t, err)

	got, err := s.ListMessages(ctx, "0xrcpt")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, []byte("first"), got[0].Ciphertext)
	require.Equal(t, "0xsender", got[0].Sender)
	require.True(t, sent.Equal(got[0].SentAt))

	none, err := s.ListMessages(ctx, "0xnobody")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "relay.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.PutContact(ctx, messaging.Contact{Address: "0x1", PublicKey: "0x04", Signature: "0x"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.GetContact(ctx, "0x1")
	require.NoError(t, err)
}
