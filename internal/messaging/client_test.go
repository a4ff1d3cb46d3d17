package messaging_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/dwetransfer/internal/messaging"
	"github.com/harrylevesque/dwetransfer/internal/relay/relaytest"
	"github.com/harrylevesque/dwetransfer/internal/wallet"
)

func TestSendAndReceive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv := relaytest.New(t)

	alice, _, err := wallet.Generate()
	require.NoError(t, err)
	bob, _, err := wallet.Generate()
	require.NoError(t, err)

	aliceClient, err := messaging.NewClient(ctx, srv.URL, alice, srv.Client())
	require.NoError(t, err)

	ok, err := aliceClient.CanMessage(ctx, bob.Address.Hex())
	require.NoError(t, err)
	require.False(t, ok)

	_, err = aliceClient.NewConversation(ctx, bob.Address.Hex())
	require.ErrorIs(t, err, messaging.ErrRecipientNotOnNetwork)

	bobClient, err := messaging.NewClient(ctx, srv.URL, bob, srv.Client())
	require.NoError(t, err)

	ok, err = aliceClient.CanMessage(ctx, bob.Address.Hex())
	require.NoError(t, err)
	require.True(t, ok)

	conv, err := aliceClient.NewConversation(ctx, bob.Address.Hex())
	require.NoError(t, err)
	require.Equal(t, bob.Address, conv.Peer())
	require.NoError(t, conv.Send(ctx, "hello bob"))
	require.NoError(t, conv.Send(ctx, "second"))

	msgs, err := bobClient.Inbox(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "hello bob", msgs[0].Text)
	require.Equal(t, "second", msgs[1].Text)
	require.Equal(t, alice.Address, msgs[0].Sender)

	empty, err := aliceClient.Inbox(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestNewConversationRejectsBadAddress(t *testing.T) {
	ctx := context.Background()
	srv := relaytest.New(t)
	acct, _, err := wallet.Generate()
	require.NoError(t, err)
	c, err := messaging.NewClient(ctx, srv.URL, acct, srv.Client())
	require.NoError(t, err)

	_, err = c.NewConversation(ctx, "0x123")
	require.Error(t, err)
}

func TestNewClientRelayDown(t *testing.T) {
	ctx := context.Background()
	srv := relaytest.New(t)
	url := srv.URL
	srv.Close()

	acct, _, err := wallet.Generate()
	require.NoError(t, err)
	_, err = messaging.NewClient(ctx, url, acct, nil)
	require.Error(t, err)
}

func TestNewClientTruncatedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "64")
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	acct, _, err := wallet.Generate()
	require.NoError(t, err)
	_, err = messaging.NewClient(context.Background(), srv.URL, acct, srv.Client())
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
