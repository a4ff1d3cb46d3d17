package storage_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/dwetransfer/internal/crypto"
	"github.com/harrylevesque/dwetransfer/internal/storage"
	"github.com/harrylevesque/dwetransfer/internal/storage/storagetest"
	"github.com/harrylevesque/dwetransfer/internal/wallet"
)

func signAuth(t *testing.T, ctx context.Context, c *storage.Client, acct *wallet.Account) string {
	t.Helper()
	msg, err := c.AuthMessage(ctx, acct.Address.Hex())
	require.NoError(t, err)
	sig, err := acct.SignMessage([]byte(msg))
	require.NoError(t, err)
	return wallet.SignatureHex(sig)
}

func TestUploadShareDownload(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := storagetest.New("test-key")
	defer srv.Close()
	c := storage.NewClient(srv.Config(), srv.Client())

	owner, _, err := wallet.Generate()
	require.NoError(t, err)
	recipient, _, err := wallet.Generate()
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		updates []storage.Progress
	)
	data := []byte("quarterly report contents")
	res, err := c.UploadEncrypted(ctx, storage.UploadRequest{
		Name:          "report.txt",
		Data:          data,
		Owner:         owner.Address.Hex(),
		SignedMessage: signAuth(t, ctx, c, owner),
	}, func(p storage.Progress) {
		mu.Lock()
		updates = append(updates, p)
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hash)
	require.Equal(t, "report.txt", res.Name)
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, updates)
	for i := 1; i < len(updates); i++ {
		require.GreaterOrEqual(t, updates[i].Uploaded, updates[i-1].Uploaded)
	}
	last := updates[len(updates)-1]
	require.True(t, last.Done())
	require.Equal(t, 100, last.Percent())

	stored, ok := srv.File(res.Hash)
	require.True(t, ok)
	require.NotContains(t, string(stored), string(data))

	share, err := c.ShareFile(ctx, owner.Address.Hex(), []string{recipient.Address.Hex()}, res.Hash, signAuth(t, ctx, c, owner))
	require.NoError(t, err)
	require.Equal(t, res.Hash, share.CID)
	require.True(t, srv.HasAccess(res.Hash, recipient.Address))

	plain, err := c.DownloadDecrypted(ctx, recipient.Address.Hex(), res.Hash, signAuth(t, ctx, c, recipient))
	require.NoError(t, err)
	require.Equal(t, data, plain)

	blob, err := c.Download(ctx, res.Hash)
	require.NoError(t, err)
	_, err = crypto.DecryptFile(blob, "not the key")
	require.Error(t, err)
}

func TestUploadRejectsBadAPIKey(t *testing.T) {
	ctx := context.Background()
	srv := storagetest.New("right")
	defer srv.Close()
	cfg := srv.Config()
	cfg.APIKey = "wrong"
	c := storage.NewClient(cfg, srv.Client())

	_, err := c.UploadEncrypted(ctx, storage.UploadRequest{Name: "a", Data: []byte("a")}, nil)
	var apiErr *storage.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Zero(t, srv.Uploads())
}

func TestFetchKeyWithoutAccess(t *testing.T) {
	ctx := context.Background()
	srv := storagetest.New("k")
	defer srv.Close()
	c := storage.NewClient(srv.Config(), srv.Client())

	stranger, _, err := wallet.Generate()
	require.NoError(t, err)
	_, err = c.FetchKey(ctx, stranger.Address.Hex(), "bafymissing", signAuth(t, ctx, c, stranger))
	var apiErr *storage.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.Status)
}

func TestTruncatedResponseReportsReadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte(`[{"message":"sig`))
	}))
	defer srv.Close()
	c := storage.NewClient(storage.Config{EncryptionURL: srv.URL}, srv.Client())

	_, err := c.AuthMessage(context.Background(), "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.NotContains(t, err.Error(), "decode response")
}

func TestShareLink(t *testing.T) {
	require.Equal(t, "https://files.lighthouse.storage/viewFile/bafyabc", storage.ShareLink("files.lighthouse.storage", "bafyabc"))
	require.Equal(t, "https://files.lighthouse.storage/viewFile/bafyabc", storage.ShareLink("files.lighthouse.storage/", "bafyabc"))
}

func TestProgressPercent(t *testing.T) {
	cases := []struct {
		p    storage.Progress
		want int
		done bool
	}{
		{storage.Progress{Total: 0, Uploaded: 0}, 0, false},
		{storage.Progress{Total: 200, Uploaded: 0}, 0, false},
		{storage.Progress{Total: 200, Uploaded: 1}, 1, false}, // 0.5 rounds up
		{storage.Progress{Total: 1741224, Uploaded: 870612}, 50, false},
		{storage.Progress{Total: 3, Uploaded: 2}, 67, false},
		{storage.Progress{Total: 1741224, Uploaded: 1741224}, 100, true},
		{storage.Progress{Total: 10, Uploaded: 12}, 100, true},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.p.Percent(), "%+v", c.p)
		require.Equal(t, c.done, c.p.Done(), "%+v", c.p)
	}
}
