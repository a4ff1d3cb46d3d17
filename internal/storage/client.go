// Package storage talks to the decentralized storage service: it fetches
// the auth message, uploads encrypted files, stores and shares their keys,
// and downloads content by CID.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/harrylevesque/dwetransfer/internal/crypto"
)

// Config locates the service endpoints.
type Config struct {
	NodeURL       string
	EncryptionURL string
	GatewayURL    string
	ViewHost      string
	APIKey        string
}

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storage: status %d: %s", e.Status, e.Body)
}

var ErrEmptyAuthMessage = errors.New("storage: empty auth message")

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	cfg.NodeURL = strings.TrimRight(cfg.NodeURL, "/")
	cfg.EncryptionURL = strings.TrimRight(cfg.EncryptionURL, "/")
	cfg.GatewayURL = strings.TrimRight(cfg.GatewayURL, "/")
	return &Client{cfg: cfg, http: hc}
}

// ShareLink builds https://<host>/viewFile/<cid>.
func ShareLink(host, cid string) string {
	return "https://" + strings.TrimRight(host, "/") + "/viewFile/" + cid
}

// ShareLink builds a link on the configured view host.
func (c *Client) ShareLink(cid string) string { return ShareLink(c.cfg.ViewHost, cid) }

// AuthMessage fetches the message address must sign to authenticate.
func (c *Client) AuthMessage(ctx context.Context, address string) (string, error) {
	var out []struct {
		Message string `json:"message"`
	}
	u := c.cfg.EncryptionURL + "/api/message/" + url.PathEscape(address)
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return "", err
	}
	if len(out) == 0 || out[0].Message == "" {
		return "", ErrEmptyAuthMessage
	}
	return out[0].Message, nil
}

type UploadRequest struct {
	Name          string
	Data          []byte
	Owner         string
	SignedMessage string
}

type UploadResult struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// UploadEncrypted encrypts req.Data under a fresh file key, uploads the
// ciphertext, then registers the key for req.Owner. progress may be nil.
func (c *Client) UploadEncrypted(ctx context.Context, req UploadRequest, progress ProgressFunc) (*UploadResult, error) {
	fileKey, err := crypto.GenerateFileKey()
	if err != nil {
		return nil, err
	}
	blob, err := crypto.EncryptFile(req.Data, fileKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", req.Name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(blob); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	total := int64(body.Len())
	pr := &progressReader{r: &body, total: total, fn: progress}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.NodeURL+"/api/v0/add?wrap-with-directory=false", pr)
	if err != nil {
		return nil, err
	}
	httpReq.ContentLength = total
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Encryption", "true")

	var res UploadResult
	if err := c.do(httpReq, &res); err != nil {
		return nil, err
	}
	if res.Hash == "" {
		return nil, &APIError{Status: http.StatusOK, Body: "upload response missing Hash"}
	}

	keyReq := map[string]string{
		"address":   req.Owner,
		"cid":       res.Hash,
		"key":       fileKey,
		"signature": req.SignedMessage,
	}
	if err := c.doJSON(ctx, http.MethodPost, c.cfg.EncryptionURL+"/api/setSharedKey", keyReq, nil); err != nil {
		return nil, fmt.Errorf("save file key: %w", err)
	}
	return &res, nil
}

type ShareResult struct {
	CID     string   `json:"cid"`
	ShareTo []string `json:"shareTo"`
	Status  string   `json:"status"`
}

// ShareFile grants recipients access to the key of cid.
func (c *Client) ShareFile(ctx context.Context, owner string, recipients []string, cid, signedMessage string) (*ShareResult, error) {
	in := map[string]any{
		"address":   owner,
		"cid":       cid,
		"shareTo":   recipients,
		"signature": signedMessage,
	}
	var out ShareResult
	if err := c.doJSON(ctx, http.MethodPost, c.cfg.EncryptionURL+"/api/shareToAddress", in, &out); err != nil {
		return nil, err
	}
	if out.CID == "" {
		out.CID = cid
	}
	return &out, nil
}

// FetchKey retrieves the file key of cid for address.
func (c *Client) FetchKey(ctx context.Context, address, cid, signedMessage string) (string, error) {
	in := map[string]string{"address": address, "cid": cid, "signature": signedMessage}
	var out struct {
		Key string `json:"key"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.cfg.EncryptionURL+"/api/getSharedKey", in, &out); err != nil {
		return "", err
	}
	if out.Key == "" {
		return "", &APIError{Status: http.StatusOK, Body: "response missing key"}
	}
	return out.Key, nil
}

// Download returns the raw (encrypted) content of cid.
func (c *Client) Download(ctx context.Context, cid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.GatewayURL+"/ipfs/"+url.PathEscape(cid), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(b)}
	}
	return b, nil
}

// DownloadDecrypted fetches the key and the content of cid and decrypts it.
func (c *Client) DownloadDecrypted(ctx context.Context, address, cid, signedMessage string) ([]byte, error) {
	key, err := c.FetchKey(ctx, address, cid, signedMessage)
	if err != nil {
		return nil, fmt.Errorf("fetch key: %w", err)
	}
	blob, err := c.Download(ctx, cid)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return crypto.DecryptFile(blob, key)
}

func (c *Client) doJSON(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
