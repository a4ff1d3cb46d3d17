// Package transfer sequences a file transfer: validate the form, sign in to
// storage with the wallet, upload encrypted, share with the recipient and
// notify them with the link.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/harrylevesque/dwetransfer/internal/history"
	"github.com/harrylevesque/dwetransfer/internal/messaging"
	"github.com/harrylevesque/dwetransfer/internal/storage"
	"github.com/harrylevesque/dwetransfer/internal/utils"
	"github.com/harrylevesque/dwetransfer/internal/wallet"
)

// Step is the stage of the three-step flow.
type Step int

const (
	StepForm Step = iota + 1
	StepUploading
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepForm:
		return "form"
	case StepUploading:
		return "uploading"
	case StepDone:
		return "done"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// KeyStore provides the sender's account.
type KeyStore interface {
	Load() (*wallet.Account, error)
}

// Storage is the subset of the storage client the flow uses.
type Storage interface {
	AuthMessage(ctx context.Context, address string) (string, error)
	UploadEncrypted(ctx context.Context, req storage.UploadRequest, progress storage.ProgressFunc) (*storage.UploadResult, error)
	ShareFile(ctx context.Context, owner string, recipients []string, cid, signedMessage string) (*storage.ShareResult, error)
	DownloadDecrypted(ctx context.Context, address, cid, signedMessage string) ([]byte, error)
	ShareLink(cid string) string
}

// Notifier delivers the message text to recipient on behalf of acct.
type Notifier interface {
	Notify(ctx context.Context, acct *wallet.Account, recipient, text string) error
}

// History records completed transfers.
type History interface {
	Save(e *history.Entry) error
}

// RelayNotifier sends through the message relay, opening a client per send.
type RelayNotifier struct {
	URL  string
	HTTP *http.Client
}

func (n RelayNotifier) Notify(ctx context.Context, acct *wallet.Account, recipient, text string) error {
	client, err := messaging.NewClient(ctx, n.URL, acct, n.HTTP)
	if err != nil {
		return err
	}
	conv, err := client.NewConversation(ctx, recipient)
	if err != nil {
		return err
	}
	return conv.Send(ctx, text)
}

// Result is what a finished transfer produced.
type Result struct {
	CID       string
	ShareLink string
	Recipient string
	Message   string
}

// Hooks let a UI follow the flow. Either field may be nil.
type Hooks struct {
	OnStep     func(Step)
	OnProgress storage.ProgressFunc
}

type Sender struct {
	Keys     KeyStore
	Storage  Storage
	Notifier Notifier
	History  History
	AppURL   string
	Logger   *utils.Logger
}

func (s *Sender) log() *utils.Logger {
	if s.Logger == nil {
		return utils.Nop()
	}
	return s.Logger
}

// Send runs the transfer. A failure stops the sequence where it happened;
// earlier steps are not undone.
func (s *Sender) Send(ctx context.Context, form *Form, hooks Hooks) (*Result, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	log := s.log().With(zap.String("file", form.FileName), zap.String("recipient", form.Recipient))
	log.Info("transfer started", zap.String("size", HumanFileSize(form.Size())), zap.String("title", form.Title))

	step := func(st Step) {
		if hooks.OnStep != nil {
			hooks.OnStep(st)
		}
	}
	step(StepUploading)

	acct, err := s.Keys.Load()
	if err != nil {
		return nil, utils.Wrap(utils.CodeAuth, "load account", err)
	}
	owner := acct.Address.Hex()

	sig, err := s.signAuth(ctx, acct)
	if err != nil {
		return nil, err
	}
	up, err := s.Storage.UploadEncrypted(ctx, storage.UploadRequest{
		Name:          form.FileName,
		Data:          form.Data,
		Owner:         owner,
		SignedMessage: sig,
	}, hooks.OnProgress)
	if err != nil {
		log.Error("upload failed", zap.Error(err))
		return nil, utils.Wrap(utils.CodeUpstream, "upload", err)
	}
	log.Info("uploaded", zap.String("cid", up.Hash))

	sig, err = s.signAuth(ctx, acct)
	if err != nil {
		return nil, err
	}
	shared, err := s.Storage.ShareFile(ctx, owner, []string{form.Recipient}, up.Hash, sig)
	if err != nil {
		log.Error("share failed", zap.String("cid", up.Hash), zap.Error(err))
		return nil, utils.Wrap(utils.CodeUpstream, "share", err)
	}
	link := s.Storage.ShareLink(shared.CID)

	text := ComposeMessage(form.FileName, form.Size(), form.Title, form.Message, link, s.AppURL)
	if err := s.Notifier.Notify(ctx, acct, form.Recipient, text); err != nil {
		log.Error("notify failed", zap.Error(err))
		code := utils.CodeUpstream
		if errors.Is(err, messaging.ErrRecipientNotOnNetwork) {
			code = utils.CodeNotFound
		}
		return nil, utils.Wrap(code, "notify recipient", err)
	}

	res := &Result{CID: shared.CID, ShareLink: link, Recipient: form.Recipient, Message: text}
	if s.History != nil {
		entry := &history.Entry{
			CID:       res.CID,
			FileName:  form.FileName,
			Size:      form.Size(),
			Recipient: form.Recipient,
			Title:     form.Title,
			ShareLink: link,
		}
		if err := s.History.Save(entry); err != nil {
			log.Warn("history not saved", zap.Error(err))
		}
	}
	step(StepDone)
	log.Info("transfer complete", zap.String("link", link))
	return res, nil
}

// Fetch downloads and decrypts a file shared with the local account.
func (s *Sender) Fetch(ctx context.Context, cid string) ([]byte, error) {
	acct, err := s.Keys.Load()
	if err != nil {
		return nil, utils.Wrap(utils.CodeAuth, "load account", err)
	}
	sig, err := s.signAuth(ctx, acct)
	if err != nil {
		return nil, err
	}
	data, err := s.Storage.DownloadDecrypted(ctx, acct.Address.Hex(), cid, sig)
	if err != nil {
		return nil, utils.Wrap(utils.CodeUpstream, "fetch", err)
	}
	return data, nil
}

func (s *Sender) signAuth(ctx context.Context, acct *wallet.Account) (string, error) {
	msg, err := s.Storage.AuthMessage(ctx, acct.Address.Hex())
	if err != nil {
		return "", utils.Wrap(utils.CodeUpstream, "auth message", err)
	}
	sig, err := acct.SignMessage([]byte(msg))
	if err != nil {
		return "", utils.Wrap(utils.CodeInternal, "sign auth message", err)
	}
	return wallet.SignatureHex(sig), nil
}
