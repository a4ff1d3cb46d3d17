package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/harrylevesque/dwetransfer/internal/config"
	"github.com/harrylevesque/dwetransfer/internal/history"
	"github.com/harrylevesque/dwetransfer/internal/keystore"
	"github.com/harrylevesque/dwetransfer/internal/messaging"
	"github.com/harrylevesque/dwetransfer/internal/storage"
	"github.com/harrylevesque/dwetransfer/internal/transfer"
	"github.com/harrylevesque/dwetransfer/internal/tui"
	"github.com/harrylevesque/dwetransfer/internal/utils"
)

const usage = `Usage: dwetransfer [command] [flags]

Commands:
  send      send a file (default; interactive unless --yes)
  account   print the wallet address, creating it on first use
  backup    write the private key to a file
  history   list sent files
  inbox     read messages sent to this wallet
  fetch     download and decrypt a file shared with this wallet

Run "dwetransfer <command> --help" for flags.
`

// app is what every command gets after flags and config are loaded.
type app struct {
	cfg  config.Config
	log  *utils.Logger
	keys *keystore.Store
	http *http.Client
}

func main() {
	args := os.Args[1:]
	cmd := "send"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "send":
		err = runSend(args)
	case "account":
		err = runAccount(args)
	case "backup":
		err = runBackup(args)
	case "history":
		err = runHistory(args)
	case "inbox":
		err = runInbox(args)
	case "fetch":
		err = runFetch(args)
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		os.Exit(1)
	}
}

func describe(err error) string {
	var ve *transfer.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return utils.UserMessage(err)
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	fs.String("config", "", "Path to config file")
	fs.String("data-dir", "", "Data directory (default ~/.dwetransfer)")
	fs.String("api-key", "", "Storage API key")
	fs.String("relay-url", "", "Message relay URL")
	fs.String("log-level", "", "Log level (debug, info, warn, error)")
	return fs
}

func setup(fs *pflag.FlagSet, args []string) (*app, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := config.Load(fs)
	if err != nil {
		return nil, err
	}
	logger, err := utils.NewLogger(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	mk, err := keystore.ReadMasterKey(cfg.Data.Dir)
	if err != nil && !errors.Is(err, keystore.ErrMasterKeyMissing) {
		logger.Close()
		return nil, err
	}
	return &app{
		cfg:  cfg,
		log:  logger,
		keys: keystore.Open(cfg.Data.Dir, mk),
		http: &http.Client{Timeout: cfg.HTTP.Timeout},
	}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (a *app) sender() *transfer.Sender {
	return &transfer.Sender{
		Keys:     a.keys,
		Storage:  storage.NewClient(a.cfg.StorageClientConfig(), a.http),
		Notifier: transfer.RelayNotifier{URL: a.cfg.Messaging.RelayURL, HTTP: a.http},
		History:  history.NewStore(a.cfg.Data.Dir),
		AppURL:   a.cfg.App.URL,
		Logger:   a.log,
	}
}

func runSend(args []string) error {
	fs := newFlagSet("send")
	file := fs.StringP("file", "f", "", "File to send")
	to := fs.String("to", "", "Recipient wallet address")
	title := fs.StringP("title", "t", "", "Title")
	message := fs.StringP("message", "m", "", "Message")
	yes := fs.BoolP("yes", "y", false, "Send without the interactive form")
	a, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer a.log.Close()

	acct, created, err := a.keys.EnsureAccount()
	if err != nil {
		return err
	}
	if created {
		a.log.Info("account generated", zap.String("address", acct.Address.Hex()))
	}
	if a.cfg.Storage.APIKey == "" {
		return errors.New("storage api key not set (storage.api_key or DWETRANSFER_STORAGE_API_KEY)")
	}

	ctx, cancel := signalContext()
	defer cancel()
	sender := a.sender()

	if *yes {
		if created {
			fmt.Printf("Account Generated! Your address is %s. Run `dwetransfer backup` to save the private key.\n", acct.Address.Hex())
		}
		return sendNow(ctx, sender, *file, *to, *title, *message)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	m := tui.New(ctx, sender, tui.Options{
		Address: acct.Address.Hex(),
		Created: created,
		Backup:  func() (string, error) { return keystore.Backup(acct, cwd) },
		Logger:  a.log,
	})
	m.Prefill(*file, *to, *title, *message)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func sendNow(ctx context.Context, sender *transfer.Sender, path, to, title, message string) error {
	form, err := transfer.LoadForm(path, to, title, message)
	if err != nil {
		return err
	}
	if err := form.Validate(); err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	res, err := sender.Send(ctx, form, transfer.Hooks{
		OnProgress: func(p storage.Progress) {
			if bar == nil {
				bar = progressbar.NewOptions64(
					p.Total,
					progressbar.OptionSetDescription("Uploading "+form.FileName),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowBytes(true),
					progressbar.OptionThrottle(65*time.Millisecond),
					progressbar.OptionOnCompletion(func() {
						fmt.Fprint(os.Stderr, "\n")
					}),
					progressbar.OptionFullWidth(),
				)
			}
			_ = bar.Set64(p.Uploaded)
		},
		OnStep: func(s transfer.Step) {
			if s == transfer.StepDone && bar != nil {
				_ = bar.Finish()
			}
		},
	})
	if err != nil {
		return err
	}
	fmt.Printf("Sent %s to %s\n%s\n\n%s", form.FileName, res.Recipient, res.ShareLink, tui.RenderQR(res.ShareLink))
	return nil
}

func runAccount(args []string) error {
	a, err := setup(newFlagSet("account"), args)
	if err != nil {
		return err
	}
	defer a.log.Close()
	acct, created, err := a.keys.EnsureAccount()
	if err != nil {
		return err
	}
	if created {
		fmt.Println("Account Generated!")
	}
	fmt.Println(acct.Address.Hex())
	return nil
}

func runBackup(args []string) error {
	fs := newFlagSet("backup")
	out := fs.StringP("out", "o", ".", "Directory for "+keystore.BackupFileName)
	a, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer a.log.Close()
	acct, err := a.keys.Load()
	if err != nil {
		return err
	}
	path, err := keystore.Backup(acct, utils.ExpandHome(*out))
	if err != nil {
		return err
	}
	a.log.Info("private key exported", zap.String("path", path))
	fmt.Printf("Private key written to %s\n", path)
	return nil
}

func runHistory(args []string) error {
	fs := newFlagSet("history")
	clearAll := fs.Bool("clear", false, "Delete the history")
	a, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer a.log.Close()
	store := history.NewStore(a.cfg.Data.Dir)
	if *clearAll {
		return store.Clear()
	}
	entries, err := store.GetAll()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No transfers yet.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tFILE\tSIZE\tTO\tLINK")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04"), e.FileName, transfer.HumanFileSize(e.Size), e.Recipient, e.ShareLink)
	}
	return w.Flush()
}

func runInbox(args []string) error {
	a, err := setup(newFlagSet("inbox"), args)
	if err != nil {
		return err
	}
	defer a.log.Close()
	acct, err := a.keys.Load()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	client, err := messaging.NewClient(ctx, a.cfg.Messaging.RelayURL, acct, a.http)
	if err != nil {
		return err
	}
	msgs, err := client.Inbox(ctx)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Printf("Inbox of %s is empty.\n", client.Address().Hex())
		return nil
	}
	for _, m := range msgs {
		fmt.Printf("From %s at %s\n%s\n\n", m.Sender.Hex(), m.SentAt.Local().Format(time.RFC1123), m.Text)
	}
	return nil
}

func runFetch(args []string) error {
	fs := newFlagSet("fetch")
	out := fs.StringP("out", "o", "", "Output file (default <cid>)")
	a, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer a.log.Close()
	if fs.NArg() != 1 {
		return errors.New("usage: dwetransfer fetch <cid> [--out path]")
	}
	cid := fs.Arg(0)
	path := *out
	if path == "" {
		path = cid
	}
	ctx, cancel := signalContext()
	defer cancel()
	data, err := a.sender().Fetch(ctx, cid)
	if err != nil {
		return err
	}
	path = utils.ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	fmt.Printf("Saved %s (%s)\n", path, transfer.HumanFileSize(int64(len(data))))
	return nil
}
