package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/harrylevesque/dwetransfer/internal/certs"
	"github.com/harrylevesque/dwetransfer/internal/config"
	"github.com/harrylevesque/dwetransfer/internal/relay"
	"github.com/harrylevesque/dwetransfer/internal/relay/store"
	"github.com/harrylevesque/dwetransfer/internal/utils"
)

const certWarnWindow = 30 * 24 * time.Hour

func main() {
	pflag.String("addr", "", "Listen address (default :8081)")
	pflag.String("db", "", "SQLite database path (default <data dir>/relay.db)")
	pflag.String("tls-cert", "", "TLS certificate PEM file")
	pflag.String("tls-key", "", "TLS private key PEM file")
	pflag.String("log-level", "", "Log level (debug, info, warn, error)")
	pflag.String("data-dir", "", "Data directory (default ~/.dwetransfer)")
	pflag.String("config", "", "Path to config file")
	pflag.Parse()

	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewConsoleLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("relay stopped", zap.Error(err))
		logger.Close()
		os.Exit(1)
	}
}

// openStore opens the relay database, creating its directory first.
func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return store.Open(path)
}

func run(cfg config.Config, logger *utils.Logger) error {
	st, err := openStore(cfg.Relay.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := &http.Server{
		Addr:              cfg.Relay.Addr,
		Handler:           relay.NewServer(st, relay.NewChallenges(relay.DefaultChallengeTTL), logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	useTLS := cfg.Relay.TLSCert != "" && cfg.Relay.TLSKey != ""
	if useTLS {
		if srv.TLSConfig, err = certs.ServerConfig(cfg.Relay.TLSCert, cfg.Relay.TLSKey); err != nil {
			return err
		}
		checkCert(cfg.Relay.TLSCert, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay running", zap.String("addr", srv.Addr), zap.String("db", cfg.Relay.DBPath), zap.Bool("tls", useTLS))
		if useTLS {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func checkCert(path string, logger *utils.Logger) {
	st, err := certs.Check(path, certWarnWindow, time.Now())
	if err != nil {
		logger.Warn("cannot inspect certificate", zap.Error(err))
		return
	}
	switch {
	case st.Expired:
		logger.Error("certificate expired", zap.String("subject", st.Subject), zap.Time("not_after", st.NotAfter))
	case st.ExpiringSoon:
		logger.Warn("certificate expires soon", zap.String("subject", st.Subject), zap.Time("not_after", st.NotAfter))
	}
}
