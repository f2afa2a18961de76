// Package relay runs the record store service: it opens a store backend,
// serves it over gRPC and stops on SIGINT, SIGTERM or SIGQUIT. It holds no
// messenger logic of its own.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/relay/auth"
	"github.com/dmitrijs2005/chatsync/internal/relay/config"
	"github.com/dmitrijs2005/chatsync/internal/remote/backend"
)

type App struct {
	config *config.Config
	logger logging.Logger
	store  backend.Store
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	store, err := backend.Open(ctx, c.DatabaseDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	return &App{config: c, logger: logger, store: store}, nil
}

// IssueToken writes an access token for c.IssueToken to w.
func IssueToken(c *config.Config, w io.Writer) error {
	if c.SecretKey == "" {
		return errors.New("a secret key is required to issue tokens")
	}
	token, err := auth.GenerateToken(c.IssueToken, []byte(c.SecretKey), c.TokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until a termination signal arrives or the server fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting relay...", "dsn_kind", backend.Kind(app.config.DatabaseDSN))
	app.initSignalHandler(cancelFunc)

	s := NewGRPCServer(app.config.ListenAddr, app.store, app.logger, app.config.SecretKey)
	err := s.Run(ctx)

	if cerr := app.store.Close(); cerr != nil {
		app.logger.Error(ctx, "store close failed", "error", cerr)
	}
	app.logger.Info(ctx, "Relay stopped")
	return err
}
