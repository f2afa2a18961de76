package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatsync/internal/client/chatid"
	"github.com/dmitrijs2005/chatsync/internal/client/config"
	"github.com/dmitrijs2005/chatsync/internal/client/dispatch"
	"github.com/dmitrijs2005/chatsync/internal/client/files"
	"github.com/dmitrijs2005/chatsync/internal/client/localstate"
	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/client/msgsync"
	"github.com/dmitrijs2005/chatsync/internal/client/presence"
	"github.com/dmitrijs2005/chatsync/internal/client/roster"
	"github.com/dmitrijs2005/chatsync/internal/client/services"
	"github.com/dmitrijs2005/chatsync/internal/client/session"
	"github.com/dmitrijs2005/chatsync/internal/client/userchats"
	"github.com/dmitrijs2005/chatsync/internal/filex"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
	"github.com/dmitrijs2005/chatsync/internal/remote/backend"
	"github.com/dmitrijs2005/chatsync/internal/remote/grpcstore"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   remote.Store
	closeFn func() error
	dataDir string

	loop    *dispatch.Loop
	sess    *session.Session
	local   *localstate.Store
	tracker *presence.Tracker

	authService services.AuthService
	chatService services.ChatService

	reader *bufio.Reader
	out    io.Writer
	outMu  sync.Mutex

	mu   sync.Mutex
	Mode Mode

	// last listings, so commands can refer to entries by number
	lastChats []models.Chat
}

// openStore dials the relay, or opens the embedded backend when one is
// configured.
func openStore(ctx context.Context, c *config.Config, l logging.Logger) (remote.Store, func() error, error) {
	if c.EmbeddedStore != "" {
		s, err := backend.Open(ctx, c.EmbeddedStore, l)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	client, err := grpcstore.NewClient(c.StoreAddr, c.StoreToken, l)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewText(os.Stderr, c.LogLevel)

	dataDir, err := filex.EnsureDir(c.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	store, closeFn, err := openStore(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	local, err := localstate.New(dataDir, logger)
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	share, err := files.NewLocalShare(filepath.Join(dataDir, "shared"), logger)
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	downloads, err := files.NewDownloadLog(filepath.Join(dataDir, "downloads.log"), logger)
	if err != nil {
		_ = closeFn()
		return nil, err
	}

	a := &App{
		config:  c,
		logger:  logger,
		store:   store,
		closeFn: closeFn,
		dataDir: dataDir,
		loop:    dispatch.New(logger),
		sess:    session.New(),
		local:   local,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}
	a.tracker = presence.NewTracker(store, c.RemoteTimeout, logger)

	var attacher files.Attacher = share
	if c.S3Bucket != "" {
		attacher = files.NewS3Uploader(files.S3Config{
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			Endpoint:  c.S3Endpoint,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
		})
	}

	index := userchats.New(store, logger)
	chats := roster.New(store, index, a.loop, a.sess, logger)
	engine := msgsync.New(store, a.loop, a.sess, logger, msgsync.Options{
		HistoryLimit: c.HistoryLimit,
		Timeout:      c.RemoteTimeout,
		Notifier:     a,
		Sink:         chats,
	})

	a.authService = services.NewAuthService(store, local, a.sess, a.tracker, logger)
	a.chatService = services.NewChatService(services.ChatDeps{
		Store:      store,
		Session:    a.sess,
		Roster:     chats,
		Resolver:   chatid.New(store, index, a.sess, logger),
		Engine:     engine,
		Attacher:   attacher,
		Downloader: files.NewDownloader(share, &http.Client{Timeout: 5 * time.Minute}, downloads, logger),
	}, logger)

	return a, nil
}

// setMode records the connectivity mode and reports whether it changed.
func (a *App) setMode(mode Mode) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Mode == mode {
		return false
	}
	a.Mode = mode
	return true
}

func (a *App) mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mode
}

// Run restores the saved user, serves the REPL until the user exits, then
// marks the user Offline and releases the store.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.loop.Run(ctx)

	if u, ok := a.authService.Restore(ctx); ok {
		a.printf("Welcome back, %s\n", u.Name())
		a.afterSignIn(ctx)
	}

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	a.Root(ctx)
	a.shutdown(ctx)
}

func (a *App) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.RemoteTimeout)
	defer cancel()

	a.chatService.Shutdown(ctx)
	if id := a.sess.UserID(); id != "" {
		a.tracker.SetOffline(ctx, id)
	}
	if err := a.closeFn(); err != nil {
		a.logger.Warn(ctx, "store close failed", "error", err)
	}
}

func (a *App) isLoggedIn() bool {
	return a.sess.UserID() != ""
}

// afterSignIn loads the chat list of the signed-in user.
func (a *App) afterSignIn(ctx context.Context) {
	if err := a.chatService.LoadChats(ctx); err != nil {
		a.report(err)
		return
	}
	chats, _ := a.chatService.Chats(ctx)
	unread := 0
	for _, c := range chats {
		unread += c.UnreadCount
	}
	a.printf("%d chats loaded, %d unread messages\n", len(chats), unread)
}

// StartOnlineStatusWatcher pings the store every interval. When the store
// becomes reachable again the signed-in user's presence is re-asserted.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := a.authService.Ping(pingCtx)
	cancel()

	if err != nil {
		if a.setMode(ModeOffline) {
			a.logger.Warn(ctx, "store unreachable", "error", err)
			a.printf("Connection lost, working offline\n")
		}
		return
	}
	if !a.setMode(ModeOnline) {
		return
	}
	a.printf("Connected\n")
	if u, ok := a.sess.User(); ok && u.Status != models.StatusDoNotDisturb {
		a.tracker.SetOnline(ctx, u.ID)
	}
}
