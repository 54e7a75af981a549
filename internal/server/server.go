// Package server exposes the library, the lists and per-session players over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"legato/internal/auth"
	"legato/internal/cache"
	"legato/internal/config"
	"legato/internal/database"
	"legato/internal/library"
	"legato/internal/metadata"
	"legato/internal/ngrok"
	"legato/internal/session"
	"legato/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	listCacheTTL    = 15 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// Options carries what the server is built from. Tunnel may be nil.
type Options struct {
	Config   *config.Config
	DB       *database.Database
	Sessions *session.Manager
	Auth     *auth.Service
	Tunnel   *ngrok.Service
	Logger   logrus.FieldLogger
}

// MusicServer serves the HTTP API.
type MusicServer struct {
	cfg       *config.Config
	db        *database.Database
	extractor *metadata.Extractor
	scanner   *library.Scanner
	sessions  *session.Manager
	auth      *auth.Service
	tunnel    *ngrok.Service
	lists     *cache.Cache[*models.List]
	logger    logrus.FieldLogger
	started   time.Time
}

// NewMusicServer creates a server. Nothing is started until Run.
func NewMusicServer(opts Options) *MusicServer {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	extractor := metadata.NewExtractor(opts.Config.Music.SupportedFormats, logger)
	return &MusicServer{
		cfg:       opts.Config,
		db:        opts.DB,
		extractor: extractor,
		scanner:   library.NewScanner(opts.DB, extractor, opts.Config.Music.ScanWorkers, logger),
		sessions:  opts.Sessions,
		auth:      opts.Auth,
		tunnel:    opts.Tunnel,
		lists:     cache.New[*models.List](listCacheTTL, 5*time.Minute),
		logger:    logger,
		started:   time.Now(),
	}
}

// Scanner returns the library scanner the server adds sounds with.
func (ms *MusicServer) Scanner() *library.Scanner {
	return ms.scanner
}

// Handler returns the routed handler wrapped in middleware.
func (ms *MusicServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", ms.handleHealthCheck)

	mux.HandleFunc("POST /api/auth/login", ms.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", ms.handleLogout)
	mux.HandleFunc("POST /api/auth/register", ms.handleRegister)
	mux.HandleFunc("GET /api/auth/me", ms.handleMe)

	mux.HandleFunc("POST /api/sessions", ms.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", ms.handleListSessions)
	mux.HandleFunc("DELETE /api/sessions/{id}", ms.handleDeleteSession)

	mux.HandleFunc("GET /api/player/state", ms.handleGetPlayerState)
	mux.HandleFunc("POST /api/player/commands", ms.handlePlayerCommand)
	mux.HandleFunc("POST /api/player/sync", ms.handleSyncPlayerState)
	mux.HandleFunc("POST /api/player/times", ms.handlePlayerTimes)
	mux.HandleFunc("GET /api/player/events", ms.handlePlayerEvents)

	mux.HandleFunc("GET /api/sounds", ms.handleGetSounds)
	mux.HandleFunc("GET /api/sounds/{hash}", ms.handleGetSound)

	mux.HandleFunc("GET /api/lists", ms.handleGetLists)
	mux.HandleFunc("POST /api/lists", ms.handleCreateList)
	mux.HandleFunc("GET /api/lists/{hash}", ms.handleGetList)
	mux.HandleFunc("DELETE /api/lists/{hash}", ms.handleDeleteList)
	mux.HandleFunc("POST /api/lists/{hash}/sounds", ms.handleAddSoundToList)
	mux.HandleFunc("DELETE /api/lists/{hash}/sounds", ms.handleRemoveSoundFromList)
	mux.HandleFunc("POST /api/lists/{hash}/play", ms.handlePlayList)

	mux.HandleFunc("GET /stream/{hash}", ms.handleStreamSound)
	mux.HandleFunc("GET /artwork/{id}", ms.handleArtwork)
	mux.HandleFunc("POST /api/upload", ms.handleUploadSound)

	if info, err := os.Stat(ms.cfg.Server.StaticDir); err == nil && info.IsDir() {
		mux.Handle("GET /", http.FileServer(http.Dir(ms.cfg.Server.StaticDir)))
	}

	var h http.Handler = mux
	h = ms.authMiddleware(h)
	h = ms.corsMiddleware(h)
	h = ms.requestLoggingMiddleware(h)
	h = ms.panicRecoveryMiddleware(h)
	return h
}

// Run scans and watches the library, serves HTTP and opens the tunnel.
// It returns when ctx is done or the listener fails.
func (ms *MusicServer) Run(ctx context.Context) error {
	root := ms.cfg.Music.LibraryPath
	if ms.cfg.Music.ScanOnStartup {
		if _, err := ms.scanner.Scan(ctx, root); err != nil {
			ms.logger.WithError(err).WithField("root", root).Warn("Library scan failed")
		}
	} else {
		ms.logger.Info("Skipping library scan (disabled in config)")
	}

	if ms.cfg.Music.WatchForChanges {
		watcher := library.NewWatcher(ms.scanner, root, library.DefaultSettle)
		if err := watcher.Start(ctx); err != nil {
			ms.logger.WithError(err).Warn("Could not start file watcher")
		} else {
			defer watcher.Close()
		}
	}
	defer ms.lists.Close()

	listener, err := net.Listen("tcp", ms.cfg.GetAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ms.cfg.GetAddress(), err)
	}

	srv := &http.Server{
		Handler:           ms.Handler(),
		ReadHeaderTimeout: time.Duration(ms.cfg.Server.ReadTimeout) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	local := "http://" + listener.Addr().String()
	if err := ms.tunnel.Start(ctx, local); err != nil {
		ms.logger.WithError(err).Warn("Could not start ngrok tunnel")
	}
	defer ms.tunnel.Stop()

	ms.logger.WithFields(logrus.Fields{
		"address": local,
		"public":  ms.tunnel.PublicURL(),
		"auth":    ms.auth.IsEnabled(),
	}).Info("Legato server started")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	ms.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
