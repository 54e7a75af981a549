package main

import (
	"context"
	"os"

	"legato/internal/auth"
	"legato/internal/ngrok"
	"legato/internal/player"
	"legato/internal/server"
	"legato/internal/session"
	"legato/internal/storage"

	"github.com/samber/lo"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the music server",
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	r, err := newRunner(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	cfg, logger := r.cfg, r.logger
	if _, err := os.Stat(cfg.Music.LibraryPath); os.IsNotExist(err) {
		logger.WithField("library_path", cfg.Music.LibraryPath).
			Warn("Music directory does not exist, creating it")
		if err := os.MkdirAll(cfg.Music.LibraryPath, 0755); err != nil {
			return err
		}
	}

	sessions := session.NewManager(func(owner string) (player.Storage, error) {
		return storage.Open(cfg.Player, r.db, storage.Key(cfg.Player.StateKey, owner), logger)
	}, session.Config{
		Timeout:       cfg.Player.SessionTimeout(),
		TickInterval:  cfg.Player.TickInterval(),
		ServerClock:   cfg.Player.ServerClock,
		DefaultVolume: lo.ToPtr(cfg.Player.DefaultVolume),
		CommandRate:   cfg.Server.CommandRate,
		CommandBurst:  cfg.Server.CommandBurst,
	}, logger)
	sessions.Start(ctx)
	defer func() {
		if err := sessions.Close(); err != nil {
			logger.WithError(err).Warn("Error persisting player state")
		}
	}()

	authService, err := auth.NewService(cfg.Auth, logger)
	if err != nil {
		return err
	}
	defer authService.Close()

	tunnel, err := ngrok.NewService(cfg.Ngrok, cmd.String("env-file"), logger)
	if err != nil {
		return err
	}

	ms := server.NewMusicServer(server.Options{
		Config:   cfg,
		DB:       r.db,
		Sessions: sessions,
		Auth:     authService,
		Tunnel:   tunnel,
		Logger:   logger,
	})
	return ms.Run(ctx)
}
