package main

import (
	"fmt"
	"io"

	"legato/internal/config"
	"legato/internal/database"
	"legato/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// runner holds what every subcommand opens first.
type runner struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *database.Database

	logFile io.Closer
}

func newRunner(cmd *cli.Command) (*runner, error) {
	cfg, err := config.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	logger, logFile, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	db, err := database.NewDatabase(cfg.Database.Path, logger)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	return &runner{cfg: cfg, logger: logger, db: db, logFile: logFile}, nil
}

func (r *runner) Close() {
	if err := r.db.Close(); err != nil {
		r.logger.WithError(err).Warn("Error closing database")
	}
	r.logFile.Close()
}
