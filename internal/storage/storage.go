// Package storage holds the backends that persist player state.
package storage

import (
	"fmt"
	"regexp"

	"legato/internal/config"
	"legato/internal/database"
	"legato/internal/player"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Open returns the player state storage selected by cfg, stored under key.
// Saves are debounced when cfg.SaveDebounceMS is positive.
func Open(cfg config.PlayerConfig, db *database.Database, key string, logger logrus.FieldLogger) (player.Storage, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var backend player.Storage
	switch cfg.Storage {
	case config.StorageMemory:
		backend = NewMemory()
	case config.StorageFile:
		backend = NewFile(afero.NewOsFs(), cfg.StateDir, key)
	case config.StorageSQLite:
		if db == nil {
			return nil, fmt.Errorf("sqlite player storage requires a database")
		}
		backend = NewSQLite(db, key)
	default:
		return nil, fmt.Errorf("unknown player storage %q", cfg.Storage)
	}

	if delay := cfg.SaveDebounce(); delay > 0 {
		backend = NewDebounced(backend, delay, logger.WithField("key", key))
	}
	return backend, nil
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// fileName maps a storage key to a file name that is safe on every platform.
func fileName(key string) string {
	return unsafeKeyChars.ReplaceAllString(key, "_") + ".json"
}

// Key returns the storage key of owner's player state.
func Key(prefix, owner string) string {
	return prefix + ":" + owner
}
