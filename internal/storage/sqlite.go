package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"legato/internal/database"
	"legato/internal/player"
)

// SQLite stores the state as a JSON row in the player_states table.
type SQLite struct {
	db  *database.Database
	key string
}

// NewSQLite creates a storage writing rows under key.
func NewSQLite(db *database.Database, key string) *SQLite {
	return &SQLite{db: db, key: key}
}

// Load reads the row for the key. A missing row is not an error.
func (s *SQLite) Load() (*player.State, error) {
	data, err := s.db.LoadPlayerState(s.key)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var state player.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode player state %s: %w", s.key, err)
	}
	return &state, nil
}

// Save upserts the row for the key.
func (s *SQLite) Save(state player.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode player state: %w", err)
	}
	return s.db.SavePlayerState(s.key, data)
}

// Delete removes the row for the key.
func (s *SQLite) Delete() error {
	return s.db.DeletePlayerState(s.key)
}
