package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"legato/pkg/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a sound, list or player state does not exist.
var ErrNotFound = errors.New("not found")

// Database wraps a *sql.DB providing higher-level helper methods for
// interacting with the application's persistent store. It is safe for
// concurrent use because the underlying *sql.DB is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger logrus.FieldLogger

	// Prepared statements for the hot paths
	upsertSoundStmt  *sql.Stmt
	getSoundStmt     *sql.Stmt
	soundExistsStmt  *sql.Stmt
	removeSoundStmt  *sql.Stmt
	searchSoundsStmt *sql.Stmt
	loadStateStmt    *sql.Stmt
	saveStateStmt    *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. It also applies lightweight
// performance-oriented pragmas (WAL, cache sizing). Caller should Close() it
// when finished.
func NewDatabase(dbPath string, logger logrus.FieldLogger) (*Database, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works better with few connections
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA auto_vacuum=INCREMENTAL;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// createTables creates tables and indices if they do not already exist, then
// executes any migrations. This is idempotent and safe to call multiple times.
func (db *Database) createTables() error {
	soundsTable := `
	CREATE TABLE IF NOT EXISTS sounds (
		hash TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		image TEXT,
		author_name TEXT,
		author_hash TEXT,
		play_url TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'track',
		duration INTEGER DEFAULT 0,
		file_path TEXT NOT NULL UNIQUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	listsTable := `
	CREATE TABLE IF NOT EXISTS lists (
		hash TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	// Junction table keeping the order of sounds inside a list
	listSoundsTable := `
	CREATE TABLE IF NOT EXISTS list_sounds (
		list_hash TEXT,
		sound_hash TEXT,
		position INTEGER,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (list_hash) REFERENCES lists(hash) ON DELETE CASCADE,
		FOREIGN KEY (sound_hash) REFERENCES sounds(hash) ON DELETE CASCADE,
		PRIMARY KEY (list_hash, sound_hash)
	);`

	playerStatesTable := `
	CREATE TABLE IF NOT EXISTS player_states (
		key TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_sounds_search ON sounds(title, author_name);",
		"CREATE INDEX IF NOT EXISTS idx_sounds_file_path ON sounds(file_path);",
		"CREATE INDEX IF NOT EXISTS idx_list_sounds_list ON list_sounds(list_hash);",
		"CREATE INDEX IF NOT EXISTS idx_list_sounds_position ON list_sounds(list_hash, position);",
	}

	tables := []string{soundsTable, listsTable, listSoundsTable, playerStatesTable}
	for _, table := range tables {
		if _, err := db.conn.Exec(table); err != nil {
			return err
		}
	}

	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}

	return db.runMigrations()
}

// runMigrations performs incremental schema updates in-place. Each migration
// should be idempotent and safe to re-run; keep them lightweight.
func (db *Database) runMigrations() error {
	// Migration 1: lists gained a description
	exists, err := db.columnExists("lists", "description")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := db.conn.Exec("ALTER TABLE lists ADD COLUMN description TEXT"); err != nil {
			return err
		}
		db.logger.Info("Added description column to lists table")
	}

	return nil
}

func (db *Database) columnExists(table, column string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info(?)
		WHERE name = ?`, table, column).Scan(&exists)
	return exists, err
}

// prepareStatements prepares commonly used SQL statements for better performance
func (db *Database) prepareStatements() error {
	var err error

	db.upsertSoundStmt, err = db.conn.Prepare(`
		INSERT INTO sounds (hash, title, image, author_name, author_hash, play_url, type, duration, file_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			title=excluded.title,
			image=excluded.image,
			author_name=excluded.author_name,
			author_hash=excluded.author_hash,
			play_url=excluded.play_url,
			type=excluded.type,
			duration=excluded.duration,
			file_path=excluded.file_path`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert sound statement: %w", err)
	}

	db.getSoundStmt, err = db.conn.Prepare(`
		SELECT ` + soundColumns + ` FROM sounds WHERE hash = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get sound statement: %w", err)
	}

	db.soundExistsStmt, err = db.conn.Prepare(`
		SELECT COUNT(*) FROM sounds WHERE file_path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare sound exists statement: %w", err)
	}

	db.removeSoundStmt, err = db.conn.Prepare(`
		DELETE FROM sounds WHERE file_path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare remove sound statement: %w", err)
	}

	db.searchSoundsStmt, err = db.conn.Prepare(`
		SELECT ` + soundColumns + `
		FROM sounds
		WHERE title LIKE ? OR author_name LIKE ?
		ORDER BY author_name, title`)
	if err != nil {
		return fmt.Errorf("failed to prepare search sounds statement: %w", err)
	}

	db.loadStateStmt, err = db.conn.Prepare(`
		SELECT data FROM player_states WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare load state statement: %w", err)
	}

	db.saveStateStmt, err = db.conn.Prepare(`
		INSERT INTO player_states (key, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare save state statement: %w", err)
	}

	return nil
}

const soundColumns = "hash, title, COALESCE(image, ''), COALESCE(author_name, ''), COALESCE(author_hash, ''), play_url, type, duration, file_path"

// InsertSound inserts a sound or updates the existing row with the same hash.
func (db *Database) InsertSound(sound models.Sound) error {
	if sound.Hash == "" {
		return fmt.Errorf("sound hash is required")
	}
	if sound.Type == "" {
		sound.Type = models.SoundTrack
	}
	_, err := db.upsertSoundStmt.Exec(
		sound.Hash, sound.Title, sound.Image, sound.AuthorName, sound.AuthorHash,
		sound.PlayURL, string(sound.Type), sound.Duration, sound.FilePath)
	if err != nil {
		db.logger.WithError(err).WithField("file_path", sound.FilePath).Error("Failed to upsert sound")
	}
	return err
}

// GetSound returns a single sound by its hash.
func (db *Database) GetSound(hash string) (*models.Sound, error) {
	sound, err := scanSound(db.getSoundStmt.QueryRow(hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sound %s: %w", hash, ErrNotFound)
		}
		db.logger.WithError(err).WithField("hash", hash).Error("Failed to get sound")
		return nil, err
	}
	return &sound, nil
}

// GetAllSounds returns all sounds ordered by author and title.
func (db *Database) GetAllSounds() ([]models.Sound, error) {
	rows, err := db.conn.Query(`
		SELECT ` + soundColumns + `
		FROM sounds
		ORDER BY author_name, title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSoundRows(rows)
}

// SearchSounds performs a simple LIKE-based search over title and author.
func (db *Database) SearchSounds(query string) ([]models.Sound, error) {
	searchQuery := "%" + query + "%"
	rows, err := db.searchSoundsStmt.Query(searchQuery, searchQuery)
	if err != nil {
		db.logger.WithError(err).WithField("query", query).Error("Failed to search sounds")
		return nil, err
	}
	defer rows.Close()
	return scanSoundRows(rows)
}

// SoundExists returns true if a sound exists with the given file path.
func (db *Database) SoundExists(filePath string) (bool, error) {
	var count int
	if err := db.soundExistsStmt.QueryRow(filePath).Scan(&count); err != nil {
		db.logger.WithError(err).WithField("file_path", filePath).Error("Failed to check if sound exists")
		return false, err
	}
	return count > 0, nil
}

// RemoveSoundByPath deletes a sound row identified by its file path.
// Lists lose the sound through the cascade.
func (db *Database) RemoveSoundByPath(filePath string) error {
	_, err := db.removeSoundStmt.Exec(filePath)
	if err != nil {
		db.logger.WithError(err).WithField("file_path", filePath).Error("Failed to remove sound by path")
	}
	return err
}

// CreateList inserts a new, empty list and returns it.
func (db *Database) CreateList(name, description string) (*models.List, error) {
	list := &models.List{
		Hash:        uuid.NewString(),
		Name:        name,
		Description: description,
		Sounds:      []models.Sound{},
	}
	_, err := db.conn.Exec(`
		INSERT INTO lists (hash, name, description)
		VALUES (?, ?, ?)`, list.Hash, name, description)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// GetList returns a list with its sounds in stored order.
func (db *Database) GetList(hash string) (*models.List, error) {
	var list models.List
	var description sql.NullString
	err := db.conn.QueryRow(`
		SELECT hash, name, description FROM lists WHERE hash = ?`, hash).
		Scan(&list.Hash, &list.Name, &description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("list %s: %w", hash, ErrNotFound)
		}
		return nil, err
	}
	list.Description = description.String

	rows, err := db.conn.Query(`
		SELECT s.hash, s.title, COALESCE(s.image, ''), COALESCE(s.author_name, ''), COALESCE(s.author_hash, ''),
			s.play_url, s.type, s.duration, s.file_path
		FROM sounds s
		JOIN list_sounds ls ON s.hash = ls.sound_hash
		WHERE ls.list_hash = ?
		ORDER BY ls.position`, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list.Sounds, err = scanSoundRows(rows)
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// ListSummary is a list without its sounds.
type ListSummary struct {
	Hash        string    `json:"hash"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SoundCount  int       `json:"soundCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// GetAllLists returns all lists along with derived sound counts.
func (db *Database) GetAllLists() ([]ListSummary, error) {
	rows, err := db.conn.Query(`
		SELECT l.hash, l.name, COALESCE(l.description, ''), l.created_at,
			   COALESCE(COUNT(ls.sound_hash), 0) as sound_count
		FROM lists l
		LEFT JOIN list_sounds ls ON l.hash = ls.list_hash
		GROUP BY l.hash, l.name, l.description, l.created_at
		ORDER BY l.created_at DESC, l.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lists := []ListSummary{}
	for rows.Next() {
		var l ListSummary
		if err := rows.Scan(&l.Hash, &l.Name, &l.Description, &l.CreatedAt, &l.SoundCount); err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// AddSoundToList appends a sound to the end of a list (if not already present).
func (db *Database) AddSoundToList(listHash, soundHash string) error {
	var maxPosition sql.NullInt64
	err := db.conn.QueryRow(`
		SELECT MAX(position) FROM list_sounds WHERE list_hash = ?`,
		listHash).Scan(&maxPosition)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	position := 1
	if maxPosition.Valid {
		position = int(maxPosition.Int64) + 1
	}

	_, err = db.conn.Exec(`
		INSERT INTO list_sounds (list_hash, sound_hash, position)
		VALUES (?, ?, ?)
		ON CONFLICT(list_hash, sound_hash) DO NOTHING`,
		listHash, soundHash, position)
	return err
}

// RemoveSoundFromList removes a specific sound from the given list.
func (db *Database) RemoveSoundFromList(listHash, soundHash string) error {
	_, err := db.conn.Exec(`
		DELETE FROM list_sounds
		WHERE list_hash = ? AND sound_hash = ?`,
		listHash, soundHash)
	return err
}

// DeleteList deletes the list and any list_sounds entries referencing it.
func (db *Database) DeleteList(hash string) error {
	result, err := db.conn.Exec("DELETE FROM lists WHERE hash = ?", hash)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("list %s: %w", hash, ErrNotFound)
	}
	return nil
}

// LoadPlayerState returns the serialized player state stored under key.
func (db *Database) LoadPlayerState(key string) ([]byte, error) {
	var data string
	if err := db.loadStateStmt.QueryRow(key).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("player state %s: %w", key, ErrNotFound)
		}
		return nil, err
	}
	return []byte(data), nil
}

// SavePlayerState stores serialized player state under key, replacing any previous value.
func (db *Database) SavePlayerState(key string, data []byte) error {
	if _, err := db.saveStateStmt.Exec(key, string(data)); err != nil {
		db.logger.WithError(err).WithField("key", key).Error("Failed to save player state")
		return err
	}
	return nil
}

// DeletePlayerState removes the player state stored under key.
func (db *Database) DeletePlayerState(key string) error {
	_, err := db.conn.Exec("DELETE FROM player_states WHERE key = ?", key)
	return err
}

// Close closes the underlying database connection and prepared statements.
func (db *Database) Close() error {
	statements := []*sql.Stmt{
		db.upsertSoundStmt,
		db.getSoundStmt,
		db.soundExistsStmt,
		db.removeSoundStmt,
		db.searchSoundsStmt,
		db.loadStateStmt,
		db.saveStateStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				db.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSound(row rowScanner) (models.Sound, error) {
	var sound models.Sound
	var soundType string
	err := row.Scan(&sound.Hash, &sound.Title, &sound.Image, &sound.AuthorName,
		&sound.AuthorHash, &sound.PlayURL, &soundType, &sound.Duration, &sound.FilePath)
	sound.Type = models.SoundType(soundType)
	return sound, err
}

// scanSoundRows scans sound result sets into a slice. Callers must have
// already deferred rows.Close().
func scanSoundRows(rows *sql.Rows) ([]models.Sound, error) {
	sounds := []models.Sound{}
	for rows.Next() {
		sound, err := scanSound(rows)
		if err != nil {
			return nil, err
		}
		sounds = append(sounds, sound)
	}
	return sounds, rows.Err()
}
