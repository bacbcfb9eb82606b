package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "1"

	// DefaultDBPath is the default path for the library database.
	DefaultDBPath = "data/library.db"
)

// DB represents the SQLite library database.
type DB struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string

	subMu sync.Mutex
	subs  []chan struct{}
}

// NewDB creates a new library database instance.
func NewDB(path string) *DB {
	if path == "" {
		path = DefaultDBPath
	}
	return &DB{
		path: path,
	}
}

// Open opens the database and initializes the schema.
func (d *DB) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", d.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open library database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d.db = db

	if err := d.initSchema(); err != nil {
		d.db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", d.path).Msg("Library database opened")
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		err := d.db.Close()
		d.db = nil
		return err
	}
	return nil
}

// Subscribe returns a channel that receives a signal whenever the library
// contents change. The channel has a buffer of one; coalesced notifications
// are fine since consumers re-read the store anyway.
func (d *DB) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)

	d.subMu.Lock()
	d.subs = append(d.subs, ch)
	d.subMu.Unlock()

	return ch
}

// notifyChanged signals all subscribers without blocking.
func (d *DB) notifyChanged() {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	for _, ch := range d.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// initSchema initializes the database schema.
func (d *DB) initSchema() error {
	currentVersion := d.getSchemaVersion()

	if currentVersion == "" {
		if err := d.createSchema(); err != nil {
			return err
		}
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}

	if currentVersion != CurrentSchemaVersion {
		log.Info().
			Str("current", currentVersion).
			Str("target", CurrentSchemaVersion).
			Msg("Migrating library schema")
		// Add migration logic here when schema changes
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}

	return nil
}

// createSchema creates all database tables.
func (d *DB) createSchema() error {
	schema := `
	-- Songs table
	CREATE TABLE IF NOT EXISTS songs (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		album TEXT NOT NULL,
		album_id INTEGER NOT NULL,
		artist_id INTEGER NOT NULL,
		duration_ms INTEGER DEFAULT 0,
		path TEXT NOT NULL UNIQUE,
		track_number INTEGER DEFAULT 0,
		year INTEGER DEFAULT 0,
		genre TEXT DEFAULT '',
		date_added INTEGER DEFAULT 0,
		album_art_uri TEXT,
		folder_path TEXT NOT NULL,
		size INTEGER DEFAULT 0
	);

	-- Albums table
	CREATE TABLE IF NOT EXISTS albums (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		artist_id INTEGER NOT NULL,
		year INTEGER DEFAULT 0,
		art_uri TEXT,
		song_count INTEGER DEFAULT 0
	);

	-- Artists table
	CREATE TABLE IF NOT EXISTS artists (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		album_count INTEGER DEFAULT 0,
		song_count INTEGER DEFAULT 0
	);

	-- Genres table
	CREATE TABLE IF NOT EXISTS genres (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		song_count INTEGER DEFAULT 0
	);

	-- User playlists
	CREATE TABLE IF NOT EXISTS playlists (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS playlist_songs (
		playlist_id TEXT NOT NULL,
		song_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (playlist_id, song_id),
		FOREIGN KEY (playlist_id) REFERENCES playlists(id) ON DELETE CASCADE
	);

	-- Folders excluded from scanning
	CREATE TABLE IF NOT EXISTS blacklisted_folders (
		path TEXT PRIMARY KEY
	);

	-- Store metadata
	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	-- Indexes for song queries
	CREATE INDEX IF NOT EXISTS idx_songs_album ON songs(album_id);
	CREATE INDEX IF NOT EXISTS idx_songs_artist ON songs(artist_id);
	CREATE INDEX IF NOT EXISTS idx_songs_folder ON songs(folder_path);
	CREATE INDEX IF NOT EXISTS idx_songs_title ON songs(title COLLATE NOCASE);

	-- Indexes for album and artist queries
	CREATE INDEX IF NOT EXISTS idx_albums_title ON albums(title COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_artists_name ON artists(name COLLATE NOCASE);

	-- Index for playlist ordering
	CREATE INDEX IF NOT EXISTS idx_playlist_songs_pos ON playlist_songs(playlist_id, position);
	`

	_, err := d.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info().Msg("Library schema created")
	return nil
}

// getSchemaVersion returns the current schema version.
func (d *DB) getSchemaVersion() string {
	var version string
	err := d.db.QueryRow("SELECT value FROM store_meta WHERE key = 'schema_version'").Scan(&version)
	if err != nil {
		return ""
	}
	return version
}

// setMeta sets a metadata value.
func (d *DB) setMeta(key, value string) error {
	_, err := d.db.Exec(`
		INSERT INTO store_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?
	`, key, value, time.Now().Format(time.RFC3339), value, time.Now().Format(time.RFC3339))
	return err
}

// getMeta gets a metadata value.
func (d *DB) getMeta(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM store_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// MarkScanComplete records the completion time of the last full scan.
func (d *DB) MarkScanComplete() error {
	return d.setMeta("last_scan", time.Now().Format(time.RFC3339))
}

// GetStats returns library statistics.
func (d *DB) GetStats() (*Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, fmt.Errorf("database not open")
	}

	stats := &Stats{}

	var err error
	err = d.db.QueryRow("SELECT COUNT(*) FROM songs").Scan(&stats.SongCount)
	if err != nil {
		return nil, err
	}

	err = d.db.QueryRow("SELECT COUNT(*) FROM albums").Scan(&stats.AlbumCount)
	if err != nil {
		return nil, err
	}

	err = d.db.QueryRow("SELECT COUNT(*) FROM artists").Scan(&stats.ArtistCount)
	if err != nil {
		return nil, err
	}

	err = d.db.QueryRow("SELECT COUNT(*) FROM genres").Scan(&stats.GenreCount)
	if err != nil {
		return nil, err
	}

	err = d.db.QueryRow("SELECT COUNT(*) FROM playlists").Scan(&stats.PlaylistCount)
	if err != nil {
		return nil, err
	}

	stats.SchemaVersion, _ = d.getMeta("schema_version")

	lastScan, _ := d.getMeta("last_scan")
	if lastScan != "" {
		stats.LastScan, _ = time.Parse(time.RFC3339, lastScan)
	}

	return stats, nil
}

// BeginTx starts a new transaction.
func (d *DB) BeginTx() (*sql.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil, fmt.Errorf("database not open")
	}

	return d.db.Begin()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer the DAO methods.
func (d *DB) DB() *sql.DB {
	return d.db
}
