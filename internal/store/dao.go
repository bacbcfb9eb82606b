package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DAO provides data access operations for the library store.
type DAO struct {
	db *DB
}

// NewDAO creates a new DAO instance.
func NewDAO(db *DB) *DAO {
	return &DAO{db: db}
}

// --- Song Operations ---

// UpsertSongs writes a batch of songs in a single transaction.
func (dao *DAO) UpsertSongs(songs []Song) error {
	if len(songs) == 0 {
		return nil
	}

	tx, err := dao.db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO songs (id, title, artist, album, album_id, artist_id, duration_ms,
			path, track_number, year, genre, date_added, album_art_uri, folder_path, size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, artist = excluded.artist, album = excluded.album,
			album_id = excluded.album_id, artist_id = excluded.artist_id,
			duration_ms = excluded.duration_ms, path = excluded.path,
			track_number = excluded.track_number, year = excluded.year,
			genre = excluded.genre,
			date_added = CASE WHEN songs.date_added > 0 THEN songs.date_added ELSE excluded.date_added END,
			album_art_uri = COALESCE(excluded.album_art_uri, songs.album_art_uri),
			folder_path = excluded.folder_path, size = excluded.size
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range songs {
		var artURI interface{}
		if s.AlbumArtURI != "" {
			artURI = s.AlbumArtURI
		}
		if _, err := stmt.Exec(
			s.ID, s.Title, s.Artist, s.Album, s.AlbumID, s.ArtistID, s.DurationMs,
			s.Path, s.TrackNumber, s.Year, s.Genre, s.DateAdded, artURI, s.FolderPath, s.Size,
		); err != nil {
			return fmt.Errorf("failed to upsert song %q: %w", s.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit songs: %w", err)
	}

	dao.db.notifyChanged()
	return nil
}

// UpsertAlbums writes a batch of albums in a single transaction.
func (dao *DAO) UpsertAlbums(albums []Album) error {
	if len(albums) == 0 {
		return nil
	}

	tx, err := dao.db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO albums (id, title, artist, artist_id, year, art_uri, song_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, artist = excluded.artist, artist_id = excluded.artist_id,
			year = excluded.year,
			art_uri = COALESCE(excluded.art_uri, albums.art_uri),
			song_count = excluded.song_count
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range albums {
		var artURI interface{}
		if a.ArtURI != "" {
			artURI = a.ArtURI
		}
		if _, err := stmt.Exec(a.ID, a.Title, a.Artist, a.ArtistID, a.Year, artURI, a.SongCount); err != nil {
			return fmt.Errorf("failed to upsert album %q: %w", a.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit albums: %w", err)
	}

	dao.db.notifyChanged()
	return nil
}

// UpsertArtists writes a batch of artists in a single transaction.
func (dao *DAO) UpsertArtists(artists []Artist) error {
	if len(artists) == 0 {
		return nil
	}

	tx, err := dao.db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO artists (id, name, album_count, song_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, album_count = excluded.album_count,
			song_count = excluded.song_count
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range artists {
		if _, err := stmt.Exec(a.ID, a.Name, a.AlbumCount, a.SongCount); err != nil {
			return fmt.Errorf("failed to upsert artist %q: %w", a.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit artists: %w", err)
	}

	dao.db.notifyChanged()
	return nil
}

// UpsertGenres writes a batch of genres in a single transaction.
func (dao *DAO) UpsertGenres(genres []Genre) error {
	if len(genres) == 0 {
		return nil
	}

	tx, err := dao.db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO genres (id, name, song_count)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, song_count = excluded.song_count
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, g := range genres {
		if _, err := stmt.Exec(g.ID, g.Name, g.SongCount); err != nil {
			return fmt.Errorf("failed to upsert genre %q: %w", g.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit genres: %w", err)
	}

	dao.db.notifyChanged()
	return nil
}

// --- Orphan Removal ---

// DeleteSongsNotIn removes songs whose IDs are absent from the given set.
// An empty set is a no-op: a failed scan must never wipe the library.
func (dao *DAO) DeleteSongsNotIn(ids []int64) error {
	return dao.deleteNotIn("songs", "id", ids)
}

// DeleteAlbumsNotIn removes albums whose IDs are absent from the given set.
func (dao *DAO) DeleteAlbumsNotIn(ids []int64) error {
	return dao.deleteNotIn("albums", "id", ids)
}

// DeleteArtistsNotIn removes artists whose IDs are absent from the given set.
func (dao *DAO) DeleteArtistsNotIn(ids []int64) error {
	return dao.deleteNotIn("artists", "id", ids)
}

// DeleteGenresNotIn removes genres whose IDs are absent from the given set.
func (dao *DAO) DeleteGenresNotIn(ids []int64) error {
	return dao.deleteNotIn("genres", "id", ids)
}

// DeleteAllGenres clears the genres table.
func (dao *DAO) DeleteAllGenres() error {
	db := dao.db.DB()
	if db == nil {
		return fmt.Errorf("database not open")
	}

	res, err := db.Exec("DELETE FROM genres")
	if err != nil {
		return fmt.Errorf("failed to clear genres: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		dao.db.notifyChanged()
	}
	return nil
}

func (dao *DAO) deleteNotIn(table, column string, ids []int64) error {
	if len(ids) == 0 {
		log.Debug().Str("table", table).Msg("Skipping orphan removal for empty id set")
		return nil
	}

	db := dao.db.DB()
	if db == nil {
		return fmt.Errorf("database not open")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := db.Exec(
		fmt.Sprintf("DELETE FROM %s WHERE %s NOT IN (%s)", table, column, placeholders),
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to delete orphans from %s: %w", table, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		log.Debug().Str("table", table).Int64("removed", n).Msg("Removed orphaned rows")
		dao.db.notifyChanged()
	}
	return nil
}

// --- Album Art ---

// SetAlbumArt stores an art URI on an album and all of its songs.
func (dao *DAO) SetAlbumArt(albumID int64, uri string) error {
	tx, err := dao.db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE albums SET art_uri = ? WHERE id = ?", uri, albumID); err != nil {
		return fmt.Errorf("failed to set album art: %w", err)
	}
	if _, err := tx.Exec("UPDATE songs SET album_art_uri = ? WHERE album_id = ?", uri, albumID); err != nil {
		return fmt.Errorf("failed to set song art: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	dao.db.notifyChanged()
	return nil
}

// AlbumsWithoutArt returns albums that have no art URI yet.
func (dao *DAO) AlbumsWithoutArt() ([]Album, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	rows, err := db.Query(`
		SELECT id, title, artist, artist_id, year, art_uri, song_count
		FROM albums WHERE art_uri IS NULL OR art_uri = ''
		ORDER BY title COLLATE NOCASE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAlbums(rows)
}

// --- Queries ---

// AllSongs returns every song ordered by title.
func (dao *DAO) AllSongs() ([]Song, error) {
	return dao.querySongs("ORDER BY title COLLATE NOCASE")
}

// SongByID returns a single song, or nil when absent.
func (dao *DAO) SongByID(id int64) (*Song, error) {
	songs, err := dao.querySongs("WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(songs) == 0 {
		return nil, nil
	}
	return &songs[0], nil
}

// SongsByAlbum returns the songs of an album in track order.
func (dao *DAO) SongsByAlbum(albumID int64) ([]Song, error) {
	return dao.querySongs("WHERE album_id = ? ORDER BY track_number, title COLLATE NOCASE", albumID)
}

// SongsByArtist returns the songs of an artist ordered by title.
func (dao *DAO) SongsByArtist(artistID int64) ([]Song, error) {
	return dao.querySongs("WHERE artist_id = ? ORDER BY title COLLATE NOCASE", artistID)
}

// SongsByGenre returns the songs tagged with the given genre name.
func (dao *DAO) SongsByGenre(name string) ([]Song, error) {
	return dao.querySongs("WHERE genre = ? ORDER BY title COLLATE NOCASE", name)
}

// SearchSongs returns songs whose title, artist or album match the query.
func (dao *DAO) SearchSongs(query string, limit int) ([]Song, error) {
	if limit <= 0 {
		limit = 100
	}
	term := "%" + query + "%"
	return dao.querySongs(`
		WHERE title LIKE ? COLLATE NOCASE
			OR artist LIKE ? COLLATE NOCASE
			OR album LIKE ? COLLATE NOCASE
		ORDER BY title COLLATE NOCASE LIMIT ?
	`, term, term, term, limit)
}

func (dao *DAO) querySongs(clause string, args ...interface{}) ([]Song, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	rows, err := db.Query(`
		SELECT id, title, artist, album, album_id, artist_id, duration_ms,
			path, track_number, year, genre, date_added, album_art_uri, folder_path, size
		FROM songs `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var songs []Song
	for rows.Next() {
		var s Song
		var artURI sql.NullString
		if err := rows.Scan(
			&s.ID, &s.Title, &s.Artist, &s.Album, &s.AlbumID, &s.ArtistID, &s.DurationMs,
			&s.Path, &s.TrackNumber, &s.Year, &s.Genre, &s.DateAdded, &artURI, &s.FolderPath, &s.Size,
		); err != nil {
			return nil, err
		}
		if artURI.Valid {
			s.AlbumArtURI = artURI.String
		}
		songs = append(songs, s)
	}
	return songs, rows.Err()
}

// Albums returns every album ordered by title.
func (dao *DAO) Albums() ([]Album, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	rows, err := db.Query(`
		SELECT id, title, artist, artist_id, year, art_uri, song_count
		FROM albums ORDER BY title COLLATE NOCASE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAlbums(rows)
}

func scanAlbums(rows *sql.Rows) ([]Album, error) {
	var albums []Album
	for rows.Next() {
		var a Album
		var artURI sql.NullString
		if err := rows.Scan(&a.ID, &a.Title, &a.Artist, &a.ArtistID, &a.Year, &artURI, &a.SongCount); err != nil {
			return nil, err
		}
		if artURI.Valid {
			a.ArtURI = artURI.String
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// Artists returns every artist ordered by name.
func (dao *DAO) Artists() ([]Artist, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	rows, err := db.Query(`
		SELECT id, name, album_count, song_count
		FROM artists ORDER BY name COLLATE NOCASE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artists []Artist
	for rows.Next() {
		var a Artist
		if err := rows.Scan(&a.ID, &a.Name, &a.AlbumCount, &a.SongCount); err != nil {
			return nil, err
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// Genres returns every genre ordered by name.
func (dao *DAO) Genres() ([]Genre, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	rows, err := db.Query(`
		SELECT id, name, song_count
		FROM genres ORDER BY name COLLATE NOCASE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var genres []Genre
	for rows.Next() {
		var g Genre
		if err := rows.Scan(&g.ID, &g.Name, &g.SongCount); err != nil {
			return nil, err
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

// --- Blacklist Operations ---

// BlacklistedFolders returns the folder paths excluded from scanning.
func (dao *DAO) BlacklistedFolders() ([]string, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	rows, err := db.Query("SELECT path FROM blacklisted_folders ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// AddBlacklistedFolder excludes a folder path from future scans.
func (dao *DAO) AddBlacklistedFolder(path string) error {
	db := dao.db.DB()
	if db == nil {
		return fmt.Errorf("database not open")
	}

	_, err := db.Exec("INSERT OR IGNORE INTO blacklisted_folders (path) VALUES (?)", path)
	return err
}

// RemoveBlacklistedFolder re-admits a folder path for scanning.
func (dao *DAO) RemoveBlacklistedFolder(path string) error {
	db := dao.db.DB()
	if db == nil {
		return fmt.Errorf("database not open")
	}

	_, err := db.Exec("DELETE FROM blacklisted_folders WHERE path = ?", path)
	return err
}

// --- Playlist Operations ---

// InsertPlaylist creates a new playlist.
func (dao *DAO) InsertPlaylist(p Playlist) error {
	db := dao.db.DB()
	if db == nil {
		return fmt.Errorf("database not open")
	}

	_, err := db.Exec(
		"INSERT INTO playlists (id, name, created_at) VALUES (?, ?, ?)",
		p.ID, p.Name, p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}

	dao.db.notifyChanged()
	return nil
}

// DeletePlaylist removes a playlist and its membership rows.
func (dao *DAO) DeletePlaylist(id string) error {
	tx, err := dao.db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM playlist_songs WHERE playlist_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM playlists WHERE id = ?", id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	dao.db.notifyChanged()
	return nil
}

// Playlists returns all playlists, newest first.
func (dao *DAO) Playlists() ([]Playlist, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	rows, err := db.Query("SELECT id, name, created_at FROM playlists ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []Playlist
	for rows.Next() {
		var p Playlist
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		lists = append(lists, p)
	}
	return lists, rows.Err()
}

// AddPlaylistSong appends a song to a playlist at the next free position.
func (dao *DAO) AddPlaylistSong(playlistID string, songID int64) error {
	tx, err := dao.db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var maxPos sql.NullInt64
	if err := tx.QueryRow(
		"SELECT MAX(position) FROM playlist_songs WHERE playlist_id = ?", playlistID,
	).Scan(&maxPos); err != nil {
		return err
	}

	pos := int64(0)
	if maxPos.Valid {
		pos = maxPos.Int64 + 1
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO playlist_songs (playlist_id, song_id, position) VALUES (?, ?, ?)",
		playlistID, songID, pos,
	); err != nil {
		return fmt.Errorf("failed to add playlist song: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	dao.db.notifyChanged()
	return nil
}

// RemovePlaylistSong removes a song from a playlist.
func (dao *DAO) RemovePlaylistSong(playlistID string, songID int64) error {
	db := dao.db.DB()
	if db == nil {
		return fmt.Errorf("database not open")
	}

	_, err := db.Exec(
		"DELETE FROM playlist_songs WHERE playlist_id = ? AND song_id = ?",
		playlistID, songID,
	)
	if err != nil {
		return err
	}

	dao.db.notifyChanged()
	return nil
}

// PlaylistSongs returns a playlist's songs in position order.
func (dao *DAO) PlaylistSongs(playlistID string) ([]Song, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	rows, err := db.Query(`
		SELECT s.id, s.title, s.artist, s.album, s.album_id, s.artist_id, s.duration_ms,
			s.path, s.track_number, s.year, s.genre, s.date_added, s.album_art_uri,
			s.folder_path, s.size
		FROM playlist_songs ps
		JOIN songs s ON s.id = ps.song_id
		WHERE ps.playlist_id = ?
		ORDER BY ps.position
	`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var songs []Song
	for rows.Next() {
		var s Song
		var artURI sql.NullString
		if err := rows.Scan(
			&s.ID, &s.Title, &s.Artist, &s.Album, &s.AlbumID, &s.ArtistID, &s.DurationMs,
			&s.Path, &s.TrackNumber, &s.Year, &s.Genre, &s.DateAdded, &artURI, &s.FolderPath, &s.Size,
		); err != nil {
			return nil, err
		}
		if artURI.Valid {
			s.AlbumArtURI = artURI.String
		}
		songs = append(songs, s)
	}
	return songs, rows.Err()
}
