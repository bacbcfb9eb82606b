// Package store provides the SQLite-backed library store.
package store

import "time"

// Song is one audio file in the library.
type Song struct {
	ID          int64
	Title       string
	Artist      string
	Album       string
	AlbumID     int64
	ArtistID    int64
	DurationMs  int
	Path        string
	TrackNumber int
	Year        int
	Genre       string
	DateAdded   int64 // Unix seconds
	AlbumArtURI string
	FolderPath  string
	Size        int64
}

// Album aggregates the songs sharing an album tag.
type Album struct {
	ID        int64
	Title     string
	Artist    string
	ArtistID  int64
	Year      int
	ArtURI    string
	SongCount int
}

// Artist aggregates the songs sharing an artist tag.
type Artist struct {
	ID         int64
	Name       string
	AlbumCount int
	SongCount  int
}

// Genre is a named group of songs.
type Genre struct {
	ID        int64
	Name      string
	SongCount int
}

// Playlist is a user-created ordered list of songs.
type Playlist struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Stats summarizes the library contents.
type Stats struct {
	SongCount     int
	AlbumCount    int
	ArtistCount   int
	GenreCount    int
	PlaylistCount int
	SchemaVersion string
	LastScan      time.Time
}
