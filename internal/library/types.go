// Package library indexes the playback engine's music database into the
// local store and keeps the derived album, artist and genre tables in sync.
package library

import (
	"context"
	"errors"

	"github.com/fermata-audio/fermata/internal/store"
)

// Common errors
var (
	// ErrScanInProgress indicates a scan is already running
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrPermissionDenied indicates the engine refused access to its database
	ErrPermissionDenied = errors.New("permission denied")
)

// Catalog is the read contract with the playback engine's music database.
// Implementations return songs already filtered to playable audio longer
// than 30 seconds, ordered by title.
type Catalog interface {
	// Songs returns every playable song in the catalog.
	Songs(ctx context.Context) ([]store.Song, error)
	// Genres returns the distinct genre names in the catalog.
	Genres(ctx context.Context) ([]CatalogGenre, error)
	// GenreSongIDs returns the ids of songs carrying the given genre name.
	GenreSongIDs(ctx context.Context, name string) ([]int64, error)
}

// CatalogGenre is a genre as known to the engine catalog.
type CatalogGenre struct {
	ID   int64
	Name string
}

// Progress is a snapshot of the current scan state.
type Progress struct {
	Scanning bool `json:"scanning"`
	Scanned  int  `json:"scanned"`
	Total    int  `json:"total"`
}

// ArtLookup resolves remote album art URLs.
type ArtLookup interface {
	AlbumArtURL(ctx context.Context, artist, album string) (string, error)
}

// ArtProber checks for art embedded in local files.
type ArtProber interface {
	ReadPicture(uri string) ([]byte, error)
}

// Connectivity reports whether an unmetered network is available.
type Connectivity interface {
	Unmetered() bool
}
