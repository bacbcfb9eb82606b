package library

import (
	"context"
	"fmt"
	"hash/fnv"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fermata-audio/fermata/internal/store"
)

// minSongDurationMs filters out ringtones, notification sounds and other
// sub-30-second files that pollute the library.
const minSongDurationMs = 30000

// CatalogProvider is the slice of the MPD client the catalog adapter needs.
type CatalogProvider interface {
	ListAllInfo(uri string) ([]map[string]string, error)
	ListGenres() ([]string, error)
	FindGenre(genre string) ([]map[string]string, error)
}

// MPDCatalog adapts the MPD database to the Catalog contract. MPD has no
// stable numeric row ids, so song and genre ids are derived by hashing the
// file path or genre name; the hash is stable across scans as long as the
// file does not move.
type MPDCatalog struct {
	provider CatalogProvider
}

// NewMPDCatalog creates a catalog over the given MPD client.
func NewMPDCatalog(provider CatalogProvider) *MPDCatalog {
	return &MPDCatalog{provider: provider}
}

// Songs returns every playable song in the MPD database, filtered to audio
// longer than 30 seconds and ordered by title.
func (c *MPDCatalog) Songs(ctx context.Context) ([]store.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := c.provider.ListAllInfo("")
	if err != nil {
		return nil, mapCatalogErr(err)
	}

	var songs []store.Song
	for _, attrs := range entries {
		file := attrs["file"]
		if file == "" {
			continue
		}

		durationMs := parseDurationMs(attrs)
		if durationMs <= minSongDurationMs {
			continue
		}

		songs = append(songs, songFromAttrs(file, durationMs, attrs))
	}

	sort.Slice(songs, func(i, j int) bool {
		return strings.ToLower(songs[i].Title) < strings.ToLower(songs[j].Title)
	})

	return songs, nil
}

// Genres returns the distinct genre names in the MPD database.
func (c *MPDCatalog) Genres(ctx context.Context) ([]CatalogGenre, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, err := c.provider.ListGenres()
	if err != nil {
		return nil, mapCatalogErr(err)
	}

	genres := make([]CatalogGenre, 0, len(names))
	for _, name := range names {
		genres = append(genres, CatalogGenre{
			ID:   hashID("genre:" + name),
			Name: name,
		})
	}
	return genres, nil
}

// GenreSongIDs returns the ids of songs carrying the given genre name.
func (c *MPDCatalog) GenreSongIDs(ctx context.Context, name string) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := c.provider.FindGenre(name)
	if err != nil {
		return nil, mapCatalogErr(err)
	}

	var ids []int64
	for _, attrs := range entries {
		if file := attrs["file"]; file != "" {
			ids = append(ids, hashID(file))
		}
	}
	return ids, nil
}

// songFromAttrs maps one MPD database entry onto a store song.
func songFromAttrs(file string, durationMs int, attrs map[string]string) store.Song {
	title := attrs["Title"]
	if title == "" {
		title = path.Base(file)
	}

	artist := attrs["Artist"]
	albumArtist := attrs["AlbumArtist"]
	if albumArtist == "" {
		albumArtist = artist
	}
	album := attrs["Album"]

	trackNumber := 0
	if tr := attrs["Track"]; tr != "" {
		// Track may be "3" or "3/12"
		if idx := strings.Index(tr, "/"); idx > 0 {
			tr = tr[:idx]
		}
		trackNumber, _ = strconv.Atoi(tr)
	}

	year := 0
	if date := attrs["Date"]; len(date) >= 4 {
		year, _ = strconv.Atoi(date[:4])
	}

	dateAdded := int64(0)
	if lm := attrs["Last-Modified"]; lm != "" {
		if t, err := time.Parse(time.RFC3339, lm); err == nil {
			dateAdded = t.Unix()
		}
	}

	return store.Song{
		ID:          hashID(file),
		Title:       title,
		Artist:      artist,
		Album:       album,
		AlbumID:     hashID("album:" + albumArtist + "\x00" + album),
		ArtistID:    hashID("artist:" + artist),
		DurationMs:  durationMs,
		Path:        file,
		TrackNumber: trackNumber,
		Year:        year,
		Genre:       attrs["Genre"],
		DateAdded:   dateAdded,
		FolderPath:  path.Dir(file),
	}
}

// parseDurationMs extracts the song duration in milliseconds.
func parseDurationMs(attrs map[string]string) int {
	if d, err := strconv.ParseFloat(attrs["duration"], 64); err == nil {
		return int(d * 1000)
	}
	if t, err := strconv.Atoi(attrs["Time"]); err == nil {
		return t * 1000
	}
	return 0
}

// hashID derives a stable positive id from a string key using FNV-1a.
func hashID(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

// mapCatalogErr translates engine access failures into catalog errors.
func mapCatalogErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "permission denied") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return err
}
