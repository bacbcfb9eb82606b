package library

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fermata-audio/fermata/internal/prefs"
	"github.com/fermata-audio/fermata/internal/store"
)

// progressInterval is how many songs are folded between progress updates.
const progressInterval = 100

// Scanner reconciles the engine catalog into the library store.
// Exactly one scan runs at a time; concurrent calls fail fast.
type Scanner struct {
	catalog Catalog
	db      *store.DB
	dao     *store.DAO
	prefs   *prefs.Store

	// Optional collaborators for album art enrichment.
	art     ArtLookup
	prober  ArtProber
	network Connectivity

	running atomic.Bool

	mu        sync.RWMutex
	progress  Progress
	listeners []func(Progress)
}

// NewScanner creates a scanner over the given catalog and store.
func NewScanner(catalog Catalog, db *store.DB, dao *store.DAO, prefStore *prefs.Store) *Scanner {
	return &Scanner{
		catalog: catalog,
		db:      db,
		dao:     dao,
		prefs:   prefStore,
	}
}

// SetArtSources wires the optional album art collaborators: a remote lookup,
// a local embedded-art prober, and a connectivity check for the wifi policy.
func (s *Scanner) SetArtSources(art ArtLookup, prober ArtProber, network Connectivity) {
	s.art = art
	s.prober = prober
	s.network = network
}

// Progress returns a snapshot of the current scan state.
func (s *Scanner) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// OnProgress registers a listener invoked on every progress change.
func (s *Scanner) OnProgress(fn func(Progress)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Scanner) setProgress(p Progress) {
	s.mu.Lock()
	s.progress = p
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(p)
	}
}

// Scan performs a full reconciliation pass: fold the catalog into aggregate
// rows, batch-write them, rebuild genres, enrich album art and remove
// orphans. A second Scan while one is running returns ErrScanInProgress.
// Internal failures end the scan quietly: progress resets to idle, the cause
// is logged, and the store keeps whatever consistent state it had.
func (s *Scanner) Scan(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrScanInProgress
	}
	defer s.running.Store(false)
	defer s.setProgress(Progress{})

	start := time.Now()
	log.Info().Msg("Library scan started")
	s.setProgress(Progress{Scanning: true})

	blacklist, err := s.dao.BlacklistedFolders()
	if err != nil {
		log.Error().Err(err).Msg("Scan aborted: failed to load blacklist")
		return nil
	}

	songs, err := s.catalog.Songs(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			log.Warn().Err(err).Msg("Scan aborted: catalog access denied")
		} else {
			log.Error().Err(err).Msg("Scan aborted: failed to read catalog")
		}
		return nil
	}

	s.setProgress(Progress{Scanning: true, Total: len(songs)})

	kept, albums, artists := s.fold(songs, blacklist)

	if err := s.dao.UpsertSongs(kept); err != nil {
		log.Error().Err(err).Msg("Scan aborted: failed to write songs")
		return nil
	}
	if err := s.dao.UpsertAlbums(albums); err != nil {
		log.Error().Err(err).Msg("Scan aborted: failed to write albums")
		return nil
	}
	if err := s.dao.UpsertArtists(artists); err != nil {
		log.Error().Err(err).Msg("Scan aborted: failed to write artists")
		return nil
	}

	songIDs := make(map[int64]struct{}, len(kept))
	for _, song := range kept {
		songIDs[song.ID] = struct{}{}
	}

	genreIDs, genresFound := s.rebuildGenres(ctx, songIDs)

	s.enrichAlbumArt(ctx)

	s.removeOrphans(kept, albums, artists, genreIDs, genresFound)

	if err := s.db.MarkScanComplete(); err != nil {
		log.Warn().Err(err).Msg("Failed to record scan completion")
	}

	log.Info().
		Int("songs", len(kept)).
		Int("albums", len(albums)).
		Int("artists", len(artists)).
		Dur("duration", time.Since(start)).
		Msg("Library scan complete")

	return nil
}

// fold walks the song list once, filtering blacklisted folders and building
// the album and artist aggregates. Count fields accumulate; all other fields
// take the value of the last song seen for that aggregate.
func (s *Scanner) fold(songs []store.Song, blacklist []string) ([]store.Song, []store.Album, []store.Artist) {
	albumMap := make(map[int64]*store.Album)
	artistMap := make(map[int64]*store.Artist)
	artistAlbums := make(map[int64]map[int64]struct{})

	var kept []store.Song
	scanned := 0

	for _, song := range songs {
		scanned++
		if scanned%progressInterval == 0 {
			s.setProgress(Progress{Scanning: true, Scanned: scanned, Total: len(songs)})
		}

		if isBlacklisted(song.FolderPath, blacklist) {
			continue
		}

		kept = append(kept, song)

		album, ok := albumMap[song.AlbumID]
		if !ok {
			album = &store.Album{ID: song.AlbumID}
			albumMap[song.AlbumID] = album
		}
		album.Title = song.Album
		album.Artist = song.Artist
		album.ArtistID = song.ArtistID
		album.Year = song.Year
		album.SongCount++

		artist, ok := artistMap[song.ArtistID]
		if !ok {
			artist = &store.Artist{ID: song.ArtistID}
			artistMap[song.ArtistID] = artist
			artistAlbums[song.ArtistID] = make(map[int64]struct{})
		}
		artist.Name = song.Artist
		artist.SongCount++
		artistAlbums[song.ArtistID][song.AlbumID] = struct{}{}
	}

	albums := make([]store.Album, 0, len(albumMap))
	for _, a := range albumMap {
		albums = append(albums, *a)
	}

	artists := make([]store.Artist, 0, len(artistMap))
	for id, a := range artistMap {
		a.AlbumCount = len(artistAlbums[id])
		artists = append(artists, *a)
	}

	return kept, albums, artists
}

// isBlacklisted reports whether folder falls under any blacklisted prefix.
// This is a plain prefix match: blacklisting /music also shadows /music2.
func isBlacklisted(folder string, blacklist []string) bool {
	for _, prefix := range blacklist {
		if strings.HasPrefix(folder, prefix) {
			return true
		}
	}
	return false
}

// rebuildGenres intersects each catalog genre's membership with the scanned
// song set and writes the genres that still have members. It returns the
// retained genre ids and whether the catalog reported any genres at all.
func (s *Scanner) rebuildGenres(ctx context.Context, songIDs map[int64]struct{}) ([]int64, bool) {
	catalogGenres, err := s.catalog.Genres(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping genre rebuild: failed to list genres")
		return nil, false
	}
	if len(catalogGenres) == 0 {
		return nil, false
	}

	var retained []store.Genre
	var retainedIDs []int64

	for _, g := range catalogGenres {
		memberIDs, err := s.catalog.GenreSongIDs(ctx, g.Name)
		if err != nil {
			log.Warn().Err(err).Str("genre", g.Name).Msg("Skipping genre")
			continue
		}

		count := 0
		for _, id := range memberIDs {
			if _, ok := songIDs[id]; ok {
				count++
			}
		}

		if count > 0 {
			retained = append(retained, store.Genre{ID: g.ID, Name: g.Name, SongCount: count})
			retainedIDs = append(retainedIDs, g.ID)
		}
	}

	if err := s.dao.UpsertGenres(retained); err != nil {
		log.Warn().Err(err).Msg("Failed to write genres")
		return nil, false
	}

	return retainedIDs, true
}

// enrichAlbumArt fills in art for albums that have none, honoring the
// download policy. Local embedded art wins over a remote lookup. Failures
// are per-album and never abort the scan.
func (s *Scanner) enrichAlbumArt(ctx context.Context) {
	policy := s.prefs.Get().ArtDownloadPolicy
	if policy == prefs.ArtNever {
		return
	}
	if policy == prefs.ArtWifi && (s.network == nil || !s.network.Unmetered()) {
		log.Debug().Msg("Skipping art downloads: no unmetered network")
		return
	}

	missing, err := s.dao.AlbumsWithoutArt()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list albums without art")
		return
	}

	for _, album := range missing {
		uri := s.resolveAlbumArt(ctx, album)
		if uri == "" {
			continue
		}
		if err := s.dao.SetAlbumArt(album.ID, uri); err != nil {
			log.Warn().Err(err).Str("album", album.Title).Msg("Failed to save album art")
		}
	}
}

// resolveAlbumArt checks for embedded art first and falls back to the remote
// lookup. Returns "" when no art could be found.
func (s *Scanner) resolveAlbumArt(ctx context.Context, album store.Album) string {
	if s.prober != nil {
		songs, err := s.dao.SongsByAlbum(album.ID)
		if err == nil && len(songs) > 0 {
			if data, err := s.prober.ReadPicture(songs[0].Path); err == nil && len(data) > 0 {
				return "/albumart?path=" + songs[0].Path
			}
		}
	}

	if s.art == nil || album.Artist == "" || album.Title == "" {
		return ""
	}

	uri, err := s.art.AlbumArtURL(ctx, album.Artist, album.Title)
	if err != nil {
		log.Debug().Err(err).Str("album", album.Title).Msg("No remote album art")
		return ""
	}
	return uri
}

// removeOrphans deletes rows absent from the scanned sets. When the scan saw
// no songs at all, nothing is deleted: an empty snapshot more likely means
// the engine database was unavailable than that the user deleted everything.
func (s *Scanner) removeOrphans(songs []store.Song, albums []store.Album, artists []store.Artist, genreIDs []int64, genresFound bool) {
	if len(songs) == 0 {
		log.Warn().Msg("Skipping orphan removal: scan produced no songs")
		return
	}

	songIDs := make([]int64, len(songs))
	for i, s := range songs {
		songIDs[i] = s.ID
	}
	albumIDs := make([]int64, len(albums))
	for i, a := range albums {
		albumIDs[i] = a.ID
	}
	artistIDs := make([]int64, len(artists))
	for i, a := range artists {
		artistIDs[i] = a.ID
	}

	if err := s.dao.DeleteSongsNotIn(songIDs); err != nil {
		log.Warn().Err(err).Msg("Failed to remove orphaned songs")
	}
	if err := s.dao.DeleteAlbumsNotIn(albumIDs); err != nil {
		log.Warn().Err(err).Msg("Failed to remove orphaned albums")
	}
	if err := s.dao.DeleteArtistsNotIn(artistIDs); err != nil {
		log.Warn().Err(err).Msg("Failed to remove orphaned artists")
	}
	if genresFound {
		var err error
		if len(genreIDs) == 0 {
			err = s.dao.DeleteAllGenres()
		} else {
			err = s.dao.DeleteGenresNotIn(genreIDs)
		}
		if err != nil {
			log.Warn().Err(err).Msg("Failed to remove orphaned genres")
		}
	}
}
