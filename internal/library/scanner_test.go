package library_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fermata-audio/fermata/internal/library"
	"github.com/fermata-audio/fermata/internal/prefs"
	"github.com/fermata-audio/fermata/internal/store"
)

// fakeCatalog implements library.Catalog from canned data.
type fakeCatalog struct {
	songs   []store.Song
	genres  []library.CatalogGenre
	members map[string][]int64
	err     error

	// When set, Songs blocks until released.
	entered  chan struct{}
	released chan struct{}
}

func (f *fakeCatalog) Songs(ctx context.Context) ([]store.Song, error) {
	if f.entered != nil {
		close(f.entered)
		<-f.released
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.songs, nil
}

func (f *fakeCatalog) Genres(ctx context.Context) ([]library.CatalogGenre, error) {
	return f.genres, nil
}

func (f *fakeCatalog) GenreSongIDs(ctx context.Context, name string) ([]int64, error) {
	return f.members[name], nil
}

type fakeArt struct {
	calls atomic.Int32
	uri   string
}

func (f *fakeArt) AlbumArtURL(ctx context.Context, artist, album string) (string, error) {
	f.calls.Add(1)
	if f.uri == "" {
		return "", errors.New("no art")
	}
	return f.uri, nil
}

type fakeProber struct {
	data []byte
}

func (f *fakeProber) ReadPicture(uri string) ([]byte, error) {
	if f.data == nil {
		return nil, errors.New("no embedded art")
	}
	return f.data, nil
}

type fakeNetwork struct {
	unmetered bool
}

func (f *fakeNetwork) Unmetered() bool { return f.unmetered }

// testEnv bundles the real store and prefs a scanner needs.
type testEnv struct {
	db    *store.DB
	dao   *store.DAO
	prefs *prefs.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir, err := os.MkdirTemp("", "fermata-scanner-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	db := store.NewDB(filepath.Join(dir, "library.db"))
	if err := db.Open(); err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	prefStore, err := prefs.NewStore(filepath.Join(dir, "prefs.json"))
	if err != nil {
		t.Fatalf("Failed to create prefs: %v", err)
	}

	return &testEnv{db: db, dao: store.NewDAO(db), prefs: prefStore}
}

func testSong(id int64, title, artist, album string, albumID, artistID int64, folder string) store.Song {
	return store.Song{
		ID:         id,
		Title:      title,
		Artist:     artist,
		Album:      album,
		AlbumID:    albumID,
		ArtistID:   artistID,
		DurationMs: 240000,
		Path:       fmt.Sprintf("%s/%d.flac", folder, id),
		FolderPath: folder,
	}
}

func TestScanWritesAggregates(t *testing.T) {
	env := newTestEnv(t)
	catalog := &fakeCatalog{
		songs: []store.Song{
			testSong(1, "One", "Band", "First", 10, 100, "music/band/first"),
			testSong(2, "Two", "Band", "First", 10, 100, "music/band/first"),
			testSong(3, "Three", "Band", "Second", 11, 100, "music/band/second"),
		},
	}

	scanner := library.NewScanner(catalog, env.db, env.dao, env.prefs)
	if err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	songs, _ := env.dao.AllSongs()
	if len(songs) != 3 {
		t.Errorf("Expected 3 songs, got %d", len(songs))
	}

	albums, _ := env.dao.Albums()
	if len(albums) != 2 {
		t.Fatalf("Expected 2 albums, got %d", len(albums))
	}
	counts := map[string]int{}
	for _, a := range albums {
		counts[a.Title] = a.SongCount
	}
	if counts["First"] != 2 || counts["Second"] != 1 {
		t.Errorf("Unexpected album song counts: %v", counts)
	}

	artists, _ := env.dao.Artists()
	if len(artists) != 1 {
		t.Fatalf("Expected 1 artist, got %d", len(artists))
	}
	if artists[0].SongCount != 3 {
		t.Errorf("Expected artist song count 3, got %d", artists[0].SongCount)
	}
	if artists[0].AlbumCount != 2 {
		t.Errorf("Expected artist album count 2, got %d", artists[0].AlbumCount)
	}
}

func TestScanIdempotent(t *testing.T) {
	env := newTestEnv(t)
	catalog := &fakeCatalog{
		songs: []store.Song{
			testSong(1, "One", "Band", "First", 10, 100, "music"),
			testSong(2, "Two", "Band", "First", 10, 100, "music"),
		},
	}

	scanner := library.NewScanner(catalog, env.db, env.dao, env.prefs)
	for i := 0; i < 2; i++ {
		if err := scanner.Scan(context.Background()); err != nil {
			t.Fatalf("Scan %d failed: %v", i, err)
		}
	}

	songs, _ := env.dao.AllSongs()
	albums, _ := env.dao.Albums()
	artists, _ := env.dao.Artists()
	if len(songs) != 2 || len(albums) != 1 || len(artists) != 1 {
		t.Errorf("Expected 2/1/1 after rescan, got %d/%d/%d", len(songs), len(albums), len(artists))
	}
	if albums[0].SongCount != 2 {
		t.Errorf("Album song count should not accumulate across scans, got %d", albums[0].SongCount)
	}
}

func TestScanRemovesOrphans(t *testing.T) {
	env := newTestEnv(t)
	catalog := &fakeCatalog{
		songs: []store.Song{
			testSong(1, "One", "Band", "First", 10, 100, "music"),
			testSong(2, "Two", "Other", "Second", 11, 101, "music"),
		},
	}

	scanner := library.NewScanner(catalog, env.db, env.dao, env.prefs)
	if err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	catalog.songs = catalog.songs[:1]
	if err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Rescan failed: %v", err)
	}

	songs, _ := env.dao.AllSongs()
	if len(songs) != 1 || songs[0].ID != 1 {
		t.Errorf("Expected only song 1 to survive, got %v", songs)
	}
	albums, _ := env.dao.Albums()
	if len(albums) != 1 {
		t.Errorf("Expected 1 album after orphan removal, got %d", len(albums))
	}
	artists, _ := env.dao.Artists()
	if len(artists) != 1 {
		t.Errorf("Expected 1 artist after orphan removal, got %d", len(artists))
	}
}

func TestScanEmptySnapshotKeepsData(t *testing.T) {
	env := newTestEnv(t)
	catalog := &fakeCatalog{
		songs: []store.Song{testSong(1, "One", "Band", "First", 10, 100, "music")},
	}

	scanner := library.NewScanner(catalog, env.db, env.dao, env.prefs)
	if err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	catalog.songs = nil
	if err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Rescan failed: %v", err)
	}

	songs, _ := env.dao.AllSongs()
	if len(songs) != 1 {
		t.Errorf("Empty snapshot should not wipe the library, got %d songs", len(songs))
	}
}

func TestScanBlacklistPrefix(t *testing.T) {
	env := newTestEnv(t)
	if err := env.dao.AddBlacklistedFolder("music/skip"); err != nil {
		t.Fatalf("Failed to blacklist: %v", err)
	}

	catalog := &fakeCatalog{
		songs: []store.Song{
			testSong(1, "Kept", "Band", "First", 10, 100, "music/keep"),
			testSong(2, "Skipped", "Band", "First", 10, 100, "music/skip"),
			// Plain prefix match: music/skip also shadows music/skipped
			testSong(3, "Shadowed", "Band", "First", 10, 100, "music/skipped"),
		},
	}

	scanner := library.NewScanner(catalog, env.db, env.dao, env.prefs)
	if err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	songs, _ := env.dao.AllSongs()
	if len(songs) != 1 || songs[0].Title != "Kept" {
		t.Errorf("Expected only the non-blacklisted song, got %v", songs)
	}
	albums, _ := env.dao.Albums()
	if len(albums) != 1 || albums[0].SongCount != 1 {
		t.Errorf("Blacklisted songs should not count toward albums: %v", albums)
	}
}

func TestScanGenreIntersection(t *testing.T) {
	env := newTestEnv(t)
	catalog := &fakeCatalog{
		songs: []store.Song{
			testSong(1, "One", "Band", "First", 10, 100, "music"),
			testSong(2, "Two", "Band", "First", 10, 100, "music"),
		},
		genres: []library.CatalogGenre{
			{ID: 500, Name: "Rock"},
			{ID: 501, Name: "Stale"},
		},
		members: map[string][]int64{
			"Rock":  {1, 999}, // 999 is not in the scanned set
			"Stale": {998},
		},
	}

	scanner := library.NewScanner(catalog, env.db, env.dao, env.prefs)
	if err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	genres, err := env.dao.Genres()
	if err != nil {
		t.Fatalf("Genres failed: %v", err)
	}
	if len(genres) != 1 {
		t.Fatalf("Expected 1 retained genre, got %d", len(genres))
	}
	if genres[0].Name != "Rock" || genres[0].SongCount != 1 {
		t.Errorf("Expected Rock with 1 member, got %+v", genres[0])
	}

	// A rescan where no genre keeps any member clears the table.
	catalog.members = map[string][]int64{"Rock": {999}, "Stale": {998}}
	if err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Rescan failed: %v", err)
	}
	genres, _ = env.dao.Genres()
	if len(genres) != 0 {
		t.Errorf("Expected no genres after all memberships went stale, got %v", genres)
	}
}

func TestScanConcurrentGuard(t *testing.T) {
	env := newTestEnv(t)
	catalog := &fakeCatalog{
		songs:    []store.Song{testSong(1, "One", "Band", "First", 10, 100, "music")},
		entered:  make(chan struct{}),
		released: make(chan struct{}),
	}

	scanner := library.NewScanner(catalog, env.db, env.dao, env.prefs)

	done := make(chan error, 1)
	go func() { done <- scanner.Scan(context.Background()) }()

	select {
	case <-catalog.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("First scan never reached the catalog")
	}

	if err := scanner.Scan(context.Background()); !errors.Is(err, library.ErrScanInProgress) {
		t.Errorf("Expected ErrScanInProgress, got %v", err)
	}

	close(catalog.released)
	if err := <-done; err != nil {
		t.Fatalf("First scan failed: %v", err)
	}

	if scanner.Progress().Scanning {
		t.Error("Progress should be idle after the scan finishes")
	}
}

func TestScanPermissionDeniedAbortsQuietly(t *testing.T) {
	env := newTestEnv(t)
	catalog := &fakeCatalog{
		err: fmt.Errorf("%w: mpd refused", library.ErrPermissionDenied),
	}

	scanner := library.NewScanner(catalog, env.db, env.dao, env.prefs)
	if err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Scan should swallow catalog errors, got %v", err)
	}

	songs, _ := env.dao.AllSongs()
	if len(songs) != 0 {
		t.Errorf("No songs should be written after an aborted scan, got %d", len(songs))
	}
}

// deniedErr matches ErrPermissionDenied through Is without carrying its text.
type deniedErr struct{}

func (deniedErr) Error() string        { return "ACK [4@0] {listallinfo} Access refused" }
func (deniedErr) Is(target error) bool { return target == library.ErrPermissionDenied }

func TestScanPermissionDeniedMatchedByIdentityNotText(t *testing.T) {
	env := newTestEnv(t)
	catalog := &fakeCatalog{err: deniedErr{}}

	scanner := library.NewScanner(catalog, env.db, env.dao, env.prefs)
	if err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Scan should swallow a permission denial, got %v", err)
	}

	if p := scanner.Progress(); p.Scanning {
		t.Error("Progress should be idle after an aborted scan")
	}
}

func TestScanArtPolicyNever(t *testing.T) {
	env := newTestEnv(t)
	if err := env.prefs.SetArtDownloadPolicy(prefs.ArtNever); err != nil {
		t.Fatalf("Failed to set policy: %v", err)
	}

	catalog := &fakeCatalog{
		songs: []store.Song{testSong(1, "One", "Band", "First", 10, 100, "music")},
	}
	art := &fakeArt{uri: "https://img.example/cover.png"}

	scanner := library.NewScanner(catalog, env.db, env.dao, env.prefs)
	scanner.SetArtSources(art, nil, &fakeNetwork{unmetered: true})
	if err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if n := art.calls.Load(); n != 0 {
		t.Errorf("Art lookup should not run under the never policy, got %d calls", n)
	}
}

func TestScanArtPolicyWifiRequiresUnmetered(t *testing.T) {
	env := newTestEnv(t)
	// Default policy is wifi
	catalog := &fakeCatalog{
		songs: []store.Song{testSong(1, "One", "Band", "First", 10, 100, "music")},
	}
	art := &fakeArt{uri: "https://img.example/cover.png"}

	scanner := library.NewScanner(catalog, env.db, env.dao, env.prefs)
	scanner.SetArtSources(art, nil, &fakeNetwork{unmetered: false})
	if err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if n := art.calls.Load(); n != 0 {
		t.Errorf("Art lookup should not run on a metered network, got %d calls", n)
	}

	scanner.SetArtSources(art, nil, &fakeNetwork{unmetered: true})
	if err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Rescan failed: %v", err)
	}
	if n := art.calls.Load(); n != 1 {
		t.Errorf("Expected 1 art lookup on an unmetered network, got %d", n)
	}

	albums, _ := env.dao.Albums()
	if len(albums) != 1 || albums[0].ArtURI != "https://img.example/cover.png" {
		t.Errorf("Album should carry the resolved art: %v", albums)
	}
}

func TestScanEmbeddedArtWinsOverRemote(t *testing.T) {
	env := newTestEnv(t)
	if err := env.prefs.SetArtDownloadPolicy(prefs.ArtAlways); err != nil {
		t.Fatalf("Failed to set policy: %v", err)
	}

	song := testSong(1, "One", "Band", "First", 10, 100, "music")
	catalog := &fakeCatalog{songs: []store.Song{song}}
	art := &fakeArt{uri: "https://img.example/cover.png"}
	prober := &fakeProber{data: []byte{0xff, 0xd8}}

	scanner := library.NewScanner(catalog, env.db, env.dao, env.prefs)
	scanner.SetArtSources(art, prober, &fakeNetwork{unmetered: true})
	if err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if n := art.calls.Load(); n != 0 {
		t.Errorf("Remote lookup should not run when embedded art exists, got %d calls", n)
	}
	albums, _ := env.dao.Albums()
	if len(albums) != 1 || albums[0].ArtURI != "/albumart?path="+song.Path {
		t.Errorf("Album should point at the embedded art endpoint: %v", albums)
	}
}
