// Package prefs persists user preferences across restarts.
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ArtPolicy controls when remote album art may be downloaded.
type ArtPolicy string

const (
	ArtNever  ArtPolicy = "never"
	ArtWifi   ArtPolicy = "wifi"
	ArtAlways ArtPolicy = "always"
)

// Prefs holds the persisted preference values.
type Prefs struct {
	ScrobblingEnabled bool      `json:"scrobbling_enabled"`
	ArtDownloadPolicy ArtPolicy `json:"art_download_policy"`
	LastFMUsername    string    `json:"lastfm_username,omitempty"`
	LastFMSessionKey  string    `json:"lastfm_session_key,omitempty"`
}

// Store reads and writes preferences to a JSON file.
type Store struct {
	mu    sync.RWMutex
	path  string
	prefs Prefs
}

// NewStore creates a preference store backed by the file at path.
// Missing files are not an error; defaults apply until the first save.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path: path,
		prefs: Prefs{
			ArtDownloadPolicy: ArtWifi,
		},
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load prefs: %w", err)
	}

	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var p Prefs
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to parse prefs: %w", err)
	}

	if p.ArtDownloadPolicy == "" {
		p.ArtDownloadPolicy = ArtWifi
	}

	s.prefs = p
	return nil
}

func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create prefs directory: %w", err)
	}

	data, err := json.MarshalIndent(s.prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal prefs: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write prefs: %w", err)
	}

	return nil
}

// Get returns a copy of the current preferences.
func (s *Store) Get() Prefs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// SetScrobblingEnabled turns scrobbling on or off.
func (s *Store) SetScrobblingEnabled(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs.ScrobblingEnabled = on
	return s.save()
}

// SetArtDownloadPolicy sets the album art download policy.
func (s *Store) SetArtDownloadPolicy(p ArtPolicy) error {
	switch p {
	case ArtNever, ArtWifi, ArtAlways:
	default:
		return fmt.Errorf("invalid art download policy: %q", p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs.ArtDownloadPolicy = p
	return s.save()
}

// SetLastFMSession stores the Last.fm username and session key after login.
func (s *Store) SetLastFMSession(username, sessionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs.LastFMUsername = username
	s.prefs.LastFMSessionKey = sessionKey
	return s.save()
}

// ClearLastFMSession removes the stored Last.fm credentials and disables scrobbling.
func (s *Store) ClearLastFMSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs.LastFMUsername = ""
	s.prefs.LastFMSessionKey = ""
	s.prefs.ScrobblingEnabled = false
	return s.save()
}
