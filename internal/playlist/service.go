// Package playlist manages user playlists on top of the library store.
package playlist

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fermata-audio/fermata/internal/store"
)

// ErrEmptyName rejects playlists without a usable name.
var ErrEmptyName = errors.New("playlist name is empty")

// Service owns playlist lifecycle and membership.
type Service struct {
	dao *store.DAO
}

// NewService creates a playlist service over the given store.
func NewService(dao *store.DAO) *Service {
	return &Service{dao: dao}
}

// Create makes a new empty playlist and returns it.
func (s *Service) Create(name string) (*store.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	p := store.Playlist{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := s.dao.InsertPlaylist(p); err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	log.Info().Str("playlist", p.Name).Str("id", p.ID).Msg("Playlist created")
	return &p, nil
}

// Delete removes a playlist and its memberships.
func (s *Service) Delete(id string) error {
	if err := s.dao.DeletePlaylist(id); err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	return nil
}

// List returns all playlists.
func (s *Service) List() ([]store.Playlist, error) {
	return s.dao.Playlists()
}

// AddSong appends a song to the end of a playlist. Re-adding an existing
// member moves it to the end.
func (s *Service) AddSong(playlistID string, songID int64) error {
	if err := s.dao.AddPlaylistSong(playlistID, songID); err != nil {
		return fmt.Errorf("failed to add song to playlist: %w", err)
	}
	return nil
}

// RemoveSong drops a song from a playlist.
func (s *Service) RemoveSong(playlistID string, songID int64) error {
	if err := s.dao.RemovePlaylistSong(playlistID, songID); err != nil {
		return fmt.Errorf("failed to remove song from playlist: %w", err)
	}
	return nil
}

// Songs returns a playlist's songs in order.
func (s *Service) Songs(playlistID string) ([]store.Song, error) {
	return s.dao.PlaylistSongs(playlistID)
}
