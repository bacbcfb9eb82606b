package socketio

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"

	"github.com/fermata-audio/fermata/internal/library"
	"github.com/fermata-audio/fermata/internal/store"
)

// searchLimit caps search results pushed to a client.
const searchLimit = 100

// registerLibraryHandlers wires library browsing and scan events.
func (s *Server) registerLibraryHandlers(client *socket.Socket, clientID string) {
	dao := s.deps.DAO

	client.On("startScan", func(args ...any) {
		log.Info().Str("id", clientID).Msg("startScan")
		go func() {
			if err := s.deps.Scanner.Scan(context.Background()); err != nil {
				if errors.Is(err, library.ErrScanInProgress) {
					log.Debug().Msg("Scan request ignored, one is already running")
					return
				}
				emitError(client, "startScan", err)
			}
		}()
	})

	client.On("getScanProgress", func(args ...any) {
		client.Emit("pushScanProgress", s.deps.Scanner.Progress())
	})

	client.On("getStats", func(args ...any) {
		stats, err := s.deps.DB.GetStats()
		if err != nil {
			emitError(client, "getStats", err)
			return
		}
		client.Emit("pushStats", stats)
	})

	client.On("getSongs", func(args ...any) {
		songs, err := dao.AllSongs()
		if err != nil {
			emitError(client, "getSongs", err)
			return
		}
		client.Emit("pushSongs", songs)
	})

	client.On("getAlbums", func(args ...any) {
		albums, err := dao.Albums()
		if err != nil {
			emitError(client, "getAlbums", err)
			return
		}
		client.Emit("pushAlbums", albums)
	})

	client.On("getArtists", func(args ...any) {
		artists, err := dao.Artists()
		if err != nil {
			emitError(client, "getArtists", err)
			return
		}
		client.Emit("pushArtists", artists)
	})

	client.On("getGenres", func(args ...any) {
		genres, err := dao.Genres()
		if err != nil {
			emitError(client, "getGenres", err)
			return
		}
		client.Emit("pushGenres", genres)
	})

	client.On("getAlbumSongs", func(args ...any) {
		id, ok := argFloat(argMap(args), "albumId")
		if !ok {
			return
		}
		songs, err := dao.SongsByAlbum(int64(id))
		if err != nil {
			emitError(client, "getAlbumSongs", err)
			return
		}
		client.Emit("pushAlbumSongs", map[string]any{"albumId": int64(id), "songs": songs})
	})

	client.On("getArtistSongs", func(args ...any) {
		id, ok := argFloat(argMap(args), "artistId")
		if !ok {
			return
		}
		songs, err := dao.SongsByArtist(int64(id))
		if err != nil {
			emitError(client, "getArtistSongs", err)
			return
		}
		client.Emit("pushArtistSongs", map[string]any{"artistId": int64(id), "songs": songs})
	})

	client.On("getGenreSongs", func(args ...any) {
		name := argString(argMap(args), "genre")
		if name == "" {
			return
		}
		songs, err := dao.SongsByGenre(name)
		if err != nil {
			emitError(client, "getGenreSongs", err)
			return
		}
		client.Emit("pushGenreSongs", map[string]any{"genre": name, "songs": songs})
	})

	client.On("search", func(args ...any) {
		query := argString(argMap(args), "query")
		if query == "" {
			client.Emit("pushSearchResults", []store.Song{})
			return
		}
		songs, err := dao.SearchSongs(query, searchLimit)
		if err != nil {
			emitError(client, "search", err)
			return
		}
		client.Emit("pushSearchResults", songs)
	})

	client.On("playSongs", func(args ...any) {
		m := argMap(args)
		rawIDs, _ := m["songIds"].([]any)
		start := 0
		if v, ok := argFloat(m, "start"); ok {
			start = int(v)
		}

		var songs []store.Song
		for _, raw := range rawIDs {
			id, ok := raw.(float64)
			if !ok {
				continue
			}
			song, err := dao.SongByID(int64(id))
			if err != nil {
				log.Debug().Err(err).Int64("song", int64(id)).Msg("Skipping unknown song")
				continue
			}
			songs = append(songs, *song)
		}
		if len(songs) == 0 {
			return
		}
		if err := s.deps.Player.SetQueueFromSongs(songs, start); err != nil {
			emitError(client, "playSongs", err)
		}
	})

	client.On("getBlacklist", func(args ...any) {
		paths, err := dao.BlacklistedFolders()
		if err != nil {
			emitError(client, "getBlacklist", err)
			return
		}
		client.Emit("pushBlacklist", paths)
	})

	client.On("blacklistFolder", func(args ...any) {
		path := argString(argMap(args), "path")
		if path == "" {
			return
		}
		if err := dao.AddBlacklistedFolder(path); err != nil {
			emitError(client, "blacklistFolder", err)
			return
		}
		log.Info().Str("path", path).Msg("Folder blacklisted")
	})

	client.On("unblacklistFolder", func(args ...any) {
		path := argString(argMap(args), "path")
		if path == "" {
			return
		}
		if err := dao.RemoveBlacklistedFolder(path); err != nil {
			emitError(client, "unblacklistFolder", err)
		}
	})
}
