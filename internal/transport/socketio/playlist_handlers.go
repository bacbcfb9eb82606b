package socketio

import (
	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
)

// registerPlaylistHandlers wires user playlist events.
func (s *Server) registerPlaylistHandlers(client *socket.Socket, clientID string) {
	playlists := s.deps.Playlists

	pushLists := func(op string) {
		lists, err := playlists.List()
		if err != nil {
			emitError(client, op, err)
			return
		}
		client.Emit("pushPlaylists", lists)
	}

	client.On("getPlaylists", func(args ...any) {
		pushLists("getPlaylists")
	})

	client.On("createPlaylist", func(args ...any) {
		name := argString(argMap(args), "name")
		log.Debug().Str("id", clientID).Str("name", name).Msg("createPlaylist")
		if _, err := playlists.Create(name); err != nil {
			emitError(client, "createPlaylist", err)
			return
		}
		pushLists("createPlaylist")
	})

	client.On("deletePlaylist", func(args ...any) {
		id := argString(argMap(args), "playlistId")
		if id == "" {
			return
		}
		if err := playlists.Delete(id); err != nil {
			emitError(client, "deletePlaylist", err)
			return
		}
		pushLists("deletePlaylist")
	})

	client.On("getPlaylistSongs", func(args ...any) {
		id := argString(argMap(args), "playlistId")
		if id == "" {
			return
		}
		songs, err := playlists.Songs(id)
		if err != nil {
			emitError(client, "getPlaylistSongs", err)
			return
		}
		client.Emit("pushPlaylistSongs", map[string]any{"playlistId": id, "songs": songs})
	})

	client.On("addPlaylistSong", func(args ...any) {
		m := argMap(args)
		id := argString(m, "playlistId")
		songID, ok := argFloat(m, "songId")
		if id == "" || !ok {
			return
		}
		if err := playlists.AddSong(id, int64(songID)); err != nil {
			emitError(client, "addPlaylistSong", err)
		}
	})

	client.On("removePlaylistSong", func(args ...any) {
		m := argMap(args)
		id := argString(m, "playlistId")
		songID, ok := argFloat(m, "songId")
		if id == "" || !ok {
			return
		}
		if err := playlists.RemoveSong(id, int64(songID)); err != nil {
			emitError(client, "removePlaylistSong", err)
		}
	})

	client.On("playPlaylist", func(args ...any) {
		id := argString(argMap(args), "playlistId")
		if id == "" {
			return
		}
		songs, err := playlists.Songs(id)
		if err != nil {
			emitError(client, "playPlaylist", err)
			return
		}
		if len(songs) == 0 {
			return
		}
		if err := s.deps.Player.SetQueueFromSongs(songs, 0); err != nil {
			emitError(client, "playPlaylist", err)
		}
	})
}
