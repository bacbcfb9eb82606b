package socketio

import (
	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
)

// registerFolderHandlers wires folder tree navigation events.
func (s *Server) registerFolderHandlers(client *socket.Socket, clientID string) {
	browser := s.deps.Browser

	pushFolders := func(op string) {
		view, err := browser.List()
		if err != nil {
			emitError(client, op, err)
			return
		}
		client.Emit("pushFolders", view)
	}

	client.On("browseFolders", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("browseFolders")
		pushFolders("browseFolders")
	})

	client.On("openFolder", func(args ...any) {
		m := argMap(args)
		path := argString(m, "path")
		label := argString(m, "label")
		if path == "" {
			return
		}
		if label == "" {
			label = path
		}
		browser.NavigateTo(path, label)
		pushFolders("openFolder")
	})

	client.On("folderBack", func(args ...any) {
		browser.PopBack()
		pushFolders("folderBack")
	})

	client.On("folderBreadcrumb", func(args ...any) {
		idx, ok := argFloat(argMap(args), "index")
		if !ok {
			return
		}
		browser.NavigateToBreadcrumb(int(idx))
		pushFolders("folderBreadcrumb")
	})

	client.On("playFolder", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("playFolder")
		if err := browser.PlayAll(); err != nil {
			emitError(client, "playFolder", err)
		}
	})

	client.On("shuffleFolder", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("shuffleFolder")
		if err := browser.ShuffleAll(); err != nil {
			emitError(client, "shuffleFolder", err)
		}
	})

	client.On("playFolderSong", func(args ...any) {
		id, ok := argFloat(argMap(args), "songId")
		if !ok {
			return
		}
		if err := browser.PlaySong(int64(id)); err != nil {
			emitError(client, "playFolderSong", err)
		}
	})
}
