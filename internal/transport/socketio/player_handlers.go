package socketio

import (
	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"

	"github.com/fermata-audio/fermata/internal/player"
)

// registerPlayerHandlers wires playback control events.
func (s *Server) registerPlayerHandlers(client *socket.Socket, clientID string) {
	ctrl := s.deps.Player

	client.On("getState", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("getState")
		s.pushState(client)
	})

	client.On("play", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("play")
		if idx, ok := argFloat(argMap(args), "index"); ok {
			if err := ctrl.PlayIndex(int(idx)); err != nil {
				emitError(client, "play", err)
			}
			return
		}
		if err := ctrl.Play(); err != nil {
			emitError(client, "play", err)
		}
	})

	client.On("pause", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("pause")
		if err := ctrl.Pause(); err != nil {
			emitError(client, "pause", err)
		}
	})

	client.On("stop", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("stop")
		if err := ctrl.Stop(); err != nil {
			emitError(client, "stop", err)
		}
	})

	client.On("next", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("next")
		if err := ctrl.Next(); err != nil {
			emitError(client, "next", err)
		}
	})

	client.On("prev", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("prev")
		if err := ctrl.Previous(); err != nil {
			emitError(client, "prev", err)
		}
	})

	client.On("seek", func(args ...any) {
		if len(args) == 0 {
			return
		}
		ms, ok := args[0].(float64)
		if !ok {
			return
		}
		log.Debug().Str("id", clientID).Float64("ms", ms).Msg("seek")
		if err := ctrl.SeekTo(int(ms)); err != nil {
			emitError(client, "seek", err)
		}
	})

	client.On("volume", func(args ...any) {
		if len(args) == 0 {
			return
		}
		vol, ok := args[0].(float64)
		if !ok {
			return
		}
		log.Debug().Str("id", clientID).Float64("vol", vol).Msg("volume")
		if err := ctrl.SetVolume(int(vol)); err != nil {
			emitError(client, "volume", err)
		}
	})

	client.On("setShuffle", func(args ...any) {
		m := argMap(args)
		on, _ := m["value"].(bool)
		log.Debug().Str("id", clientID).Bool("value", on).Msg("setShuffle")
		if err := ctrl.SetShuffle(on); err != nil {
			emitError(client, "setShuffle", err)
		}
	})

	client.On("setRepeat", func(args ...any) {
		mode := player.RepeatMode(argString(argMap(args), "mode"))
		switch mode {
		case player.RepeatOff, player.RepeatAll, player.RepeatOne:
		default:
			return
		}
		log.Debug().Str("id", clientID).Str("mode", string(mode)).Msg("setRepeat")
		if err := ctrl.SetRepeatMode(mode); err != nil {
			emitError(client, "setRepeat", err)
		}
	})

	client.On("clearPlaybackError", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("clearPlaybackError")
		ctrl.ClearError()
	})

	client.On("addToQueue", func(args ...any) {
		id, ok := argFloat(argMap(args), "songId")
		if !ok {
			return
		}
		song, err := s.deps.DAO.SongByID(int64(id))
		if err != nil {
			emitError(client, "addToQueue", err)
			return
		}
		if err := ctrl.Enqueue(*song); err != nil {
			emitError(client, "addToQueue", err)
		}
	})

	client.On("playNext", func(args ...any) {
		id, ok := argFloat(argMap(args), "songId")
		if !ok {
			return
		}
		song, err := s.deps.DAO.SongByID(int64(id))
		if err != nil {
			emitError(client, "playNext", err)
			return
		}
		if err := ctrl.EnqueueNext(*song); err != nil {
			emitError(client, "playNext", err)
		}
	})
}
