package socketio

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"

	"github.com/fermata-audio/fermata/internal/prefs"
)

// loginTimeout bounds a Last.fm authentication round trip.
const loginTimeout = 15 * time.Second

// registerSettingsHandlers wires preference and Last.fm account events.
func (s *Server) registerSettingsHandlers(client *socket.Socket, clientID string) {
	store := s.deps.Prefs

	pushSettings := func() {
		p := store.Get()
		client.Emit("pushSettings", map[string]any{
			"scrobblingEnabled": p.ScrobblingEnabled,
			"artDownloadPolicy": string(p.ArtDownloadPolicy),
			"lastfmUsername":    p.LastFMUsername,
			"lastfmConnected":   p.LastFMSessionKey != "",
		})
	}

	client.On("getSettings", func(args ...any) {
		pushSettings()
	})

	client.On("setScrobbling", func(args ...any) {
		m := argMap(args)
		on, _ := m["enabled"].(bool)
		log.Info().Str("id", clientID).Bool("enabled", on).Msg("setScrobbling")
		if err := store.SetScrobblingEnabled(on); err != nil {
			emitError(client, "setScrobbling", err)
			return
		}
		pushSettings()
	})

	client.On("setArtPolicy", func(args ...any) {
		policy := prefs.ArtPolicy(argString(argMap(args), "policy"))
		if err := store.SetArtDownloadPolicy(policy); err != nil {
			emitError(client, "setArtPolicy", err)
			return
		}
		pushSettings()
	})

	client.On("lastfmLogin", func(args ...any) {
		m := argMap(args)
		username := argString(m, "username")
		password := argString(m, "password")
		if username == "" || password == "" {
			client.Emit("pushLastfmLogin", map[string]any{
				"ok": false, "message": "username and password required",
			})
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
			defer cancel()

			session, err := s.deps.LastFM.MobileSession(ctx, username, password)
			if err != nil {
				message := "could not reach Last.fm, check your connection"
				if isAuthError(err) {
					message = "Last.fm rejected the credentials"
				}
				log.Warn().Err(err).Str("username", username).Msg("Last.fm login failed")
				client.Emit("pushLastfmLogin", map[string]any{"ok": false, "message": message})
				return
			}

			if err := store.SetLastFMSession(session.Username, session.Key); err != nil {
				emitError(client, "lastfmLogin", err)
				return
			}
			if err := store.SetScrobblingEnabled(true); err != nil {
				log.Warn().Err(err).Msg("Failed to enable scrobbling after login")
			}

			log.Info().Str("username", session.Username).Msg("Last.fm session established")
			client.Emit("pushLastfmLogin", map[string]any{"ok": true, "username": session.Username})
			pushSettings()
		}()
	})

	client.On("lastfmLogout", func(args ...any) {
		log.Info().Str("id", clientID).Msg("lastfmLogout")
		if err := store.ClearLastFMSession(); err != nil {
			emitError(client, "lastfmLogout", err)
			return
		}
		pushSettings()
	})
}
