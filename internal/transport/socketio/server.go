// Package socketio provides the Socket.io server for client communication.
package socketio

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/fermata-audio/fermata/internal/folders"
	"github.com/fermata-audio/fermata/internal/library"
	"github.com/fermata-audio/fermata/internal/netstatus"
	"github.com/fermata-audio/fermata/internal/player"
	"github.com/fermata-audio/fermata/internal/playlist"
	"github.com/fermata-audio/fermata/internal/prefs"
	"github.com/fermata-audio/fermata/internal/scrobble"
	"github.com/fermata-audio/fermata/internal/store"
)

// broadcastWindow batches rapid state changes into one push.
const broadcastWindow = 150 * time.Millisecond

// maxExternalClients caps concurrent non-localhost connections.
const maxExternalClients = 8

// Deps bundles everything the transport exposes to clients.
type Deps struct {
	Player    *player.Controller
	Scanner   *library.Scanner
	DB        *store.DB
	DAO       *store.DAO
	Browser   *folders.Browser
	Playlists *playlist.Service
	Prefs     *prefs.Store
	LastFM    *scrobble.Client
	Network   *netstatus.Checker
}

// Server handles Socket.io connections and events.
type Server struct {
	io        *socket.Server
	deps      Deps
	limiter   *ConnectionLimiter
	debouncer *BroadcastDebouncer

	mu      sync.RWMutex
	clients map[string]*socket.Socket
}

// NewServer creates a new Socket.io server over the given services.
func NewServer(deps Deps) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	server := socket.NewServer(nil, opts)

	s := &Server{
		io:      server,
		deps:    deps,
		limiter: NewConnectionLimiter(maxExternalClients),
		clients: make(map[string]*socket.Socket),
	}
	s.debouncer = NewBroadcastDebouncer(broadcastWindow, s.BroadcastState, s.BroadcastLibrary)

	if deps.Player != nil {
		deps.Player.OnChange(func(player.State) {
			s.debouncer.TriggerState()
		})
	}
	if deps.Scanner != nil {
		deps.Scanner.OnProgress(func(p library.Progress) {
			s.io.Emit("pushScanProgress", p)
		})
	}

	s.setupHandlers()

	return s, nil
}

// Start hooks the server into store change notifications until ctx ends.
func (s *Server) Start(ctx context.Context) {
	if s.deps.DB == nil {
		return
	}
	changes := s.deps.DB.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				s.debouncer.TriggerLibrary()
			}
		}
	}()
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())

		remoteIP := ""
		if hs := client.Handshake(); hs != nil {
			remoteIP = hs.Address
		}

		_, evictedID := s.limiter.TryAdd(clientID, remoteIP)
		if evictedID != "" {
			s.mu.RLock()
			evicted := s.clients[evictedID]
			s.mu.RUnlock()
			if evicted != nil {
				log.Warn().Str("id", evictedID).Msg("Evicting oldest external client")
				evicted.Disconnect(true)
			}
		}

		log.Info().Str("id", clientID).Str("ip", remoteIP).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		// Send initial state after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.pushState(client)
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.limiter.Remove(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		s.registerPlayerHandlers(client, clientID)
		s.registerLibraryHandlers(client, clientID)
		s.registerFolderHandlers(client, clientID)
		s.registerPlaylistHandlers(client, clientID)
		s.registerSettingsHandlers(client, clientID)
	})
}

// pushState sends the current player state to one client.
func (s *Server) pushState(client *socket.Socket) {
	client.Emit("pushState", s.deps.Player.Snapshot())
}

// BroadcastState sends the player state to all connected clients.
func (s *Server) BroadcastState() {
	s.io.Emit("pushState", s.deps.Player.Snapshot())
}

// BroadcastLibrary tells all clients the library contents changed.
func (s *Server) BroadcastLibrary() {
	stats, err := s.deps.DB.GetStats()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read library stats for broadcast")
		return
	}
	s.io.Emit("pushLibraryChanged", stats)
}

// emitError reports a failed command back to the requesting client.
func emitError(client *socket.Socket, op string, err error) {
	log.Error().Err(err).Str("op", op).Msg("Command failed")
	client.Emit("pushError", map[string]any{"op": op, "message": err.Error()})
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close shuts down the Socket.io server.
func (s *Server) Close() error {
	s.debouncer.Stop()
	s.io.Close(nil)
	return nil
}

// argMap extracts the first argument as an object payload.
func argMap(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	m, _ := args[0].(map[string]any)
	return m
}

// argFloat reads a numeric field from a payload.
func argFloat(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[key].(float64)
	return v, ok
}

// argString reads a string field from a payload.
func argString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

// isAuthError reports whether err is a remote API rejection rather than a
// transport failure.
func isAuthError(err error) bool {
	var authErr *scrobble.AuthError
	return errors.As(err, &authErr)
}
