package socketio

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// networkPollInterval is how often the connection status is re-probed.
const networkPollInterval = 10 * time.Second

// BroadcastNetworkStatus pushes the current network status to all clients.
func (s *Server) BroadcastNetworkStatus() {
	if s.deps.Network == nil {
		return
	}
	s.io.Emit("pushNetworkStatus", s.deps.Network.Current())
}

// StartNetworkWatcher polls the network status and broadcasts changes.
func (s *Server) StartNetworkWatcher(ctx context.Context) {
	if s.deps.Network == nil {
		return
	}

	go func() {
		log.Info().Msg("Network watcher started")
		ticker := time.NewTicker(networkPollInterval)
		defer ticker.Stop()

		last := s.deps.Network.Current()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Network watcher stopped")
				return
			case <-ticker.C:
				current := s.deps.Network.Current()
				if current == last {
					continue
				}
				log.Debug().
					Str("oldType", last.Type).
					Str("newType", current.Type).
					Str("oldIP", last.IP).
					Str("newIP", current.IP).
					Msg("Network status changed")
				last = current
				s.BroadcastNetworkStatus()
			}
		}
	}()
}
