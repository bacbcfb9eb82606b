package player

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fermata-audio/fermata/internal/scrobble"
)

// Scrobbler receives listen reports. Satisfied by scrobble.Reporter.
type Scrobbler interface {
	ReportNowPlaying(ctx context.Context, np scrobble.NowPlaying)
	ReportScrobble(ctx context.Context, sub scrobble.Submission)
}

// ScrobbleDelay returns how long a track must play before it scrobbles:
// half its duration, never less than 30 seconds, and 30 seconds flat when
// the duration is unknown.
func ScrobbleDelay(durationMs int) time.Duration {
	if durationMs <= 0 {
		return 30 * time.Second
	}
	half := time.Duration(durationMs/2) * time.Millisecond
	if half < 30*time.Second {
		return 30 * time.Second
	}
	return half
}

// beginScrobble starts a scrobble session for the track now playing. Any
// previous session is cancelled first. Tracks without both an artist and a
// title are never reported. Must be called with c.mu held.
func (c *Controller) beginScrobble(t Track) {
	c.cancelScrobbleLocked()
	c.scrobbleGen++

	if c.scrobbler == nil || t.Artist == "" || t.Title == "" {
		return
	}

	gen := c.scrobbleGen
	ctx, cancel := context.WithCancel(context.Background())
	c.scrobbleCancel = cancel

	startedAt := time.Now().Unix()
	delay := c.scrobbleDelay(t.DurationMs)

	go func() {
		c.scrobbler.ReportNowPlaying(ctx, scrobble.NowPlaying{
			Artist:     t.Artist,
			Track:      t.Title,
			Album:      t.Album,
			DurationMs: t.DurationMs,
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		// The session may have been superseded while the timer ran.
		c.mu.RLock()
		live := c.scrobbleGen == gen
		c.mu.RUnlock()
		if !live {
			return
		}

		log.Debug().Str("artist", t.Artist).Str("track", t.Title).Msg("Scrobble threshold reached")
		c.scrobbler.ReportScrobble(ctx, scrobble.Submission{
			Artist:     t.Artist,
			Track:      t.Title,
			Album:      t.Album,
			StartedAt:  startedAt,
			DurationMs: t.DurationMs,
		})
	}()
}

// cancelScrobbleLocked tears down the pending session, if any. Must be
// called with c.mu held.
func (c *Controller) cancelScrobbleLocked() {
	if c.scrobbleCancel != nil {
		c.scrobbleCancel()
		c.scrobbleCancel = nil
	}
	c.scrobbleGen++
}
