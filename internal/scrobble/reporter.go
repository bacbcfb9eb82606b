package scrobble

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/fermata-audio/fermata/internal/prefs"
)

// Reporter submits playback events to Last.fm on behalf of the player.
// Every method is best effort: scrobbling must never interfere with
// playback, so failures are logged and swallowed.
type Reporter struct {
	client *Client
	prefs  *prefs.Store
}

// NewReporter creates a reporter over the given client and preference store.
func NewReporter(client *Client, store *prefs.Store) *Reporter {
	return &Reporter{
		client: client,
		prefs:  store,
	}
}

// enabled returns the session key when scrobbling is on and a login exists.
func (r *Reporter) enabled() (string, bool) {
	p := r.prefs.Get()
	if !p.ScrobblingEnabled || p.LastFMSessionKey == "" {
		return "", false
	}
	return p.LastFMSessionKey, true
}

// ReportNowPlaying sends a now-playing notification if scrobbling is enabled.
func (r *Reporter) ReportNowPlaying(ctx context.Context, np NowPlaying) {
	key, ok := r.enabled()
	if !ok {
		return
	}

	if err := r.client.UpdateNowPlaying(ctx, key, np); err != nil {
		r.logFailure("now playing update failed", err, np.Artist, np.Track)
	}
}

// ReportScrobble submits a completed listen if scrobbling is enabled.
func (r *Reporter) ReportScrobble(ctx context.Context, sub Submission) {
	key, ok := r.enabled()
	if !ok {
		return
	}

	if err := r.client.Scrobble(ctx, key, sub); err != nil {
		r.logFailure("scrobble failed", err, sub.Artist, sub.Track)
		return
	}

	log.Debug().Str("artist", sub.Artist).Str("track", sub.Track).Msg("Scrobbled")
}

func (r *Reporter) logFailure(msg string, err error, artist, track string) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		// Session revoked or credentials invalid; the user needs to log in again.
		log.Warn().Err(err).Msg(msg + " (session invalid)")
		return
	}
	log.Debug().Err(err).Str("artist", artist).Str("track", track).Msg(msg)
}
