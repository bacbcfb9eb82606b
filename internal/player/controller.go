package player

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fermata-audio/fermata/internal/store"
)

// positionInterval is how often the seek position is polled while playing.
const positionInterval = 300 * time.Millisecond

// Engine is the slice of the playback engine the controller drives.
// Satisfied by infra/mpd.Client.
type Engine interface {
	Connect() error
	Status() (map[string]string, error)
	CurrentSong() (map[string]string, error)
	PlaylistInfo() ([]map[string]string, error)
	Play(pos int) error
	Pause(pause bool) error
	Stop() error
	Next() error
	Previous() error
	SeekSeconds(pos int) error
	SetRandom(on bool) error
	SetRepeat(on bool) error
	SetSingle(on bool) error
	SetVolume(vol int) error
	Clear() error
	Add(uri string) error
	AddAt(uri string, pos int) error
	Watch(subsystems ...string) (<-chan string, error)
}

// Controller mirrors the engine's playback state and drives it in response
// to commands. All observable state lives behind one mutex and is exposed
// as value snapshots.
type Controller struct {
	engine    Engine
	scrobbler Scrobbler

	mu        sync.RWMutex
	state     State
	listeners []func(State)
	bound     bool
	events    <-chan string
	lastError string

	scrobbleGen    uint64
	scrobbleCancel context.CancelFunc
	scrobbleDelay  func(durationMs int) time.Duration
	scrobbleURI    string

	rebind chan struct{}
}

// Option configures the controller.
type Option func(*Controller)

// WithScrobbler wires a listen reporter into the session.
func WithScrobbler(s Scrobbler) Option {
	return func(c *Controller) {
		c.scrobbler = s
	}
}

// WithScrobbleDelayFn overrides the scrobble threshold computation.
func WithScrobbleDelayFn(fn func(durationMs int) time.Duration) Option {
	return func(c *Controller) {
		c.scrobbleDelay = fn
	}
}

// NewController creates a controller over the given engine. The engine is
// not contacted until Start or the first command.
func NewController(engine Engine, opts ...Option) *Controller {
	c := &Controller{
		engine:        engine,
		scrobbleDelay: ScrobbleDelay,
		rebind:        make(chan struct{}, 1),
		state:         State{Status: StatusStop, Repeat: RepeatOff, Volume: 100},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start binds to the engine and runs the event loop until ctx is cancelled.
// A failed initial bind is not fatal: the controller stays disconnected and
// the next queue replace retries.
func (c *Controller) Start(ctx context.Context) {
	if err := c.bind(); err != nil {
		log.Warn().Err(err).Msg("Player engine not reachable, will retry on demand")
	}
	go c.run(ctx)
}

// Snapshot returns a copy of the current playback state.
func (c *Controller) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cloneLocked()
}

// OnChange registers a listener invoked with a snapshot after every state
// change.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// ClearError dismisses the published playback error.
func (c *Controller) ClearError() {
	c.mu.Lock()
	c.state.Err = nil
	snap := c.cloneLocked()
	listeners := c.listeners
	c.mu.Unlock()

	c.notify(listeners, snap)
}

// Play resumes a paused session or starts the current queue item.
func (c *Controller) Play() error {
	if err := c.bind(); err != nil {
		return err
	}
	if c.Snapshot().Status == StatusPause {
		if err := c.engine.Pause(false); err != nil {
			return err
		}
	} else if err := c.engine.Play(-1); err != nil {
		return err
	}
	c.Refresh()
	return nil
}

// PlayIndex starts playback at the given queue position.
func (c *Controller) PlayIndex(pos int) error {
	return c.command(func() error { return c.engine.Play(pos) })
}

// Pause pauses playback. The pending scrobble, if any, is cancelled.
func (c *Controller) Pause() error {
	return c.command(func() error { return c.engine.Pause(true) })
}

// Stop stops playback.
func (c *Controller) Stop() error {
	return c.command(func() error { return c.engine.Stop() })
}

// Next skips to the next queue item.
func (c *Controller) Next() error {
	return c.command(func() error { return c.engine.Next() })
}

// Previous skips to the previous queue item.
func (c *Controller) Previous() error {
	return c.command(func() error { return c.engine.Previous() })
}

// SeekTo seeks within the current track.
func (c *Controller) SeekTo(ms int) error {
	return c.command(func() error { return c.engine.SeekSeconds(ms / 1000) })
}

// SetShuffle sets random playback.
func (c *Controller) SetShuffle(on bool) error {
	return c.command(func() error { return c.engine.SetRandom(on) })
}

// SetRepeatMode applies the three-way repeat setting to the engine's
// repeat and single flags.
func (c *Controller) SetRepeatMode(mode RepeatMode) error {
	repeat, single := repeatToFlags(mode)
	return c.command(func() error {
		if err := c.engine.SetRepeat(repeat); err != nil {
			return err
		}
		return c.engine.SetSingle(single)
	})
}

// SetVolume sets the engine volume (0-100).
func (c *Controller) SetVolume(vol int) error {
	if vol < 0 {
		vol = 0
	} else if vol > 100 {
		vol = 100
	}
	return c.command(func() error { return c.engine.SetVolume(vol) })
}

// SetQueueFromSongs replaces the queue with the given songs and starts
// playback at start. This is the command that re-attempts a failed bind.
func (c *Controller) SetQueueFromSongs(songs []store.Song, start int) error {
	if err := c.bind(); err != nil {
		return err
	}
	if err := c.engine.Clear(); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	for _, song := range songs {
		if err := c.engine.Add(song.Path); err != nil {
			return fmt.Errorf("failed to add %s: %w", song.Path, err)
		}
	}
	if len(songs) > 0 {
		if start < 0 || start >= len(songs) {
			start = 0
		}
		if err := c.engine.Play(start); err != nil {
			return fmt.Errorf("failed to start playback: %w", err)
		}
	}
	c.Refresh()
	return nil
}

// Enqueue appends a song to the end of the queue.
func (c *Controller) Enqueue(song store.Song) error {
	return c.command(func() error { return c.engine.Add(song.Path) })
}

// EnqueueNext inserts a song directly after the current queue item.
func (c *Controller) EnqueueNext(song store.Song) error {
	pos := c.Snapshot().Position
	return c.command(func() error { return c.engine.AddAt(song.Path, pos+1) })
}

// Close cancels the pending scrobble session.
func (c *Controller) Close() {
	c.mu.Lock()
	c.cancelScrobbleLocked()
	c.mu.Unlock()
}

// command binds, runs the engine call and resyncs.
func (c *Controller) command(fn func() error) error {
	if err := c.bind(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	c.Refresh()
	return nil
}

// bind connects to the engine and opens the subsystem watch. Idempotent.
func (c *Controller) bind() error {
	c.mu.RLock()
	bound := c.bound
	c.mu.RUnlock()
	if bound {
		return nil
	}

	if err := c.engine.Connect(); err != nil {
		return fmt.Errorf("failed to connect to engine: %w", err)
	}

	events, err := c.engine.Watch("player", "options", "playlist", "mixer")
	if err != nil {
		return fmt.Errorf("failed to watch engine: %w", err)
	}

	c.mu.Lock()
	c.bound = true
	c.events = events
	c.mu.Unlock()

	// Wake the event loop so it picks up the new channel.
	select {
	case c.rebind <- struct{}{}:
	default:
	}

	c.Refresh()
	return nil
}

// run is the event loop: it consumes watch events and drives the position
// ticker, which runs only while playing.
func (c *Controller) run(ctx context.Context) {
	ticker := time.NewTicker(positionInterval)
	ticker.Stop()
	ticking := false
	defer ticker.Stop()

	for {
		c.mu.RLock()
		events := c.events
		playing := c.state.Status == StatusPlay
		c.mu.RUnlock()

		if playing && !ticking {
			ticker.Reset(positionInterval)
			ticking = true
		} else if !playing && ticking {
			ticker.Stop()
			ticking = false
		}

		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-c.rebind:
		case subsystem, ok := <-events:
			if !ok {
				c.mu.Lock()
				c.bound = false
				c.events = nil
				c.mu.Unlock()
				log.Warn().Msg("Engine watch closed, player disconnected")
				continue
			}
			switch subsystem {
			case "player", "options", "playlist", "mixer":
				c.Refresh()
			}
		case <-ticker.C:
			c.pollPosition()
		}
	}
}

// Refresh re-reads the full engine state and publishes a new snapshot.
func (c *Controller) Refresh() {
	status, err := c.engine.Status()
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read engine status")
		return
	}

	song, err := c.engine.CurrentSong()
	if err != nil {
		song = map[string]string{}
	}

	entries, err := c.engine.PlaylistInfo()
	if err != nil {
		entries = nil
	}

	queue := make([]Track, 0, len(entries))
	for _, attrs := range entries {
		queue = append(queue, trackFromAttrs(attrs))
	}

	next := State{
		Track:   trackFromAttrs(song),
		Queue:   queue,
		Repeat:  repeatFromFlags(status["repeat"] == "1", status["single"] == "1"),
		Shuffle: status["random"] == "1",
		Volume:  100,
	}

	switch status["state"] {
	case "play":
		next.Status = StatusPlay
	case "pause":
		next.Status = StatusPause
	default:
		next.Status = StatusStop
	}

	if pos, err := strconv.Atoi(status["song"]); err == nil {
		next.Position = pos
	}
	if elapsed, err := strconv.ParseFloat(status["elapsed"], 64); err == nil {
		next.SeekMs = int(elapsed * 1000)
	}
	if vol, err := strconv.Atoi(status["volume"]); err == nil {
		next.Volume = vol
	}

	c.mu.Lock()
	prev := c.state
	next.Err = prev.Err

	advanceTo := -1
	if engineErr := status["error"]; engineErr != "" {
		if engineErr != c.lastError {
			c.lastError = engineErr
			next.Err = classifyError(engineErr)
			if next.Position+1 < len(queue) {
				advanceTo = next.Position + 1
			}
		}
	} else if next.Status == StatusPlay {
		c.lastError = ""
	}

	// A session starts only on a track transition. Resuming from pause must
	// not restart one: a paused listen was cancelled for good.
	switch {
	case next.Status == StatusPlay && next.Track.URI != c.scrobbleURI:
		c.scrobbleURI = next.Track.URI
		c.beginScrobble(next.Track)
	case next.Status != StatusPlay && prev.Status == StatusPlay:
		c.cancelScrobbleLocked()
		if next.Status == StatusStop {
			c.scrobbleURI = ""
		}
	}

	c.state = next
	snap := c.cloneLocked()
	listeners := c.listeners
	c.mu.Unlock()

	if advanceTo >= 0 {
		log.Warn().
			Str("kind", string(snap.Err.Kind)).
			Str("uri", snap.Track.URI).
			Msg("Playback failed, advancing to next queue item")
		if err := c.engine.Play(advanceTo); err != nil {
			log.Warn().Err(err).Msg("Failed to advance past broken track")
		}
	}

	c.notify(listeners, snap)
}

// pollPosition refreshes only the seek position from the engine.
func (c *Controller) pollPosition() {
	status, err := c.engine.Status()
	if err != nil {
		return
	}
	elapsed, err := strconv.ParseFloat(status["elapsed"], 64)
	if err != nil {
		return
	}

	c.mu.Lock()
	c.state.SeekMs = int(elapsed * 1000)
	snap := c.cloneLocked()
	listeners := c.listeners
	c.mu.Unlock()

	c.notify(listeners, snap)
}

// cloneLocked copies the state including the queue. Caller holds c.mu.
func (c *Controller) cloneLocked() State {
	snap := c.state
	snap.Queue = append([]Track(nil), c.state.Queue...)
	if c.state.Err != nil {
		errCopy := *c.state.Err
		snap.Err = &errCopy
	}
	return snap
}

func (c *Controller) notify(listeners []func(State), snap State) {
	for _, fn := range listeners {
		fn(snap)
	}
}
