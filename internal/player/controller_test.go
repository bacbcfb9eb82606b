package player_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fermata-audio/fermata/internal/player"
	"github.com/fermata-audio/fermata/internal/scrobble"
	"github.com/fermata-audio/fermata/internal/store"
)

// fakeEngine is an in-memory playback engine. Commands mutate its status
// map the way MPD would so a Refresh reads back consistent state.
type fakeEngine struct {
	mu         sync.Mutex
	connectErr error
	status     map[string]string
	queue      []map[string]string
	events     chan string

	played  []int
	added   []string
	addedAt []int
	cleared int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		status: map[string]string{"state": "stop"},
		events: make(chan string, 16),
	}
}

func (e *fakeEngine) Connect() error { return e.connectErr }

func (e *fakeEngine) Status() (map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.status))
	for k, v := range e.status {
		out[k] = v
	}
	return out, nil
}

func (e *fakeEngine) CurrentSong() (map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, err := strconv.Atoi(e.status["song"]); err == nil && idx >= 0 && idx < len(e.queue) {
		return e.queue[idx], nil
	}
	return map[string]string{}, nil
}

func (e *fakeEngine) PlaylistInfo() ([]map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]map[string]string(nil), e.queue...), nil
}

func (e *fakeEngine) Play(pos int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.played = append(e.played, pos)
	if pos >= 0 {
		e.status["song"] = strconv.Itoa(pos)
	}
	e.status["state"] = "play"
	delete(e.status, "error")
	return nil
}

func (e *fakeEngine) Pause(pause bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pause {
		e.status["state"] = "pause"
	} else {
		e.status["state"] = "play"
	}
	return nil
}

func (e *fakeEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status["state"] = "stop"
	return nil
}

func (e *fakeEngine) Next() error     { return nil }
func (e *fakeEngine) Previous() error { return nil }

func (e *fakeEngine) SeekSeconds(pos int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status["elapsed"] = strconv.Itoa(pos)
	return nil
}

func (e *fakeEngine) SetRandom(on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status["random"] = boolFlag(on)
	return nil
}

func (e *fakeEngine) SetRepeat(on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status["repeat"] = boolFlag(on)
	return nil
}

func (e *fakeEngine) SetSingle(on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status["single"] = boolFlag(on)
	return nil
}

func (e *fakeEngine) SetVolume(vol int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status["volume"] = strconv.Itoa(vol)
	return nil
}

func (e *fakeEngine) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleared++
	e.queue = nil
	e.status["state"] = "stop"
	delete(e.status, "song")
	return nil
}

func (e *fakeEngine) Add(uri string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.added = append(e.added, uri)
	e.queue = append(e.queue, map[string]string{"file": uri})
	return nil
}

func (e *fakeEngine) AddAt(uri string, pos int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addedAt = append(e.addedAt, pos)
	entry := map[string]string{"file": uri}
	if pos >= len(e.queue) {
		e.queue = append(e.queue, entry)
		return nil
	}
	e.queue = append(e.queue[:pos], append([]map[string]string{entry}, e.queue[pos:]...)...)
	return nil
}

func (e *fakeEngine) Watch(subsystems ...string) (<-chan string, error) {
	return e.events, nil
}

func (e *fakeEngine) setQueue(entries []map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = entries
}

func (e *fakeEngine) setStatus(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status[key] = value
}

func (e *fakeEngine) playCalls() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.played...)
}

func boolFlag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

// fakeScrobbler counts listen reports.
type fakeScrobbler struct {
	mu         sync.Mutex
	nowPlaying []scrobble.NowPlaying
	scrobbles  []scrobble.Submission
}

func (f *fakeScrobbler) ReportNowPlaying(ctx context.Context, np scrobble.NowPlaying) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nowPlaying = append(f.nowPlaying, np)
}

func (f *fakeScrobbler) ReportScrobble(ctx context.Context, sub scrobble.Submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrobbles = append(f.scrobbles, sub)
}

func (f *fakeScrobbler) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.nowPlaying), len(f.scrobbles)
}

func TestPlayFailsWhenEngineUnreachable(t *testing.T) {
	engine := newFakeEngine()
	engine.connectErr = errors.New("connection refused")

	ctrl := player.NewController(engine)
	if err := ctrl.Play(); err == nil {
		t.Error("Expected Play to fail when the engine is unreachable")
	}
}

func TestSetQueueFromSongsReplacesAndPlays(t *testing.T) {
	engine := newFakeEngine()
	ctrl := player.NewController(engine)

	songs := []store.Song{
		{Title: "One", Path: "music/one.flac"},
		{Title: "Two", Path: "music/two.flac"},
	}
	if err := ctrl.SetQueueFromSongs(songs, 0); err != nil {
		t.Fatalf("SetQueueFromSongs failed: %v", err)
	}

	if engine.cleared != 1 {
		t.Errorf("Expected the queue to be cleared once, got %d", engine.cleared)
	}
	if len(engine.added) != 2 {
		t.Errorf("Expected 2 adds, got %v", engine.added)
	}
	if calls := engine.playCalls(); len(calls) != 1 || calls[0] != 0 {
		t.Errorf("Expected Play(0), got %v", calls)
	}

	snap := ctrl.Snapshot()
	if snap.Status != player.StatusPlay {
		t.Errorf("Expected playing state, got %s", snap.Status)
	}
	if len(snap.Queue) != 2 {
		t.Errorf("Expected queue of 2, got %d", len(snap.Queue))
	}
	if snap.Track.URI != "music/one.flac" {
		t.Errorf("Expected track one.flac, got %s", snap.Track.URI)
	}
	if snap.Track.Title != "one.flac" {
		t.Errorf("Untagged track should use its file name as title, got %q", snap.Track.Title)
	}
}

func TestSetQueueReattemptsFailedBind(t *testing.T) {
	engine := newFakeEngine()
	engine.connectErr = errors.New("connection refused")
	ctrl := player.NewController(engine)

	songs := []store.Song{{Title: "One", Path: "music/one.flac"}}
	if err := ctrl.SetQueueFromSongs(songs, 0); err == nil {
		t.Fatal("Expected first queue replace to fail")
	}

	engine.connectErr = nil
	if err := ctrl.SetQueueFromSongs(songs, 0); err != nil {
		t.Fatalf("Queue replace after recovery failed: %v", err)
	}
	if ctrl.Snapshot().Status != player.StatusPlay {
		t.Error("Expected playback after the engine came back")
	}
}

func TestRepeatModeRoundTrip(t *testing.T) {
	engine := newFakeEngine()
	ctrl := player.NewController(engine)

	for _, mode := range []player.RepeatMode{player.RepeatOne, player.RepeatAll, player.RepeatOff} {
		if err := ctrl.SetRepeatMode(mode); err != nil {
			t.Fatalf("SetRepeatMode(%s) failed: %v", mode, err)
		}
		if got := ctrl.Snapshot().Repeat; got != mode {
			t.Errorf("Expected repeat %s, got %s", mode, got)
		}
	}

	if engine.status["repeat"] != "0" || engine.status["single"] != "0" {
		t.Errorf("RepeatOff should clear both flags: repeat=%s single=%s",
			engine.status["repeat"], engine.status["single"])
	}
}

func TestEnqueueNextInsertsAfterCurrent(t *testing.T) {
	engine := newFakeEngine()
	ctrl := player.NewController(engine)

	songs := []store.Song{
		{Path: "music/a.flac"},
		{Path: "music/b.flac"},
		{Path: "music/c.flac"},
	}
	if err := ctrl.SetQueueFromSongs(songs, 1); err != nil {
		t.Fatalf("SetQueueFromSongs failed: %v", err)
	}

	if err := ctrl.EnqueueNext(store.Song{Path: "music/next.flac"}); err != nil {
		t.Fatalf("EnqueueNext failed: %v", err)
	}

	if len(engine.addedAt) != 1 || engine.addedAt[0] != 2 {
		t.Errorf("Expected insert at position 2, got %v", engine.addedAt)
	}
	snap := ctrl.Snapshot()
	if len(snap.Queue) != 4 || snap.Queue[2].URI != "music/next.flac" {
		t.Errorf("Expected the song after the current item: %v", snap.Queue)
	}
}

func TestPlaybackErrorClassifiedAndAdvances(t *testing.T) {
	engine := newFakeEngine()
	ctrl := player.NewController(engine)

	songs := []store.Song{
		{Path: "music/broken.flac"},
		{Path: "music/fine.flac"},
	}
	if err := ctrl.SetQueueFromSongs(songs, 0); err != nil {
		t.Fatalf("SetQueueFromSongs failed: %v", err)
	}

	engine.setStatus("state", "stop")
	engine.setStatus("error", "Failed to open 'music/broken.flac': No such file or directory")
	ctrl.Refresh()

	snap := ctrl.Snapshot()
	if snap.Err == nil {
		t.Fatal("Expected a published playback error")
	}
	if snap.Err.Kind != player.ErrorFileMissing {
		t.Errorf("Expected file-missing, got %s", snap.Err.Kind)
	}

	// Play(0) from the queue replace plus the auto-advance to 1.
	calls := engine.playCalls()
	if len(calls) != 2 || calls[1] != 1 {
		t.Errorf("Expected auto-advance Play(1), got %v", calls)
	}
}

func TestPlaybackErrorWithoutNextStaysStopped(t *testing.T) {
	engine := newFakeEngine()
	ctrl := player.NewController(engine)

	if err := ctrl.SetQueueFromSongs([]store.Song{{Path: "music/broken.flac"}}, 0); err != nil {
		t.Fatalf("SetQueueFromSongs failed: %v", err)
	}

	engine.setStatus("state", "stop")
	engine.setStatus("error", "DECODE_ERROR: unsupported codec")
	ctrl.Refresh()

	snap := ctrl.Snapshot()
	if snap.Err == nil || snap.Err.Kind != player.ErrorUnsupportedFormat {
		t.Fatalf("Expected unsupported-format error, got %+v", snap.Err)
	}
	if snap.Status != player.StatusStop {
		t.Errorf("Expected stopped state, got %s", snap.Status)
	}
	if calls := engine.playCalls(); len(calls) != 1 {
		t.Errorf("No auto-advance expected without a next item, got %v", calls)
	}

	ctrl.ClearError()
	if ctrl.Snapshot().Err != nil {
		t.Error("ClearError should dismiss the published error")
	}
}

func TestScrobbleAfterThreshold(t *testing.T) {
	engine := newFakeEngine()
	engine.setQueue([]map[string]string{
		{"file": "music/a.flac", "Title": "Alpha", "Artist": "Band", "Album": "LP", "duration": "240.0"},
	})
	reporter := &fakeScrobbler{}

	ctrl := player.NewController(engine,
		player.WithScrobbler(reporter),
		player.WithScrobbleDelayFn(func(int) time.Duration { return 20 * time.Millisecond }),
	)

	if err := ctrl.PlayIndex(0); err != nil {
		t.Fatalf("PlayIndex failed: %v", err)
	}

	waitFor(t, func() bool { _, s := reporter.counts(); return s == 1 })

	np, _ := reporter.counts()
	if np != 1 {
		t.Errorf("Expected 1 now-playing report, got %d", np)
	}
	reporter.mu.Lock()
	sub := reporter.scrobbles[0]
	reporter.mu.Unlock()
	if sub.Artist != "Band" || sub.Track != "Alpha" || sub.DurationMs != 240000 {
		t.Errorf("Unexpected submission: %+v", sub)
	}
	if sub.StartedAt == 0 {
		t.Error("Submission should carry the start timestamp")
	}
}

func TestPauseCancelsPendingScrobble(t *testing.T) {
	engine := newFakeEngine()
	engine.setQueue([]map[string]string{
		{"file": "music/a.flac", "Title": "Alpha", "Artist": "Band", "duration": "240.0"},
	})
	reporter := &fakeScrobbler{}

	ctrl := player.NewController(engine,
		player.WithScrobbler(reporter),
		player.WithScrobbleDelayFn(func(int) time.Duration { return 80 * time.Millisecond }),
	)

	if err := ctrl.PlayIndex(0); err != nil {
		t.Fatalf("PlayIndex failed: %v", err)
	}
	waitFor(t, func() bool { np, _ := reporter.counts(); return np == 1 })

	if err := ctrl.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if _, s := reporter.counts(); s != 0 {
		t.Errorf("Pause should cancel the pending scrobble, got %d submissions", s)
	}
}

func TestResumeAfterPauseStartsNoNewScrobble(t *testing.T) {
	engine := newFakeEngine()
	engine.setQueue([]map[string]string{
		{"file": "music/a.flac", "Title": "Alpha", "Artist": "Band", "duration": "240.0"},
	})
	reporter := &fakeScrobbler{}

	ctrl := player.NewController(engine,
		player.WithScrobbler(reporter),
		player.WithScrobbleDelayFn(func(int) time.Duration { return 60 * time.Millisecond }),
	)

	if err := ctrl.PlayIndex(0); err != nil {
		t.Fatalf("PlayIndex failed: %v", err)
	}
	waitFor(t, func() bool { np, _ := reporter.counts(); return np == 1 })

	if err := ctrl.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := ctrl.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	// The cancelled session must not come back after the resume.
	time.Sleep(200 * time.Millisecond)
	np, s := reporter.counts()
	if np != 1 {
		t.Errorf("Resume should not re-send now-playing, got %d notifications", np)
	}
	if s != 0 {
		t.Errorf("Resume should not revive the cancelled scrobble, got %d submissions", s)
	}
}

func TestTrackChangeSupersedesPendingScrobble(t *testing.T) {
	engine := newFakeEngine()
	engine.setQueue([]map[string]string{
		{"file": "music/a.flac", "Title": "Alpha", "Artist": "Band", "duration": "240.0"},
		{"file": "music/b.flac", "Title": "Beta", "Artist": "Band", "duration": "240.0"},
	})
	reporter := &fakeScrobbler{}

	ctrl := player.NewController(engine,
		player.WithScrobbler(reporter),
		player.WithScrobbleDelayFn(func(int) time.Duration { return 60 * time.Millisecond }),
	)

	if err := ctrl.PlayIndex(0); err != nil {
		t.Fatalf("PlayIndex failed: %v", err)
	}
	if err := ctrl.PlayIndex(1); err != nil {
		t.Fatalf("PlayIndex failed: %v", err)
	}

	waitFor(t, func() bool { _, s := reporter.counts(); return s == 1 })
	time.Sleep(100 * time.Millisecond)

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	if len(reporter.scrobbles) != 1 || reporter.scrobbles[0].Track != "Beta" {
		t.Errorf("Only the superseding track should scrobble: %+v", reporter.scrobbles)
	}
}

func TestUntaggedTrackNeverScrobbles(t *testing.T) {
	engine := newFakeEngine()
	engine.setQueue([]map[string]string{
		{"file": "music/nameless.flac", "duration": "240.0"},
	})
	reporter := &fakeScrobbler{}

	ctrl := player.NewController(engine,
		player.WithScrobbler(reporter),
		player.WithScrobbleDelayFn(func(int) time.Duration { return 10 * time.Millisecond }),
	)

	if err := ctrl.PlayIndex(0); err != nil {
		t.Fatalf("PlayIndex failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	np, s := reporter.counts()
	if np != 0 || s != 0 {
		t.Errorf("Tracks without artist and title must not report: np=%d scrobbles=%d", np, s)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition never became true")
}
