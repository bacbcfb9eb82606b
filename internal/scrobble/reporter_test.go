package scrobble_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/fermata-audio/fermata/internal/prefs"
	"github.com/fermata-audio/fermata/internal/scrobble"
)

func newPrefs(t *testing.T) *prefs.Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "reporter_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := prefs.NewStore(filepath.Join(tmpDir, "prefs.json"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestReporterSkipsWhenDisabled(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	store := newPrefs(t)
	// Session stored but scrobbling left off
	if err := store.SetLastFMSession("alice", "sk"); err != nil {
		t.Fatalf("SetLastFMSession failed: %v", err)
	}

	client := scrobble.NewClient("key", "secret", scrobble.WithBaseURL(server.URL))
	reporter := scrobble.NewReporter(client, store)

	reporter.ReportNowPlaying(context.Background(), scrobble.NowPlaying{Artist: "A", Track: "T"})
	reporter.ReportScrobble(context.Background(), scrobble.Submission{Artist: "A", Track: "T", StartedAt: 1})

	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("Reporter should not call the API while scrobbling is disabled, got %d calls", calls)
	}
}

func TestReporterSubmitsWhenEnabled(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	store := newPrefs(t)
	if err := store.SetLastFMSession("alice", "sk"); err != nil {
		t.Fatalf("SetLastFMSession failed: %v", err)
	}
	if err := store.SetScrobblingEnabled(true); err != nil {
		t.Fatalf("SetScrobblingEnabled failed: %v", err)
	}

	client := scrobble.NewClient("key", "secret", scrobble.WithBaseURL(server.URL))
	reporter := scrobble.NewReporter(client, store)

	reporter.ReportScrobble(context.Background(), scrobble.Submission{Artist: "A", Track: "T", StartedAt: 1})

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected 1 API call, got %d", calls)
	}
}

func TestReporterSwallowsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // Force transport errors

	store := newPrefs(t)
	store.SetLastFMSession("alice", "sk")
	store.SetScrobblingEnabled(true)

	client := scrobble.NewClient("key", "secret", scrobble.WithBaseURL(server.URL))
	reporter := scrobble.NewReporter(client, store)

	// Must not panic or surface the error
	reporter.ReportNowPlaying(context.Background(), scrobble.NowPlaying{Artist: "A", Track: "T"})
	reporter.ReportScrobble(context.Background(), scrobble.Submission{Artist: "A", Track: "T", StartedAt: 1})
}
