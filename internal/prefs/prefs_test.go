package prefs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fermata-audio/fermata/internal/prefs"
)

func newStore(t *testing.T) (*prefs.Store, string) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "prefs_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	path := filepath.Join(tmpDir, "prefs.json")
	s, err := prefs.NewStore(path)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s, path
}

func TestDefaults(t *testing.T) {
	s, _ := newStore(t)

	p := s.Get()
	if p.ScrobblingEnabled {
		t.Error("Scrobbling should be disabled by default")
	}
	if p.ArtDownloadPolicy != prefs.ArtWifi {
		t.Errorf("Expected default art policy wifi, got %s", p.ArtDownloadPolicy)
	}
}

func TestRoundTrip(t *testing.T) {
	s, path := newStore(t)

	if err := s.SetScrobblingEnabled(true); err != nil {
		t.Fatalf("SetScrobblingEnabled failed: %v", err)
	}
	if err := s.SetArtDownloadPolicy(prefs.ArtAlways); err != nil {
		t.Fatalf("SetArtDownloadPolicy failed: %v", err)
	}
	if err := s.SetLastFMSession("alice", "sk-123"); err != nil {
		t.Fatalf("SetLastFMSession failed: %v", err)
	}

	// A fresh store over the same file sees the persisted values
	reloaded, err := prefs.NewStore(path)
	if err != nil {
		t.Fatalf("NewStore reload failed: %v", err)
	}

	p := reloaded.Get()
	if !p.ScrobblingEnabled {
		t.Error("ScrobblingEnabled should survive reload")
	}
	if p.ArtDownloadPolicy != prefs.ArtAlways {
		t.Errorf("Expected art policy always, got %s", p.ArtDownloadPolicy)
	}
	if p.LastFMUsername != "alice" || p.LastFMSessionKey != "sk-123" {
		t.Errorf("Last.fm session not persisted: %+v", p)
	}
}

func TestClearLastFMSession(t *testing.T) {
	s, _ := newStore(t)

	if err := s.SetLastFMSession("alice", "sk-123"); err != nil {
		t.Fatalf("SetLastFMSession failed: %v", err)
	}
	if err := s.SetScrobblingEnabled(true); err != nil {
		t.Fatalf("SetScrobblingEnabled failed: %v", err)
	}

	if err := s.ClearLastFMSession(); err != nil {
		t.Fatalf("ClearLastFMSession failed: %v", err)
	}

	p := s.Get()
	if p.LastFMUsername != "" || p.LastFMSessionKey != "" {
		t.Errorf("Session should be cleared: %+v", p)
	}
	if p.ScrobblingEnabled {
		t.Error("Clearing the session should disable scrobbling")
	}
}

func TestInvalidArtPolicyRejected(t *testing.T) {
	s, _ := newStore(t)

	if err := s.SetArtDownloadPolicy("sometimes"); err == nil {
		t.Error("Invalid policy should be rejected")
	}
}
