package player_test

import (
	"testing"
	"time"

	"github.com/fermata-audio/fermata/internal/player"
)

func TestScrobbleDelay(t *testing.T) {
	tests := []struct {
		name       string
		durationMs int
		expected   time.Duration
	}{
		{"long track uses half duration", 240000, 120 * time.Second},
		{"short track clamps to 30s", 10000, 30 * time.Second},
		{"exactly one minute clamps to 30s", 60000, 30 * time.Second},
		{"unknown duration defaults to 30s", 0, 30 * time.Second},
		{"negative duration defaults to 30s", -1, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := player.ScrobbleDelay(tt.durationMs); got != tt.expected {
				t.Errorf("ScrobbleDelay(%d) = %v, expected %v", tt.durationMs, got, tt.expected)
			}
		})
	}
}
