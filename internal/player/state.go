// Package player owns the playback session: it drives the engine, mirrors
// its state, recovers from per-track failures and times scrobbles.
package player

import (
	"path"
	"strconv"
	"strings"
)

// Status constants for player state
const (
	StatusPlay  = "play"
	StatusPause = "pause"
	StatusStop  = "stop"
)

// RepeatMode is the three-way repeat setting.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

// ErrorKind classifies a playback failure for the UI.
type ErrorKind string

const (
	ErrorFileMissing       ErrorKind = "file-missing"
	ErrorNoPermission      ErrorKind = "no-permission"
	ErrorUnsupportedFormat ErrorKind = "unsupported-format"
	ErrorNetwork           ErrorKind = "network"
	ErrorGeneric           ErrorKind = "generic"
)

// PlaybackError is a classified engine failure with a user-facing message.
type PlaybackError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"detail"`
}

// Track is one queue entry as mirrored from the engine.
type Track struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	URI        string `json:"uri"`
	AlbumArt   string `json:"albumart"`
	DurationMs int    `json:"durationMs"`
}

// State is a snapshot of the playback session. Queue is owned by the
// snapshot; callers may read it freely.
type State struct {
	Status   string         `json:"status"`
	Track    Track          `json:"track"`
	Queue    []Track        `json:"queue"`
	Position int            `json:"position"`
	SeekMs   int            `json:"seek"`
	Volume   int            `json:"volume"`
	Repeat   RepeatMode     `json:"repeat"`
	Shuffle  bool           `json:"shuffle"`
	Err      *PlaybackError `json:"error,omitempty"`
}

// classifyError maps an engine error string onto an ErrorKind plus a short
// message a UI can show as-is.
func classifyError(text string) *PlaybackError {
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "no such file"),
		strings.Contains(lower, "not found"),
		strings.Contains(lower, "failed to open"):
		return &PlaybackError{Kind: ErrorFileMissing, Message: "File is missing or was moved", Detail: text}
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "access denied"):
		return &PlaybackError{Kind: ErrorNoPermission, Message: "No permission to read the file", Detail: text}
	case strings.Contains(lower, "decoder"),
		strings.Contains(lower, "unsupported"),
		strings.Contains(lower, "unrecognized"),
		strings.Contains(lower, "unknown format"):
		return &PlaybackError{Kind: ErrorUnsupportedFormat, Message: "Audio format is not supported", Detail: text}
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "timed out"),
		strings.Contains(lower, "connection"),
		strings.Contains(lower, "refused"),
		strings.Contains(lower, "network"):
		return &PlaybackError{Kind: ErrorNetwork, Message: "Network problem while reading the stream", Detail: text}
	default:
		return &PlaybackError{Kind: ErrorGeneric, Message: "Playback failed", Detail: text}
	}
}

// repeatFromFlags maps the engine's repeat and single flags onto a mode.
func repeatFromFlags(repeat, single bool) RepeatMode {
	switch {
	case single:
		return RepeatOne
	case repeat:
		return RepeatAll
	default:
		return RepeatOff
	}
}

// repeatToFlags is the inverse of repeatFromFlags.
func repeatToFlags(mode RepeatMode) (repeat, single bool) {
	switch mode {
	case RepeatOne:
		return true, true
	case RepeatAll:
		return true, false
	default:
		return false, false
	}
}

// trackFromAttrs maps one engine song entry onto a track. Title falls back
// to the file name when the tag is missing.
func trackFromAttrs(attrs map[string]string) Track {
	file := attrs["file"]

	title := attrs["Title"]
	if title == "" && file != "" {
		title = path.Base(file)
	}

	albumArt := ""
	if file != "" {
		albumArt = "/albumart?path=" + file
	}

	return Track{
		Title:      title,
		Artist:     attrs["Artist"],
		Album:      attrs["Album"],
		URI:        file,
		AlbumArt:   albumArt,
		DurationMs: attrDurationMs(attrs),
	}
}

// attrDurationMs reads a duration in milliseconds from song attrs.
func attrDurationMs(attrs map[string]string) int {
	if d, err := strconv.ParseFloat(attrs["duration"], 64); err == nil {
		return int(d * 1000)
	}
	if t, err := strconv.Atoi(attrs["Time"]); err == nil {
		return t * 1000
	}
	return 0
}
