// Package scrobble provides a Last.fm API client and a playback reporter built on it.
package scrobble

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrArtworkNotFound indicates no album art was found (permanent failure)
	ErrArtworkNotFound = errors.New("artwork not found")

	// ErrTemporaryFailure indicates a temporary failure (should retry)
	ErrTemporaryFailure = errors.New("temporary failure")

	// ErrRateLimited indicates rate limit was exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrNotAuthenticated indicates no session key is available
	ErrNotAuthenticated = errors.New("not authenticated")
)

// AuthError is returned when Last.fm rejects the caller's credentials or
// session. It is distinguishable from transport and service failures so
// callers can tell bad credentials apart from a flaky network.
type AuthError struct {
	Code    int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("lastfm error %d: %s", e.Code, e.Message)
}

// APIError is any other application-level rejection from Last.fm, such as
// code 11 (service offline) or 16 (temporarily unavailable).
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lastfm error %d: %s", e.Code, e.Message)
}

// Session holds the result of a successful mobile-session login.
type Session struct {
	Username   string
	Key        string
	Subscriber bool
}

// NowPlaying describes the track currently being played.
type NowPlaying struct {
	Artist     string
	Track      string
	Album      string
	DurationMs int
}

// Submission describes a completed listen to submit as a scrobble.
type Submission struct {
	Artist     string
	Track      string
	Album      string
	StartedAt  int64 // Unix timestamp of when playback started
	DurationMs int
}
