// Package sdk describes the embedded Web Playback SDK session player: its events, state payloads and command
// surface, plus the process-wide script loader.
//
// The player itself lives outside the Go process (see internal/bridge); everything here is the contract the
// sync core programs against, so tests can substitute a fake [Player].
package sdk

import (
	"context"

	"github.com/desertthunder/playsync/internal/models"
)

// Event names a player event.
type Event string

const (
	EventReady               Event = "ready"
	EventNotReady            Event = "not_ready"
	EventPlayerStateChanged  Event = "player_state_changed"
	EventInitializationError Event = "initialization_error"
	EventAuthenticationError Event = "authentication_error"
	EventAccountError        Event = "account_error"
	EventPlaybackError       Event = "playback_error"
)

// ErrorEvents are the four lifecycle error events.
var ErrorEvents = []Event{
	EventInitializationError,
	EventAuthenticationError,
	EventAccountError,
	EventPlaybackError,
}

// IsError reports whether e is one of [ErrorEvents].
func (e Event) IsError() bool {
	for _, ev := range ErrorEvents {
		if e == ev {
			return true
		}
	}
	return false
}

// Image is an album artwork reference.
type Image struct {
	URL string `json:"url"`
}

// Artist is the artist reference carried in a track window.
type Artist struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// Album is the album reference carried in a track window.
type Album struct {
	Name   string  `json:"name"`
	URI    string  `json:"uri"`
	Images []Image `json:"images"`
}

// Track is a track as reported by the SDK.
type Track struct {
	ID         string   `json:"id"`
	URI        string   `json:"uri"`
	Name       string   `json:"name"`
	DurationMS int      `json:"duration_ms"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
}

// Model converts t into a [models.Track].
func (t Track) Model() *models.Track {
	track := &models.Track{
		ID:         t.ID,
		URI:        t.URI,
		Name:       t.Name,
		Album:      t.Album.Name,
		AlbumURI:   t.Album.URI,
		DurationMS: t.DurationMS,
	}
	for _, a := range t.Artists {
		track.Artists = append(track.Artists, a.Name)
	}
	if len(t.Album.Images) > 0 {
		track.ImageURL = t.Album.Images[0].URL
	}
	return track
}

// TrackWindow is the SDK's view of the queue around the current track.
type TrackWindow struct {
	CurrentTrack   *Track  `json:"current_track"`
	PreviousTracks []Track `json:"previous_tracks"`
	NextTracks     []Track `json:"next_tracks"`
}

// Context is the playback context (album, playlist, ...). An empty URI means no context.
type Context struct {
	URI      string         `json:"uri"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// State is the payload of [EventPlayerStateChanged] and [Player.GetCurrentState].
type State struct {
	Context     Context     `json:"context"`
	Paused      bool        `json:"paused"`
	Position    int         `json:"position"`
	Duration    int         `json:"duration"`
	Shuffle     bool        `json:"shuffle"`
	RepeatMode  int         `json:"repeat_mode"`
	TrackWindow TrackWindow `json:"track_window"`
}

// Snapshot converts the SDK state into a normalized [models.PlaybackSnapshot]. A nil state is inactive.
func (s *State) Snapshot() models.PlaybackSnapshot {
	if s == nil {
		return models.PlaybackSnapshot{Repeat: models.RepeatOff}
	}

	snap := models.PlaybackSnapshot{
		IsActive:   true,
		HasContext: s.Context.URI != "",
		IsPlaying:  !s.Paused,
		PositionMS: s.Position,
		DurationMS: s.Duration,
		Shuffle:    s.Shuffle,
		Repeat:     models.RepeatModeFromSDK(s.RepeatMode),
		ContextURI: s.Context.URI,
	}
	if s.TrackWindow.CurrentTrack != nil {
		snap.CurrentTrack = s.TrackWindow.CurrentTrack.Model()
	}
	for _, t := range s.TrackWindow.PreviousTracks {
		snap.PreviousTracks = append(snap.PreviousTracks, *t.Model())
	}
	for _, t := range s.TrackWindow.NextTracks {
		snap.NextTracks = append(snap.NextTracks, *t.Model())
	}
	snap.Normalize()
	return snap
}

// Payload is delivered to listeners. Which fields are set depends on the event:
// DeviceID for ready/not_ready, State for player_state_changed (nil when nothing is loaded here),
// Message for the error events.
type Payload struct {
	DeviceID string `json:"device_id,omitempty"`
	State    *State `json:"state,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Listener receives event payloads.
type Listener func(Payload)

// Player is the embedded session player.
type Player interface {
	// Connect connects the player to Spotify. false means the connection was refused.
	Connect(ctx context.Context) (bool, error)
	Disconnect()

	// AddListener subscribes fn to event and returns a function that removes it.
	AddListener(event Event, fn Listener) (remove func())

	TogglePlay(ctx context.Context) error
	Seek(ctx context.Context, positionMS int) error
	PreviousTrack(ctx context.Context) error
	NextTrack(ctx context.Context) error

	// SetVolume sets the player volume in the range 0..1.
	SetVolume(ctx context.Context, volume float64) error

	// GetCurrentState returns nil when nothing is loaded on this player.
	GetCurrentState(ctx context.Context) (*State, error)
}

// TokenCallback receives the bearer token the SDK asked for. An empty string means none is available.
type TokenCallback func(token string)

// Options configure a new [Player].
type Options struct {
	Name          string
	Volume        float64
	GetOAuthToken func(cb TokenCallback)
}

// Factory constructs a [Player]. It runs only after the script is loaded.
type Factory func(opts Options) (Player, error)
