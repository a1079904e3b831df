package models

import (
	"fmt"
	"strings"
)

// RepeatMode is the repeat setting of a player.
type RepeatMode string

const (
	RepeatOff     RepeatMode = "off"
	RepeatContext RepeatMode = "context"
	RepeatTrack   RepeatMode = "track"
)

// ParseRepeatMode accepts the Web API spelling of a repeat mode.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch mode := RepeatMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case RepeatOff, RepeatContext, RepeatTrack:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown repeat mode %q", s)
	}
}

// RepeatModeFromSDK maps the SDK's numeric repeat mode (0 off, 1 context, 2 track).
func RepeatModeFromSDK(n int) RepeatMode {
	switch n {
	case 1:
		return RepeatContext
	case 2:
		return RepeatTrack
	default:
		return RepeatOff
	}
}

// Device represents a Spotify Connect device.
type Device struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	VolumePercent *int   `json:"volume_percent"`
	IsActive      bool   `json:"is_active"`
	IsRestricted  bool   `json:"is_restricted"`
}

// Volume returns the device volume, or -1 when the device does not report one.
func (d Device) Volume() int {
	if d.VolumePercent == nil {
		return -1
	}
	return *d.VolumePercent
}

// Track identifies a playable item along with the metadata needed for display.
type Track struct {
	ID         string   `json:"id"`
	URI        string   `json:"uri"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	AlbumURI   string   `json:"album_uri"`
	ImageURL   string   `json:"image_url"`
	DurationMS int      `json:"duration_ms"`
}

// ArtistLine joins the artist names for display.
func (t Track) ArtistLine() string {
	if len(t.Artists) == 0 {
		return "Unknown Artist"
	}
	return strings.Join(t.Artists, ", ")
}

// PlaybackSnapshot is the canonical "now playing" view.
type PlaybackSnapshot struct {
	IsActive       bool       `json:"is_active"`   // the embedded session holds focus
	HasContext     bool       `json:"has_context"` // a playlist/album/queue is loaded
	IsPlaying      bool       `json:"is_playing"`
	PositionMS     int        `json:"position_ms"`
	DurationMS     int        `json:"duration_ms"`
	Shuffle        bool       `json:"shuffle"`
	Repeat         RepeatMode `json:"repeat"`
	ContextURI     string     `json:"context_uri,omitempty"`
	CurrentTrack   *Track     `json:"current_track"`
	PreviousTracks []Track    `json:"previous_tracks,omitempty"`
	NextTracks     []Track    `json:"next_tracks,omitempty"`
}

// Normalize enforces the snapshot invariants: 0 <= position <= duration, playing implies active,
// and no current track implies not playing.
func (s *PlaybackSnapshot) Normalize() {
	if s.DurationMS < 0 {
		s.DurationMS = 0
	}
	if s.PositionMS < 0 {
		s.PositionMS = 0
	}
	if s.PositionMS > s.DurationMS {
		s.PositionMS = s.DurationMS
	}
	if !s.IsActive || s.CurrentTrack == nil {
		s.IsPlaying = false
	}
	if s.Repeat == "" {
		s.Repeat = RepeatOff
	}
}

// Clone returns a deep copy so callers can never mutate store-owned slices.
func (s PlaybackSnapshot) Clone() PlaybackSnapshot {
	out := s
	if s.CurrentTrack != nil {
		t := cloneTrack(*s.CurrentTrack)
		out.CurrentTrack = &t
	}
	out.PreviousTracks = cloneTracks(s.PreviousTracks)
	out.NextTracks = cloneTracks(s.NextTracks)
	return out
}

func cloneTracks(in []Track) []Track {
	if in == nil {
		return nil
	}
	out := make([]Track, len(in))
	for i, t := range in {
		out[i] = cloneTrack(t)
	}
	return out
}

func cloneTrack(t Track) Track {
	t.Artists = append([]string(nil), t.Artists...)
	return t
}
