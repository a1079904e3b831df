package models

import (
	"fmt"
	"time"
)

// PlayedTrack is one play history entry, recorded when the embedded session starts a new track.
type PlayedTrack struct {
	id         string
	sequence   int
	track      Track
	contextURI string
	deviceID   string
	playedAt   time.Time
	createdAt  time.Time
	updatedAt  time.Time
}

// NewPlayedTrack creates an unsaved history entry for track played on deviceID at playedAt.
func NewPlayedTrack(track Track, contextURI, deviceID string, playedAt time.Time) *PlayedTrack {
	now := time.Now().UTC()
	return &PlayedTrack{
		track:      track,
		contextURI: contextURI,
		deviceID:   deviceID,
		playedAt:   playedAt.UTC(),
		createdAt:  now,
		updatedAt:  now,
	}
}

// RestorePlayedTrack rebuilds an entry read from storage.
func RestorePlayedTrack(id string, sequence int, track Track, contextURI, deviceID string, playedAt, createdAt, updatedAt time.Time) *PlayedTrack {
	return &PlayedTrack{
		id:         id,
		sequence:   sequence,
		track:      track,
		contextURI: contextURI,
		deviceID:   deviceID,
		playedAt:   playedAt,
		createdAt:  createdAt,
		updatedAt:  updatedAt,
	}
}

func (p *PlayedTrack) ID() string           { return p.id }
func (p *PlayedTrack) SetID(id string)      { p.id = id }
func (p *PlayedTrack) Sequence() int        { return p.sequence }
func (p *PlayedTrack) SetSequence(seq int)  { p.sequence = seq }
func (p *PlayedTrack) Track() Track         { return p.track }
func (p *PlayedTrack) ContextURI() string   { return p.contextURI }
func (p *PlayedTrack) DeviceID() string     { return p.deviceID }
func (p *PlayedTrack) PlayedAt() time.Time  { return p.playedAt }
func (p *PlayedTrack) CreatedAt() time.Time { return p.createdAt }
func (p *PlayedTrack) UpdatedAt() time.Time { return p.updatedAt }

// Validate requires a track identity and a play time.
func (p *PlayedTrack) Validate() error {
	if p.track.ID == "" && p.track.URI == "" {
		return fmt.Errorf("played track requires a track id or uri")
	}
	if p.track.Name == "" {
		return fmt.Errorf("played track requires a track name")
	}
	if p.playedAt.IsZero() {
		return fmt.Errorf("played track requires a play time")
	}
	return nil
}
