package services

import (
	"context"

	"github.com/desertthunder/playsync/internal/models"
)

// TokenProvider supplies a valid bearer token on demand.
//
// An empty token means the caller cannot authenticate right now; implementations may return it with or without an error.
type TokenProvider interface {
	GetValidToken(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to [TokenProvider].
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) GetValidToken(ctx context.Context) (string, error) { return f(ctx) }

// PlayerAPI is the stateless remote control surface.
type PlayerAPI interface {
	// GetPlaybackState returns the remote playback state, or nil when nothing is playing anywhere.
	GetPlaybackState(ctx context.Context) (*PlaybackState, error)

	// ListDevices returns every device currently visible to the account.
	ListDevices(ctx context.Context) ([]models.Device, error)

	// Play starts or resumes playback. A zero [PlayOptions] resumes the last remote-side context.
	Play(ctx context.Context, deviceID string, opts PlayOptions) error

	Pause(ctx context.Context, deviceID string) error
	SkipNext(ctx context.Context, deviceID string) error
	SkipPrevious(ctx context.Context, deviceID string) error
	Seek(ctx context.Context, positionMS int, deviceID string) error
	SetVolume(ctx context.Context, percent int, deviceID string) error
	SetShuffle(ctx context.Context, shuffle bool, deviceID string) error
	SetRepeat(ctx context.Context, mode models.RepeatMode, deviceID string) error

	// TransferPlayback moves playback to deviceID, starting it only when play is true.
	TransferPlayback(ctx context.Context, deviceID string, play bool) error
}

// PlayOptions selects what Play starts. ContextURI and URIs are mutually exclusive.
type PlayOptions struct {
	ContextURI string
	URIs       []string
	PositionMS *int
}

// Empty reports whether the options carry no content, i.e. a plain resume.
func (o PlayOptions) Empty() bool {
	return o.ContextURI == "" && len(o.URIs) == 0 && o.PositionMS == nil
}

// PlaybackState is the remote view of playback across all devices.
type PlaybackState struct {
	Device     *models.Device
	IsPlaying  bool
	ProgressMS int
	Shuffle    bool
	Repeat     models.RepeatMode
	ContextURI string
	Item       *models.Track
}
