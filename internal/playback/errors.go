package playback

import (
	"errors"
	"fmt"

	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
)

// Kind classifies a playback failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindInitialization
	KindAuthentication
	KindAccount
	KindPlayback
	KindDeviceNotFound
	KindNoDeviceAvailable
)

func (k Kind) String() string {
	switch k {
	case KindInitialization:
		return "initialization"
	case KindAuthentication:
		return "authentication"
	case KindAccount:
		return "account"
	case KindPlayback:
		return "playback"
	case KindDeviceNotFound:
		return "device_not_found"
	case KindNoDeviceAvailable:
		return "no_device_available"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Lifecycle reports whether the kind describes the session rather than a single command.
func (k Kind) Lifecycle() bool {
	return k == KindInitialization || k == KindAuthentication || k == KindAccount
}

// User-facing remediation hints.
const (
	HintNoDevice        = "No device available. Open Spotify on a device or select an active device."
	HintDeviceNotFound  = "Device not found. It may have gone offline; refreshing the device list."
	HintNoTrack         = "No track loaded. Play something from a playlist first."
	HintPremiumRequired = "Spotify Premium is required for playback control."
	HintAuthentication  = "Spotify authorization expired. Sign in again."
	HintRateLimited     = "Too many requests. Wait a moment and try again."
	HintNotRestored     = "Playback moved, but the playlist could not be restored on this device."
	HintCommandFailed   = "Playback command failed. Try again."
)

// Error is a classified playback failure carrying a short user-facing message.
type Error struct {
	Kind    Kind   `json:"kind"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: KindAccount}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf extracts the [Kind] of err, or [KindUnknown].
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Classify turns a remote-control failure into an [*Error].
//
// Structured signals (sentinels matched through [services.APIError.Is], Web API reason codes) are consulted before
// the free-text message. Already classified errors are returned unchanged.
func Classify(op string, err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	case errors.Is(err, shared.ErrNoActiveDevice):
		return newError(KindNoDeviceAvailable, op, HintNoDevice, err)
	case errors.Is(err, shared.ErrDeviceNotFound):
		return newError(KindDeviceNotFound, op, HintDeviceNotFound, err)
	case errors.Is(err, shared.ErrPremiumRequired):
		return newError(KindAccount, op, HintPremiumRequired, err)
	case errors.Is(err, shared.ErrTokenExpired),
		errors.Is(err, shared.ErrNotAuthenticated),
		errors.Is(err, shared.ErrRefreshFailed):
		return newError(KindAuthentication, op, HintAuthentication, err)
	case errors.Is(err, shared.ErrRateLimited):
		return newError(KindPlayback, op, HintRateLimited, err)
	}

	if apiErr, ok := services.AsAPIError(err); ok {
		switch apiErr.Reason {
		case services.ReasonNoSpecificTrack, services.ReasonNotPlayingContext, services.ReasonNotPlayingTrack:
			return newError(KindPlayback, op, HintNoTrack, err)
		}
		if apiErr.Message != "" {
			return newError(KindPlayback, op, apiErr.Message, err)
		}
	}

	return newError(KindPlayback, op, HintCommandFailed, err)
}
