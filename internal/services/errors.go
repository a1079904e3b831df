package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/playsync/internal/shared"
)

// Web API player error reasons.
const (
	ReasonNoActiveDevice      = "NO_ACTIVE_DEVICE"
	ReasonPremiumRequired     = "PREMIUM_REQUIRED"
	ReasonNoSpecificTrack     = "NO_SPECIFIC_TRACK"
	ReasonNotPlayingContext   = "NOT_PLAYING_CONTEXT"
	ReasonNotPlayingTrack     = "NOT_PLAYING_TRACK"
	ReasonNoPrevTrack         = "NO_PREV_TRACK"
	ReasonNoNextTrack         = "NO_NEXT_TRACK"
	ReasonAlreadyPaused       = "ALREADY_PAUSED"
	ReasonAlreadyPlaying      = "ALREADY_PLAYING"
	ReasonDeviceNotControlled = "DEVICE_NOT_CONTROLLABLE"
	ReasonVolumeDisallowed    = "VOLUME_CONTROL_DISALLOW"
	ReasonRateLimited         = "RATE_LIMITED"
)

// APIError is a non-2xx Web API response.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
	Endpoint   string
	DeviceID   string // device the request was scoped to, if any
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "spotify API error: status %d", e.StatusCode)
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Endpoint != "" {
		fmt.Fprintf(&b, " [%s]", e.Endpoint)
	}
	return b.String()
}

// Is matches the shared sentinels. Structured fields are consulted first; the message text is only used for the
// legacy "device not found" case where the Web API sends no reason.
func (e *APIError) Is(target error) bool {
	switch target {
	case shared.ErrAPIRequest:
		return true
	case shared.ErrTokenExpired:
		return e.StatusCode == 401
	case shared.ErrRateLimited:
		return e.StatusCode == 429 || e.Reason == ReasonRateLimited
	case shared.ErrPremiumRequired:
		return e.Reason == ReasonPremiumRequired ||
			(e.StatusCode == 403 && strings.Contains(strings.ToLower(e.Message), "premium"))
	case shared.ErrNoActiveDevice:
		return e.Reason == ReasonNoActiveDevice
	case shared.ErrDeviceNotFound:
		if e.StatusCode != 404 || e.Reason == ReasonNoActiveDevice {
			return false
		}
		if e.DeviceID != "" && e.Reason == "" {
			return true
		}
		return strings.Contains(strings.ToLower(e.Message), "not found") &&
			strings.Contains(strings.ToLower(e.Message), "device")
	}
	return false
}

type errorEnvelope struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

// parseAPIError builds an [APIError] from a response body, tolerating empty or non-JSON bodies.
func parseAPIError(status int, body []byte, endpoint, deviceID string) *APIError {
	apiErr := &APIError{StatusCode: status, Endpoint: endpoint, DeviceID: deviceID}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		apiErr.Reason = env.Error.Reason
		apiErr.Message = env.Error.Message
	} else if text := strings.TrimSpace(string(body)); text != "" {
		apiErr.Message = text
	}
	return apiErr
}

// AsAPIError unwraps err into an [*APIError].
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
