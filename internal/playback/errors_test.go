package playback

import (
	"errors"
	"fmt"
	"testing"

	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		hint string
	}{
		{"No Active Device", &services.APIError{StatusCode: 404, Reason: services.ReasonNoActiveDevice}, KindNoDeviceAvailable, HintNoDevice},
		{"Device Not Found Structured", &services.APIError{StatusCode: 404, DeviceID: "x"}, KindDeviceNotFound, HintDeviceNotFound},
		{"Device Not Found Message", &services.APIError{StatusCode: 404, Message: "Device not found"}, KindDeviceNotFound, HintDeviceNotFound},
		{"Premium", &services.APIError{StatusCode: 403, Reason: services.ReasonPremiumRequired}, KindAccount, HintPremiumRequired},
		{"Expired Token", &services.APIError{StatusCode: 401}, KindAuthentication, HintAuthentication},
		{"No Token", fmt.Errorf("wrapped: %w", shared.ErrNotAuthenticated), KindAuthentication, HintAuthentication},
		{"Rate Limited", &services.APIError{StatusCode: 429}, KindPlayback, HintRateLimited},
		{"No Track", &services.APIError{StatusCode: 404, Reason: services.ReasonNoSpecificTrack}, KindPlayback, HintNoTrack},
		{"Not Playing", &services.APIError{StatusCode: 403, Reason: services.ReasonNotPlayingContext}, KindPlayback, HintNoTrack},
		{"Other API Message", &services.APIError{StatusCode: 400, Message: "Invalid device id"}, KindPlayback, "Invalid device id"},
		{"Transport", errors.New("connection reset"), KindPlayback, HintCommandFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Classify("next", tt.err)
			if e.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, e.Kind)
			}
			if e.Message != tt.hint {
				t.Errorf("expected message %q, got %q", tt.hint, e.Message)
			}
			if !errors.Is(e, tt.err) {
				t.Error("expected the cause to stay reachable")
			}
			if e.Op != "next" {
				t.Errorf("expected op next, got %s", e.Op)
			}
		})
	}

	t.Run("Nil", func(t *testing.T) {
		if Classify("x", nil) != nil {
			t.Error("expected nil")
		}
	})

	t.Run("Already Classified", func(t *testing.T) {
		orig := newError(KindAccount, "x", "msg", nil)
		if Classify("y", fmt.Errorf("wrap: %w", orig)) != orig {
			t.Error("expected classified errors to pass through")
		}
	})
}

func TestError(t *testing.T) {
	e := newError(KindDeviceNotFound, "next", HintDeviceNotFound, &services.APIError{StatusCode: 404})

	if !errors.Is(e, &Error{Kind: KindDeviceNotFound}) {
		t.Error("expected kind match")
	}
	if errors.Is(e, &Error{Kind: KindAccount}) {
		t.Error("unexpected kind match")
	}
	if !errors.Is(e, shared.ErrAPIRequest) {
		t.Error("expected cause to match through Unwrap")
	}
	if KindOf(fmt.Errorf("ctx: %w", e)) != KindDeviceNotFound {
		t.Error("expected KindOf to unwrap")
	}
	if !KindAccount.Lifecycle() || KindPlayback.Lifecycle() {
		t.Error("unexpected lifecycle classification")
	}
	if text, _ := KindNoDeviceAvailable.MarshalText(); string(text) != "no_device_available" {
		t.Errorf("unexpected kind text %s", text)
	}
}
