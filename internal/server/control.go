package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/playback"
	"github.com/desertthunder/playsync/internal/shared"
)

// Controller is the playback surface the control handler drives. [playback.Controller] implements it.
type Controller interface {
	State() playback.State
	Subscribe() (<-chan struct{}, func())
	TogglePlay(ctx context.Context, uri string) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, positionMS int) error
	SetVolume(ctx context.Context, percent int) error
	SetShuffle(ctx context.Context, shuffle bool) error
	SetRepeat(ctx context.Context, mode models.RepeatMode) error
	Transfer(ctx context.Context, deviceID string) error
	RefreshDevices(ctx context.Context) ([]models.Device, error)
}

var _ Controller = (*playback.Controller)(nil)

// ControlRequest is the JSON body accepted by the control endpoints. Each command reads only its own field.
type ControlRequest struct {
	URI        string `json:"uri,omitempty"`
	PositionMS *int   `json:"position_ms,omitempty"`
	Percent    *int   `json:"percent,omitempty"`
	Shuffle    *bool  `json:"shuffle,omitempty"`
	Mode       string `json:"mode,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
}

// ErrorResponse is written for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Op    string `json:"op,omitempty"`
}

type command func(ctx context.Context, c Controller, req ControlRequest) error

var commands = map[string]command{
	"toggle": func(ctx context.Context, c Controller, req ControlRequest) error {
		return c.TogglePlay(ctx, req.URI)
	},
	"next": func(ctx context.Context, c Controller, _ ControlRequest) error {
		return c.Next(ctx)
	},
	"previous": func(ctx context.Context, c Controller, _ ControlRequest) error {
		return c.Previous(ctx)
	},
	"seek": func(ctx context.Context, c Controller, req ControlRequest) error {
		if req.PositionMS == nil {
			return fmt.Errorf("%w: position_ms", shared.ErrMissingArgument)
		}
		return c.Seek(ctx, *req.PositionMS)
	},
	"volume": func(ctx context.Context, c Controller, req ControlRequest) error {
		if req.Percent == nil {
			return fmt.Errorf("%w: percent", shared.ErrMissingArgument)
		}
		return c.SetVolume(ctx, *req.Percent)
	},
	"shuffle": func(ctx context.Context, c Controller, req ControlRequest) error {
		if req.Shuffle == nil {
			return fmt.Errorf("%w: shuffle", shared.ErrMissingArgument)
		}
		return c.SetShuffle(ctx, *req.Shuffle)
	},
	"repeat": func(ctx context.Context, c Controller, req ControlRequest) error {
		mode, err := models.ParseRepeatMode(req.Mode)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		return c.SetRepeat(ctx, mode)
	},
	"transfer": func(ctx context.Context, c Controller, req ControlRequest) error {
		if req.DeviceID == "" {
			return fmt.Errorf("%w: device_id", shared.ErrMissingArgument)
		}
		return c.Transfer(ctx, req.DeviceID)
	},
	"refresh": func(ctx context.Context, c Controller, _ ControlRequest) error {
		_, err := c.RefreshDevices(ctx)
		return err
	},
}

// ControlHandler serves the combined playback state and accepts transport commands from a local UI.
//
//	GET  /state             combined state
//	GET  /devices           device list
//	GET  /events            server-sent events, one "state" event per change
//	POST /control/{command} toggle, next, previous, seek, volume, shuffle, repeat, transfer, refresh
//
// Successful commands answer with the combined state after the command.
type ControlHandler struct {
	controller Controller
	logger     *log.Logger
}

// NewControlHandler creates a control handler for controller.
func NewControlHandler(controller Controller, logger *log.Logger) *ControlHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &ControlHandler{controller: controller, logger: shared.WithLogger(logger, "component", "control")}
}

// Routes returns the HTTP routes this handler serves.
func (h *ControlHandler) Routes() []string {
	return []string{"/state", "/devices", "/events", "/control/"}
}

func (h *ControlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch path := r.URL.Path; {
	case path == "/state":
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, h.controller.State())
	case path == "/devices":
		if !allow(w, r, http.MethodGet) {
			return
		}
		devices := h.controller.State().Devices
		if r.URL.Query().Get("refresh") != "" {
			fresh, err := h.controller.RefreshDevices(r.Context())
			if err != nil {
				h.writeError(w, err)
				return
			}
			devices = fresh
		}
		if devices == nil {
			devices = []models.Device{}
		}
		writeJSON(w, http.StatusOK, devices)
	case path == "/events":
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.stream(w, r)
	case strings.HasPrefix(path, "/control/"):
		if !allow(w, r, http.MethodPost) {
			return
		}
		h.control(w, r, strings.TrimPrefix(path, "/control/"))
	default:
		http.NotFound(w, r)
	}
}

func (h *ControlHandler) control(w http.ResponseWriter, r *http.Request, name string) {
	cmd, ok := commands[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("unknown command %q", name)})
		return
	}

	var req ControlRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
			return
		}
	}

	if err := cmd(r.Context(), h.controller, req); err != nil {
		h.logger.Warn("command failed", "command", name, "error", err)
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.State())
}

// stream writes the current state, then one event per change until the client goes away.
func (h *ControlHandler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	changes, cancel := h.controller.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		if err := writeEvent(w, "state", h.controller.State()); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-changes:
		}
	}
}

func (h *ControlHandler) writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var perr *playback.Error
	if errors.As(err, &perr) {
		resp = ErrorResponse{Error: perr.Message, Kind: perr.Kind.String(), Op: perr.Op}
	}
	writeJSON(w, StatusFor(err), resp)
}

// StatusFor maps a command error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	}

	switch playback.KindOf(err) {
	case playback.KindNoDeviceAvailable:
		return http.StatusConflict
	case playback.KindDeviceNotFound:
		return http.StatusNotFound
	case playback.KindAuthentication:
		return http.StatusUnauthorized
	case playback.KindAccount:
		return http.StatusForbidden
	case playback.KindPlayback, playback.KindInitialization:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEvent(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
