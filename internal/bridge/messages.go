package bridge

import (
	"encoding/json"

	"github.com/desertthunder/playsync/internal/sdk"
)

// Frame types exchanged with the host page.
const (
	TypeCommand      = "command"       // server -> host
	TypeResult       = "result"        // host -> server, answers a command
	TypeEvent        = "event"         // host -> server, player event
	TypeTokenRequest = "token_request" // host -> server, the SDK wants a bearer token
	TypeToken        = "token"         // server -> host, answers a token request
	TypePing         = "ping"
	TypePong         = "pong"
)

// Commands understood by the host page.
const (
	CommandConnect         = "connect"
	CommandDisconnect      = "disconnect"
	CommandTogglePlay      = "togglePlay"
	CommandSeek            = "seek"
	CommandPreviousTrack   = "previousTrack"
	CommandNextTrack       = "nextTrack"
	CommandSetVolume       = "setVolume"
	CommandGetCurrentState = "getCurrentState"
)

// Frame is the single envelope used in both directions. Which fields are set depends on Type.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	PlayerID  string          `json:"player_id,omitempty"`
	Command   string          `json:"command,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Event     sdk.Event       `json:"event,omitempty"`
	Payload   *sdk.Payload    `json:"payload,omitempty"`
	Token     string          `json:"token,omitempty"`
}

type connectParams struct {
	Name   string  `json:"name"`
	Volume float64 `json:"volume"`
}

type seekParams struct {
	PositionMS int `json:"position_ms"`
}

type volumeParams struct {
	Volume float64 `json:"volume"`
}
