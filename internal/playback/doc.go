// Package playback keeps one consistent "now playing" view over two control channels: an embedded Web Playback SDK
// session and the Spotify Web API player endpoints.
//
// # Components
//
// [Session] owns the embedded player's lifecycle. It loads the SDK script once per process, constructs the player,
// forwards token requests to the token provider and tracks the connection [Phase]. A ready event starts device
// discovery.
//
// [Discovery] polls the device list with [Retry] until the session's own device shows up, claiming playback for it
// when nothing else is active. Each poll replaces the contents of the [Registry].
//
// [Store] holds the [models.PlaybackSnapshot]. SDK events replace it wholesale and bump a version counter; between
// events a ticker advances the position while playing. Updates from Web API calls are tagged with the version seen at
// dispatch and dropped when an SDK event arrived in the meantime.
//
// [Router] decides which channel serves a command. Toggle, next, previous and seek go through the SDK when the session
// is active with a context loaded and fall back to the Web API otherwise. Web API failures are classified into
// [Error] values carrying a user-facing hint.
//
// [Switcher] transfers playback between devices and restores the previous context when moving onto the local
// session comes up empty.
//
// [Controller] wires all of the above and exposes the combined [State].
//
// # Headless Mode
//
// Without an SDK factory the controller has no session. Every command goes to the Web API against the configured
// device, which is how the one-shot CLI commands run.
package playback
