// Package services implements the remote side of playback control: the Spotify Web API player endpoints and the
// bearer token provider every call authenticates with.
//
// # Player API
//
// [PlayerAPI] is the stateless remote control surface consumed by the sync core (internal/playback).
// Every call is independently authenticated and, where the Web API allows it, scoped to a device id.
//
// [SpotifyService] implements it over HTTP. Requests are paced by a [rate.Limiter] so bursts of commands from a
// UI do not trip Spotify's rate limiting.
//
// # Token Provider
//
// [TokenProvider] supplies a bearer token on demand. [OAuthTokenProvider] wraps an [oauth2.TokenSource] built from
// the stored refresh token; rotated tokens are handed to an optional callback so they can be persisted.
// Acquiring the first token (the authorization code flow) is outside this package.
//
// # Error Handling
//
// Non-2xx responses become [*APIError], which carries the status, the Web API's structured reason code and the
// device the request targeted. [APIError.Is] lets callers match the shared sentinels:
//   - [shared.ErrTokenExpired] : 401
//   - [shared.ErrPremiumRequired] : PREMIUM_REQUIRED
//   - [shared.ErrNoActiveDevice] : NO_ACTIVE_DEVICE
//   - [shared.ErrDeviceNotFound] : 404 on a device-scoped request, or a "device not found" message
//   - [shared.ErrRateLimited] : 429
//   - [shared.ErrAPIRequest] : any of the above
package services
