// Package models defines the playback domain types shared by the sync core, the Web API client and persistence.
//
// The package contains two categories of types:
//
// 1. Value types describing what is playing and where:
//   - [Device] : a Spotify Connect endpoint as reported by the Web API
//   - [Track] : identity and display metadata of a playable item
//   - [PlaybackSnapshot] : the canonical "now playing" view
//   - [RepeatMode] : off, context or track
//
// 2. Persistent entities implementing [Model]:
//   - [PlayedTrack] : one entry of the play history recorded from session events
//
// Optional nested values (the current track, a device volume) are pointers; callers fall back to the
// zero value documented on each accessor rather than dereferencing blindly.
package models
