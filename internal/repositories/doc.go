// Package repositories implements SQLite persistence for play history.
//
// [HistoryRepository] implements models.Repository[*models.PlayedTrack] and doubles as the playback store's
// history recorder, so every new track seen in an SDK event lands in the play_history table.
//
// Sequence numbers provide stable, human-readable ordering (e.g., play #42) independent of UUIDs and play timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
