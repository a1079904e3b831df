package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/shared"
)

// ErrHistoryNotFound is returned when no history entry matches an id.
var ErrHistoryNotFound = fmt.Errorf("history entry not found")

const historyColumns = `id, sequence, track_id, track_uri, title, artists, album, context_uri, device_id, duration_ms, played_at, created_at, updated_at`

var _ models.Repository[*models.PlayedTrack] = (*HistoryRepository)(nil)

// HistoryRepository implements models.Repository[*models.PlayedTrack] for the play history.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new HistoryRepository with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// RecordPlay stores a track change reported by the playback store.
func (r *HistoryRepository) RecordPlay(ctx context.Context, played *models.PlayedTrack) error {
	return r.create(ctx, played)
}

// Create inserts a new [models.PlayedTrack] with generated ID and sequence
func (r *HistoryRepository) Create(played *models.PlayedTrack) error {
	return r.create(context.Background(), played)
}

func (r *HistoryRepository) create(ctx context.Context, played *models.PlayedTrack) error {
	if err := played.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "play_history")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	artists, err := json.Marshal(played.Track().Artists)
	if err != nil {
		return fmt.Errorf("failed to encode artists: %w", err)
	}

	id := shared.GenerateID()
	track := played.Track()

	query := `
		INSERT INTO play_history (` + historyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		id,
		sequence,
		track.ID,
		track.URI,
		track.Name,
		string(artists),
		track.Album,
		played.ContextURI(),
		played.DeviceID(),
		track.DurationMS,
		played.PlayedAt(),
		played.CreatedAt(),
		played.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert play history: %w", err)
	}

	played.SetID(id)
	played.SetSequence(sequence)
	return nil
}

// Get retrieves a history entry by ID
func (r *HistoryRepository) Get(id string) (*models.PlayedTrack, error) {
	query := `SELECT ` + historyColumns + ` FROM play_history WHERE id = ?`

	played, err := scanPlayedTrack(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrHistoryNotFound, id)
	}
	return played, err
}

// Delete removes a history entry by ID
func (r *HistoryRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM play_history WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete play history: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrHistoryNotFound, id)
	}

	return nil
}

// Clear removes every entry played before cutoff, or all entries when cutoff is zero. It returns the number removed.
func (r *HistoryRepository) Clear(cutoff time.Time) (int64, error) {
	query := "DELETE FROM play_history"
	args := []any{}
	if !cutoff.IsZero() {
		query += " WHERE played_at < ?"
		args = append(args, cutoff.UTC())
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear play history: %w", err)
	}
	return result.RowsAffected()
}

// List retrieves history entries, most recent first.
//
// Supported criteria: "device_id" (string), "context_uri" (string), "since" (time.Time) and "limit" (int).
func (r *HistoryRepository) List(criteria map[string]any) ([]*models.PlayedTrack, error) {
	query := `SELECT ` + historyColumns + ` FROM play_history WHERE 1 = 1`
	args := []any{}

	if deviceID, ok := criteria["device_id"].(string); ok && deviceID != "" {
		query += " AND device_id = ?"
		args = append(args, deviceID)
	}

	if contextURI, ok := criteria["context_uri"].(string); ok && contextURI != "" {
		query += " AND context_uri = ?"
		args = append(args, contextURI)
	}

	if since, ok := criteria["since"].(time.Time); ok && !since.IsZero() {
		query += " AND played_at >= ?"
		args = append(args, since.UTC())
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query play history: %w", err)
	}
	defer rows.Close()

	var entries []*models.PlayedTrack
	for rows.Next() {
		played, err := scanPlayedTrack(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, played)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanPlayedTrack scans a single row from either [sql.Row] or [sql.Rows] into a [models.PlayedTrack]
func scanPlayedTrack(row scanner) (*models.PlayedTrack, error) {
	var (
		id         string
		sequence   int
		track      models.Track
		artists    string
		contextURI string
		deviceID   string
		playedAt   time.Time
		createdAt  time.Time
		updatedAt  time.Time
	)

	err := row.Scan(&id, &sequence, &track.ID, &track.URI, &track.Name, &artists, &track.Album,
		&contextURI, &deviceID, &track.DurationMS, &playedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan play history: %w", err)
	}

	if artists != "" {
		if err := json.Unmarshal([]byte(artists), &track.Artists); err != nil {
			return nil, fmt.Errorf("failed to decode artists: %w", err)
		}
	}

	return models.RestorePlayedTrack(id, sequence, track, contextURI, deviceID, playedAt, createdAt, updatedAt), nil
}
