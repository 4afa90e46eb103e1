package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Robin318-Gamer/StoryReader/internal/models"
	"github.com/google/uuid"
)

func (db *DB) CreateHistory(ctx context.Context, entry *models.HistoryEntry) error {
	query := `
		INSERT INTO tts_history (
			id, user_id, title, text, original_text, ssml_content,
			voice, speed, audio_url, processing_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		entry.ID, entry.UserID, entry.Title, entry.Text, entry.OriginalText,
		entry.SSMLContent, entry.Voice, entry.Speed, entry.AudioURL,
		entry.ProcessingStatus,
	).Scan(&entry.CreatedAt)
}

// FindHistoryExact looks up a completed entry matching all four cache key
// components. Text equality is byte-exact, never normalized. Returns nil
// with no error when nothing matches.
func (db *DB) FindHistoryExact(ctx context.Context, userID, text, voice string, speed float64) (*models.HistoryEntry, error) {
	query := `
		SELECT
			id, user_id, title, text, original_text, ssml_content,
			voice, speed, audio_url, processing_status, created_at
		FROM tts_history
		WHERE user_id = $1 AND text = $2 AND voice = $3 AND speed = $4
			AND processing_status = $5
		LIMIT 1
	`

	entry := &models.HistoryEntry{}
	err := db.QueryRowContext(ctx, query, userID, text, voice, speed, models.ProcessingStatusCompleted).Scan(
		&entry.ID, &entry.UserID, &entry.Title, &entry.Text, &entry.OriginalText,
		&entry.SSMLContent, &entry.Voice, &entry.Speed, &entry.AudioURL,
		&entry.ProcessingStatus, &entry.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up history: %w", err)
	}

	return entry, nil
}

// ListHistory returns a user's entries, newest first.
func (db *DB) ListHistory(ctx context.Context, userID string, limit, offset int) ([]models.HistoryEntry, error) {
	query := `
		SELECT
			id, user_id, title, text, original_text, ssml_content,
			voice, speed, audio_url, processing_status, created_at
		FROM tts_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var entry models.HistoryEntry
		err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.Title, &entry.Text, &entry.OriginalText,
			&entry.SSMLContent, &entry.Voice, &entry.Speed, &entry.AudioURL,
			&entry.ProcessingStatus, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (db *DB) CountHistory(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tts_history WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return count, nil
}

// DeleteHistory removes an entry owned by the given user.
func (db *DB) DeleteHistory(ctx context.Context, id uuid.UUID, userID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM tts_history WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("history entry not found")
	}
	return nil
}
