package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/mailwatch/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// SaveMessage appends a journal entry
func (db *DB) SaveMessage(ctx context.Context, rec *models.MessageRecord) error {
	query := `
		INSERT INTO messages (account, uid, message_id, from_addr, from_name, subject, preview, verb, argument, outcome, detail, received_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now()
	}

	result, err := db.ExecContext(ctx, query,
		rec.Account,
		rec.UID,
		rec.MessageID,
		rec.FromAddr,
		rec.FromName,
		rec.Subject,
		rec.Preview,
		rec.Verb,
		rec.Argument,
		rec.Outcome,
		rec.Detail,
		rec.ReceivedAt,
		rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	return nil
}

// GetMessageByID returns a journal entry by ID
func (db *DB) GetMessageByID(ctx context.Context, id int64) (*models.MessageRecord, error) {
	var rec models.MessageRecord
	query := `SELECT * FROM messages WHERE id = ?`
	err := db.GetContext(ctx, &rec, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &rec, nil
}

// RecentMessages returns the newest journal entries, newest first
func (db *DB) RecentMessages(ctx context.Context, limit int) ([]*models.MessageRecord, error) {
	var recs []*models.MessageRecord
	query := `SELECT * FROM messages ORDER BY processed_at DESC, id DESC LIMIT ?`
	err := db.SelectContext(ctx, &recs, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}
	return recs, nil
}

// CountMessages returns the number of journal entries
func (db *DB) CountMessages(ctx context.Context) (int, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages`); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}
