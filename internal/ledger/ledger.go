// Package ledger persists the event publication ledger: one row per
// listener invocation of a published event. Rows are written inside the
// publishing transaction and only ever updated by setting completed_at.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kamruddin/modulith-go/internal/db"
	"github.com/kamruddin/modulith-go/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(database *db.PostgresDB) *Store {
	return &Store{db: database.Conn}
}

// Record inserts a publication inside the caller's transaction so the
// ledger entry commits or rolls back together with the business write.
func (s *Store) Record(ctx context.Context, tx *sql.Tx, pub models.Publication) error {
	query := `
		INSERT INTO event_publication (id, event_type, listener_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, query, pub.ID, pub.EventType, pub.ListenerID, pub.Payload, pub.CreatedAt); err != nil {
		return fmt.Errorf("failed to record publication: %w", err)
	}
	return nil
}

// MarkComplete stamps the publication's completion time.
func (s *Store) MarkComplete(ctx context.Context, id string) error {
	query := `UPDATE event_publication SET completed_at = now() WHERE id = $1 AND completed_at IS NULL`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark publication %s complete: %w", id, err)
	}
	return nil
}

// IsComplete reports whether the publication has a completion timestamp.
func (s *Store) IsComplete(ctx context.Context, id string) (bool, error) {
	query := `SELECT completed_at IS NOT NULL FROM event_publication WHERE id = $1`

	var complete bool
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&complete); err != nil {
		return false, fmt.Errorf("failed to read publication %s: %w", id, err)
	}
	return complete, nil
}

// FindIncomplete returns every publication lacking a completion timestamp,
// oldest first.
func (s *Store) FindIncomplete(ctx context.Context) ([]models.Publication, error) {
	query := `
		SELECT id, event_type, listener_id, payload, created_at, completed_at
		FROM event_publication
		WHERE completed_at IS NULL
		ORDER BY created_at
	`
	return s.query(ctx, query)
}

// FindIncompleteOlderThan returns incomplete publications created more
// than age ago, so publications still legitimately in flight are skipped.
func (s *Store) FindIncompleteOlderThan(ctx context.Context, age time.Duration) ([]models.Publication, error) {
	query := `
		SELECT id, event_type, listener_id, payload, created_at, completed_at
		FROM event_publication
		WHERE completed_at IS NULL AND created_at < $1
		ORDER BY created_at
	`
	return s.query(ctx, query, time.Now().Add(-age))
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]models.Publication, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query publications: %w", err)
	}
	defer rows.Close()

	var pubs []models.Publication
	for rows.Next() {
		var p models.Publication
		if err := rows.Scan(&p.ID, &p.EventType, &p.ListenerID, &p.Payload, &p.CreatedAt, &p.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan publication: %w", err)
		}
		pubs = append(pubs, p)
	}

	return pubs, rows.Err()
}
