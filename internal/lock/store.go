package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kamruddin/modulith-go/internal/db"
)

// sqlStore keeps lock rows in the int_lock table shared by every process.
// region namespaces locks per application, client id identifies this
// process instance so release never removes another holder's row.
type sqlStore struct {
	db       *sql.DB
	region   string
	clientID string
	ttl      time.Duration
}

// NewManager returns a lock manager over the given database. ttl is the
// lease duration after which an unreleased lock becomes reclaimable.
func NewManager(database *db.PostgresDB, region string, ttl time.Duration) *Manager {
	return newManager(&sqlStore{
		db:       database.Conn,
		region:   region,
		clientID: uuid.NewString(),
		ttl:      ttl,
	})
}

func (s *sqlStore) deleteExpired(ctx context.Context, key string) error {
	query := `DELETE FROM int_lock WHERE lock_key = $1 AND region = $2 AND created_date < $3`

	if _, err := s.db.ExecContext(ctx, query, key, s.region, time.Now().Add(-s.ttl)); err != nil {
		return fmt.Errorf("failed to expire lock %s: %w", key, err)
	}
	return nil
}

func (s *sqlStore) tryInsert(ctx context.Context, key string) (bool, error) {
	query := `
		INSERT INTO int_lock (lock_key, region, client_id, created_date)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (lock_key) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, key, s.region, s.clientID)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *sqlStore) delete(ctx context.Context, key string) error {
	query := `DELETE FROM int_lock WHERE lock_key = $1 AND region = $2 AND client_id = $3`

	if _, err := s.db.ExecContext(ctx, query, key, s.region, s.clientID); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}
