package cart

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const slotQueryTimeout = 3 * time.Second

// PostgresSlot keeps slot values in the cart_slots table, one row per
// (namespace, key). Open db with the pgx stdlib driver.
type PostgresSlot struct {
	db        *sql.DB
	namespace string
}

func NewPostgresSlot(db *sql.DB, namespace string) *PostgresSlot {
	return &PostgresSlot{db: db, namespace: namespace}
}

func (s *PostgresSlot) Read(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, slotQueryTimeout)
	defer cancel()

	var v string
	err := s.db.QueryRowContext(ctx, `
		SELECT value
		FROM cart_slots
		WHERE namespace = $1 AND key = $2
	`, s.namespace, key).Scan(&v)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *PostgresSlot) Write(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, slotQueryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_slots (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, s.namespace, key, value)
	return err
}

type PostgresSlots struct {
	DB *sql.DB
}

func (p PostgresSlots) For(shopperID string) Slot {
	return NewPostgresSlot(p.DB, shopperID)
}

func (p PostgresSlots) Ping(ctx context.Context) error {
	return p.DB.PingContext(ctx)
}
