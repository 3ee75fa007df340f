// Package pending tracks the single in-flight order slot each patient may
// hold between turns: a medicine awaiting a quantity or a confirm/modify/
// cancel decision. The table carries a unique constraint on patient_id, so
// storage enforces the one-slot invariant rather than application code.
package pending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Order is the remembered half of an unfinished order conversation. A zero
// Quantity means the patient has not named one yet; a positive Quantity is
// the amount awaiting a confirm, modify, or cancel decision.
type Order struct {
	PatientID    string
	MedicineName string
	Quantity     int
	CreatedAt    time.Time
}

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists pending orders to PostgreSQL.
type Store struct {
	db pgxDB
}

// NewStore builds a Postgres-backed pending order store.
func NewStore(db pgxDB) *Store {
	if db == nil {
		panic("pending: pgx pool cannot be nil")
	}
	return &Store{db: db}
}

// Get returns the patient's pending order, or nil if none exists. Callers
// that intend to act on the result should use Consume instead.
func (s *Store) Get(ctx context.Context, patientID string) (*Order, error) {
	var o Order
	err := s.db.QueryRow(ctx, `
		SELECT patient_id, medicine_name, quantity, created_at
		FROM pending_orders
		WHERE patient_id = $1
	`, patientID).Scan(&o.PatientID, &o.MedicineName, &o.Quantity, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pending: failed to get: %w", err)
	}
	return &o, nil
}

// Set saves a pending order for the patient, replacing any existing one.
func (s *Store) Set(ctx context.Context, patientID, medicineName string, quantity int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO pending_orders (patient_id, medicine_name, quantity, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id) DO UPDATE
		SET medicine_name = EXCLUDED.medicine_name,
		    quantity = EXCLUDED.quantity,
		    created_at = EXCLUDED.created_at
	`, patientID, medicineName, quantity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("pending: failed to set: %w", err)
	}
	return nil
}

// Clear removes the patient's pending order if one exists.
func (s *Store) Clear(ctx context.Context, patientID string) error {
	if _, err := s.db.Exec(ctx, `
		DELETE FROM pending_orders WHERE patient_id = $1
	`, patientID); err != nil {
		return fmt.Errorf("pending: failed to clear: %w", err)
	}
	return nil
}

// Consume atomically reads and deletes the patient's pending order in a
// single statement. Two concurrent turns for the same patient cannot both
// receive the order: exactly one sees it, the other gets nil.
func (s *Store) Consume(ctx context.Context, patientID string) (*Order, error) {
	var o Order
	err := s.db.QueryRow(ctx, `
		DELETE FROM pending_orders
		WHERE patient_id = $1
		RETURNING patient_id, medicine_name, quantity, created_at
	`, patientID).Scan(&o.PatientID, &o.MedicineName, &o.Quantity, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pending: failed to consume: %w", err)
	}
	return &o, nil
}
