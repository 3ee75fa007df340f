package orders

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists orders to PostgreSQL via database/sql.
type Store struct {
	db *sql.DB
}

// NewStore creates an order store.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		panic("orders: db cannot be nil")
	}
	return &Store{db: db}
}

// Insert records a completed purchase and returns the stored order.
func (s *Store) Insert(ctx context.Context, o Order) (Order, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.PurchaseDate.IsZero() {
		o.PurchaseDate = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, patient_id, product_name, quantity, total_price, dosage_frequency, purchase_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, o.ID, o.PatientID, o.ProductName, o.Quantity, o.TotalPrice, o.DosageFrequency, o.PurchaseDate)
	if err != nil {
		return Order{}, fmt.Errorf("orders: failed to insert: %w", err)
	}
	return o, nil
}

// HasRecentPurchase reports whether the patient bought the given product
// within the window. Used to flag suspiciously fast re-orders for review.
func (s *Store) HasRecentPurchase(ctx context.Context, patientID, productName string, window time.Duration) (bool, error) {
	cutoff := time.Now().UTC().Add(-window)

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM orders
		WHERE patient_id = $1 AND product_name = $2 AND purchase_date >= $3
	`, patientID, productName, cutoff).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("orders: failed to check recent purchases: %w", err)
	}
	return count > 0, nil
}

// ListByPatient returns the patient's orders, most recent first.
func (s *Store) ListByPatient(ctx context.Context, patientID string) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, product_name, quantity, total_price, dosage_frequency, purchase_date
		FROM orders
		WHERE patient_id = $1
		ORDER BY purchase_date DESC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("orders: failed to list by patient: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.PatientID, &o.ProductName, &o.Quantity,
			&o.TotalPrice, &o.DosageFrequency, &o.PurchaseDate); err != nil {
			return nil, fmt.Errorf("orders: failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// LatestPerProduct returns the most recent order for each product the
// patient has bought, the basis for refill prediction.
func (s *Store) LatestPerProduct(ctx context.Context, patientID string) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (product_name)
			id, patient_id, product_name, quantity, total_price, dosage_frequency, purchase_date
		FROM orders
		WHERE patient_id = $1
		ORDER BY product_name, purchase_date DESC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("orders: failed to list latest per product: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.PatientID, &o.ProductName, &o.Quantity,
			&o.TotalPrice, &o.DosageFrequency, &o.PurchaseDate); err != nil {
			return nil, fmt.Errorf("orders: failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// DistinctPatients returns every patient ID that has at least one order.
func (s *Store) DistinctPatients(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT patient_id FROM orders ORDER BY patient_id`)
	if err != nil {
		return nil, fmt.Errorf("orders: failed to list patients: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("orders: failed to scan patient id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordRefillAlert marks an alert as sent so the scanner does not notify
// twice for the same order.
func (s *Store) RecordRefillAlert(ctx context.Context, orderID uuid.UUID, runOutDate time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refill_alerts (order_id, run_out_date, sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id) DO NOTHING
	`, orderID, runOutDate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("orders: failed to record refill alert: %w", err)
	}
	return nil
}

// RefillAlertSent reports whether an alert for the order was already sent.
func (s *Store) RefillAlertSent(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM refill_alerts WHERE order_id = $1
	`, orderID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("orders: failed to check refill alert: %w", err)
	}
	return count > 0, nil
}
