package prescriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists prescription records to PostgreSQL via database/sql.
type Store struct {
	db *sql.DB
}

// NewStore creates a prescription store.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		panic("prescriptions: db cannot be nil")
	}
	return &Store{db: db}
}

// HasApproved reports whether the patient has an approved prescription on
// file for the medicine. This gate runs before any compliance oracle call,
// so a missing record short-circuits without spending an LLM round trip.
func (s *Store) HasApproved(ctx context.Context, patientID, medicineName string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM prescriptions
		WHERE patient_id = $1 AND medicine_name = $2 AND approved = TRUE
	`, patientID, medicineName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("prescriptions: failed to check approval: %w", err)
	}
	return count > 0, nil
}

// Insert records a newly uploaded prescription. New uploads start
// unapproved and wait for pharmacist review.
func (s *Store) Insert(ctx context.Context, r Record) (Record, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.UploadedAt.IsZero() {
		r.UploadedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prescriptions (id, patient_id, medicine_name, file_ref, approved, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.PatientID, r.MedicineName, r.FileRef, r.Approved, r.UploadedAt)
	if err != nil {
		return Record{}, fmt.Errorf("prescriptions: failed to insert: %w", err)
	}
	return r, nil
}

// Approve marks a prescription record as reviewed and approved.
func (s *Store) Approve(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE prescriptions SET approved = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("prescriptions: failed to approve: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("prescriptions: failed to approve: %w", err)
	}
	if rows == 0 {
		return errors.New("prescriptions: record not found")
	}
	return nil
}

// ListByPatient returns the patient's prescription records, newest first.
func (s *Store) ListByPatient(ctx context.Context, patientID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, medicine_name, file_ref, approved, uploaded_at
		FROM prescriptions
		WHERE patient_id = $1
		ORDER BY uploaded_at DESC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("prescriptions: failed to list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.PatientID, &r.MedicineName, &r.FileRef, &r.Approved, &r.UploadedAt); err != nil {
			return nil, fmt.Errorf("prescriptions: failed to scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EnsurePatient upserts the patient registry row so uploads and orders can
// reference a stable patient record with a contact email.
func (s *Store) EnsurePatient(ctx context.Context, patientID, email string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patients (id, email, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE patients.email END
	`, patientID, email, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("prescriptions: failed to ensure patient: %w", err)
	}
	return nil
}

// PatientEmail returns the patient's contact email, or empty when the
// patient is unknown or has no email on file.
func (s *Store) PatientEmail(ctx context.Context, patientID string) (string, error) {
	var email string
	err := s.db.QueryRowContext(ctx, `
		SELECT email FROM patients WHERE id = $1
	`, patientID).Scan(&email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("prescriptions: failed to get patient email: %w", err)
	}
	return email, nil
}
