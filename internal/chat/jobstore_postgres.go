package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGJobStore persists job records to PostgreSQL for bootstrap deployments
// that run without DynamoDB.
type PGJobStore struct {
	db *pgxpool.Pool
}

// NewPGJobStore builds a Postgres-backed job store.
func NewPGJobStore(db *pgxpool.Pool) *PGJobStore {
	if db == nil {
		panic("chat: pgx pool cannot be nil")
	}
	return &PGJobStore{db: db}
}

var _ JobRecorder = (*PGJobStore)(nil)
var _ JobUpdater = (*PGJobStore)(nil)

// PutPending inserts a pending job record.
func (s *PGJobStore) PutPending(ctx context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("chat: job cannot be nil")
	}

	now := time.Now().UTC()
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}

	reqJSON, err := marshalJSON(job.Request)
	if err != nil {
		return err
	}
	respJSON, err := marshalJSON(job.Response)
	if err != nil {
		return err
	}

	expiresAt := time.Unix(job.ExpiresAt, 0).UTC()
	if _, execErr := s.db.Exec(ctx, `
		INSERT INTO chat_jobs (
			job_id, status, patient_id, request, response, error_message,
			created_at, updated_at, expires_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, job.JobID, job.Status, job.PatientID, reqJSON, respJSON, job.ErrorMessage, now, now, expiresAt); execErr != nil {
		return fmt.Errorf("chat: failed to persist job: %w", execErr)
	}
	return nil
}

// MarkCompleted updates the job as completed with the final response.
func (s *PGJobStore) MarkCompleted(ctx context.Context, jobID string, resp *TurnResponse) error {
	if jobID == "" {
		return errors.New("chat: jobID required")
	}
	respJSON, err := marshalJSON(resp)
	if err != nil {
		return err
	}

	result, execErr := s.db.Exec(ctx, `
		UPDATE chat_jobs
		SET status = $2,
		    response = $3,
		    error_message = '',
		    updated_at = $4
		WHERE job_id = $1
	`, jobID, JobStatusCompleted, respJSON, time.Now().UTC())
	if execErr != nil {
		return fmt.Errorf("chat: failed to update job: %w", execErr)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkFailed marks the job as failed with an error message.
func (s *PGJobStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	if jobID == "" {
		return errors.New("chat: jobID required")
	}

	result, execErr := s.db.Exec(ctx, `
		UPDATE chat_jobs
		SET status = $2,
		    response = NULL,
		    error_message = $3,
		    updated_at = $4
		WHERE job_id = $1
	`, jobID, JobStatusFailed, errMsg, time.Now().UTC())
	if execErr != nil {
		return fmt.Errorf("chat: failed to update job: %w", execErr)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob loads a job by ID.
func (s *PGJobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("chat: jobID required")
	}

	var (
		reqJSON   []byte
		respJSON  []byte
		patientID pgtype.Text
		createdAt time.Time
		updatedAt time.Time
		expiresAt pgtype.Timestamptz
		status    string
		errMsg    string
	)

	row := s.db.QueryRow(ctx, `
		SELECT job_id, status, patient_id, request, response, error_message,
		       created_at, updated_at, expires_at
		FROM chat_jobs
		WHERE job_id = $1
	`, jobID)

	if err := row.Scan(&jobID, &status, &patientID, &reqJSON, &respJSON, &errMsg,
		&createdAt, &updatedAt, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("chat: failed to fetch job: %w", err)
	}

	job := &JobRecord{
		JobID:        jobID,
		Status:       JobStatus(status),
		ErrorMessage: errMsg,
		CreatedAt:    createdAt.Format(time.RFC3339Nano),
		UpdatedAt:    updatedAt.Format(time.RFC3339Nano),
	}
	if patientID.Valid {
		job.PatientID = patientID.String
	}
	if expiresAt.Valid {
		job.ExpiresAt = expiresAt.Time.Unix()
	}

	if len(reqJSON) > 0 {
		var req TurnRequest
		if err := json.Unmarshal(reqJSON, &req); err != nil {
			return nil, fmt.Errorf("chat: failed to decode request: %w", err)
		}
		job.Request = &req
	}
	if len(respJSON) > 0 {
		var resp TurnResponse
		if err := json.Unmarshal(respJSON, &resp); err != nil {
			return nil, fmt.Errorf("chat: failed to decode response: %w", err)
		}
		job.Response = &resp
	}

	return job, nil
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("chat: failed to encode json: %w", err)
	}
	return data, nil
}
