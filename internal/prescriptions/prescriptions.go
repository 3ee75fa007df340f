// Package prescriptions tracks patient prescription records and the
// uploaded documents backing them.
package prescriptions

import (
	"time"

	"github.com/google/uuid"
)

// Record is a prescription on file for a patient and medicine.
type Record struct {
	ID           uuid.UUID
	PatientID    string
	MedicineName string
	FileRef      string
	Approved     bool
	UploadedAt   time.Time
}
