package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/pharmaflow/pharmacy-assistant/pkg/logging"
)

// RefillLeadTime is how far ahead of the predicted run-out date patients
// get alerted.
const RefillLeadTime = 48 * time.Hour

// Prediction is a forecast of when a purchase runs out.
type Prediction struct {
	Order      Order
	RunOutDate time.Time
	DaysLeft   float64
}

// Predict forecasts the run-out date for an order. Orders without a dosage
// frequency carry no prediction and return false.
func Predict(o Order, now time.Time) (Prediction, bool) {
	supply := o.DaysSupply()
	if supply <= 0 {
		return Prediction{}, false
	}
	runOut := o.PurchaseDate.Add(time.Duration(supply * float64(24*time.Hour)))
	return Prediction{
		Order:      o,
		RunOutDate: runOut,
		DaysLeft:   runOut.Sub(now).Hours() / 24,
	}, true
}

// Due reports whether the prediction has entered the alert window: the
// run-out date is no more than leadTime away. Already-exhausted supplies
// count as due too so a late scan still alerts.
func (p Prediction) Due(now time.Time, leadTime time.Duration) bool {
	return !p.RunOutDate.After(now.Add(leadTime))
}

// RefillNotifier delivers a refill reminder to a patient.
type RefillNotifier interface {
	NotifyRefillDue(ctx context.Context, patientID string, p Prediction) error
}

// Scanner walks order history, predicts run-out dates, and alerts patients
// whose supply is about to run dry.
type Scanner struct {
	store    *Store
	notifier RefillNotifier
	logger   *logging.Logger
	leadTime time.Duration
	now      func() time.Time
}

// NewScanner creates a refill scanner. A nil notifier means predictions are
// computed and recorded but nobody is emailed, which is useful in dev.
func NewScanner(store *Store, notifier RefillNotifier, logger *logging.Logger) *Scanner {
	if store == nil {
		panic("orders: scanner store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scanner{
		store:    store,
		notifier: notifier,
		logger:   logger,
		leadTime: RefillLeadTime,
		now:      time.Now,
	}
}

// ScanResult summarizes one scanner pass.
type ScanResult struct {
	PatientsScanned int `json:"patients_scanned"`
	AlertsSent      int `json:"alerts_sent"`
	Errors          int `json:"errors"`
}

// Scan predicts refills for every patient with order history and sends an
// alert for each due prediction not already alerted on. Per-patient failures
// are logged and counted rather than aborting the pass.
func (s *Scanner) Scan(ctx context.Context) (ScanResult, error) {
	patients, err := s.store.DistinctPatients(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("orders: refill scan failed: %w", err)
	}

	result := ScanResult{PatientsScanned: len(patients)}
	for _, patientID := range patients {
		sent, err := s.scanPatient(ctx, patientID)
		if err != nil {
			result.Errors++
			s.logger.Error("refill scan failed for patient",
				"patient_id", patientID, "error", err)
			continue
		}
		result.AlertsSent += sent
	}
	return result, nil
}

// DuePredictions returns the patient's due refill predictions without
// sending anything, used for the proactive hint after a successful order.
func (s *Scanner) DuePredictions(ctx context.Context, patientID string) ([]Prediction, error) {
	latest, err := s.store.LatestPerProduct(ctx, patientID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var due []Prediction
	for _, o := range latest {
		p, ok := Predict(o, now)
		if ok && p.Due(now, s.leadTime) {
			due = append(due, p)
		}
	}
	return due, nil
}

func (s *Scanner) scanPatient(ctx context.Context, patientID string) (int, error) {
	due, err := s.DuePredictions(ctx, patientID)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, p := range due {
		already, err := s.store.RefillAlertSent(ctx, p.Order.ID)
		if err != nil {
			return sent, err
		}
		if already {
			continue
		}
		if s.notifier != nil {
			if err := s.notifier.NotifyRefillDue(ctx, patientID, p); err != nil {
				return sent, err
			}
		}
		if err := s.store.RecordRefillAlert(ctx, p.Order.ID, p.RunOutDate); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
