package notify

import (
	"context"
	"fmt"

	"github.com/pharmaflow/pharmacy-assistant/internal/orders"
	"github.com/pharmaflow/pharmacy-assistant/pkg/logging"
)

// EmailLookup resolves a patient's contact email.
type EmailLookup interface {
	PatientEmail(ctx context.Context, patientID string) (string, error)
}

// RefillNotifier emails patients when a medicine supply is about to run
// out. It satisfies the refill scanner's notifier contract.
type RefillNotifier struct {
	sender EmailSender
	lookup EmailLookup
	logger *logging.Logger
}

// NewRefillNotifier creates a refill notifier.
func NewRefillNotifier(sender EmailSender, lookup EmailLookup, logger *logging.Logger) *RefillNotifier {
	if sender == nil {
		panic("notify: email sender cannot be nil")
	}
	if lookup == nil {
		panic("notify: email lookup cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RefillNotifier{sender: sender, lookup: lookup, logger: logger}
}

// NotifyRefillDue emails the patient about an upcoming run-out date.
// Patients without an email on file are skipped, not treated as failures;
// the scanner still records the alert so it does not retry forever.
func (n *RefillNotifier) NotifyRefillDue(ctx context.Context, patientID string, p orders.Prediction) error {
	email, err := n.lookup.PatientEmail(ctx, patientID)
	if err != nil {
		return fmt.Errorf("notify: failed to look up patient email: %w", err)
	}
	if email == "" {
		n.logger.Info("skipping refill alert, no email on file", "patient_id", patientID)
		return nil
	}

	msg := EmailMessage{
		To:      email,
		Subject: fmt.Sprintf("Time to refill your %s", p.Order.ProductName),
		Body: fmt.Sprintf(
			"Hi,\n\nBased on your last purchase, your %s will run out around %s. "+
				"Reply to our assistant or visit the pharmacy to reorder.\n\nStay well,\nPharmaFlow Pharmacy",
			p.Order.ProductName, p.RunOutDate.Format("January 2")),
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: failed to send refill alert: %w", err)
	}
	return nil
}
