package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pharmaflow/pharmacy-assistant/internal/orders"
)

type recordingSender struct {
	sent []EmailMessage
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type stubLookup struct {
	emails map[string]string
	err    error
}

func (s *stubLookup) PatientEmail(_ context.Context, patientID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.emails[patientID], nil
}

func testPrediction() orders.Prediction {
	return orders.Prediction{
		Order: orders.Order{
			PatientID:   "p1",
			ProductName: "Vitamin D3 1000IU",
			Quantity:    60,
		},
		RunOutDate: time.Date(2026, time.September, 12, 0, 0, 0, 0, time.UTC),
		DaysLeft:   2,
	}
}

func TestRefillNotifierSendsEmail(t *testing.T) {
	sender := &recordingSender{}
	lookup := &stubLookup{emails: map[string]string{"p1": "p1@example.com"}}
	n := NewRefillNotifier(sender, lookup, nil)

	if err := n.NotifyRefillDue(context.Background(), "p1", testPrediction()); err != nil {
		t.Fatalf("NotifyRefillDue() error = %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "p1@example.com" {
		t.Errorf("To = %q", msg.To)
	}
	if !strings.Contains(msg.Subject, "Vitamin D3 1000IU") {
		t.Errorf("Subject = %q, want product name", msg.Subject)
	}
	if !strings.Contains(msg.Body, "September 12") {
		t.Errorf("Body = %q, want run-out date", msg.Body)
	}
}

func TestRefillNotifierSkipsPatientsWithoutEmail(t *testing.T) {
	sender := &recordingSender{}
	n := NewRefillNotifier(sender, &stubLookup{emails: map[string]string{}}, nil)

	if err := n.NotifyRefillDue(context.Background(), "p2", testPrediction()); err != nil {
		t.Fatalf("NotifyRefillDue() error = %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d emails for patient without email", len(sender.sent))
	}
}

func TestRefillNotifierPropagatesLookupError(t *testing.T) {
	n := NewRefillNotifier(&recordingSender{}, &stubLookup{err: errors.New("db down")}, nil)

	if err := n.NotifyRefillDue(context.Background(), "p1", testPrediction()); err == nil {
		t.Fatal("NotifyRefillDue() error = nil, want lookup error")
	}
}

func TestRefillNotifierPropagatesSendError(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	lookup := &stubLookup{emails: map[string]string{"p1": "p1@example.com"}}
	n := NewRefillNotifier(sender, lookup, nil)

	if err := n.NotifyRefillDue(context.Background(), "p1", testPrediction()); err == nil {
		t.Fatal("NotifyRefillDue() error = nil, want send error")
	}
}
