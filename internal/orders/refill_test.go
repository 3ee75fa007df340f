package orders

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDaysSupply(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		freq     float64
		want     float64
	}{
		{"once daily 30 pack", 30, 1, 30},
		{"twice daily 20 pack", 20, 2, 10},
		{"half tablet daily", 10, 0.5, 20},
		{"no frequency recorded", 30, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Order{Quantity: tt.quantity, DosageFrequency: tt.freq}
			if got := o.DaysSupply(); got != tt.want {
				t.Errorf("DaysSupply() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredict(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := Order{
		ID:              uuid.New(),
		ProductName:     "Ibuprofen 400mg",
		Quantity:        20,
		DosageFrequency: 2,
		PurchaseDate:    now.AddDate(0, 0, -8),
	}

	p, ok := Predict(o, now)
	if !ok {
		t.Fatal("Predict() returned no prediction for a dosed order")
	}
	wantRunOut := o.PurchaseDate.AddDate(0, 0, 10)
	if !p.RunOutDate.Equal(wantRunOut) {
		t.Errorf("RunOutDate = %v, want %v", p.RunOutDate, wantRunOut)
	}
	if p.DaysLeft < 1.9 || p.DaysLeft > 2.1 {
		t.Errorf("DaysLeft = %v, want ~2", p.DaysLeft)
	}
}

func TestPredictWithoutFrequency(t *testing.T) {
	if _, ok := Predict(Order{Quantity: 30}, time.Now()); ok {
		t.Error("Predict() produced a prediction without a dosage frequency")
	}
}

func TestPredictionDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		runOut time.Time
		want   bool
	}{
		{"runs out tomorrow", now.AddDate(0, 0, 1), true},
		{"runs out in exactly two days", now.Add(RefillLeadTime), true},
		{"already ran out", now.AddDate(0, 0, -1), true},
		{"plenty left", now.AddDate(0, 0, 10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Prediction{RunOutDate: tt.runOut}
			if got := p.Due(now, RefillLeadTime); got != tt.want {
				t.Errorf("Due() = %v, want %v", got, tt.want)
			}
		})
	}
}
