// Package orders records completed purchases and derives refill predictions
// from them.
package orders

import (
	"time"

	"github.com/google/uuid"
)

// Order is a completed purchase.
type Order struct {
	ID              uuid.UUID
	PatientID       string
	ProductName     string
	Quantity        int
	TotalPrice      float64
	DosageFrequency float64
	PurchaseDate    time.Time
}

// DaysSupply returns how many days the purchase covers given its dosage
// frequency (units per day). Zero frequency means no prediction is possible.
func (o Order) DaysSupply() float64 {
	if o.DosageFrequency <= 0 {
		return 0
	}
	return float64(o.Quantity) / o.DosageFrequency
}
