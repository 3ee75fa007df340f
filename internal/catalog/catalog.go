// Package catalog holds the medicine read model consumed by the dialogue
// engine: exact and fuzzy name lookups, low-stock listing, and the atomic
// stock mutations performed when an order commits.
package catalog

import "time"

// Medicine is a catalog entry. Stock and price are mutated by order
// placement and restocking; everything else is set at import time.
type Medicine struct {
	ID                   int64
	Name                 string
	Price                float64
	PackageSize          string
	Description          string
	Stock                int
	PrescriptionRequired bool
	MaxSafeDosage        int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
