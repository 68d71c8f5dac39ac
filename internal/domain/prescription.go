package domain

import (
	"time"

	"github.com/google/uuid"
)

type PrescriptionStatus string

const (
	PrescriptionStatusPending  PrescriptionStatus = "PENDING"
	PrescriptionStatusVerified PrescriptionStatus = "VERIFIED"
	PrescriptionStatusRejected PrescriptionStatus = "REJECTED"
)

// PrescriptionDocument is an uploaded prescription awaiting operator review.
// CoveredItems lists the catalog items the document authorizes.
type PrescriptionDocument struct {
	ID           uuid.UUID
	GuestID      string
	FileURL      string
	Status       PrescriptionStatus
	Email        string
	Phone        string
	CoveredItems []CoveredItem
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CoveredItem links a document to one catalog item it covers.
type CoveredItem struct {
	DocumentID uuid.UUID
	ItemID     string
	Quantity   int64
}

// Covers reports whether the document authorizes every item in itemIDs.
// A document covering a superset still counts as covering.
func (d *PrescriptionDocument) Covers(itemIDs []string) bool {
	covered := make(map[string]bool, len(d.CoveredItems))
	for _, ci := range d.CoveredItems {
		covered[ci.ItemID] = true
	}
	for _, id := range itemIDs {
		if !covered[id] {
			return false
		}
	}
	return true
}
