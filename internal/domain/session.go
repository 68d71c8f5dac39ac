package domain

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutSession groups the sibling orders produced by one checkout call.
// One gateway transaction settles every payment reference in the session, so
// a single gateway callback can resolve all siblings atomically.
type CheckoutSession struct {
	ID                uuid.UUID
	GuestID           string
	GatewayReference  string
	PaymentReferences []string
	TrackingCode      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
