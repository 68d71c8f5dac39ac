package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	// OrderStatusCart is the mutable pre-checkout state. A guest has at
	// most one order in this status at any time.
	OrderStatusCart OrderStatus = "CART"

	OrderStatusPending             OrderStatus = "PENDING"
	OrderStatusPendingPrescription OrderStatus = "PENDING_PRESCRIPTION"
	OrderStatusConfirmed           OrderStatus = "CONFIRMED"
	OrderStatusProcessing          OrderStatus = "PROCESSING"
	OrderStatusShipped             OrderStatus = "SHIPPED"
	OrderStatusDelivered           OrderStatus = "DELIVERED"
	OrderStatusCancelled           OrderStatus = "CANCELLED"
)

// transitions is the single source of truth for the order state machine.
// Status comparisons scattered around call sites are not allowed; every
// transition goes through CanTransitionTo.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusCart:                {OrderStatusPending, OrderStatusPendingPrescription},
	OrderStatusPending:             {OrderStatusConfirmed, OrderStatusPendingPrescription, OrderStatusCancelled},
	OrderStatusPendingPrescription: {OrderStatusPending, OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:           {OrderStatusProcessing, OrderStatusShipped},
	OrderStatusProcessing:          {OrderStatusShipped},
	OrderStatusShipped:             {OrderStatusDelivered},
	OrderStatusDelivered:           {},
	OrderStatusCancelled:           {},
}

func CanTransitionTo(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusPaid   PaymentStatus = "PAID"
	PaymentStatusFailed PaymentStatus = "FAILED"
)

type DeliveryMethod string

const (
	DeliveryMethodPickup   DeliveryMethod = "PICKUP"
	DeliveryMethodDelivery DeliveryMethod = "DELIVERY"
)

// RequiresAddress reports whether the method implies shipping to an address.
func (m DeliveryMethod) RequiresAddress() bool {
	return m == DeliveryMethodDelivery
}

// Order is a single row of the orders table. While Status is CART it is the
// guest's mutable cart; after checkout splits it, each resulting row is an
// immutable order progressing through the state machine. All money fields are
// in the smallest currency unit.
type Order struct {
	ID                uuid.UUID
	GuestID           string
	SellerID          *string // nil while a mixed-seller cart
	Status            OrderStatus
	PaymentStatus     PaymentStatus
	DeliveryMethod    DeliveryMethod
	Email             string
	Phone             string
	Address           string
	TotalAmount       int64
	CheckoutSessionID *uuid.UUID // shared by sibling orders of one checkout
	PaymentReference  string
	PrescriptionID    *uuid.UUID
	TrackingCode      string
	CancelReason      string
	Lines             []OrderLine
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderLine references one seller offering. UnitPrice is a snapshot taken at
// add time; later offering price changes do not touch existing lines.
type OrderLine struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	SellerID  string
	ItemID    string
	Quantity  int64
	UnitPrice int64
}

func (l OrderLine) Subtotal() int64 {
	return l.UnitPrice * l.Quantity
}

// TotalOf recomputes an order total from its lines.
func TotalOf(lines []OrderLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Subtotal()
	}
	return total
}
