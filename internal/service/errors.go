package service

import (
	"errors"
	"fmt"

	"github.com/medimart/orders/internal/repository"
)

var (
	ErrEmptyCart                      = errors.New("cart is empty, nothing to checkout")
	ErrPrescriptionRequired           = errors.New("prescription required and no document supplied")
	ErrPrescriptionCoverageIncomplete = errors.New("verified prescription does not cover all required items")
	ErrPrescriptionNotVerified        = errors.New("prescription is not verified")
	ErrGatewayInitiationFailed        = errors.New("payment initiation failed")
	ErrPaymentFailed                  = errors.New("payment verification failed")
	ErrUnauthorized                   = errors.New("caller may not act on this resource")
	IllegalTransitionError            = errors.New("illegal transition of order status")
)

// ValidationError reports malformed contact or delivery input. It is always
// returned before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientStockError names the offering that could not be reserved so a
// client can correct the offending line.
type InsufficientStockError struct {
	SellerID  string
	ItemID    string
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s at seller %s (requested %d)", e.ItemID, e.SellerID, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return repository.ErrInsufficientStock
}
