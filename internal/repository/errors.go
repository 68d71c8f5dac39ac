package repository

import "errors"

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrCartNotFound         = errors.New("cart not found")
	ErrLineNotFound         = errors.New("order line not found")
	ErrOfferingNotFound     = errors.New("seller offering not found")
	ErrItemNotFound         = errors.New("catalog item not found")
	ErrPrescriptionNotFound = errors.New("prescription document not found")
	ErrSessionNotFound      = errors.New("checkout session not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrCartExists           = errors.New("guest already has an open cart")
)
