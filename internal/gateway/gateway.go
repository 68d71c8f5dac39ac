package gateway

import (
	"context"
	"errors"
)

// Authorization is the handle returned by a successful Initialize call. The
// guest completes payment at AuthorizationURL; Reference identifies the
// transaction for later verification.
type Authorization struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyResult reports the settled state of a gateway transaction. Anything
// other than Success true is treated as a failed payment attempt.
type VerifyResult struct {
	Success bool
	Status  string
	Amount  int64
}

// PaymentGateway is the contract with the external payment provider. Amounts
// are in the smallest currency unit.
type PaymentGateway interface {
	Initialize(ctx context.Context, amount int64, email, reference, callbackURL string) (*Authorization, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")
