package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/medimart/orders/internal/domain"
	"github.com/medimart/orders/internal/gateway"
	"github.com/medimart/orders/internal/repository"
)

// initiatePayment starts one gateway transaction for the payable orders of a
// session and records the mapping so a single callback can settle them all.
func (s *CheckoutService) initiatePayment(ctx context.Context, sessionID uuid.UUID, payable []*domain.Order, amount int64, email string) (*gateway.Authorization, error) {
	gatewayRef := uuid.New().String()
	auth, err := s.gateway.Initialize(ctx, amount, email, gatewayRef, s.callbackURL)
	if err != nil {
		return nil, fmt.Errorf("gateway initialize: %w", err)
	}

	refs := make([]string, 0, len(payable))
	for _, order := range payable {
		refs = append(refs, order.PaymentReference)
	}
	if err := s.store.SetSessionPayment(ctx, sessionID, auth.Reference, refs); err != nil {
		return nil, err
	}
	return auth, nil
}

// Resume re-initiates payment for an order whose prescription was verified
// after checkout. The original call had nothing to charge, so the session
// never got a gateway transaction; fresh payment references are assigned to
// every still-pending sibling.
func (s *CheckoutService) Resume(ctx context.Context, guestID string, orderID uuid.UUID) (*CheckoutResult, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.GuestID != guestID {
		return nil, ErrUnauthorized
	}
	if order.Status != domain.OrderStatusPending {
		if order.Status == domain.OrderStatusPendingPrescription {
			return nil, ErrPrescriptionNotVerified
		}
		return nil, IllegalTransitionError
	}
	if order.PrescriptionID != nil {
		doc, err := s.store.GetPrescription(ctx, *order.PrescriptionID)
		if err != nil {
			return nil, err
		}
		if doc.Status != domain.PrescriptionStatusVerified {
			return nil, ErrPrescriptionNotVerified
		}
	}
	if order.CheckoutSessionID == nil {
		return nil, repository.ErrSessionNotFound
	}

	sessionID := *order.CheckoutSessionID
	var payable []*domain.Order
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		siblings, err := tx.ListOrdersBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		for _, sibling := range siblings {
			if sibling.Status != domain.OrderStatusPending || sibling.PaymentStatus == domain.PaymentStatusPaid {
				continue
			}
			sibling.PaymentReference = uuid.New().String()
			if err := tx.SetPaymentReference(ctx, sibling.ID, sibling.PaymentReference); err != nil {
				return err
			}
			payable = append(payable, sibling)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{SessionID: sessionID, Orders: payable}
	for _, o := range payable {
		result.PayableAmount += o.TotalAmount
	}

	auth, err := s.initiatePayment(ctx, sessionID, payable, result.PayableAmount, order.Email)
	if err != nil {
		log.Printf("gateway initiation failed on resume for session %v: %v", sessionID, err)
		return result, ErrGatewayInitiationFailed
	}
	result.Authorization = auth
	return result, nil
}
