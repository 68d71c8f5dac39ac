package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medimart/orders/internal/domain"
	"github.com/medimart/orders/internal/gateway"
	"github.com/medimart/orders/internal/repository"
)

type ReconcileService struct {
	store   repository.Store
	gateway gateway.PaymentGateway
}

func NewReconcileService(store repository.Store, gw gateway.PaymentGateway) *ReconcileService {
	return &ReconcileService{store: store, gateway: gw}
}

type ReconcileResult struct {
	TrackingCode string
	Orders       []*domain.Order
}

// Reconcile verifies a gateway transaction and transitions every sibling
// order of its checkout session in one atomic unit. Repeating the call for an
// already-settled transaction is a no-op with the same result: the tracking
// code is minted once per session and reused.
//
// reference may be the gateway transaction reference or, for single-order
// flows, one order's payment reference.
func (s *ReconcileService) Reconcile(ctx context.Context, guestID, reference string) (*ReconcileResult, error) {
	session, err := s.resolveSession(ctx, reference)
	if err != nil {
		return nil, err
	}
	if guestID != "" && session.GuestID != guestID {
		return nil, ErrUnauthorized
	}

	verify, err := s.gateway.Verify(ctx, session.GatewayReference)
	if err != nil {
		return nil, fmt.Errorf("gateway verify: %w", err)
	}

	siblings, err := s.store.ListOrdersByPaymentReferences(ctx, session.PaymentReferences)
	if err != nil {
		return nil, err
	}

	if !verify.Success {
		// The attempt failed; orders stay pending and may be retried by a
		// later checkout or resume call.
		err := s.store.WithTx(ctx, func(tx repository.Store) error {
			for _, order := range siblings {
				if order.Status == domain.OrderStatusConfirmed && order.PaymentStatus == domain.PaymentStatusPaid {
					continue // settled by an earlier successful attempt
				}
				if err := tx.SetPaymentStatus(ctx, order.ID, domain.PaymentStatusFailed); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return nil, ErrPaymentFailed
	}

	trackingCode := session.TrackingCode
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if trackingCode == "" {
			trackingCode = mintTrackingCode(session.ID, time.Now())
			if err := tx.SetSessionTracking(ctx, session.ID, trackingCode); err != nil {
				return err
			}
		}

		for _, order := range siblings {
			if order.Status == domain.OrderStatusConfirmed && order.PaymentStatus == domain.PaymentStatusPaid {
				continue // already settled by an earlier call
			}

			next := domain.OrderStatusConfirmed
			if order.PrescriptionID != nil {
				doc, err := tx.GetPrescription(ctx, *order.PrescriptionID)
				if err != nil {
					return err
				}
				if doc.Status != domain.PrescriptionStatusVerified {
					// Payment captured, fulfillment blocked until review.
					next = domain.OrderStatusPendingPrescription
				}
			}
			if order.Status != next && !domain.CanTransitionTo(order.Status, next) {
				return IllegalTransitionError
			}

			if err := tx.SetOrderPayment(ctx, order.ID, next, domain.PaymentStatusPaid, trackingCode); err != nil {
				return err
			}
			if next == domain.OrderStatusConfirmed {
				order.Status = next
				order.PaymentStatus = domain.PaymentStatusPaid
				order.TrackingCode = trackingCode
				if err := WriteOrderEvent(ctx, tx, EventOrderConfirmed, order); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.store.ListOrdersByPaymentReferences(ctx, session.PaymentReferences)
	if err != nil {
		return nil, err
	}
	return &ReconcileResult{TrackingCode: trackingCode, Orders: updated}, nil
}

func (s *ReconcileService) resolveSession(ctx context.Context, reference string) (*domain.CheckoutSession, error) {
	session, err := s.store.GetSessionByGatewayReference(ctx, reference)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}

	// Single-order flow: the caller supplied one order's payment reference.
	order, err := s.store.GetOrderByPaymentReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if order.CheckoutSessionID == nil {
		return nil, repository.ErrSessionNotFound
	}
	return s.store.GetSession(ctx, *order.CheckoutSessionID)
}

// mintTrackingCode derives the session's tracking code deterministically from
// the session id and the first settlement time.
func mintTrackingCode(sessionID uuid.UUID, at time.Time) string {
	short := sessionID.String()[:8]
	return fmt.Sprintf("TRK-%s-%d", short, at.Unix())
}
