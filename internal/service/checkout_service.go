package service

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"github.com/medimart/orders/internal/cache"
	"github.com/medimart/orders/internal/domain"
	"github.com/medimart/orders/internal/gateway"
	"github.com/medimart/orders/internal/repository"
)

type CheckoutService struct {
	store   repository.Store
	gateway gateway.PaymentGateway
	cache   cache.CartCache

	// callbackURL is handed to the gateway so it can redirect the guest
	// back after authorization.
	callbackURL string
}

func NewCheckoutService(store repository.Store, gw gateway.PaymentGateway, cartCache cache.CartCache, callbackURL string) *CheckoutService {
	return &CheckoutService{
		store:       store,
		gateway:     gw,
		cache:       cartCache,
		callbackURL: callbackURL,
	}
}

type CheckoutRequest struct {
	GuestID string
	Contact ContactInfo

	// PrescriptionFileURL is the opaque storage URL of a freshly uploaded
	// prescription, empty when the guest uploaded nothing.
	PrescriptionFileURL string
}

type CheckoutResult struct {
	SessionID uuid.UUID
	Orders    []*domain.Order

	// PayableAmount is the summed total of orders payable right now.
	PayableAmount int64

	// AwaitingVerification is true when every order is prescription-gated
	// and there was nothing to charge.
	AwaitingVerification bool

	// Authorization is the gateway redirect handle, nil when
	// AwaitingVerification is true or initiation failed.
	Authorization *gateway.Authorization
}

// Checkout converts the guest's cart into one or more orders: lines are
// grouped by seller, split further by prescription coverage, stock is
// reserved all-or-nothing, the cart row is deleted and a gateway transaction
// is initiated for the payable subset.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	if err := validateContact(&req.Contact); err != nil {
		return nil, err
	}

	cart, err := s.store.GetCartByGuest(ctx, req.GuestID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}
	if len(cart.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	session := &domain.CheckoutSession{ID: uuid.New(), GuestID: req.GuestID}
	var created []*domain.Order

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		// Re-read inside the transaction: a concurrent checkout that won
		// the race has already deleted the cart.
		cart, err := tx.GetCartByGuest(ctx, req.GuestID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return ErrEmptyCart
		}
		if err != nil {
			return err
		}

		// Coverage is decided against the same cart snapshot the split
		// partitions, so a line added concurrently cannot slip past the
		// prescription gate.
		coverage, err := s.resolveCoverage(ctx, tx, req, cart.Lines)
		if err != nil {
			return err
		}

		newDocID, err := s.attachNewPrescription(ctx, tx, req, coverage)
		if err != nil {
			return err
		}

		if err := tx.InsertSession(ctx, session); err != nil {
			return err
		}

		created, err = s.splitCart(ctx, tx, cart, session, coverage, newDocID, &req.Contact)
		if err != nil {
			return err
		}

		// Reserve every moved line; any failure rolls back the whole
		// checkout including reservations already made in this call.
		for _, order := range created {
			for _, line := range order.Lines {
				if err := tx.ReserveStock(ctx, line.SellerID, line.ItemID, line.Quantity); err != nil {
					if errors.Is(err, repository.ErrInsufficientStock) {
						return &InsufficientStockError{
							SellerID:  line.SellerID,
							ItemID:    line.ItemID,
							Requested: line.Quantity,
						}
					}
					return err
				}
			}
		}

		if err := tx.DeleteOrder(ctx, cart.ID); err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				// A concurrent checkout won the race and consumed the cart.
				return ErrEmptyCart
			}
			return err
		}

		for _, order := range created {
			if err := WriteOrderEvent(ctx, tx, EventOrderCreated, order); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCart(req.GuestID)

	result := &CheckoutResult{
		SessionID: session.ID,
		Orders:    created,
	}
	for _, order := range created {
		if order.Status == domain.OrderStatusPending {
			result.PayableAmount += order.TotalAmount
		}
	}

	if result.PayableAmount == 0 {
		// Everything is prescription-gated; nothing to charge yet.
		result.AwaitingVerification = true
		return result, nil
	}

	auth, err := s.initiatePayment(ctx, session.ID, payableOf(created), result.PayableAmount, req.Contact.Email)
	if err != nil {
		// Orders and reservations stay in place; the guest can resume
		// payment later. Overselling is worse than holding stock.
		log.Printf("gateway initiation failed for session %v: %v", session.ID, err)
		return result, ErrGatewayInitiationFailed
	}
	result.Authorization = auth
	return result, nil
}

func payableOf(orders []*domain.Order) []*domain.Order {
	var payable []*domain.Order
	for _, order := range orders {
		if order.Status == domain.OrderStatusPending {
			payable = append(payable, order)
		}
	}
	return payable
}

// splitCart partitions each seller's lines into up to three buckets and
// creates one order per non-empty bucket, all sharing the session id.
func (s *CheckoutService) splitCart(
	ctx context.Context,
	tx repository.Store,
	cart *domain.Order,
	session *domain.CheckoutSession,
	coverage *coverageResult,
	newDocID *uuid.UUID,
	contact *ContactInfo,
) ([]*domain.Order, error) {

	var created []*domain.Order
	for _, group := range domain.GroupBySeller(cart.Lines) {
		var verified, fresh, open []domain.OrderLine
		for _, line := range group.Lines {
			switch {
			case coverage.coveredByVerified[line.ItemID]:
				verified = append(verified, line)
			case coverage.requiresNewDocument[line.ItemID]:
				fresh = append(fresh, line)
			default:
				open = append(open, line)
			}
		}

		sellerID := group.SellerID
		buckets := []struct {
			lines  []domain.OrderLine
			status domain.OrderStatus
			doc    *uuid.UUID
		}{
			{verified, domain.OrderStatusPending, coverage.verifiedDocID},
			{fresh, domain.OrderStatusPendingPrescription, newDocID},
			{open, domain.OrderStatusPending, nil},
		}

		for _, bucket := range buckets {
			if len(bucket.lines) == 0 {
				continue
			}

			order := &domain.Order{
				ID:                uuid.New(),
				GuestID:           cart.GuestID,
				SellerID:          &sellerID,
				Status:            bucket.status,
				PaymentStatus:     domain.PaymentStatusUnpaid,
				DeliveryMethod:    contact.DeliveryMethod,
				Email:             contact.Email,
				Phone:             contact.Phone,
				Address:           contact.Address,
				CheckoutSessionID: &session.ID,
				PrescriptionID:    bucket.doc,
			}
			if bucket.status == domain.OrderStatusPending {
				order.PaymentReference = uuid.New().String()
			}
			for _, line := range bucket.lines {
				order.Lines = append(order.Lines, domain.OrderLine{
					ID:        uuid.New(),
					OrderID:   order.ID,
					SellerID:  line.SellerID,
					ItemID:    line.ItemID,
					Quantity:  line.Quantity,
					UnitPrice: line.UnitPrice,
				})
			}
			order.TotalAmount = domain.TotalOf(order.Lines)

			if err := tx.InsertOrder(ctx, order); err != nil {
				return nil, err
			}
			created = append(created, order)
		}
	}
	return created, nil
}

func (s *CheckoutService) invalidateCart(guestID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(context.Background(), guestID); err != nil {
		log.Printf("cart cache invalidate error: %v", err)
	}
}
