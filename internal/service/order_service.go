package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/medimart/orders/internal/domain"
	"github.com/medimart/orders/internal/repository"
)

// OrderService serves order history reads and operator-driven fulfillment
// transitions past CONFIRMED.
type OrderService struct {
	store repository.Store
}

func NewOrderService(store repository.Store) *OrderService {
	return &OrderService{store: store}
}

func (s *OrderService) GetByTrackingCode(ctx context.Context, code string) ([]*domain.Order, error) {
	if code == "" {
		return nil, &ValidationError{Field: "tracking_code", Reason: "must not be empty"}
	}
	first, err := s.store.GetOrderByTrackingCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if first.CheckoutSessionID == nil {
		return []*domain.Order{first}, nil
	}

	// A tracking code spans every sibling of the settled session.
	siblings, err := s.store.ListOrdersBySession(ctx, *first.CheckoutSessionID)
	if err != nil {
		return nil, err
	}
	var tracked []*domain.Order
	for _, order := range siblings {
		if order.TrackingCode == code {
			tracked = append(tracked, order)
		}
	}
	return tracked, nil
}

func (s *OrderService) ListByGuest(ctx context.Context, guestID string) ([]*domain.Order, error) {
	return s.store.ListOrdersByGuest(ctx, guestID)
}

func (s *OrderService) Get(ctx context.Context, guestID string, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.GuestID != guestID {
		return nil, ErrUnauthorized
	}
	return order, nil
}

// AdvanceFulfillment moves a confirmed order through the fulfillment states.
// Only the central transition table decides what is legal.
func (s *OrderService) AdvanceFulfillment(ctx context.Context, operatorRole string, orderID uuid.UUID, next domain.OrderStatus) error {
	if operatorRole != RoleOperator && operatorRole != RoleAdmin {
		return ErrUnauthorized
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !domain.CanTransitionTo(order.Status, next) {
		return IllegalTransitionError
	}
	return s.store.SetOrderStatus(ctx, orderID, next)
}
