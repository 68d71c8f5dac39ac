package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/medimart/orders/internal/cache"
	"github.com/medimart/orders/internal/domain"
	"github.com/medimart/orders/internal/repository"
)

type CartService struct {
	store repository.Store
	cache cache.CartCache
	sfg   singleflight.Group // prevents cache stampede on the same guest
}

func NewCartService(store repository.Store, cartCache cache.CartCache) *CartService {
	return &CartService{store: store, cache: cartCache}
}

// AddItem creates the guest's cart row if absent, upserts the (seller, item)
// line with a price snapshot and recomputes the total. Stock is only
// pre-checked here; reservation happens at checkout.
func (s *CartService) AddItem(ctx context.Context, guestID, sellerID, itemID string, quantity int64) (*domain.CartView, error) {
	if quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	if _, err := s.store.GetCatalogItem(ctx, itemID); err != nil {
		return nil, err
	}
	offering, err := s.store.GetOffering(ctx, sellerID, itemID)
	if err != nil {
		return nil, err
	}
	if offering.Stock < quantity {
		return nil, &InsufficientStockError{SellerID: sellerID, ItemID: itemID, Requested: quantity}
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		cart, err := tx.GetCartByGuest(ctx, guestID)
		if errors.Is(err, repository.ErrCartNotFound) {
			cart = &domain.Order{
				ID:             uuid.New(),
				GuestID:        guestID,
				Status:         domain.OrderStatusCart,
				PaymentStatus:  domain.PaymentStatusUnpaid,
				DeliveryMethod: domain.DeliveryMethodPickup,
			}
			if err := tx.InsertOrder(ctx, cart); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		updated := false
		for _, line := range cart.Lines {
			if line.SellerID == sellerID && line.ItemID == itemID {
				if err := tx.UpdateLineQuantity(ctx, line.ID, line.Quantity+quantity); err != nil {
					return err
				}
				updated = true
				break
			}
		}
		if !updated {
			line := &domain.OrderLine{
				ID:        uuid.New(),
				OrderID:   cart.ID,
				SellerID:  sellerID,
				ItemID:    itemID,
				Quantity:  quantity,
				UnitPrice: offering.Price,
			}
			if err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
		}

		return s.recomputeTotal(ctx, tx, cart.ID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(guestID)
	return s.GetCart(ctx, guestID)
}

// UpdateItem changes a line's quantity. The caller must own the cart the line
// belongs to.
func (s *CartService) UpdateItem(ctx context.Context, guestID string, lineID uuid.UUID, quantity int64) (*domain.CartView, error) {
	if quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		line, order, err := s.cartLine(ctx, tx, guestID, lineID)
		if err != nil {
			return err
		}

		offering, err := tx.GetOffering(ctx, line.SellerID, line.ItemID)
		if err != nil {
			return err
		}
		if offering.Stock < quantity {
			return &InsufficientStockError{SellerID: line.SellerID, ItemID: line.ItemID, Requested: quantity}
		}

		if err := tx.UpdateLineQuantity(ctx, lineID, quantity); err != nil {
			return err
		}
		return s.recomputeTotal(ctx, tx, order.ID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(guestID)
	return s.GetCart(ctx, guestID)
}

// RemoveItem deletes a line. An order left without lines is deleted; no empty
// carts persist.
func (s *CartService) RemoveItem(ctx context.Context, guestID string, lineID uuid.UUID) (*domain.CartView, error) {
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		_, order, err := s.cartLine(ctx, tx, guestID, lineID)
		if err != nil {
			return err
		}

		if err := tx.DeleteLine(ctx, lineID); err != nil {
			return err
		}
		if len(order.Lines) == 1 {
			return tx.DeleteOrder(ctx, order.ID)
		}
		return s.recomputeTotal(ctx, tx, order.ID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(guestID)
	return s.GetCart(ctx, guestID)
}

// GetCart returns the guest's cart grouped by seller. A guest without a cart
// gets an empty view, never an error.
func (s *CartService) GetCart(ctx context.Context, guestID string) (*domain.CartView, error) {
	v, err, _ := s.sfg.Do(guestID, func() (interface{}, error) {
		if s.cache != nil {
			view, err := s.cache.Get(ctx, guestID)
			if err == nil {
				return view, nil
			}
			if !errors.Is(err, cache.ErrCacheMiss) {
				log.Printf("cart cache get error: %v", err)
			}
		}

		cart, err := s.store.GetCartByGuest(ctx, guestID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return &domain.CartView{GuestID: guestID}, nil
		}
		if err != nil {
			return nil, err
		}

		view := &domain.CartView{
			GuestID: guestID,
			Groups:  domain.GroupBySeller(cart.Lines),
			Total:   domain.TotalOf(cart.Lines),
		}

		if s.cache != nil {
			go func() {
				if err := s.cache.Set(context.Background(), guestID, view); err != nil {
					log.Printf("cart cache set error: %v", err)
				}
			}()
		}
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.CartView), nil
}

// cartLine resolves a line and authorizes the guest against its owning cart.
func (s *CartService) cartLine(ctx context.Context, tx repository.Store, guestID string, lineID uuid.UUID) (*domain.OrderLine, *domain.Order, error) {
	line, err := tx.GetLine(ctx, lineID)
	if err != nil {
		return nil, nil, err
	}
	order, err := tx.GetOrder(ctx, line.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if order.GuestID != guestID {
		return nil, nil, ErrUnauthorized
	}
	if order.Status != domain.OrderStatusCart {
		return nil, nil, repository.ErrCartNotFound
	}
	return line, order, nil
}

func (s *CartService) recomputeTotal(ctx context.Context, tx repository.Store, orderID uuid.UUID) error {
	order, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return tx.UpdateOrderTotal(ctx, orderID, domain.TotalOf(order.Lines))
}

func (s *CartService) invalidateCache(guestID string) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, guestID); err != nil {
		log.Printf("cart cache invalidate error: %v", err)
	}
}
