package cache

import (
	"context"
	"errors"

	"github.com/medimart/orders/internal/domain"
)

type CartCache interface {
	Get(ctx context.Context, guestID string) (*domain.CartView, error)
	Set(ctx context.Context, guestID string, view *domain.CartView) error
	Delete(ctx context.Context, guestID string) error
}

var ErrCacheMiss = errors.New("cache miss")
