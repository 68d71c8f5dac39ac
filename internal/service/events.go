package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/medimart/orders/internal/domain"
	"github.com/medimart/orders/internal/repository"
)

const (
	EventOrderCreated   = "order.created"
	EventOrderConfirmed = "order.confirmed"
	EventOrderCancelled = "order.cancelled"
)

// WriteOrderEvent appends an outbox row inside the caller's transaction so
// the event commits atomically with the state change it describes.
func WriteOrderEvent(ctx context.Context, tx repository.Store, eventType string, order *domain.Order) error {
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":       order.ID,
		"guest_id":       order.GuestID,
		"seller_id":      order.SellerID,
		"status":         order.Status,
		"payment_status": order.PaymentStatus,
		"total_amount":   order.TotalAmount,
		"tracking_code":  order.TrackingCode,
		"cancel_reason":  order.CancelReason,
		"occurred_at":    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	return tx.InsertOutboxEvent(ctx, &repository.OutboxEvent{
		AggregateID: order.ID.String(),
		EventType:   eventType,
		Payload:     payload,
	})
}
