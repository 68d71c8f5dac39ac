// Package reclaimer cancels orders stuck in an unresolved state and returns
// their reserved stock. The sweep is deliberately best-effort: one order's
// failed cleanup never stops the rest.
package reclaimer

import (
	"context"
	"log"
	"time"

	"github.com/medimart/orders/internal/domain"
	"github.com/medimart/orders/internal/repository"
	"github.com/medimart/orders/internal/service"
)

const (
	// PrescriptionTimeout is how long an order may wait for verification.
	PrescriptionTimeout = 48 * time.Hour

	// PaymentTimeout is how long a payable order may wait for payment.
	PaymentTimeout = 24 * time.Hour

	ReasonPrescriptionTimeout = "Prescription verification timeout"
	ReasonPaymentTimeout      = "Payment timeout"
)

type Reclaimer struct {
	store repository.Store
	tick  time.Duration
}

func NewReclaimer(store repository.Store, tick time.Duration) *Reclaimer {
	return &Reclaimer{store: store, tick: tick}
}

// Run drives periodic sweeps until the context is cancelled.
func (r *Reclaimer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cancelled := r.ReclaimTimeouts(ctx, time.Now())
			if cancelled > 0 {
				log.Printf("timeout sweep cancelled %d orders", cancelled)
			}
		case <-ctx.Done():
			return
		}
	}
}

// ReclaimTimeouts runs one sweep against the given clock reading and returns
// how many orders were cancelled. It is independent of any timer so tests
// drive it directly.
func (r *Reclaimer) ReclaimTimeouts(ctx context.Context, now time.Time) int {
	cancelled := 0
	cancelled += r.sweep(ctx, domain.OrderStatusPendingPrescription, now.Add(-PrescriptionTimeout), ReasonPrescriptionTimeout)
	cancelled += r.sweep(ctx, domain.OrderStatusPending, now.Add(-PaymentTimeout), ReasonPaymentTimeout)
	return cancelled
}

func (r *Reclaimer) sweep(ctx context.Context, status domain.OrderStatus, before time.Time, reason string) int {
	orders, err := r.store.ListOrdersOlderThan(ctx, status, before)
	if err != nil {
		log.Printf("timeout sweep: list %v orders: %v", status, err)
		return 0
	}

	cancelled := 0
	for _, order := range orders {
		done, err := r.cancelOne(ctx, order, reason)
		if err != nil {
			log.Printf("timeout sweep: cancel order %v: %v", order.ID, err)
			continue
		}
		if done {
			cancelled++
		}
	}
	return cancelled
}

// cancelOne cancels a single order and releases its reserved stock as one
// atomic unit. It reports false when the order moved on since the sweep
// listed it, in which case nothing is touched.
func (r *Reclaimer) cancelOne(ctx context.Context, order *domain.Order, reason string) (bool, error) {
	settled := false
	err := r.store.WithTx(ctx, func(tx repository.Store) error {
		// A reconcile or review may have moved the order between the listing
		// and this transaction.
		current, err := tx.GetOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() || current.Status != order.Status {
			return nil
		}

		if err := tx.CancelOrder(ctx, current.ID, reason); err != nil {
			return err
		}
		for _, line := range current.Lines {
			if err := tx.ReleaseStock(ctx, line.SellerID, line.ItemID, line.Quantity); err != nil {
				return err
			}
		}

		current.Status = domain.OrderStatusCancelled
		current.CancelReason = reason
		settled = true
		return service.WriteOrderEvent(ctx, tx, service.EventOrderCancelled, current)
	})
	return settled, err
}
