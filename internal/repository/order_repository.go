package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/medimart/orders/internal/domain"
)

const orderColumns = `id, guest_id, seller_id, status, payment_status, delivery_method,
	email, phone, address, total_amount, checkout_session_id, payment_reference,
	prescription_id, tracking_code, cancel_reason, created_at, updated_at`

func (r *Repository) InsertOrder(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO orders (` + orderColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())`

	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.GuestID,
		order.SellerID,
		order.Status,
		order.PaymentStatus,
		order.DeliveryMethod,
		order.Email,
		order.Phone,
		order.Address,
		order.TotalAmount,
		order.CheckoutSessionID,
		order.PaymentReference,
		order.PrescriptionID,
		order.TrackingCode,
		order.CancelReason,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrCartExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Lines {
		if err := r.InsertLine(ctx, &order.Lines[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) GetCartByGuest(ctx context.Context, guestID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE guest_id = $1 AND status = $2`
	order, err := r.scanOrder(r.db.QueryRowContext(ctx, query, guestID, domain.OrderStatusCart))
	if errors.Is(err, ErrOrderNotFound) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, r.loadLines(ctx, order)
}

func (r *Repository) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := r.scanOrder(r.db.QueryRowContext(ctx, query, orderID))
	if err != nil {
		return nil, err
	}
	return order, r.loadLines(ctx, order)
}

func (r *Repository) GetOrderByPaymentReference(ctx context.Context, ref string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE payment_reference = $1`
	order, err := r.scanOrder(r.db.QueryRowContext(ctx, query, ref))
	if err != nil {
		return nil, err
	}
	return order, r.loadLines(ctx, order)
}

func (r *Repository) GetOrderByTrackingCode(ctx context.Context, code string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE tracking_code = $1 ORDER BY created_at LIMIT 1`
	order, err := r.scanOrder(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		return nil, err
	}
	return order, r.loadLines(ctx, order)
}

func (r *Repository) ListOrdersByGuest(ctx context.Context, guestID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE guest_id = $1 AND status <> $2 ORDER BY created_at DESC`
	return r.queryOrders(ctx, query, guestID, domain.OrderStatusCart)
}

func (r *Repository) ListOrdersByPaymentReferences(ctx context.Context, refs []string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE payment_reference = ANY($1) ORDER BY created_at`
	return r.queryOrders(ctx, query, pq.Array(refs))
}

func (r *Repository) ListOrdersByPrescription(ctx context.Context, docID uuid.UUID, status domain.OrderStatus) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE prescription_id = $1 AND status = $2 ORDER BY created_at`
	return r.queryOrders(ctx, query, docID, status)
}

func (r *Repository) ListOrdersBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE checkout_session_id = $1 ORDER BY created_at`
	return r.queryOrders(ctx, query, sessionID)
}

func (r *Repository) ListOrdersOlderThan(ctx context.Context, status domain.OrderStatus, before time.Time) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE status = $1 AND created_at < $2 ORDER BY created_at`
	return r.queryOrders(ctx, query, status, before)
}

func (r *Repository) SetOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error {
	return r.execOrderUpdate(ctx, orderID,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, status)
}

func (r *Repository) SetOrderPayment(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, payment domain.PaymentStatus, trackingCode string) error {
	return r.execOrderUpdate(ctx, orderID,
		`UPDATE orders SET status = $2, payment_status = $3, tracking_code = $4, updated_at = NOW() WHERE id = $1`,
		status, payment, trackingCode)
}

func (r *Repository) SetPaymentStatus(ctx context.Context, orderID uuid.UUID, payment domain.PaymentStatus) error {
	return r.execOrderUpdate(ctx, orderID,
		`UPDATE orders SET payment_status = $2, updated_at = NOW() WHERE id = $1`, payment)
}

func (r *Repository) SetPaymentReference(ctx context.Context, orderID uuid.UUID, ref string) error {
	return r.execOrderUpdate(ctx, orderID,
		`UPDATE orders SET payment_reference = $2, updated_at = NOW() WHERE id = $1`, ref)
}

func (r *Repository) SetOrderPrescription(ctx context.Context, orderID uuid.UUID, docID uuid.UUID) error {
	return r.execOrderUpdate(ctx, orderID,
		`UPDATE orders SET prescription_id = $2, updated_at = NOW() WHERE id = $1`, docID)
}

func (r *Repository) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) error {
	return r.execOrderUpdate(ctx, orderID,
		`UPDATE orders SET status = $2, cancel_reason = $3, updated_at = NOW() WHERE id = $1`,
		domain.OrderStatusCancelled, reason)
}

func (r *Repository) UpdateOrderTotal(ctx context.Context, orderID uuid.UUID, total int64) error {
	return r.execOrderUpdate(ctx, orderID,
		`UPDATE orders SET total_amount = $2, updated_at = NOW() WHERE id = $1`, total)
}

func (r *Repository) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return requireRow(result, ErrOrderNotFound)
}

func (r *Repository) InsertLine(ctx context.Context, line *domain.OrderLine) error {
	query := `INSERT INTO order_lines (id, order_id, seller_id, item_id, quantity, unit_price)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query,
		line.ID, line.OrderID, line.SellerID, line.ItemID, line.Quantity, line.UnitPrice)
	if err != nil {
		return fmt.Errorf("insert order line: %w", err)
	}
	return nil
}

func (r *Repository) GetLine(ctx context.Context, lineID uuid.UUID) (*domain.OrderLine, error) {
	query := `SELECT id, order_id, seller_id, item_id, quantity, unit_price
	          FROM order_lines WHERE id = $1`
	var line domain.OrderLine
	err := r.db.QueryRowContext(ctx, query, lineID).Scan(
		&line.ID, &line.OrderID, &line.SellerID, &line.ItemID, &line.Quantity, &line.UnitPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order line: %w", err)
	}
	return &line, nil
}

func (r *Repository) UpdateLineQuantity(ctx context.Context, lineID uuid.UUID, quantity int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE order_lines SET quantity = $2 WHERE id = $1`, lineID, quantity)
	if err != nil {
		return fmt.Errorf("update line quantity: %w", err)
	}
	return requireRow(result, ErrLineNotFound)
}

func (r *Repository) DeleteLine(ctx context.Context, lineID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM order_lines WHERE id = $1`, lineID)
	if err != nil {
		return fmt.Errorf("delete line: %w", err)
	}
	return requireRow(result, ErrLineNotFound)
}

func (r *Repository) execOrderUpdate(ctx context.Context, orderID uuid.UUID, query string, args ...any) error {
	allArgs := append([]any{orderID}, args...)
	result, err := r.db.ExecContext(ctx, query, allArgs...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return requireRow(result, ErrOrderNotFound)
}

func requireRow(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var sellerID sql.NullString
	err := row.Scan(
		&order.ID,
		&order.GuestID,
		&sellerID,
		&order.Status,
		&order.PaymentStatus,
		&order.DeliveryMethod,
		&order.Email,
		&order.Phone,
		&order.Address,
		&order.TotalAmount,
		&order.CheckoutSessionID,
		&order.PaymentReference,
		&order.PrescriptionID,
		&order.TrackingCode,
		&order.CancelReason,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if sellerID.Valid {
		order.SellerID = &sellerID.String
	}
	return &order, nil
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for _, order := range orders {
		if err := r.loadLines(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *Repository) loadLines(ctx context.Context, order *domain.Order) error {
	query := `SELECT id, order_id, seller_id, item_id, quantity, unit_price
	          FROM order_lines WHERE order_id = $1 ORDER BY seller_id, item_id`
	rows, err := r.db.QueryContext(ctx, query, order.ID)
	if err != nil {
		return fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	order.Lines = nil
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.SellerID, &line.ItemID, &line.Quantity, &line.UnitPrice); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}
	return rows.Err()
}
