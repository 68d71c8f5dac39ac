package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/medimart/orders/internal/domain"
)

func (r *Repository) InsertSession(ctx context.Context, session *domain.CheckoutSession) error {
	query := `INSERT INTO checkout_sessions (id, guest_id, gateway_reference, payment_references, tracking_code, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`
	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.GuestID,
		session.GatewayReference,
		pq.Array(session.PaymentReferences),
		session.TrackingCode,
	)
	if err != nil {
		return fmt.Errorf("insert checkout session: %w", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.CheckoutSession, error) {
	query := `SELECT id, guest_id, gateway_reference, payment_references, tracking_code, created_at, updated_at
	          FROM checkout_sessions WHERE id = $1`
	return r.scanSession(r.db.QueryRowContext(ctx, query, sessionID))
}

func (r *Repository) GetSessionByGatewayReference(ctx context.Context, ref string) (*domain.CheckoutSession, error) {
	query := `SELECT id, guest_id, gateway_reference, payment_references, tracking_code, created_at, updated_at
	          FROM checkout_sessions WHERE gateway_reference = $1`
	return r.scanSession(r.db.QueryRowContext(ctx, query, ref))
}

// SetSessionPayment records the gateway transaction reference and the payment
// references of the payable sibling orders it settles. Resume calls overwrite
// both with fresh values.
func (r *Repository) SetSessionPayment(ctx context.Context, sessionID uuid.UUID, gatewayRef string, paymentRefs []string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE checkout_sessions SET gateway_reference = $2, payment_references = $3, updated_at = NOW() WHERE id = $1`,
		sessionID, gatewayRef, pq.Array(paymentRefs))
	if err != nil {
		return fmt.Errorf("update session payment: %w", err)
	}
	return requireRow(result, ErrSessionNotFound)
}

func (r *Repository) SetSessionTracking(ctx context.Context, sessionID uuid.UUID, trackingCode string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE checkout_sessions SET tracking_code = $2, updated_at = NOW() WHERE id = $1`,
		sessionID, trackingCode)
	if err != nil {
		return fmt.Errorf("update session tracking: %w", err)
	}
	return requireRow(result, ErrSessionNotFound)
}

func (r *Repository) scanSession(row rowScanner) (*domain.CheckoutSession, error) {
	var session domain.CheckoutSession
	err := row.Scan(
		&session.ID,
		&session.GuestID,
		&session.GatewayReference,
		pq.Array(&session.PaymentReferences),
		&session.TrackingCode,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkout session: %w", err)
	}
	return &session, nil
}
