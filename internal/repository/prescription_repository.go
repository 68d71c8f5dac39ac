package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/medimart/orders/internal/domain"
)

func (r *Repository) InsertPrescription(ctx context.Context, doc *domain.PrescriptionDocument) error {
	query := `INSERT INTO prescription_documents (id, guest_id, file_url, status, email, phone, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.GuestID, doc.FileURL, doc.Status, doc.Email, doc.Phone)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	return r.AddCoveredItems(ctx, doc.ID, doc.CoveredItems)
}

func (r *Repository) GetPrescription(ctx context.Context, docID uuid.UUID) (*domain.PrescriptionDocument, error) {
	query := `SELECT id, guest_id, file_url, status, email, phone, created_at, updated_at
	          FROM prescription_documents WHERE id = $1`
	doc, err := r.scanPrescription(r.db.QueryRowContext(ctx, query, docID))
	if err != nil {
		return nil, err
	}
	return doc, r.loadCoveredItems(ctx, doc)
}

// LatestVerifiedPrescription returns the guest's most recently created
// verified document, or ErrPrescriptionNotFound when none exists.
func (r *Repository) LatestVerifiedPrescription(ctx context.Context, guestID string) (*domain.PrescriptionDocument, error) {
	query := `SELECT id, guest_id, file_url, status, email, phone, created_at, updated_at
	          FROM prescription_documents
	          WHERE guest_id = $1 AND status = $2
	          ORDER BY created_at DESC LIMIT 1`
	doc, err := r.scanPrescription(r.db.QueryRowContext(ctx, query, guestID, domain.PrescriptionStatusVerified))
	if err != nil {
		return nil, err
	}
	return doc, r.loadCoveredItems(ctx, doc)
}

func (r *Repository) SetPrescriptionStatus(ctx context.Context, docID uuid.UUID, status domain.PrescriptionStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE prescription_documents SET status = $2, updated_at = NOW() WHERE id = $1`,
		docID, status)
	if err != nil {
		return fmt.Errorf("update prescription status: %w", err)
	}
	return requireRow(result, ErrPrescriptionNotFound)
}

func (r *Repository) AddCoveredItems(ctx context.Context, docID uuid.UUID, items []domain.CoveredItem) error {
	query := `INSERT INTO covered_items (document_id, item_id, quantity)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (document_id, item_id) DO UPDATE SET quantity = $3`
	for _, ci := range items {
		if _, err := r.db.ExecContext(ctx, query, docID, ci.ItemID, ci.Quantity); err != nil {
			return fmt.Errorf("insert covered item: %w", err)
		}
	}
	return nil
}

func (r *Repository) scanPrescription(row rowScanner) (*domain.PrescriptionDocument, error) {
	var doc domain.PrescriptionDocument
	err := row.Scan(
		&doc.ID,
		&doc.GuestID,
		&doc.FileURL,
		&doc.Status,
		&doc.Email,
		&doc.Phone,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrescriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan prescription: %w", err)
	}
	return &doc, nil
}

func (r *Repository) loadCoveredItems(ctx context.Context, doc *domain.PrescriptionDocument) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT document_id, item_id, quantity FROM covered_items WHERE document_id = $1 ORDER BY item_id`,
		doc.ID)
	if err != nil {
		return fmt.Errorf("query covered items: %w", err)
	}
	defer rows.Close()

	doc.CoveredItems = nil
	for rows.Next() {
		var ci domain.CoveredItem
		if err := rows.Scan(&ci.DocumentID, &ci.ItemID, &ci.Quantity); err != nil {
			return fmt.Errorf("scan covered item: %w", err)
		}
		doc.CoveredItems = append(doc.CoveredItems, ci)
	}
	return rows.Err()
}
