package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/medimart/orders/internal/domain"
)

func (r *Repository) GetCatalogItem(ctx context.Context, itemID string) (*domain.CatalogItem, error) {
	var item domain.CatalogItem
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, prescription_required FROM catalog_items WHERE id = $1`,
		itemID).Scan(&item.ID, &item.Name, &item.PrescriptionRequired)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query catalog item: %w", err)
	}
	return &item, nil
}

func (r *Repository) UpsertCatalogItem(ctx context.Context, item *domain.CatalogItem) error {
	query := `INSERT INTO catalog_items (id, name, prescription_required)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (id) DO UPDATE SET name = $2, prescription_required = $3`
	if _, err := r.db.ExecContext(ctx, query, item.ID, item.Name, item.PrescriptionRequired); err != nil {
		return fmt.Errorf("upsert catalog item: %w", err)
	}
	return nil
}

func (r *Repository) GetOffering(ctx context.Context, sellerID, itemID string) (*domain.SellerOffering, error) {
	var off domain.SellerOffering
	err := r.db.QueryRowContext(ctx,
		`SELECT seller_id, item_id, stock, price FROM seller_offerings
		 WHERE seller_id = $1 AND item_id = $2`,
		sellerID, itemID).Scan(&off.SellerID, &off.ItemID, &off.Stock, &off.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOfferingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query seller offering: %w", err)
	}
	return &off, nil
}

func (r *Repository) UpsertOffering(ctx context.Context, offering *domain.SellerOffering) error {
	query := `INSERT INTO seller_offerings (seller_id, item_id, stock, price)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (seller_id, item_id) DO UPDATE SET stock = $3, price = $4`
	_, err := r.db.ExecContext(ctx, query,
		offering.SellerID, offering.ItemID, offering.Stock, offering.Price)
	if err != nil {
		return fmt.Errorf("upsert seller offering: %w", err)
	}
	return nil
}

// ReserveStock decrements stock in a single conditional statement. The
// stock >= quantity guard makes concurrent reservations race-free without a
// read-modify-write cycle; zero rows affected means insufficient stock.
func (r *Repository) ReserveStock(ctx context.Context, sellerID, itemID string, quantity int64) error {
	query := `UPDATE seller_offerings SET stock = stock - $3
	          WHERE seller_id = $1 AND item_id = $2 AND stock >= $3`
	result, err := r.db.ExecContext(ctx, query, sellerID, itemID, quantity)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, getErr := r.GetOffering(ctx, sellerID, itemID); errors.Is(getErr, ErrOfferingNotFound) {
			return ErrOfferingNotFound
		}
		return ErrInsufficientStock
	}
	return nil
}

// ReleaseStock returns reserved stock. It never fails on quantity, so
// cancellation compensation cannot be blocked by ledger state.
func (r *Repository) ReleaseStock(ctx context.Context, sellerID, itemID string, quantity int64) error {
	query := `UPDATE seller_offerings SET stock = stock + $3
	          WHERE seller_id = $1 AND item_id = $2`
	result, err := r.db.ExecContext(ctx, query, sellerID, itemID, quantity)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return requireRow(result, ErrOfferingNotFound)
}
