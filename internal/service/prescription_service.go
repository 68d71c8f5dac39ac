package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/medimart/orders/internal/domain"
	"github.com/medimart/orders/internal/repository"
)

// Roles allowed to review prescription documents.
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

type PrescriptionService struct {
	store repository.Store
}

func NewPrescriptionService(store repository.Store) *PrescriptionService {
	return &PrescriptionService{store: store}
}

// Review transitions a pending document to verified or rejected. Verifying
// unblocks every referencing pending_prescription order: already-paid orders
// confirm, unpaid ones become payable. Stock stays untouched; it was reserved
// when the orders were created.
func (s *PrescriptionService) Review(ctx context.Context, reviewerRole string, docID uuid.UUID, decision domain.PrescriptionStatus) error {
	if reviewerRole != RoleOperator && reviewerRole != RoleAdmin {
		return ErrUnauthorized
	}
	if decision != domain.PrescriptionStatusVerified && decision != domain.PrescriptionStatusRejected {
		return &ValidationError{Field: "decision", Reason: "must be VERIFIED or REJECTED"}
	}

	doc, err := s.store.GetPrescription(ctx, docID)
	if err != nil {
		return err
	}
	if doc.Status != domain.PrescriptionStatusPending {
		return IllegalTransitionError
	}

	return s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.SetPrescriptionStatus(ctx, docID, decision); err != nil {
			return err
		}
		if decision != domain.PrescriptionStatusVerified {
			// Rejected documents leave orders in pending_prescription;
			// the guest must upload a replacement.
			return nil
		}

		orders, err := tx.ListOrdersByPrescription(ctx, docID, domain.OrderStatusPendingPrescription)
		if err != nil {
			return err
		}
		for _, order := range orders {
			next := domain.OrderStatusPending
			if order.PaymentStatus == domain.PaymentStatusPaid {
				next = domain.OrderStatusConfirmed
			}
			if !domain.CanTransitionTo(order.Status, next) {
				return IllegalTransitionError
			}
			if err := tx.SetOrderStatus(ctx, order.ID, next); err != nil {
				return err
			}
			if next == domain.OrderStatusConfirmed {
				order.Status = next
				if err := WriteOrderEvent(ctx, tx, EventOrderConfirmed, order); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// UploadReplacement links a new document to one rejected order, re-running
// the coverage attachment scoped to that order's prescription-required lines.
func (s *PrescriptionService) UploadReplacement(ctx context.Context, guestID string, orderID uuid.UUID, fileURL string) (*domain.PrescriptionDocument, error) {
	if fileURL == "" {
		return nil, &ValidationError{Field: "file", Reason: "prescription file is required"}
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.GuestID != guestID {
		return nil, ErrUnauthorized
	}
	if order.Status != domain.OrderStatusPendingPrescription {
		return nil, IllegalTransitionError
	}

	doc := &domain.PrescriptionDocument{
		ID:      uuid.New(),
		GuestID: guestID,
		FileURL: fileURL,
		Status:  domain.PrescriptionStatusPending,
		Email:   order.Email,
		Phone:   order.Phone,
	}
	for _, line := range order.Lines {
		item, err := s.store.GetCatalogItem(ctx, line.ItemID)
		if err != nil {
			return nil, err
		}
		if !item.PrescriptionRequired {
			continue
		}
		doc.CoveredItems = append(doc.CoveredItems, domain.CoveredItem{
			DocumentID: doc.ID,
			ItemID:     line.ItemID,
			Quantity:   line.Quantity,
		})
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.InsertPrescription(ctx, doc); err != nil {
			return err
		}
		return tx.SetOrderPrescription(ctx, orderID, doc.ID)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}
