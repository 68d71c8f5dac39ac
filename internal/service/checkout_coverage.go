package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medimart/orders/internal/domain"
	"github.com/medimart/orders/internal/repository"
)

type coverageResult struct {
	// coveredByVerified marks items covered by the guest's most recent
	// verified document.
	coveredByVerified map[string]bool

	// requiresNewDocument marks prescription-required items not covered by
	// a verified document; they go into pending_prescription orders backed
	// by the freshly uploaded file.
	requiresNewDocument map[string]bool

	verifiedDocID *uuid.UUID

	// uncoveredLines are the lines the new document must cover, used to
	// attach CoveredItem rows with the line quantities.
	uncoveredLines []domain.OrderLine
}

// resolveCoverage decides, per prescription-required item, whether an
// existing verified document covers it. Lines not covered need a freshly
// uploaded file; failing that the checkout is rejected before any mutation.
func (s *CheckoutService) resolveCoverage(ctx context.Context, store repository.Store, req *CheckoutRequest, lines []domain.OrderLine) (*coverageResult, error) {
	result := &coverageResult{
		coveredByVerified:   make(map[string]bool),
		requiresNewDocument: make(map[string]bool),
	}

	var required []domain.OrderLine
	seen := make(map[string]bool)
	for _, line := range lines {
		item, err := store.GetCatalogItem(ctx, line.ItemID)
		if err != nil {
			return nil, err
		}
		if item.PrescriptionRequired && !seen[line.ItemID] {
			seen[line.ItemID] = true
			required = append(required, line)
		}
	}
	if len(required) == 0 {
		return result, nil
	}

	doc, err := store.LatestVerifiedPrescription(ctx, req.GuestID)
	if err != nil && !errors.Is(err, repository.ErrPrescriptionNotFound) {
		return nil, err
	}

	for _, line := range required {
		if doc != nil && doc.Covers([]string{line.ItemID}) {
			result.coveredByVerified[line.ItemID] = true
			continue
		}
		result.requiresNewDocument[line.ItemID] = true
		result.uncoveredLines = append(result.uncoveredLines, line)
	}

	if doc != nil && len(result.coveredByVerified) > 0 {
		id := doc.ID
		result.verifiedDocID = &id
	}

	if len(result.uncoveredLines) > 0 && req.PrescriptionFileURL == "" {
		if len(result.coveredByVerified) > 0 {
			return nil, ErrPrescriptionCoverageIncomplete
		}
		return nil, ErrPrescriptionRequired
	}
	return result, nil
}

// attachNewPrescription creates the pending document for this checkout's
// uncovered required lines. CoveredItem quantities mirror the line
// quantities.
func (s *CheckoutService) attachNewPrescription(ctx context.Context, tx repository.Store, req *CheckoutRequest, coverage *coverageResult) (*uuid.UUID, error) {
	if len(coverage.uncoveredLines) == 0 {
		return nil, nil
	}

	doc := &domain.PrescriptionDocument{
		ID:      uuid.New(),
		GuestID: req.GuestID,
		FileURL: req.PrescriptionFileURL,
		Status:  domain.PrescriptionStatusPending,
		Email:   req.Contact.Email,
		Phone:   req.Contact.Phone,
	}
	for _, line := range coverage.uncoveredLines {
		doc.CoveredItems = append(doc.CoveredItems, domain.CoveredItem{
			DocumentID: doc.ID,
			ItemID:     line.ItemID,
			Quantity:   line.Quantity,
		})
	}
	if err := tx.InsertPrescription(ctx, doc); err != nil {
		return nil, err
	}
	return &doc.ID, nil
}
