package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/medimart/orders/internal/domain"
	"github.com/medimart/orders/internal/gateway"
	"github.com/medimart/orders/internal/repository"
)

// mockGateway implements gateway.PaymentGateway for testing
type mockGateway struct {
	mu sync.Mutex

	initErr      error
	verifyResult *gateway.VerifyResult
	verifyErr    error

	initCalls   []initCall
	verifyCalls []string
}

type initCall struct {
	Amount    int64
	Email     string
	Reference string
}

func (g *mockGateway) Initialize(_ context.Context, amount int64, email, reference, _ string) (*gateway.Authorization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls = append(g.initCalls, initCall{Amount: amount, Email: email, Reference: reference})
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &gateway.Authorization{
		AuthorizationURL: "https://gateway.test/pay/" + reference,
		AccessCode:       "access_" + reference,
		Reference:        reference,
	}, nil
}

func (g *mockGateway) Verify(_ context.Context, reference string) (*gateway.VerifyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls = append(g.verifyCalls, reference)
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if g.verifyResult != nil {
		return g.verifyResult, nil
	}
	return &gateway.VerifyResult{Success: true, Status: "success"}, nil
}

func seedOffering(t *testing.T, store repository.Store, sellerID, itemID string, stock, price int64, prescriptionRequired bool) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertCatalogItem(ctx, &domain.CatalogItem{
		ID:                   itemID,
		Name:                 itemID,
		PrescriptionRequired: prescriptionRequired,
	}))
	require.NoError(t, store.UpsertOffering(ctx, &domain.SellerOffering{
		SellerID: sellerID,
		ItemID:   itemID,
		Stock:    stock,
		Price:    price,
	}))
}

func testContact() ContactInfo {
	return ContactInfo{
		Email:          "guest@example.com",
		Phone:          "+2348031234567",
		DeliveryMethod: domain.DeliveryMethodPickup,
	}
}

func currentStock(t *testing.T, store repository.Store, sellerID, itemID string) int64 {
	t.Helper()
	offering, err := store.GetOffering(context.Background(), sellerID, itemID)
	require.NoError(t, err)
	return offering.Stock
}
