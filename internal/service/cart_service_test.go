package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medimart/orders/internal/repository"
)

func newCartFixture(t *testing.T) (*CartService, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	seedOffering(t, store, "pharmacy-a", "paracetamol", 100, 500, false)
	seedOffering(t, store, "pharmacy-a", "ibuprofen", 50, 700, false)
	seedOffering(t, store, "pharmacy-b", "vitamin-c", 30, 1200, false)
	return NewCartService(store, nil), store
}

func TestAddItem_GroupsBySeller(t *testing.T) {
	svc, _ := newCartFixture(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "guest-1", "pharmacy-a", "paracetamol", 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "guest-1", "pharmacy-b", "vitamin-c", 1)
	require.NoError(t, err)
	view, err := svc.AddItem(ctx, "guest-1", "pharmacy-a", "ibuprofen", 3)
	require.NoError(t, err)

	require.Len(t, view.Groups, 2)
	byID := map[string]int64{}
	for _, g := range view.Groups {
		byID[g.SellerID] = g.Subtotal
	}
	assert.Equal(t, int64(2*500+3*700), byID["pharmacy-a"])
	assert.Equal(t, int64(1200), byID["pharmacy-b"])
	assert.Equal(t, int64(2*500+3*700+1200), view.Total)
}

func TestAddItem_MergesDuplicateLine(t *testing.T) {
	svc, _ := newCartFixture(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "guest-1", "pharmacy-a", "paracetamol", 2)
	require.NoError(t, err)
	view, err := svc.AddItem(ctx, "guest-1", "pharmacy-a", "paracetamol", 3)
	require.NoError(t, err)

	require.Len(t, view.Groups, 1)
	require.Len(t, view.Groups[0].Lines, 1)
	assert.Equal(t, int64(5), view.Groups[0].Lines[0].Quantity)
	assert.Equal(t, int64(5*500), view.Total)
}

func TestAddItem_RejectsNonPositiveQuantity(t *testing.T) {
	svc, _ := newCartFixture(t)

	_, err := svc.AddItem(context.Background(), "guest-1", "pharmacy-a", "paracetamol", 0)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestAddItem_UnknownItem(t *testing.T) {
	svc, _ := newCartFixture(t)

	_, err := svc.AddItem(context.Background(), "guest-1", "pharmacy-a", "no-such-item", 1)

	assert.ErrorIs(t, err, repository.ErrItemNotFound)
}

func TestAddItem_UnknownOffering(t *testing.T) {
	svc, _ := newCartFixture(t)

	// Item exists in the catalog but pharmacy-b does not sell it.
	_, err := svc.AddItem(context.Background(), "guest-1", "pharmacy-b", "paracetamol", 1)

	assert.ErrorIs(t, err, repository.ErrOfferingNotFound)
}

func TestAddItem_InsufficientStock(t *testing.T) {
	svc, _ := newCartFixture(t)

	_, err := svc.AddItem(context.Background(), "guest-1", "pharmacy-b", "vitamin-c", 31)

	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, "vitamin-c", stock.ItemID)
	assert.ErrorIs(t, err, repository.ErrInsufficientStock)
}

func TestAddItem_DoesNotReserveStock(t *testing.T) {
	svc, store := newCartFixture(t)

	_, err := svc.AddItem(context.Background(), "guest-1", "pharmacy-a", "paracetamol", 10)
	require.NoError(t, err)

	assert.Equal(t, int64(100), currentStock(t, store, "pharmacy-a", "paracetamol"))
}

func TestUpdateItem_ChangesQuantityAndTotal(t *testing.T) {
	svc, _ := newCartFixture(t)
	ctx := context.Background()

	view, err := svc.AddItem(ctx, "guest-1", "pharmacy-a", "paracetamol", 2)
	require.NoError(t, err)
	lineID := view.Groups[0].Lines[0].ID

	view, err = svc.UpdateItem(ctx, "guest-1", lineID, 7)
	require.NoError(t, err)

	assert.Equal(t, int64(7), view.Groups[0].Lines[0].Quantity)
	assert.Equal(t, int64(7*500), view.Total)
}

func TestUpdateItem_OtherGuestForbidden(t *testing.T) {
	svc, _ := newCartFixture(t)
	ctx := context.Background()

	view, err := svc.AddItem(ctx, "guest-1", "pharmacy-a", "paracetamol", 2)
	require.NoError(t, err)
	lineID := view.Groups[0].Lines[0].ID

	_, err = svc.UpdateItem(ctx, "guest-2", lineID, 1)

	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpdateItem_UnknownLine(t *testing.T) {
	svc, _ := newCartFixture(t)

	_, err := svc.UpdateItem(context.Background(), "guest-1", uuid.New(), 1)

	assert.ErrorIs(t, err, repository.ErrLineNotFound)
}

func TestRemoveItem_RecomputesTotal(t *testing.T) {
	svc, _ := newCartFixture(t)
	ctx := context.Background()

	view, err := svc.AddItem(ctx, "guest-1", "pharmacy-a", "paracetamol", 2)
	require.NoError(t, err)
	lineID := view.Groups[0].Lines[0].ID
	_, err = svc.AddItem(ctx, "guest-1", "pharmacy-b", "vitamin-c", 1)
	require.NoError(t, err)

	view, err = svc.RemoveItem(ctx, "guest-1", lineID)
	require.NoError(t, err)

	require.Len(t, view.Groups, 1)
	assert.Equal(t, "pharmacy-b", view.Groups[0].SellerID)
	assert.Equal(t, int64(1200), view.Total)
}

func TestRemoveItem_LastLineDeletesCart(t *testing.T) {
	svc, store := newCartFixture(t)
	ctx := context.Background()

	view, err := svc.AddItem(ctx, "guest-1", "pharmacy-a", "paracetamol", 2)
	require.NoError(t, err)
	lineID := view.Groups[0].Lines[0].ID

	view, err = svc.RemoveItem(ctx, "guest-1", lineID)
	require.NoError(t, err)

	assert.Empty(t, view.Groups)
	assert.Zero(t, view.Total)
	_, err = store.GetCartByGuest(ctx, "guest-1")
	assert.ErrorIs(t, err, repository.ErrCartNotFound)
}

func TestGetCart_EmptyForUnknownGuest(t *testing.T) {
	svc, _ := newCartFixture(t)

	view, err := svc.GetCart(context.Background(), "never-seen")

	require.NoError(t, err)
	assert.Equal(t, "never-seen", view.GuestID)
	assert.Empty(t, view.Groups)
	assert.Zero(t, view.Total)
}
