package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medimart/orders/internal/domain"
	"github.com/medimart/orders/internal/repository"
)

type checkoutFixture struct {
	store    *repository.MemoryStore
	gateway  *mockGateway
	carts    *CartService
	checkout *CheckoutService
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	seedOffering(t, store, "pharmacy-a", "paracetamol", 100, 500, false)
	seedOffering(t, store, "pharmacy-a", "amoxicillin", 20, 2500, true)
	seedOffering(t, store, "pharmacy-b", "vitamin-c", 30, 1200, false)
	seedOffering(t, store, "pharmacy-b", "insulin", 10, 8000, true)

	gw := &mockGateway{}
	return &checkoutFixture{
		store:    store,
		gateway:  gw,
		carts:    NewCartService(store, nil),
		checkout: NewCheckoutService(store, gw, nil, "https://shop.test/callback"),
	}
}

func (f *checkoutFixture) addLine(t *testing.T, guestID, sellerID, itemID string, qty int64) {
	t.Helper()
	_, err := f.carts.AddItem(context.Background(), guestID, sellerID, itemID, qty)
	require.NoError(t, err)
}

func ordersByStatus(orders []*domain.Order, status domain.OrderStatus) []*domain.Order {
	var out []*domain.Order
	for _, o := range orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

func TestCheckout_SplitsCartBySeller(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addLine(t, "guest-1", "pharmacy-a", "paracetamol", 2)
	f.addLine(t, "guest-1", "pharmacy-b", "vitamin-c", 3)

	result, err := f.checkout.Checkout(ctx, &CheckoutRequest{GuestID: "guest-1", Contact: testContact()})
	require.NoError(t, err)

	require.Len(t, result.Orders, 2)
	for _, order := range result.Orders {
		assert.Equal(t, domain.OrderStatusPending, order.Status)
		require.NotNil(t, order.SellerID)
		assert.NotEmpty(t, order.PaymentReference)
		assert.Equal(t, result.SessionID, *order.CheckoutSessionID)
		for _, line := range order.Lines {
			assert.Equal(t, *order.SellerID, line.SellerID)
		}
	}
	assert.Equal(t, int64(2*500+3*1200), result.PayableAmount)
	assert.False(t, result.AwaitingVerification)
	require.NotNil(t, result.Authorization)
	assert.Contains(t, result.Authorization.AuthorizationURL, "https://gateway.test/pay/")

	// Stock reserved, cart gone.
	assert.Equal(t, int64(98), currentStock(t, f.store, "pharmacy-a", "paracetamol"))
	assert.Equal(t, int64(27), currentStock(t, f.store, "pharmacy-b", "vitamin-c"))
	_, err = f.store.GetCartByGuest(ctx, "guest-1")
	assert.ErrorIs(t, err, repository.ErrCartNotFound)

	// One gateway transaction covering the whole payable amount.
	require.Len(t, f.gateway.initCalls, 1)
	assert.Equal(t, result.PayableAmount, f.gateway.initCalls[0].Amount)

	session, err := f.store.GetSession(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Len(t, session.PaymentReferences, 2)
	assert.NotEmpty(t, session.GatewayReference)

	events, err := f.store.ListUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	for _, event := range events {
		assert.Equal(t, EventOrderCreated, event.EventType)
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.checkout.Checkout(context.Background(), &CheckoutRequest{GuestID: "guest-1", Contact: testContact()})

	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_InvalidContactRejectedBeforeMutation(t *testing.T) {
	f := newCheckoutFixture(t)
	f.addLine(t, "guest-1", "pharmacy-a", "paracetamol", 2)

	contact := testContact()
	contact.Email = "broken"
	_, err := f.checkout.Checkout(context.Background(), &CheckoutRequest{GuestID: "guest-1", Contact: contact})

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, int64(100), currentStock(t, f.store, "pharmacy-a", "paracetamol"))
	_, err = f.store.GetCartByGuest(context.Background(), "guest-1")
	assert.NoError(t, err)
}

func TestCheckout_PrescriptionRequiredWithoutDocument(t *testing.T) {
	f := newCheckoutFixture(t)
	f.addLine(t, "guest-1", "pharmacy-a", "amoxicillin", 1)

	_, err := f.checkout.Checkout(context.Background(), &CheckoutRequest{GuestID: "guest-1", Contact: testContact()})

	assert.ErrorIs(t, err, ErrPrescriptionRequired)
	assert.Equal(t, int64(20), currentStock(t, f.store, "pharmacy-a", "amoxicillin"))
}

func TestCheckout_UploadGatesPrescriptionLines(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addLine(t, "guest-1", "pharmacy-a", "paracetamol", 2)
	f.addLine(t, "guest-1", "pharmacy-a", "amoxicillin", 1)

	result, err := f.checkout.Checkout(ctx, &CheckoutRequest{
		GuestID:             "guest-1",
		Contact:             testContact(),
		PrescriptionFileURL: "https://files.test/rx-1.pdf",
	})
	require.NoError(t, err)

	// Same seller, two orders: one payable, one gated on review.
	require.Len(t, result.Orders, 2)
	payable := ordersByStatus(result.Orders, domain.OrderStatusPending)
	gated := ordersByStatus(result.Orders, domain.OrderStatusPendingPrescription)
	require.Len(t, payable, 1)
	require.Len(t, gated, 1)

	assert.Equal(t, int64(2*500), result.PayableAmount)
	assert.NotEmpty(t, payable[0].PaymentReference)
	assert.Empty(t, gated[0].PaymentReference)
	require.NotNil(t, gated[0].PrescriptionID)

	doc, err := f.store.GetPrescription(ctx, *gated[0].PrescriptionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PrescriptionStatusPending, doc.Status)
	require.Len(t, doc.CoveredItems, 1)
	assert.Equal(t, "amoxicillin", doc.CoveredItems[0].ItemID)
	assert.Equal(t, int64(1), doc.CoveredItems[0].Quantity)

	// Gated stock is reserved too.
	assert.Equal(t, int64(19), currentStock(t, f.store, "pharmacy-a", "amoxicillin"))
}

func TestCheckout_AllGatedAwaitsVerification(t *testing.T) {
	f := newCheckoutFixture(t)
	f.addLine(t, "guest-1", "pharmacy-b", "insulin", 1)

	result, err := f.checkout.Checkout(context.Background(), &CheckoutRequest{
		GuestID:             "guest-1",
		Contact:             testContact(),
		PrescriptionFileURL: "https://files.test/rx-2.pdf",
	})
	require.NoError(t, err)

	assert.True(t, result.AwaitingVerification)
	assert.Zero(t, result.PayableAmount)
	assert.Nil(t, result.Authorization)
	assert.Empty(t, f.gateway.initCalls)
}

func TestCheckout_VerifiedDocumentCoversItem(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	doc := &domain.PrescriptionDocument{
		ID:      uuid.New(),
		GuestID: "guest-1",
		FileURL: "https://files.test/old-rx.pdf",
		Status:  domain.PrescriptionStatusVerified,
		CoveredItems: []domain.CoveredItem{
			{ItemID: "amoxicillin", Quantity: 1},
		},
	}
	require.NoError(t, f.store.InsertPrescription(ctx, doc))

	f.addLine(t, "guest-1", "pharmacy-a", "amoxicillin", 1)
	result, err := f.checkout.Checkout(ctx, &CheckoutRequest{GuestID: "guest-1", Contact: testContact()})
	require.NoError(t, err)

	require.Len(t, result.Orders, 1)
	order := result.Orders[0]
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	require.NotNil(t, order.PrescriptionID)
	assert.Equal(t, doc.ID, *order.PrescriptionID)
	assert.Equal(t, int64(2500), result.PayableAmount)
}

func TestCheckout_PartialCoverageWithoutUpload(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	doc := &domain.PrescriptionDocument{
		ID:      uuid.New(),
		GuestID: "guest-1",
		Status:  domain.PrescriptionStatusVerified,
		CoveredItems: []domain.CoveredItem{
			{ItemID: "amoxicillin", Quantity: 1},
		},
	}
	require.NoError(t, f.store.InsertPrescription(ctx, doc))

	f.addLine(t, "guest-1", "pharmacy-a", "amoxicillin", 1)
	f.addLine(t, "guest-1", "pharmacy-b", "insulin", 1)

	_, err := f.checkout.Checkout(ctx, &CheckoutRequest{GuestID: "guest-1", Contact: testContact()})

	assert.ErrorIs(t, err, ErrPrescriptionCoverageIncomplete)
}

func TestCheckout_InsufficientStockRollsBackEverything(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addLine(t, "guest-1", "pharmacy-a", "paracetamol", 2)
	f.addLine(t, "guest-1", "pharmacy-b", "vitamin-c", 3)

	// Another guest drains the second offering before checkout.
	require.NoError(t, f.store.ReserveStock(ctx, "pharmacy-b", "vitamin-c", 28))

	_, err := f.checkout.Checkout(ctx, &CheckoutRequest{GuestID: "guest-1", Contact: testContact()})

	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, "vitamin-c", stock.ItemID)

	// Nothing moved: the earlier reservation in the same checkout was undone
	// and the cart survived.
	assert.Equal(t, int64(100), currentStock(t, f.store, "pharmacy-a", "paracetamol"))
	assert.Equal(t, int64(2), currentStock(t, f.store, "pharmacy-b", "vitamin-c"))
	cart, err := f.store.GetCartByGuest(ctx, "guest-1")
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 2)

	orders, err := f.store.ListOrdersByGuest(ctx, "guest-1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckout_GatewayFailureKeepsOrdersAndReservations(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.gateway.initErr = assert.AnError
	f.addLine(t, "guest-1", "pharmacy-a", "paracetamol", 2)

	result, err := f.checkout.Checkout(ctx, &CheckoutRequest{GuestID: "guest-1", Contact: testContact()})

	assert.ErrorIs(t, err, ErrGatewayInitiationFailed)
	require.NotNil(t, result)
	require.Len(t, result.Orders, 1)
	assert.Nil(t, result.Authorization)

	// The order exists with stock held; payment can be resumed later.
	order, getErr := f.store.GetOrder(ctx, result.Orders[0].ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, int64(98), currentStock(t, f.store, "pharmacy-a", "paracetamol"))
}

func TestCheckout_SecondConcurrentCallLosesRace(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addLine(t, "guest-1", "pharmacy-a", "paracetamol", 2)

	_, err := f.checkout.Checkout(ctx, &CheckoutRequest{GuestID: "guest-1", Contact: testContact()})
	require.NoError(t, err)

	// The cart is gone; a replayed checkout finds nothing to convert.
	_, err = f.checkout.Checkout(ctx, &CheckoutRequest{GuestID: "guest-1", Contact: testContact()})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

// raceAddStore injects a cart mutation right after the first cart read, the
// way a concurrent addItem lands between the pre-check and the transaction.
type raceAddStore struct {
	repository.Store
	once   sync.Once
	onRead func()
}

func (s *raceAddStore) GetCartByGuest(ctx context.Context, guestID string) (*domain.Order, error) {
	cart, err := s.Store.GetCartByGuest(ctx, guestID)
	if err == nil && s.onRead != nil {
		s.once.Do(s.onRead)
	}
	return cart, err
}

func TestCheckout_LineAddedConcurrentlyStillGated(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addLine(t, "guest-1", "pharmacy-a", "paracetamol", 2)

	store := &raceAddStore{Store: f.store}
	store.onRead = func() {
		cart, err := f.store.GetCartByGuest(ctx, "guest-1")
		require.NoError(t, err)
		require.NoError(t, f.store.InsertLine(ctx, &domain.OrderLine{
			ID:        uuid.New(),
			OrderID:   cart.ID,
			SellerID:  "pharmacy-a",
			ItemID:    "amoxicillin",
			Quantity:  1,
			UnitPrice: 2500,
		}))
	}
	checkout := NewCheckoutService(store, f.gateway, nil, "https://shop.test/callback")

	_, err := checkout.Checkout(ctx, &CheckoutRequest{GuestID: "guest-1", Contact: testContact()})

	// The prescription-required line arrived after the pre-check but is part
	// of the transactional snapshot, so the gate still applies.
	assert.ErrorIs(t, err, ErrPrescriptionRequired)
	assert.Equal(t, int64(100), currentStock(t, f.store, "pharmacy-a", "paracetamol"))
	assert.Equal(t, int64(20), currentStock(t, f.store, "pharmacy-a", "amoxicillin"))
	orders, err := f.store.ListOrdersByGuest(ctx, "guest-1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

// vanishingCartStore makes the in-transaction cart delete hit zero rows, as
// it does for the loser of two concurrent checkouts on Postgres.
type vanishingCartStore struct {
	repository.Store
}

func (s *vanishingCartStore) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	return s.Store.WithTx(ctx, func(tx repository.Store) error {
		return fn(&vanishingCartTx{Store: tx})
	})
}

type vanishingCartTx struct {
	repository.Store
}

func (t *vanishingCartTx) DeleteOrder(context.Context, uuid.UUID) error {
	return repository.ErrOrderNotFound
}

func TestCheckout_CartConsumedMidTransaction(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addLine(t, "guest-1", "pharmacy-a", "paracetamol", 2)

	checkout := NewCheckoutService(&vanishingCartStore{Store: f.store}, f.gateway, nil, "https://shop.test/callback")

	_, err := checkout.Checkout(ctx, &CheckoutRequest{GuestID: "guest-1", Contact: testContact()})

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, int64(100), currentStock(t, f.store, "pharmacy-a", "paracetamol"))
}

func TestResume_AssignsFreshReferences(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addLine(t, "guest-1", "pharmacy-b", "insulin", 1)

	result, err := f.checkout.Checkout(ctx, &CheckoutRequest{
		GuestID:             "guest-1",
		Contact:             testContact(),
		PrescriptionFileURL: "https://files.test/rx-3.pdf",
	})
	require.NoError(t, err)
	require.True(t, result.AwaitingVerification)
	gated := result.Orders[0]

	// Operator verifies the document; the order becomes payable.
	reviewer := NewPrescriptionService(f.store)
	require.NoError(t, reviewer.Review(ctx, RoleOperator, *gated.PrescriptionID, domain.PrescriptionStatusVerified))

	resumed, err := f.checkout.Resume(ctx, "guest-1", gated.ID)
	require.NoError(t, err)

	require.NotNil(t, resumed.Authorization)
	assert.Equal(t, int64(8000), resumed.PayableAmount)
	require.Len(t, resumed.Orders, 1)
	assert.NotEmpty(t, resumed.Orders[0].PaymentReference)

	session, err := f.store.GetSession(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{resumed.Orders[0].PaymentReference}, session.PaymentReferences)
	assert.NotEmpty(t, session.GatewayReference)
}

func TestResume_UnverifiedPrescription(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addLine(t, "guest-1", "pharmacy-b", "insulin", 1)

	result, err := f.checkout.Checkout(ctx, &CheckoutRequest{
		GuestID:             "guest-1",
		Contact:             testContact(),
		PrescriptionFileURL: "https://files.test/rx-4.pdf",
	})
	require.NoError(t, err)

	_, err = f.checkout.Resume(ctx, "guest-1", result.Orders[0].ID)

	assert.ErrorIs(t, err, ErrPrescriptionNotVerified)
}

func TestResume_OtherGuestForbidden(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addLine(t, "guest-1", "pharmacy-a", "paracetamol", 1)

	result, err := f.checkout.Checkout(ctx, &CheckoutRequest{GuestID: "guest-1", Contact: testContact()})
	require.NoError(t, err)

	_, err = f.checkout.Resume(ctx, "guest-2", result.Orders[0].ID)

	assert.ErrorIs(t, err, ErrUnauthorized)
}
