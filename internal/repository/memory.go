package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medimart/orders/internal/domain"
)

type offeringKey struct {
	sellerID string
	itemID   string
}

type memoryData struct {
	items         map[string]domain.CatalogItem
	offerings     map[offeringKey]domain.SellerOffering
	orders        map[uuid.UUID]domain.Order
	lines         map[uuid.UUID]domain.OrderLine
	prescriptions map[uuid.UUID]domain.PrescriptionDocument
	covered       map[uuid.UUID]map[string]int64
	sessions      map[uuid.UUID]domain.CheckoutSession
	outbox        map[int64]OutboxEvent
	nextEventID   int64
	docSeq        map[uuid.UUID]int64
	nextSeq       int64
}

// MemoryStore is an in-memory Store used by unit tests. WithTx snapshots the
// whole state and restores it when the callback fails, so rollback behavior
// matches the Postgres implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	inTx bool
	data *memoryData
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: &memoryData{
			items:         make(map[string]domain.CatalogItem),
			offerings:     make(map[offeringKey]domain.SellerOffering),
			orders:        make(map[uuid.UUID]domain.Order),
			lines:         make(map[uuid.UUID]domain.OrderLine),
			prescriptions: make(map[uuid.UUID]domain.PrescriptionDocument),
			covered:       make(map[uuid.UUID]map[string]int64),
			sessions:      make(map[uuid.UUID]domain.CheckoutSession),
			outbox:        make(map[int64]OutboxEvent),
			nextEventID:   1,
			docSeq:        make(map[uuid.UUID]int64),
		},
	}
}

func (m *MemoryStore) rlock() {
	if !m.inTx {
		m.mu.RLock()
	}
}

func (m *MemoryStore) runlock() {
	if !m.inTx {
		m.mu.RUnlock()
	}
}

func (m *MemoryStore) wlock() {
	if !m.inTx {
		m.mu.Lock()
	}
}

func (m *MemoryStore) wunlock() {
	if !m.inTx {
		m.mu.Unlock()
	}
}

func (m *MemoryStore) WithTx(_ context.Context, fn func(Store) error) error {
	if m.inTx {
		return fn(m)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	scoped := &MemoryStore{inTx: true, data: m.data}
	if err := fn(scoped); err != nil {
		*m.data = *snapshot
		return err
	}
	return nil
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		items:         make(map[string]domain.CatalogItem, len(d.items)),
		offerings:     make(map[offeringKey]domain.SellerOffering, len(d.offerings)),
		orders:        make(map[uuid.UUID]domain.Order, len(d.orders)),
		lines:         make(map[uuid.UUID]domain.OrderLine, len(d.lines)),
		prescriptions: make(map[uuid.UUID]domain.PrescriptionDocument, len(d.prescriptions)),
		covered:       make(map[uuid.UUID]map[string]int64, len(d.covered)),
		sessions:      make(map[uuid.UUID]domain.CheckoutSession, len(d.sessions)),
		outbox:        make(map[int64]OutboxEvent, len(d.outbox)),
		nextEventID:   d.nextEventID,
		docSeq:        make(map[uuid.UUID]int64, len(d.docSeq)),
		nextSeq:       d.nextSeq,
	}
	for k, v := range d.items {
		c.items[k] = v
	}
	for k, v := range d.offerings {
		c.offerings[k] = v
	}
	for k, v := range d.orders {
		v.Lines = nil
		c.orders[k] = v
	}
	for k, v := range d.lines {
		c.lines[k] = v
	}
	for k, v := range d.prescriptions {
		v.CoveredItems = nil
		c.prescriptions[k] = v
	}
	for k, v := range d.covered {
		inner := make(map[string]int64, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		c.covered[k] = inner
	}
	for k, v := range d.sessions {
		v.PaymentReferences = append([]string(nil), v.PaymentReferences...)
		c.sessions[k] = v
	}
	for k, v := range d.outbox {
		v.Payload = append([]byte(nil), v.Payload...)
		c.outbox[k] = v
	}
	for k, v := range d.docSeq {
		c.docSeq[k] = v
	}
	return c
}

// --- cart and orders ---

func (m *MemoryStore) InsertOrder(_ context.Context, order *domain.Order) error {
	m.wlock()
	defer m.wunlock()

	if order.Status == domain.OrderStatusCart {
		for _, existing := range m.data.orders {
			if existing.GuestID == order.GuestID && existing.Status == domain.OrderStatusCart {
				return ErrCartExists
			}
		}
	}

	stored := *order
	stored.Lines = nil
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.data.orders[stored.ID] = stored

	for _, line := range order.Lines {
		m.data.lines[line.ID] = line
	}
	return nil
}

func (m *MemoryStore) GetCartByGuest(_ context.Context, guestID string) (*domain.Order, error) {
	m.rlock()
	defer m.runlock()
	for _, order := range m.data.orders {
		if order.GuestID == guestID && order.Status == domain.OrderStatusCart {
			return m.orderCopy(order), nil
		}
	}
	return nil, ErrCartNotFound
}

func (m *MemoryStore) GetOrder(_ context.Context, orderID uuid.UUID) (*domain.Order, error) {
	m.rlock()
	defer m.runlock()
	order, ok := m.data.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return m.orderCopy(order), nil
}

func (m *MemoryStore) GetOrderByPaymentReference(_ context.Context, ref string) (*domain.Order, error) {
	m.rlock()
	defer m.runlock()
	for _, order := range m.data.orders {
		if order.PaymentReference == ref && ref != "" {
			return m.orderCopy(order), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *MemoryStore) GetOrderByTrackingCode(_ context.Context, code string) (*domain.Order, error) {
	m.rlock()
	defer m.runlock()
	var found []domain.Order
	for _, order := range m.data.orders {
		if order.TrackingCode == code && code != "" {
			found = append(found, order)
		}
	}
	if len(found) == 0 {
		return nil, ErrOrderNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.Before(found[j].CreatedAt) })
	return m.orderCopy(found[0]), nil
}

func (m *MemoryStore) ListOrdersByGuest(_ context.Context, guestID string) ([]*domain.Order, error) {
	return m.listOrders(func(o domain.Order) bool {
		return o.GuestID == guestID && o.Status != domain.OrderStatusCart
	}, true)
}

func (m *MemoryStore) ListOrdersByPaymentReferences(_ context.Context, refs []string) ([]*domain.Order, error) {
	wanted := make(map[string]bool, len(refs))
	for _, ref := range refs {
		wanted[ref] = true
	}
	return m.listOrders(func(o domain.Order) bool {
		return o.PaymentReference != "" && wanted[o.PaymentReference]
	}, false)
}

func (m *MemoryStore) ListOrdersByPrescription(_ context.Context, docID uuid.UUID, status domain.OrderStatus) ([]*domain.Order, error) {
	return m.listOrders(func(o domain.Order) bool {
		return o.PrescriptionID != nil && *o.PrescriptionID == docID && o.Status == status
	}, false)
}

func (m *MemoryStore) ListOrdersBySession(_ context.Context, sessionID uuid.UUID) ([]*domain.Order, error) {
	return m.listOrders(func(o domain.Order) bool {
		return o.CheckoutSessionID != nil && *o.CheckoutSessionID == sessionID
	}, false)
}

func (m *MemoryStore) ListOrdersOlderThan(_ context.Context, status domain.OrderStatus, before time.Time) ([]*domain.Order, error) {
	return m.listOrders(func(o domain.Order) bool {
		return o.Status == status && o.CreatedAt.Before(before)
	}, false)
}

func (m *MemoryStore) listOrders(match func(domain.Order) bool, newestFirst bool) ([]*domain.Order, error) {
	m.rlock()
	defer m.runlock()
	var orders []*domain.Order
	for _, order := range m.data.orders {
		if match(order) {
			orders = append(orders, m.orderCopy(order))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if newestFirst {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func (m *MemoryStore) SetOrderStatus(_ context.Context, orderID uuid.UUID, status domain.OrderStatus) error {
	return m.updateOrder(orderID, func(o *domain.Order) {
		o.Status = status
	})
}

func (m *MemoryStore) SetOrderPayment(_ context.Context, orderID uuid.UUID, status domain.OrderStatus, payment domain.PaymentStatus, trackingCode string) error {
	return m.updateOrder(orderID, func(o *domain.Order) {
		o.Status = status
		o.PaymentStatus = payment
		o.TrackingCode = trackingCode
	})
}

func (m *MemoryStore) SetPaymentStatus(_ context.Context, orderID uuid.UUID, payment domain.PaymentStatus) error {
	return m.updateOrder(orderID, func(o *domain.Order) {
		o.PaymentStatus = payment
	})
}

func (m *MemoryStore) SetPaymentReference(_ context.Context, orderID uuid.UUID, ref string) error {
	return m.updateOrder(orderID, func(o *domain.Order) {
		o.PaymentReference = ref
	})
}

func (m *MemoryStore) SetOrderPrescription(_ context.Context, orderID uuid.UUID, docID uuid.UUID) error {
	return m.updateOrder(orderID, func(o *domain.Order) {
		d := docID
		o.PrescriptionID = &d
	})
}

func (m *MemoryStore) CancelOrder(_ context.Context, orderID uuid.UUID, reason string) error {
	return m.updateOrder(orderID, func(o *domain.Order) {
		o.Status = domain.OrderStatusCancelled
		o.CancelReason = reason
	})
}

func (m *MemoryStore) UpdateOrderTotal(_ context.Context, orderID uuid.UUID, total int64) error {
	return m.updateOrder(orderID, func(o *domain.Order) {
		o.TotalAmount = total
	})
}

func (m *MemoryStore) DeleteOrder(_ context.Context, orderID uuid.UUID) error {
	m.wlock()
	defer m.wunlock()
	if _, ok := m.data.orders[orderID]; !ok {
		return ErrOrderNotFound
	}
	delete(m.data.orders, orderID)
	for id, line := range m.data.lines {
		if line.OrderID == orderID {
			delete(m.data.lines, id)
		}
	}
	return nil
}

func (m *MemoryStore) updateOrder(orderID uuid.UUID, mutate func(*domain.Order)) error {
	m.wlock()
	defer m.wunlock()
	order, ok := m.data.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	mutate(&order)
	order.UpdatedAt = time.Now()
	m.data.orders[orderID] = order
	return nil
}

func (m *MemoryStore) orderCopy(order domain.Order) *domain.Order {
	cp := order
	cp.Lines = nil
	for _, line := range m.data.lines {
		if line.OrderID == order.ID {
			cp.Lines = append(cp.Lines, line)
		}
	}
	sort.Slice(cp.Lines, func(i, j int) bool {
		a, b := cp.Lines[i], cp.Lines[j]
		if a.SellerID != b.SellerID {
			return strings.Compare(a.SellerID, b.SellerID) < 0
		}
		return strings.Compare(a.ItemID, b.ItemID) < 0
	})
	return &cp
}

// --- order lines ---

func (m *MemoryStore) InsertLine(_ context.Context, line *domain.OrderLine) error {
	m.wlock()
	defer m.wunlock()
	m.data.lines[line.ID] = *line
	return nil
}

func (m *MemoryStore) GetLine(_ context.Context, lineID uuid.UUID) (*domain.OrderLine, error) {
	m.rlock()
	defer m.runlock()
	line, ok := m.data.lines[lineID]
	if !ok {
		return nil, ErrLineNotFound
	}
	cp := line
	return &cp, nil
}

func (m *MemoryStore) UpdateLineQuantity(_ context.Context, lineID uuid.UUID, quantity int64) error {
	m.wlock()
	defer m.wunlock()
	line, ok := m.data.lines[lineID]
	if !ok {
		return ErrLineNotFound
	}
	line.Quantity = quantity
	m.data.lines[lineID] = line
	return nil
}

func (m *MemoryStore) DeleteLine(_ context.Context, lineID uuid.UUID) error {
	m.wlock()
	defer m.wunlock()
	if _, ok := m.data.lines[lineID]; !ok {
		return ErrLineNotFound
	}
	delete(m.data.lines, lineID)
	return nil
}

// --- catalog and inventory ---

func (m *MemoryStore) GetCatalogItem(_ context.Context, itemID string) (*domain.CatalogItem, error) {
	m.rlock()
	defer m.runlock()
	item, ok := m.data.items[itemID]
	if !ok {
		return nil, ErrItemNotFound
	}
	cp := item
	return &cp, nil
}

func (m *MemoryStore) UpsertCatalogItem(_ context.Context, item *domain.CatalogItem) error {
	m.wlock()
	defer m.wunlock()
	m.data.items[item.ID] = *item
	return nil
}

func (m *MemoryStore) GetOffering(_ context.Context, sellerID, itemID string) (*domain.SellerOffering, error) {
	m.rlock()
	defer m.runlock()
	off, ok := m.data.offerings[offeringKey{sellerID, itemID}]
	if !ok {
		return nil, ErrOfferingNotFound
	}
	cp := off
	return &cp, nil
}

func (m *MemoryStore) UpsertOffering(_ context.Context, offering *domain.SellerOffering) error {
	m.wlock()
	defer m.wunlock()
	m.data.offerings[offeringKey{offering.SellerID, offering.ItemID}] = *offering
	return nil
}

func (m *MemoryStore) ReserveStock(_ context.Context, sellerID, itemID string, quantity int64) error {
	m.wlock()
	defer m.wunlock()
	key := offeringKey{sellerID, itemID}
	off, ok := m.data.offerings[key]
	if !ok {
		return ErrOfferingNotFound
	}
	if off.Stock < quantity {
		return ErrInsufficientStock
	}
	off.Stock -= quantity
	m.data.offerings[key] = off
	return nil
}

func (m *MemoryStore) ReleaseStock(_ context.Context, sellerID, itemID string, quantity int64) error {
	m.wlock()
	defer m.wunlock()
	key := offeringKey{sellerID, itemID}
	off, ok := m.data.offerings[key]
	if !ok {
		return ErrOfferingNotFound
	}
	off.Stock += quantity
	m.data.offerings[key] = off
	return nil
}

// --- prescriptions ---

func (m *MemoryStore) InsertPrescription(_ context.Context, doc *domain.PrescriptionDocument) error {
	m.wlock()
	defer m.wunlock()

	stored := *doc
	stored.CoveredItems = nil
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.data.prescriptions[stored.ID] = stored
	m.data.nextSeq++
	m.data.docSeq[stored.ID] = m.data.nextSeq

	covered := make(map[string]int64, len(doc.CoveredItems))
	for _, ci := range doc.CoveredItems {
		covered[ci.ItemID] = ci.Quantity
	}
	m.data.covered[stored.ID] = covered
	return nil
}

func (m *MemoryStore) GetPrescription(_ context.Context, docID uuid.UUID) (*domain.PrescriptionDocument, error) {
	m.rlock()
	defer m.runlock()
	doc, ok := m.data.prescriptions[docID]
	if !ok {
		return nil, ErrPrescriptionNotFound
	}
	return m.prescriptionCopy(doc), nil
}

func (m *MemoryStore) LatestVerifiedPrescription(_ context.Context, guestID string) (*domain.PrescriptionDocument, error) {
	m.rlock()
	defer m.runlock()
	var latest *domain.PrescriptionDocument
	var latestSeq int64 = -1
	for id, doc := range m.data.prescriptions {
		if doc.GuestID != guestID || doc.Status != domain.PrescriptionStatusVerified {
			continue
		}
		if seq := m.data.docSeq[id]; seq > latestSeq {
			latestSeq = seq
			latest = m.prescriptionCopy(doc)
		}
	}
	if latest == nil {
		return nil, ErrPrescriptionNotFound
	}
	return latest, nil
}

func (m *MemoryStore) SetPrescriptionStatus(_ context.Context, docID uuid.UUID, status domain.PrescriptionStatus) error {
	m.wlock()
	defer m.wunlock()
	doc, ok := m.data.prescriptions[docID]
	if !ok {
		return ErrPrescriptionNotFound
	}
	doc.Status = status
	doc.UpdatedAt = time.Now()
	m.data.prescriptions[docID] = doc
	return nil
}

func (m *MemoryStore) AddCoveredItems(_ context.Context, docID uuid.UUID, items []domain.CoveredItem) error {
	m.wlock()
	defer m.wunlock()
	covered, ok := m.data.covered[docID]
	if !ok {
		covered = make(map[string]int64)
		m.data.covered[docID] = covered
	}
	for _, ci := range items {
		covered[ci.ItemID] = ci.Quantity
	}
	return nil
}

func (m *MemoryStore) prescriptionCopy(doc domain.PrescriptionDocument) *domain.PrescriptionDocument {
	cp := doc
	cp.CoveredItems = nil
	for itemID, qty := range m.data.covered[doc.ID] {
		cp.CoveredItems = append(cp.CoveredItems, domain.CoveredItem{
			DocumentID: doc.ID,
			ItemID:     itemID,
			Quantity:   qty,
		})
	}
	sort.Slice(cp.CoveredItems, func(i, j int) bool {
		return cp.CoveredItems[i].ItemID < cp.CoveredItems[j].ItemID
	})
	return &cp
}

// --- checkout sessions ---

func (m *MemoryStore) InsertSession(_ context.Context, session *domain.CheckoutSession) error {
	m.wlock()
	defer m.wunlock()
	stored := *session
	stored.PaymentReferences = append([]string(nil), session.PaymentReferences...)
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.data.sessions[stored.ID] = stored
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID uuid.UUID) (*domain.CheckoutSession, error) {
	m.rlock()
	defer m.runlock()
	session, ok := m.data.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sessionCopy(session), nil
}

func (m *MemoryStore) GetSessionByGatewayReference(_ context.Context, ref string) (*domain.CheckoutSession, error) {
	m.rlock()
	defer m.runlock()
	for _, session := range m.data.sessions {
		if session.GatewayReference == ref && ref != "" {
			return sessionCopy(session), nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *MemoryStore) SetSessionPayment(_ context.Context, sessionID uuid.UUID, gatewayRef string, paymentRefs []string) error {
	return m.updateSession(sessionID, func(s *domain.CheckoutSession) {
		s.GatewayReference = gatewayRef
		s.PaymentReferences = append([]string(nil), paymentRefs...)
	})
}

func (m *MemoryStore) SetSessionTracking(_ context.Context, sessionID uuid.UUID, trackingCode string) error {
	return m.updateSession(sessionID, func(s *domain.CheckoutSession) {
		s.TrackingCode = trackingCode
	})
}

func (m *MemoryStore) updateSession(sessionID uuid.UUID, mutate func(*domain.CheckoutSession)) error {
	m.wlock()
	defer m.wunlock()
	session, ok := m.data.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	mutate(&session)
	session.UpdatedAt = time.Now()
	m.data.sessions[sessionID] = session
	return nil
}

func sessionCopy(session domain.CheckoutSession) *domain.CheckoutSession {
	cp := session
	cp.PaymentReferences = append([]string(nil), session.PaymentReferences...)
	return &cp
}

// --- outbox ---

func (m *MemoryStore) InsertOutboxEvent(_ context.Context, event *OutboxEvent) error {
	m.wlock()
	defer m.wunlock()
	stored := *event
	stored.ID = m.data.nextEventID
	m.data.nextEventID++
	stored.Payload = append([]byte(nil), event.Payload...)
	stored.CreatedAt = time.Now()
	m.data.outbox[stored.ID] = stored
	return nil
}

func (m *MemoryStore) ListUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	m.rlock()
	defer m.runlock()
	var events []*OutboxEvent
	for _, event := range m.data.outbox {
		if !event.Processed {
			cp := event
			events = append(events, &cp)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (m *MemoryStore) MarkEventProcessed(_ context.Context, eventID int64) error {
	m.wlock()
	defer m.wunlock()
	event, ok := m.data.outbox[eventID]
	if !ok {
		return nil
	}
	event.Processed = true
	m.data.outbox[eventID] = event
	return nil
}
