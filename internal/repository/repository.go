package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/medimart/orders/internal/domain"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// Store is the persistence contract the order core depends on. Every method
// is atomic on its own; multi-row units run inside WithTx, where the callback
// receives a Store scoped to the transaction. Services never hold an ambient
// database handle.
type Store interface {
	WithTx(ctx context.Context, fn func(Store) error) error

	// Cart and orders.
	GetCartByGuest(ctx context.Context, guestID string) (*domain.Order, error)
	InsertOrder(ctx context.Context, order *domain.Order) error
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	GetOrderByPaymentReference(ctx context.Context, ref string) (*domain.Order, error)
	GetOrderByTrackingCode(ctx context.Context, code string) (*domain.Order, error)
	ListOrdersByGuest(ctx context.Context, guestID string) ([]*domain.Order, error)
	ListOrdersByPaymentReferences(ctx context.Context, refs []string) ([]*domain.Order, error)
	ListOrdersByPrescription(ctx context.Context, docID uuid.UUID, status domain.OrderStatus) ([]*domain.Order, error)
	ListOrdersBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.Order, error)
	ListOrdersOlderThan(ctx context.Context, status domain.OrderStatus, before time.Time) ([]*domain.Order, error)
	SetOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error
	SetOrderPayment(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, payment domain.PaymentStatus, trackingCode string) error
	SetPaymentStatus(ctx context.Context, orderID uuid.UUID, payment domain.PaymentStatus) error
	SetPaymentReference(ctx context.Context, orderID uuid.UUID, ref string) error
	SetOrderPrescription(ctx context.Context, orderID uuid.UUID, docID uuid.UUID) error
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) error
	UpdateOrderTotal(ctx context.Context, orderID uuid.UUID, total int64) error

	// Order lines.
	InsertLine(ctx context.Context, line *domain.OrderLine) error
	GetLine(ctx context.Context, lineID uuid.UUID) (*domain.OrderLine, error)
	UpdateLineQuantity(ctx context.Context, lineID uuid.UUID, quantity int64) error
	DeleteLine(ctx context.Context, lineID uuid.UUID) error

	// Catalog and inventory ledger.
	GetCatalogItem(ctx context.Context, itemID string) (*domain.CatalogItem, error)
	UpsertCatalogItem(ctx context.Context, item *domain.CatalogItem) error
	GetOffering(ctx context.Context, sellerID, itemID string) (*domain.SellerOffering, error)
	UpsertOffering(ctx context.Context, offering *domain.SellerOffering) error
	ReserveStock(ctx context.Context, sellerID, itemID string, quantity int64) error
	ReleaseStock(ctx context.Context, sellerID, itemID string, quantity int64) error

	// Prescription documents.
	InsertPrescription(ctx context.Context, doc *domain.PrescriptionDocument) error
	GetPrescription(ctx context.Context, docID uuid.UUID) (*domain.PrescriptionDocument, error)
	LatestVerifiedPrescription(ctx context.Context, guestID string) (*domain.PrescriptionDocument, error)
	SetPrescriptionStatus(ctx context.Context, docID uuid.UUID, status domain.PrescriptionStatus) error
	AddCoveredItems(ctx context.Context, docID uuid.UUID, items []domain.CoveredItem) error

	// Checkout sessions.
	InsertSession(ctx context.Context, session *domain.CheckoutSession) error
	GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.CheckoutSession, error)
	GetSessionByGatewayReference(ctx context.Context, ref string) (*domain.CheckoutSession, error)
	SetSessionPayment(ctx context.Context, sessionID uuid.UUID, gatewayRef string, paymentRefs []string) error
	SetSessionTracking(ctx context.Context, sessionID uuid.UUID, trackingCode string) error

	// Transactional outbox.
	InsertOutboxEvent(ctx context.Context, event *OutboxEvent) error
	ListUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventProcessed(ctx context.Context, eventID int64) error
}

// OutboxEvent is an order lifecycle event written in the same transaction as
// the state change it describes and published later by the outbox poller.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	Processed   bool
	CreatedAt   time.Time
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db   dbtx
	root *sql.DB // nil when this Repository is scoped to a transaction
}

var _ Store = (*Repository)(nil)

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db, root: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.root, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// WithTx runs fn against a transaction-scoped Store. A Repository already
// inside a transaction reuses it, so nested WithTx calls compose into one
// atomic unit.
func (r *Repository) WithTx(ctx context.Context, fn func(Store) error) error {
	if r.root == nil {
		return fn(r)
	}

	tx, err := r.root.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	scoped := &Repository{db: tx}
	if err := fn(scoped); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	if r.root == nil {
		return nil
	}
	return r.root.Close()
}
