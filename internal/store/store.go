package store

import (
	"context"
	"errors"
	"time"

	"apotekkita/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrAlreadyRegistered = errors.New("batch already registered")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductCandidate is the fully-resolved product a registration would create
// when no product with the same name key exists yet. The store decides
// create-vs-link inside its transaction boundary.
type ProductCandidate struct {
	Name           string
	NameKey        string
	Category       string
	SellPriceCents int64
	MarginPercent  *float64
	ImagePath      string
}

// BatchCorrection carries optional registration-time fixes to a batch,
// applied only while the batch is unregistered and undepleted.
type BatchCorrection struct {
	Qty    *int
	Expiry *time.Time
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductByNameKey(ctx context.Context, nameKey string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	CreatePurchaseInvoice(ctx context.Context, invoice domain.PurchaseInvoice) (*domain.PurchaseInvoice, error)
	ListPurchaseInvoices(ctx context.Context, limit int) ([]domain.PurchaseInvoice, error)

	GetBatchByID(ctx context.Context, id string) (*domain.Batch, error)
	ListUnregisteredBatches(ctx context.Context) ([]domain.Batch, error)
	ListBatchesByProduct(ctx context.Context, productID string) ([]domain.Batch, error)
	ListBatchesExpiringBefore(ctx context.Context, cutoff time.Time) ([]domain.Batch, error)

	// RegisterBatch links one unregistered batch to the product matching
	// candidate.NameKey, creating the product from the candidate when none
	// exists. The returned bool reports whether a new product was created.
	// Fails with ErrAlreadyRegistered when the batch is already linked.
	RegisterBatch(ctx context.Context, batchID string, candidate ProductCandidate, fix BatchCorrection) (*domain.Product, bool, error)

	StockSummary(ctx context.Context, productID string) (domain.StockSummary, error)

	// CommitSale depletes batch stock for every line and persists the sale
	// as one atomic unit. Fails with ErrInsufficientStock, wrapped with the
	// offending product name, when any line cannot be covered.
	CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)

	GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error)
	GetPurchaseReport(ctx context.Context, from time.Time, to time.Time) (domain.PurchaseReport, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}
