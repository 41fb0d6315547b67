package domain

import (
	"strings"
	"time"
)

type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	NameKey        string    `json:"-"`
	Category       string    `json:"category,omitempty"`
	SellPriceCents int64     `json:"sell_price_cents"`
	MarginPercent  *float64  `json:"margin_percent,omitempty"`
	Status         string    `json:"status"`
	ImagePath      string    `json:"image_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type StockSummary struct {
	TotalAvailable int        `json:"total_available"`
	EarliestExpiry *time.Time `json:"earliest_expiry,omitempty"`
}

type ProductWithStock struct {
	Product Product      `json:"product"`
	Stock   StockSummary `json:"stock"`
}

// PriceBasis carries exactly one pricing input. When MarginPercent is set the
// sell price is derived from cost; when OverridePriceCents is set the margin
// is back-computed (nil when the cost is zero).
type PriceBasis struct {
	MarginPercent      *float64 `json:"margin_percent,omitempty"`
	OverridePriceCents *int64   `json:"override_price_cents,omitempty"`
}

type ProductUpdateRequest struct {
	Name      *string     `json:"name,omitempty"`
	Category  *string     `json:"category,omitempty"`
	ImagePath *string     `json:"image_path,omitempty"`
	Status    *string     `json:"status,omitempty"`
	Price     *PriceBasis `json:"price,omitempty"`
}

type Batch struct {
	ID              string     `json:"id"`
	InvoiceID       string     `json:"invoice_id"`
	InvoiceNo       string     `json:"invoice_no"`
	InvoiceDate     time.Time  `json:"invoice_date"`
	SupplierID      string     `json:"supplier_id"`
	ProductName     string     `json:"product_name"`
	NameKey         string     `json:"-"`
	Unit            string     `json:"unit"`
	UnitCostCents   int64      `json:"unit_cost_cents"`
	QtyReceived     int        `json:"qty_received"`
	QtyAvailable    int        `json:"qty_available"`
	DiscountPercent float64    `json:"discount_percent"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
	ProductID       string     `json:"product_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (b Batch) Registered() bool {
	return b.ProductID != ""
}

type PurchaseLineRequest struct {
	ProductName     string  `json:"product_name"`
	Qty             int     `json:"qty"`
	Unit            string  `json:"unit"`
	UnitCostCents   int64   `json:"unit_cost_cents"`
	DiscountPercent float64 `json:"discount_percent"`
	ExpiryDate      string  `json:"expiry_date,omitempty"`
}

type PurchaseCreateRequest struct {
	InvoiceNo       string                `json:"invoice_no"`
	SupplierID      string                `json:"supplier_id"`
	InvoiceDate     string                `json:"invoice_date"`
	DiscountPercent float64               `json:"discount_percent"`
	TaxPercent      float64               `json:"tax_percent"`
	Lines           []PurchaseLineRequest `json:"lines"`
}

type PurchaseInvoice struct {
	ID              string    `json:"id"`
	InvoiceNo       string    `json:"invoice_no"`
	SupplierID      string    `json:"supplier_id"`
	InvoiceDate     time.Time `json:"invoice_date"`
	DiscountPercent float64   `json:"discount_percent"`
	TaxPercent      float64   `json:"tax_percent"`
	GrossCents      int64     `json:"gross_cents"`
	SubtotalCents   int64     `json:"subtotal_cents"`
	TotalCents      int64     `json:"total_cents"`
	CreatedAt       time.Time `json:"created_at"`
	Batches         []Batch   `json:"batches,omitempty"`
}

type RegisterBatchRequest struct {
	Name      string     `json:"name,omitempty"`
	Category  string     `json:"category,omitempty"`
	Price     PriceBasis `json:"price"`
	Qty       *int       `json:"qty,omitempty"`
	Expiry    string     `json:"expiry,omitempty"`
	ImagePath string     `json:"image_path,omitempty"`
}

type RegisterBatchResponse struct {
	Product        Product `json:"product"`
	LinkedExisting bool    `json:"linked_existing"`
}

type RegisterAllRequest struct {
	DefaultMarginPercent *float64 `json:"default_margin_percent,omitempty"`
}

type BulkRegisterResult struct {
	Registered      int `json:"registered_count"`
	AlreadyExisting int `json:"already_existing_count"`
	Failed          int `json:"failed_count"`
}

type SaleLineRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type SaleCreateRequest struct {
	Lines           []SaleLineRequest `json:"lines"`
	PaymentMethod   string            `json:"payment_method"`
	AmountPaidCents int64             `json:"amount_paid_cents"`
}

type SaleLine struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type Sale struct {
	ID              string     `json:"id"`
	TotalCents      int64      `json:"total_cents"`
	PaymentMethod   string     `json:"payment_method"`
	AmountPaidCents int64      `json:"amount_paid_cents"`
	ChangeCents     int64      `json:"change_cents"`
	CashierUsername string     `json:"cashier_username"`
	CreatedAt       time.Time  `json:"created_at"`
	Lines           []SaleLine `json:"lines"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type DailyReportProduct struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	QtySold      int    `json:"qty_sold"`
	RevenueCents int64  `json:"revenue_cents"`
}

type DailyReport struct {
	Date         string               `json:"date"`
	Transactions int64                `json:"transactions"`
	ItemsSold    int64                `json:"items_sold"`
	RevenueCents int64                `json:"revenue_cents"`
	ByProduct    []DailyReportProduct `json:"by_product"`
}

type PurchaseReport struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Invoices      int64  `json:"invoices"`
	TotalCents    int64  `json:"total_cents"`
	BatchesIntake int64  `json:"batches_intake"`
}

type ExpiryAlert struct {
	BatchID      string    `json:"batch_id"`
	ProductName  string    `json:"product_name"`
	ProductID    string    `json:"product_id,omitempty"`
	QtyAvailable int       `json:"qty_available"`
	ExpiryDate   time.Time `json:"expiry_date"`
	DaysLeft     int       `json:"days_left"`
}

type ExpiryAlertResponse struct {
	GeneratedAt string        `json:"generated_at"`
	HorizonDays int           `json:"horizon_days"`
	Alerts      []ExpiryAlert `json:"alerts"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

// NameKey normalizes a free-text product name into the dedup key used to
// match batches against registered products: trimmed, case-folded, internal
// whitespace collapsed to single spaces.
func NameKey(name string) string {
	fields := strings.Fields(name)
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return strings.Join(fields, " ")
}

const (
	ProductStatusDraft  = "draft"
	ProductStatusActive = "active"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
