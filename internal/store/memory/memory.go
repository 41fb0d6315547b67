package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"apotekkita/backend/internal/domain"
	"apotekkita/backend/internal/store"
	"apotekkita/backend/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	products           map[string]domain.Product
	productIDByNameKey map[string]string
	batches            map[string]*domain.Batch
	invoicesByID       map[string]domain.PurchaseInvoice
	salesByID          map[string]*domain.Sale
	suppliersByID      map[string]domain.Supplier
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// New returns an empty store with only the seed user accounts.
func New() *Store {
	return &Store{
		products:           make(map[string]domain.Product),
		productIDByNameKey: make(map[string]string),
		batches:            make(map[string]*domain.Batch),
		invoicesByID:       make(map[string]domain.PurchaseInvoice),
		salesByID:          make(map[string]*domain.Sale),
		suppliersByID:      make(map[string]domain.Supplier),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		usersByUsername:    seedUsers(),
	}
}

// NewSeeded returns a store preloaded with demo pharmacy data: two
// suppliers, a few registered products with stock batches, and a handful of
// unregistered batches waiting on the registration worklist.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	suppliers := []domain.Supplier{
		{ID: "sup-kf", Name: "PT Kimia Farma Trading", Phone: "021-5550101", CreatedAt: now},
		{ID: "sup-epm", Name: "PT Enseval Putera Megatrading", Phone: "021-5550202", CreatedAt: now},
	}
	for _, sup := range suppliers {
		s.suppliersByID[sup.ID] = sup
	}

	margin20 := 20.0
	margin25 := 25.0
	products := []domain.Product{
		{ID: "prd-para", Name: "Paracetamol 500mg Strip", Category: "analgesik", SellPriceCents: 3600, MarginPercent: &margin20, Status: domain.ProductStatusActive, CreatedAt: now, UpdatedAt: now},
		{ID: "prd-amox", Name: "Amoxicillin 500mg Strip", Category: "antibiotik", SellPriceCents: 7500, MarginPercent: &margin25, Status: domain.ProductStatusActive, CreatedAt: now, UpdatedAt: now},
		{ID: "prd-vitc", Name: "Vitamin C 100mg Botol", Category: "vitamin", SellPriceCents: 12000, MarginPercent: &margin25, Status: domain.ProductStatusActive, CreatedAt: now, UpdatedAt: now},
	}
	for _, p := range products {
		p.NameKey = domain.NameKey(p.Name)
		s.products[p.ID] = p
		s.productIDByNameKey[p.NameKey] = p.ID
	}

	expApr := time.Date(now.Year()+1, 4, 30, 0, 0, 0, 0, time.UTC)
	expAug := time.Date(now.Year()+1, 8, 31, 0, 0, 0, 0, time.UTC)
	expSoon := now.AddDate(0, 0, 21)
	invoice := domain.PurchaseInvoice{
		ID:          "inv-seed-1",
		InvoiceNo:   "KF/2025/0114",
		SupplierID:  "sup-kf",
		InvoiceDate: now.AddDate(0, -1, 0),
		CreatedAt:   now.AddDate(0, -1, 0),
	}
	batches := []domain.Batch{
		{ID: "bat-para-1", ProductName: "Paracetamol 500mg Strip", Unit: "strip", UnitCostCents: 3000, QtyReceived: 80, QtyAvailable: 80, ExpiryDate: &expApr, ProductID: "prd-para"},
		{ID: "bat-para-2", ProductName: "Paracetamol 500mg Strip", Unit: "strip", UnitCostCents: 3100, QtyReceived: 60, QtyAvailable: 60, ExpiryDate: &expAug, ProductID: "prd-para"},
		{ID: "bat-amox-1", ProductName: "Amoxicillin 500mg Strip", Unit: "strip", UnitCostCents: 6000, QtyReceived: 50, QtyAvailable: 50, ExpiryDate: &expSoon, ProductID: "prd-amox"},
		{ID: "bat-vitc-1", ProductName: "Vitamin C 100mg Botol", Unit: "botol", UnitCostCents: 9600, QtyReceived: 40, QtyAvailable: 40, ExpiryDate: &expAug, ProductID: "prd-vitc"},
		{ID: "bat-beta-1", ProductName: "Betadine 60ml", Unit: "botol", UnitCostCents: 15000, QtyReceived: 24, QtyAvailable: 24, ExpiryDate: &expAug},
		{ID: "bat-tolak-1", ProductName: "Tolak Angin Sachet", Unit: "sachet", UnitCostCents: 2500, QtyReceived: 100, QtyAvailable: 100},
	}
	var gross int64
	for _, b := range batches {
		b.InvoiceID = invoice.ID
		b.InvoiceNo = invoice.InvoiceNo
		b.InvoiceDate = invoice.InvoiceDate
		b.SupplierID = invoice.SupplierID
		b.NameKey = domain.NameKey(b.ProductName)
		b.CreatedAt = invoice.CreatedAt
		gross += int64(b.QtyReceived) * b.UnitCostCents
		clone := b
		s.batches[b.ID] = &clone
	}
	invoice.GrossCents = gross
	invoice.SubtotalCents = gross
	invoice.TotalCents = gross
	s.invoicesByID[invoice.ID] = invoice

	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductByNameKey(_ context.Context, nameKey string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.productIDByNameKey[nameKey]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := s.products[id]
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.SellPriceCents < 0 {
		return nil, store.ErrValidation
	}
	current, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}

	product.NameKey = domain.NameKey(product.Name)
	if other, taken := s.productIDByNameKey[product.NameKey]; taken && other != product.ID {
		return nil, fmt.Errorf("product name %q taken: %w", product.Name, store.ErrValidation)
	}
	if current.NameKey != product.NameKey {
		delete(s.productIDByNameKey, current.NameKey)
	}
	product.CreatedAt = current.CreatedAt
	product.UpdatedAt = time.Now().UTC()

	s.products[product.ID] = product
	s.productIDByNameKey[product.NameKey] = product.ID
	updated := product
	return &updated, nil
}

func (s *Store) CreatePurchaseInvoice(_ context.Context, invoice domain.PurchaseInvoice) (*domain.PurchaseInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if invoice.InvoiceNo == "" || len(invoice.Batches) == 0 {
		return nil, store.ErrValidation
	}
	if _, exists := s.suppliersByID[invoice.SupplierID]; !exists {
		return nil, fmt.Errorf("supplier %s: %w", invoice.SupplierID, store.ErrNotFound)
	}
	for _, existing := range s.invoicesByID {
		if existing.InvoiceNo == invoice.InvoiceNo && existing.SupplierID == invoice.SupplierID {
			return nil, fmt.Errorf("invoice %s exists: %w", invoice.InvoiceNo, store.ErrValidation)
		}
	}

	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}

	saved := make([]domain.Batch, 0, len(invoice.Batches))
	for _, batch := range invoice.Batches {
		if batch.ProductName == "" || batch.QtyReceived < 1 || batch.UnitCostCents < 0 {
			return nil, store.ErrValidation
		}
		if batch.ID == "" {
			batch.ID = xid.New("bat")
		}
		batch.InvoiceID = invoice.ID
		batch.InvoiceNo = invoice.InvoiceNo
		batch.InvoiceDate = invoice.InvoiceDate
		batch.SupplierID = invoice.SupplierID
		batch.NameKey = domain.NameKey(batch.ProductName)
		batch.QtyAvailable = batch.QtyReceived
		batch.ProductID = ""
		batch.CreatedAt = invoice.CreatedAt
		clone := batch
		s.batches[batch.ID] = &clone
		saved = append(saved, batch)
	}

	invoice.Batches = saved
	s.invoicesByID[invoice.ID] = invoice
	created := cloneInvoice(invoice)
	return &created, nil
}

func (s *Store) ListPurchaseInvoices(_ context.Context, limit int) ([]domain.PurchaseInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PurchaseInvoice, 0, len(s.invoicesByID))
	for _, invoice := range s.invoicesByID {
		full := invoice
		full.Batches = make([]domain.Batch, 0, len(invoice.Batches))
		for _, b := range s.batches {
			if b.InvoiceID == invoice.ID {
				full.Batches = append(full.Batches, cloneBatch(*b))
			}
		}
		slices.SortFunc(full.Batches, func(a, b domain.Batch) int {
			return cmpString(a.ID, b.ID)
		})
		result = append(result, full)
	}
	slices.SortFunc(result, func(a, b domain.PurchaseInvoice) int {
		if a.InvoiceDate.Equal(b.InvoiceDate) {
			return cmpString(b.ID, a.ID)
		}
		if a.InvoiceDate.After(b.InvoiceDate) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetBatchByID(_ context.Context, id string) (*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, exists := s.batches[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyBatch := cloneBatch(*batch)
	return &copyBatch, nil
}

func (s *Store) ListUnregisteredBatches(_ context.Context) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Batch, 0, 32)
	for _, batch := range s.batches {
		if batch.Registered() {
			continue
		}
		result = append(result, cloneBatch(*batch))
	}
	slices.SortFunc(result, compareBatchByInvoiceDate)
	return result, nil
}

func (s *Store) ListBatchesByProduct(_ context.Context, productID string) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}

	result := make([]domain.Batch, 0, 8)
	for _, batch := range s.batches {
		if batchResolvesTo(*batch, product) {
			result = append(result, cloneBatch(*batch))
		}
	}
	slices.SortFunc(result, compareBatchForDepletion)
	return result, nil
}

func (s *Store) ListBatchesExpiringBefore(_ context.Context, cutoff time.Time) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Batch, 0, 16)
	for _, batch := range s.batches {
		if batch.ExpiryDate == nil || batch.QtyAvailable < 1 {
			continue
		}
		if !batch.ExpiryDate.Before(cutoff) {
			continue
		}
		result = append(result, cloneBatch(*batch))
	}
	slices.SortFunc(result, compareBatchForDepletion)
	return result, nil
}

func (s *Store) RegisterBatch(_ context.Context, batchID string, candidate store.ProductCandidate, fix store.BatchCorrection) (*domain.Product, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, exists := s.batches[batchID]
	if !exists {
		return nil, false, store.ErrNotFound
	}
	if batch.Registered() {
		return nil, false, store.ErrAlreadyRegistered
	}
	if candidate.Name == "" || candidate.NameKey == "" || candidate.SellPriceCents < 0 {
		return nil, false, store.ErrValidation
	}

	if fix.Qty != nil || fix.Expiry != nil {
		if batch.QtyAvailable != batch.QtyReceived {
			return nil, false, fmt.Errorf("batch %s already depleted: %w", batchID, store.ErrValidation)
		}
		if fix.Qty != nil {
			if *fix.Qty < 1 {
				return nil, false, store.ErrValidation
			}
			batch.QtyReceived = *fix.Qty
			batch.QtyAvailable = *fix.Qty
		}
		if fix.Expiry != nil {
			expiry := fix.Expiry.UTC()
			batch.ExpiryDate = &expiry
		}
	}

	if existingID, ok := s.productIDByNameKey[candidate.NameKey]; ok {
		batch.ProductID = existingID
		existing := s.products[existingID]
		return &existing, false, nil
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:             xid.New("prd"),
		Name:           candidate.Name,
		NameKey:        candidate.NameKey,
		Category:       candidate.Category,
		SellPriceCents: candidate.SellPriceCents,
		MarginPercent:  candidate.MarginPercent,
		Status:         domain.ProductStatusActive,
		ImagePath:      candidate.ImagePath,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.products[product.ID] = product
	s.productIDByNameKey[product.NameKey] = product.ID
	batch.ProductID = product.ID

	created := product
	return &created, true, nil
}

func (s *Store) StockSummary(_ context.Context, productID string) (domain.StockSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[productID]
	if !exists {
		return domain.StockSummary{}, store.ErrNotFound
	}
	return s.stockSummaryLocked(product), nil
}

func (s *Store) stockSummaryLocked(product domain.Product) domain.StockSummary {
	summary := domain.StockSummary{}
	for _, batch := range s.batches {
		if !batchResolvesTo(*batch, product) {
			continue
		}
		summary.TotalAvailable += batch.QtyAvailable
		if batch.ExpiryDate == nil || batch.QtyAvailable < 1 {
			continue
		}
		if summary.EarliestExpiry == nil || batch.ExpiryDate.Before(*summary.EarliestExpiry) {
			expiry := batch.ExpiryDate.UTC()
			summary.EarliestExpiry = &expiry
		}
	}
	return summary
}

func (s *Store) CommitSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Lines) == 0 || sale.PaymentMethod == "" {
		return nil, store.ErrValidation
	}

	total := int64(0)
	recomputed := make([]domain.SaleLine, 0, len(sale.Lines))
	demandByProduct := make(map[string]int, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.Qty < 1 {
			return nil, store.ErrValidation
		}
		product, exists := s.products[line.ProductID]
		if !exists {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}
		if product.Status != domain.ProductStatusActive {
			return nil, fmt.Errorf("product %s inactive: %w", product.Name, store.ErrValidation)
		}
		demandByProduct[line.ProductID] += line.Qty

		recomputed = append(recomputed, domain.SaleLine{
			ProductID:      line.ProductID,
			ProductName:    product.Name,
			Qty:            line.Qty,
			UnitPriceCents: product.SellPriceCents,
		})
		total += int64(line.Qty) * product.SellPriceCents
	}

	// Demand is checked per product, not per line, so repeated lines for
	// the same product cannot each pass against the same snapshot.
	depletionByProduct := make(map[string][]*domain.Batch, len(demandByProduct))
	for _, line := range sale.Lines {
		if _, done := depletionByProduct[line.ProductID]; done {
			continue
		}
		product := s.products[line.ProductID]
		demand := demandByProduct[line.ProductID]

		batches := make([]*domain.Batch, 0, 4)
		available := 0
		for _, batch := range s.batches {
			if !batchResolvesTo(*batch, product) {
				continue
			}
			batches = append(batches, batch)
			available += batch.QtyAvailable
		}
		if available < demand {
			return nil, fmt.Errorf("%s short %d: %w", product.Name, demand-available, store.ErrInsufficientStock)
		}
		slices.SortFunc(batches, func(a, b *domain.Batch) int {
			return compareBatchForDepletion(*a, *b)
		})
		depletionByProduct[line.ProductID] = batches
	}

	if sale.AmountPaidCents < total {
		return nil, fmt.Errorf("amount paid below total: %w", store.ErrValidation)
	}

	for productID, demand := range demandByProduct {
		remaining := demand
		for _, batch := range depletionByProduct[productID] {
			if remaining == 0 {
				break
			}
			if batch.QtyAvailable < 1 {
				continue
			}
			used := remaining
			if used > batch.QtyAvailable {
				used = batch.QtyAvailable
			}
			batch.QtyAvailable -= used
			remaining -= used
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.Lines = recomputed
	sale.TotalCents = total
	sale.ChangeCents = sale.AmountPaidCents - total

	saved := cloneSale(&sale)
	s.salesByID[sale.ID] = saved
	return cloneSale(saved), nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) GetDailyReport(_ context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{
		Date:      from.Format("2006-01-02"),
		ByProduct: make([]domain.DailyReportProduct, 0, 16),
	}
	byProduct := map[string]*domain.DailyReportProduct{}

	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		report.Transactions++
		report.RevenueCents += sale.TotalCents
		for _, line := range sale.Lines {
			report.ItemsSold += int64(line.Qty)
			entry := byProduct[line.ProductID]
			if entry == nil {
				entry = &domain.DailyReportProduct{ProductID: line.ProductID, ProductName: line.ProductName}
				byProduct[line.ProductID] = entry
			}
			entry.QtySold += line.Qty
			entry.RevenueCents += int64(line.Qty) * line.UnitPriceCents
		}
	}

	for _, entry := range byProduct {
		report.ByProduct = append(report.ByProduct, *entry)
	}
	slices.SortFunc(report.ByProduct, func(a, b domain.DailyReportProduct) int {
		if a.RevenueCents == b.RevenueCents {
			return cmpString(a.ProductName, b.ProductName)
		}
		if a.RevenueCents > b.RevenueCents {
			return -1
		}
		return 1
	})

	return report, nil
}

func (s *Store) GetPurchaseReport(_ context.Context, from time.Time, to time.Time) (domain.PurchaseReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.PurchaseReport{
		From: from.Format("2006-01-02"),
		To:   to.Format("2006-01-02"),
	}
	for _, invoice := range s.invoicesByID {
		if invoice.InvoiceDate.Before(from) || !invoice.InvoiceDate.Before(to) {
			continue
		}
		report.Invoices++
		report.TotalCents += invoice.TotalCents
	}
	for _, batch := range s.batches {
		if batch.InvoiceDate.Before(from) || !batch.InvoiceDate.Before(to) {
			continue
		}
		report.BatchesIntake++
	}
	return report, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrValidation
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	s.suppliersByID[supplier.ID] = supplier
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.Name, b.Name)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return suppliers, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrValidation
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

// batchResolvesTo reports whether a batch belongs to a product's stock view:
// linked batches by foreign key, unregistered batches by normalized name.
func batchResolvesTo(batch domain.Batch, product domain.Product) bool {
	if batch.ProductID != "" {
		return batch.ProductID == product.ID
	}
	return batch.NameKey == product.NameKey
}

// compareBatchForDepletion orders batches earliest expiry first with nil
// expiries last, then oldest invoice first.
func compareBatchForDepletion(a domain.Batch, b domain.Batch) int {
	if a.ExpiryDate == nil && b.ExpiryDate != nil {
		return 1
	}
	if a.ExpiryDate != nil && b.ExpiryDate == nil {
		return -1
	}
	if a.ExpiryDate != nil && b.ExpiryDate != nil {
		if a.ExpiryDate.Before(*b.ExpiryDate) {
			return -1
		}
		if a.ExpiryDate.After(*b.ExpiryDate) {
			return 1
		}
	}
	return compareBatchByInvoiceDate(a, b)
}

func compareBatchByInvoiceDate(a domain.Batch, b domain.Batch) int {
	if a.InvoiceDate.Before(b.InvoiceDate) {
		return -1
	}
	if a.InvoiceDate.After(b.InvoiceDate) {
		return 1
	}
	if a.CreatedAt.Before(b.CreatedAt) {
		return -1
	}
	if a.CreatedAt.After(b.CreatedAt) {
		return 1
	}
	return cmpString(a.ID, b.ID)
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneBatch(src domain.Batch) domain.Batch {
	dup := src
	if src.ExpiryDate != nil {
		expiry := src.ExpiryDate.UTC()
		dup.ExpiryDate = &expiry
	}
	return dup
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	lines := make([]domain.SaleLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	return &dup
}

func cloneInvoice(src domain.PurchaseInvoice) domain.PurchaseInvoice {
	dup := src
	batches := make([]domain.Batch, len(src.Batches))
	for i, b := range src.Batches {
		batches[i] = cloneBatch(b)
	}
	dup.Batches = batches
	return dup
}
