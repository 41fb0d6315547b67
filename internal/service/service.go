package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"apotekkita/backend/internal/alerts"
	"apotekkita/backend/internal/cache"
	"apotekkita/backend/internal/domain"
	"apotekkita/backend/internal/events"
	"apotekkita/backend/internal/pricing"
	"apotekkita/backend/internal/store"
	"apotekkita/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo          store.Repository
	stockCache    cache.StockCache
	publisher     events.Publisher
	alertEngine   *alerts.Engine
	defaultMargin float64
	cacheTTL      time.Duration
}

func New(repo store.Repository, stockCache cache.StockCache, publisher events.Publisher, alertEngine *alerts.Engine, defaultMarginPercent float64, cacheTTL time.Duration) *Service {
	if stockCache == nil {
		stockCache = cache.NoopStockCache{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if alertEngine == nil {
		alertEngine = alerts.NewEngine(30, 50)
	}
	if defaultMarginPercent < 0 {
		defaultMarginPercent = 20
	}
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Second
	}

	return &Service{
		repo:          repo,
		stockCache:    stockCache,
		publisher:     publisher,
		alertEngine:   alertEngine,
		defaultMargin: defaultMarginPercent,
		cacheTTL:      cacheTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.ProductWithStock, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]domain.ProductWithStock, 0, len(products))
	for _, product := range products {
		summary, err := s.StockSummaryFor(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.ProductWithStock{Product: product, Stock: summary})
	}
	return result, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.ProductWithStock, error) {
	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.ProductWithStock{}, err
	}
	summary, err := s.StockSummaryFor(ctx, product.ID)
	if err != nil {
		return domain.ProductWithStock{}, err
	}
	return domain.ProductWithStock{Product: *product, Stock: summary}, nil
}

// StockSummaryFor aggregates available quantity and earliest expiry over the
// product's batches, consulting the read cache first.
func (s *Service) StockSummaryFor(ctx context.Context, productID string) (domain.StockSummary, error) {
	if cached, ok, err := s.stockCache.Get(ctx, productID); err == nil && ok {
		return *cached, nil
	}

	summary, err := s.repo.StockSummary(ctx, productID)
	if err != nil {
		return domain.StockSummary{}, err
	}
	if err := s.stockCache.Set(ctx, productID, &summary, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: failed to cache stock summary product=%s: %v", productID, err)
	}
	return summary, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.ImagePath != nil {
		updated.ImagePath = strings.TrimSpace(*req.ImagePath)
	}
	if req.Status != nil {
		if *req.Status != domain.ProductStatusDraft && *req.Status != domain.ProductStatusActive {
			return domain.Product{}, store.ErrValidation
		}
		updated.Status = *req.Status
	}

	priceChanged := false
	if req.Price != nil {
		cost, err := s.replacementCost(ctx, *existing)
		if err != nil {
			return domain.Product{}, err
		}
		price, margin, err := s.resolvePrice(cost, *req.Price)
		if err != nil {
			return domain.Product{}, err
		}
		priceChanged = updated.SellPriceCents != price
		updated.SellPriceCents = price
		updated.MarginPercent = margin
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("name=%s,price=%d,status=%s", saved.Name, saved.SellPriceCents, saved.Status))
	if priceChanged {
		s.invalidateStock(ctx, events.ReasonPriceChange, saved.ID)
	}

	return *saved, nil
}

// replacementCost is the unit cost used for price/margin derivation on an
// already-registered product: the cost of its newest batch.
func (s *Service) replacementCost(ctx context.Context, product domain.Product) (int64, error) {
	batches, err := s.repo.ListBatchesByProduct(ctx, product.ID)
	if err != nil {
		return 0, err
	}
	if len(batches) == 0 {
		return 0, nil
	}

	newest := batches[0]
	for _, batch := range batches[1:] {
		if batch.InvoiceDate.After(newest.InvoiceDate) {
			newest = batch
		}
	}
	return newest.UnitCostCents, nil
}

// resolvePrice applies the pricing duality: a margin input derives the
// price, an override price derives the margin. Exactly one input may be set;
// with neither, the configured default margin applies. A zero cost leaves
// the derived margin unknown (nil).
func (s *Service) resolvePrice(costCents int64, basis domain.PriceBasis) (int64, *float64, error) {
	if basis.MarginPercent != nil && basis.OverridePriceCents != nil {
		return 0, nil, fmt.Errorf("margin and override price are mutually exclusive: %w", store.ErrValidation)
	}

	if basis.OverridePriceCents != nil {
		price := *basis.OverridePriceCents
		if price < 0 {
			return 0, nil, fmt.Errorf("override price negative: %w", store.ErrValidation)
		}
		margin, err := pricing.MarginFromPrice(costCents, price)
		if err != nil {
			if errors.Is(err, pricing.ErrZeroCost) {
				return price, nil, nil
			}
			return 0, nil, fmt.Errorf("%v: %w", err, store.ErrValidation)
		}
		return price, &margin, nil
	}

	margin := s.defaultMargin
	if basis.MarginPercent != nil {
		margin = *basis.MarginPercent
	}
	price, err := pricing.PriceFromMargin(costCents, margin)
	if err != nil {
		return 0, nil, fmt.Errorf("%v: %w", err, store.ErrValidation)
	}
	return price, &margin, nil
}

func (s *Service) RecordPurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.PurchaseInvoice, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.PurchaseInvoice{}, fmt.Errorf("admin role required")
	}

	req.InvoiceNo = strings.TrimSpace(req.InvoiceNo)
	req.SupplierID = strings.TrimSpace(req.SupplierID)
	if req.InvoiceNo == "" || req.SupplierID == "" || len(req.Lines) == 0 {
		return domain.PurchaseInvoice{}, store.ErrValidation
	}
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 || req.TaxPercent < 0 || req.TaxPercent > 100 {
		return domain.PurchaseInvoice{}, store.ErrValidation
	}
	invoiceDate, err := parseDate(req.InvoiceDate)
	if err != nil {
		return domain.PurchaseInvoice{}, fmt.Errorf("invoice_date: %w", store.ErrValidation)
	}

	batches := make([]domain.Batch, 0, len(req.Lines))
	grossCents := int64(0)
	subtotalCents := int64(0)
	for _, line := range req.Lines {
		line.ProductName = strings.TrimSpace(line.ProductName)
		if line.ProductName == "" || line.Qty < 1 || line.UnitCostCents < 0 {
			return domain.PurchaseInvoice{}, store.ErrValidation
		}
		if line.DiscountPercent < 0 || line.DiscountPercent > 100 {
			return domain.PurchaseInvoice{}, store.ErrValidation
		}

		var expiry *time.Time
		if line.ExpiryDate != "" {
			parsed, err := parseDate(line.ExpiryDate)
			if err != nil {
				return domain.PurchaseInvoice{}, fmt.Errorf("expiry_date: %w", store.ErrValidation)
			}
			expiry = &parsed
		}

		lineGross := int64(line.Qty) * line.UnitCostCents
		lineDiscount := roundCents(float64(lineGross) * line.DiscountPercent / 100)
		grossCents += lineGross
		subtotalCents += lineGross - lineDiscount

		batches = append(batches, domain.Batch{
			ProductName:     line.ProductName,
			Unit:            strings.TrimSpace(line.Unit),
			UnitCostCents:   line.UnitCostCents,
			QtyReceived:     line.Qty,
			DiscountPercent: line.DiscountPercent,
			ExpiryDate:      expiry,
		})
	}

	headerDiscount := roundCents(float64(subtotalCents) * req.DiscountPercent / 100)
	taxBase := subtotalCents - headerDiscount
	taxCents := roundCents(float64(taxBase) * req.TaxPercent / 100)

	invoice := domain.PurchaseInvoice{
		InvoiceNo:       req.InvoiceNo,
		SupplierID:      req.SupplierID,
		InvoiceDate:     invoiceDate,
		DiscountPercent: req.DiscountPercent,
		TaxPercent:      req.TaxPercent,
		GrossCents:      grossCents,
		SubtotalCents:   subtotalCents,
		TotalCents:      taxBase + taxCents,
		Batches:         batches,
	}

	created, err := s.repo.CreatePurchaseInvoice(ctx, invoice)
	if err != nil {
		return domain.PurchaseInvoice{}, err
	}

	s.logAudit(ctx, "purchase_create", "purchase_invoice", created.ID, fmt.Sprintf("invoice_no=%s,lines=%d,total=%d", created.InvoiceNo, len(created.Batches), created.TotalCents))

	// new stock under an already-registered name changes that product's
	// summary immediately
	touched := make([]string, 0, len(created.Batches))
	for _, batch := range created.Batches {
		product, err := s.repo.GetProductByNameKey(ctx, batch.NameKey)
		if err != nil {
			continue
		}
		touched = append(touched, product.ID)
	}
	if len(touched) > 0 {
		s.invalidateStock(ctx, events.ReasonPurchase, touched...)
	}

	return *created, nil
}

func (s *Service) ListPurchaseInvoices(ctx context.Context, limit int) ([]domain.PurchaseInvoice, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListPurchaseInvoices(ctx, limit)
}

func (s *Service) ListUnregisteredBatches(ctx context.Context) ([]domain.Batch, error) {
	return s.repo.ListUnregisteredBatches(ctx)
}

func (s *Service) RegisterBatch(ctx context.Context, batchID string, req domain.RegisterBatchRequest) (domain.RegisterBatchResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.RegisterBatchResponse{}, fmt.Errorf("admin role required")
	}

	batch, err := s.repo.GetBatchByID(ctx, batchID)
	if err != nil {
		return domain.RegisterBatchResponse{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = batch.ProductName
	}
	nameKey := domain.NameKey(name)
	if nameKey == "" {
		return domain.RegisterBatchResponse{}, store.ErrValidation
	}

	price, margin, err := s.resolvePrice(batch.UnitCostCents, req.Price)
	if err != nil {
		return domain.RegisterBatchResponse{}, err
	}

	fix := store.BatchCorrection{Qty: req.Qty}
	if req.Expiry != "" {
		expiry, err := parseDate(req.Expiry)
		if err != nil {
			return domain.RegisterBatchResponse{}, fmt.Errorf("expiry: %w", store.ErrValidation)
		}
		fix.Expiry = &expiry
	}

	candidate := store.ProductCandidate{
		Name:           name,
		NameKey:        nameKey,
		Category:       strings.TrimSpace(req.Category),
		SellPriceCents: price,
		MarginPercent:  margin,
		ImagePath:      strings.TrimSpace(req.ImagePath),
	}

	product, created, err := s.repo.RegisterBatch(ctx, batchID, candidate, fix)
	if err != nil {
		return domain.RegisterBatchResponse{}, err
	}

	action := "batch_register_link"
	if created {
		action = "batch_register_create"
	}
	s.logAudit(ctx, action, "batch", batchID, fmt.Sprintf("product=%s,price=%d", product.ID, product.SellPriceCents))
	s.invalidateStock(ctx, events.ReasonRegistration, product.ID)

	return domain.RegisterBatchResponse{Product: *product, LinkedExisting: !created}, nil
}

// RegisterAllBatches registers every currently unregistered batch with the
// default margin, oldest invoice first. Individual failures never abort the
// pass; the result is a three-way tally. Linking to an existing same-named
// product counts as already-existing, as does losing a race to a concurrent
// registration of the same batch.
func (s *Service) RegisterAllBatches(ctx context.Context, req domain.RegisterAllRequest) (domain.BulkRegisterResult, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.BulkRegisterResult{}, fmt.Errorf("admin role required")
	}

	margin := s.defaultMargin
	if req.DefaultMarginPercent != nil {
		margin = *req.DefaultMarginPercent
	}
	if margin < 0 {
		return domain.BulkRegisterResult{}, store.ErrValidation
	}

	batches, err := s.repo.ListUnregisteredBatches(ctx)
	if err != nil {
		return domain.BulkRegisterResult{}, err
	}

	result := domain.BulkRegisterResult{}
	touched := make([]string, 0, len(batches))
	for _, batch := range batches {
		price, err := pricing.PriceFromMargin(batch.UnitCostCents, margin)
		if err != nil {
			result.Failed++
			log.Printf("[service] WARN: bulk register price for batch %s: %v", batch.ID, err)
			continue
		}

		candidate := store.ProductCandidate{
			Name:           batch.ProductName,
			NameKey:        batch.NameKey,
			SellPriceCents: price,
			MarginPercent:  &margin,
		}
		product, created, err := s.repo.RegisterBatch(ctx, batch.ID, candidate, store.BatchCorrection{})
		switch {
		case err == nil && created:
			result.Registered++
			touched = append(touched, product.ID)
		case err == nil:
			result.AlreadyExisting++
			touched = append(touched, product.ID)
		case errors.Is(err, store.ErrAlreadyRegistered):
			result.AlreadyExisting++
		default:
			result.Failed++
			log.Printf("[service] WARN: bulk register batch %s: %v", batch.ID, err)
		}
	}

	s.logAudit(ctx, "batch_register_all", "batch", "", fmt.Sprintf("registered=%d,existing=%d,failed=%d", result.Registered, result.AlreadyExisting, result.Failed))
	if len(touched) > 0 {
		s.invalidateStock(ctx, events.ReasonRegistration, touched...)
	}

	return result, nil
}

func (s *Service) CommitSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, fmt.Errorf("authentication required")
	}

	if len(req.Lines) == 0 {
		return domain.Sale{}, store.ErrValidation
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, fmt.Errorf("payment method %q: %w", req.PaymentMethod, store.ErrValidation)
	}
	if req.AmountPaidCents < 0 {
		return domain.Sale{}, store.ErrValidation
	}

	lines := make([]domain.SaleLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		if strings.TrimSpace(line.ProductID) == "" || line.Qty < 1 {
			return domain.Sale{}, store.ErrValidation
		}
		lines = append(lines, domain.SaleLine{ProductID: line.ProductID, Qty: line.Qty})
	}

	sale := domain.Sale{
		Lines:           lines,
		PaymentMethod:   req.PaymentMethod,
		AmountPaidCents: req.AmountPaidCents,
		CashierUsername: actor.Username,
	}

	committed, err := s.repo.CommitSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_commit", "sale", committed.ID, fmt.Sprintf("total=%d,lines=%d", committed.TotalCents, len(committed.Lines)))
	productIDs := make([]string, 0, len(committed.Lines))
	for _, line := range committed.Lines {
		productIDs = append(productIDs, line.ProductID)
	}
	s.invalidateStock(ctx, events.ReasonSale, productIDs...)

	return *committed, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) DailyReport(ctx context.Context, dateStr string) (domain.DailyReport, error) {
	date, err := parseDate(dateStr)
	if err != nil {
		return domain.DailyReport{}, fmt.Errorf("date: %w", store.ErrValidation)
	}
	return s.repo.GetDailyReport(ctx, date, date.AddDate(0, 0, 1))
}

func (s *Service) PurchaseReport(ctx context.Context, fromStr string, toStr string) (domain.PurchaseReport, error) {
	from, err := parseDate(fromStr)
	if err != nil {
		return domain.PurchaseReport{}, fmt.Errorf("from: %w", store.ErrValidation)
	}
	to, err := parseDate(toStr)
	if err != nil {
		return domain.PurchaseReport{}, fmt.Errorf("to: %w", store.ErrValidation)
	}
	if to.Before(from) {
		return domain.PurchaseReport{}, store.ErrValidation
	}
	return s.repo.GetPurchaseReport(ctx, from, to.AddDate(0, 0, 1))
}

func (s *Service) ExpiringStock(ctx context.Context) (domain.ExpiryAlertResponse, error) {
	now := time.Now().UTC()
	batches, err := s.repo.ListBatchesExpiringBefore(ctx, s.alertEngine.Cutoff(now))
	if err != nil {
		return domain.ExpiryAlertResponse{}, err
	}
	return s.alertEngine.ExpiringStock(now, batches), nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Supplier{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, store.ErrValidation
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:    req.Name,
		Phone:   strings.TrimSpace(req.Phone),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) invalidateStock(ctx context.Context, reason string, productIDs ...string) {
	if len(productIDs) == 0 {
		return
	}
	if err := s.stockCache.Invalidate(ctx, productIDs...); err != nil {
		log.Printf("[service] WARN: failed to invalidate stock cache: %v", err)
	}
	if err := s.publisher.PublishStockChanged(ctx, reason, productIDs...); err != nil {
		log.Printf("[service] WARN: failed to publish stock change: %v", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "qris", "debit", "transfer":
		return true
	}
	return false
}

func parseDate(value string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), nil
}

func roundCents(val float64) int64 {
	return int64(math.Round(val))
}
