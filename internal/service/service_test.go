package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"apotekkita/backend/internal/alerts"
	"apotekkita/backend/internal/domain"
	"apotekkita/backend/internal/store"
	"apotekkita/backend/internal/store/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(memory.New(), nil, nil, alerts.NewEngine(30, 50), 20, 15*time.Second)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "kasir", Role: domain.RoleCashier})
}

func recordPurchase(t *testing.T, svc *Service, invoiceNo string, lines []domain.PurchaseLineRequest) domain.PurchaseInvoice {
	t.Helper()
	supplier, err := svc.CreateSupplier(adminCtx(), domain.SupplierCreateRequest{Name: "PT " + invoiceNo})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	invoice, err := svc.RecordPurchase(adminCtx(), domain.PurchaseCreateRequest{
		InvoiceNo:   invoiceNo,
		SupplierID:  supplier.ID,
		InvoiceDate: "2026-08-01",
		Lines:       lines,
	})
	if err != nil {
		t.Fatalf("record purchase: %v", err)
	}
	return invoice
}

func TestRecordPurchaseLineArithmetic(t *testing.T) {
	svc := newTestService(t)

	invoice := recordPurchase(t, svc, "INV-001", []domain.PurchaseLineRequest{
		{ProductName: "Paracetamol 500mg", Qty: 10, UnitCostCents: 1500, DiscountPercent: 10},
		{ProductName: "Amoxicillin 500mg", Qty: 4, UnitCostCents: 2500},
	})

	if invoice.GrossCents != 25000 {
		t.Fatalf("expected gross 25000, got %d", invoice.GrossCents)
	}
	// first line: 15000 gross minus 10% = 13500; second: 10000
	if invoice.SubtotalCents != 23500 {
		t.Fatalf("expected subtotal 23500, got %d", invoice.SubtotalCents)
	}
	if invoice.TotalCents != 23500 {
		t.Fatalf("expected total 23500, got %d", invoice.TotalCents)
	}
	if len(invoice.Batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(invoice.Batches))
	}
	for _, batch := range invoice.Batches {
		if batch.QtyAvailable != batch.QtyReceived {
			t.Fatalf("new batch %s should be fully available", batch.ID)
		}
		if batch.Registered() {
			t.Fatalf("new batch %s should not be linked to a product", batch.ID)
		}
	}
}

func TestRecordPurchaseRequiresAdmin(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.RecordPurchase(cashierCtx(), domain.PurchaseCreateRequest{
		InvoiceNo: "INV-X", SupplierID: "sup-x", InvoiceDate: "2026-08-01",
		Lines: []domain.PurchaseLineRequest{{ProductName: "A", Qty: 1, UnitCostCents: 100}},
	})
	if err == nil {
		t.Fatal("expected cashier to be rejected")
	}
}

func TestRegisterBatchWithMargin(t *testing.T) {
	svc := newTestService(t)

	invoice := recordPurchase(t, svc, "INV-002", []domain.PurchaseLineRequest{
		{ProductName: "Paracetamol 500mg", Qty: 10, UnitCostCents: 15000},
	})
	batchID := invoice.Batches[0].ID

	margin := 20.0
	resp, err := svc.RegisterBatch(adminCtx(), batchID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin},
	})
	if err != nil {
		t.Fatalf("register batch: %v", err)
	}
	if resp.LinkedExisting {
		t.Fatal("expected a newly created product")
	}
	if resp.Product.SellPriceCents != 18000 {
		t.Fatalf("expected sell price 18000, got %d", resp.Product.SellPriceCents)
	}
	if resp.Product.MarginPercent == nil || *resp.Product.MarginPercent != 20 {
		t.Fatalf("expected stored margin 20, got %v", resp.Product.MarginPercent)
	}

	stock, err := svc.StockSummaryFor(adminCtx(), resp.Product.ID)
	if err != nil {
		t.Fatalf("stock summary: %v", err)
	}
	if stock.TotalAvailable != 10 {
		t.Fatalf("expected 10 available, got %d", stock.TotalAvailable)
	}
}

func TestRegisterBatchWithOverridePrice(t *testing.T) {
	svc := newTestService(t)

	invoice := recordPurchase(t, svc, "INV-003", []domain.PurchaseLineRequest{
		{ProductName: "Vitamin C 100mg", Qty: 5, UnitCostCents: 15000},
	})

	override := int64(17500)
	resp, err := svc.RegisterBatch(adminCtx(), invoice.Batches[0].ID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{OverridePriceCents: &override},
	})
	if err != nil {
		t.Fatalf("register batch: %v", err)
	}
	if resp.Product.SellPriceCents != 17500 {
		t.Fatalf("expected sell price 17500, got %d", resp.Product.SellPriceCents)
	}
	if resp.Product.MarginPercent == nil || *resp.Product.MarginPercent != 16.67 {
		t.Fatalf("expected derived margin 16.67, got %v", resp.Product.MarginPercent)
	}
}

func TestRegisterBatchZeroCostOverrideLeavesMarginUnknown(t *testing.T) {
	svc := newTestService(t)

	invoice := recordPurchase(t, svc, "INV-004", []domain.PurchaseLineRequest{
		{ProductName: "Sample Sachet", Qty: 3, UnitCostCents: 0},
	})

	override := int64(500)
	resp, err := svc.RegisterBatch(adminCtx(), invoice.Batches[0].ID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{OverridePriceCents: &override},
	})
	if err != nil {
		t.Fatalf("register batch: %v", err)
	}
	if resp.Product.MarginPercent != nil {
		t.Fatalf("expected unknown margin for zero cost, got %v", *resp.Product.MarginPercent)
	}
	if resp.Product.SellPriceCents != 500 {
		t.Fatalf("expected sell price 500, got %d", resp.Product.SellPriceCents)
	}
}

func TestRegisterBatchRejectsBothPriceInputs(t *testing.T) {
	svc := newTestService(t)

	invoice := recordPurchase(t, svc, "INV-005", []domain.PurchaseLineRequest{
		{ProductName: "Betadine 60ml", Qty: 2, UnitCostCents: 3000},
	})

	margin := 25.0
	override := int64(4000)
	_, err := svc.RegisterBatch(adminCtx(), invoice.Batches[0].ID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin, OverridePriceCents: &override},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegisterBatchTwiceFails(t *testing.T) {
	svc := newTestService(t)

	invoice := recordPurchase(t, svc, "INV-006", []domain.PurchaseLineRequest{
		{ProductName: "Paracetamol 500mg", Qty: 10, UnitCostCents: 1500},
	})
	batchID := invoice.Batches[0].ID

	margin := 20.0
	first, err := svc.RegisterBatch(adminCtx(), batchID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin},
	})
	if err != nil {
		t.Fatalf("first register: %v", err)
	}

	_, err = svc.RegisterBatch(adminCtx(), batchID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin},
	})
	if !errors.Is(err, store.ErrAlreadyRegistered) {
		t.Fatalf("expected already registered error, got %v", err)
	}

	// the failed re-register must not disturb stock
	stock, err := svc.StockSummaryFor(adminCtx(), first.Product.ID)
	if err != nil {
		t.Fatalf("stock summary: %v", err)
	}
	if stock.TotalAvailable != 10 {
		t.Fatalf("expected 10 available after failed re-register, got %d", stock.TotalAvailable)
	}
}

func TestRegisterBatchLinksExistingProductByName(t *testing.T) {
	svc := newTestService(t)

	invoice := recordPurchase(t, svc, "INV-007", []domain.PurchaseLineRequest{
		{ProductName: "Paracetamol 500mg", Qty: 10, UnitCostCents: 1500},
		{ProductName: "  PARACETAMOL   500mg ", Qty: 5, UnitCostCents: 1600},
	})

	margin := 20.0
	first, err := svc.RegisterBatch(adminCtx(), invoice.Batches[0].ID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin},
	})
	if err != nil {
		t.Fatalf("first register: %v", err)
	}

	second, err := svc.RegisterBatch(adminCtx(), invoice.Batches[1].ID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin},
	})
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if !second.LinkedExisting {
		t.Fatal("expected second batch to link to the existing product")
	}
	if second.Product.ID != first.Product.ID {
		t.Fatalf("expected same product, got %s and %s", first.Product.ID, second.Product.ID)
	}

	stock, err := svc.StockSummaryFor(adminCtx(), first.Product.ID)
	if err != nil {
		t.Fatalf("stock summary: %v", err)
	}
	if stock.TotalAvailable != 15 {
		t.Fatalf("expected combined stock 15, got %d", stock.TotalAvailable)
	}
}

func TestRegisterAllTally(t *testing.T) {
	svc := newTestService(t)

	invoice := recordPurchase(t, svc, "INV-008", []domain.PurchaseLineRequest{
		{ProductName: "Paracetamol 500mg", Qty: 10, UnitCostCents: 1500},
		{ProductName: "Amoxicillin 500mg", Qty: 4, UnitCostCents: 2500},
		{ProductName: "Vitamin C 100mg", Qty: 6, UnitCostCents: 2000},
	})

	// pre-register Vitamin C so the bulk pass links the later batch of the
	// same name instead of creating a duplicate
	margin := 20.0
	if _, err := svc.RegisterBatch(adminCtx(), invoice.Batches[2].ID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin},
	}); err != nil {
		t.Fatalf("pre-register: %v", err)
	}

	recordPurchase(t, svc, "INV-009", []domain.PurchaseLineRequest{
		{ProductName: "vitamin c 100MG", Qty: 2, UnitCostCents: 2100},
	})

	result, err := svc.RegisterAllBatches(adminCtx(), domain.RegisterAllRequest{})
	if err != nil {
		t.Fatalf("register all: %v", err)
	}
	if result.Registered != 2 {
		t.Fatalf("expected 2 registered, got %d", result.Registered)
	}
	if result.AlreadyExisting != 1 {
		t.Fatalf("expected 1 already existing, got %d", result.AlreadyExisting)
	}
	if result.Failed != 0 {
		t.Fatalf("expected 0 failed, got %d", result.Failed)
	}

	remaining, err := svc.ListUnregisteredBatches(adminCtx())
	if err != nil {
		t.Fatalf("list unregistered: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no unregistered batches left, got %d", len(remaining))
	}
}

func TestCommitSaleDepletesEarliestExpiryFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := adminCtx()

	invoice := recordPurchase(t, svc, "INV-010", []domain.PurchaseLineRequest{
		{ProductName: "Paracetamol 500mg", Qty: 5, UnitCostCents: 1500, ExpiryDate: "2026-10-01"},
		{ProductName: "Paracetamol 500mg", Qty: 3, UnitCostCents: 1500, ExpiryDate: "2027-02-01"},
	})

	margin := 20.0
	resp, err := svc.RegisterBatch(ctx, invoice.Batches[0].ID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.RegisterBatch(ctx, invoice.Batches[1].ID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin},
	}); err != nil {
		t.Fatalf("register second: %v", err)
	}
	productID := resp.Product.ID

	sale, err := svc.CommitSale(cashierCtx(), domain.SaleCreateRequest{
		Lines:           []domain.SaleLineRequest{{ProductID: productID, Qty: 6}},
		PaymentMethod:   "cash",
		AmountPaidCents: 50000,
	})
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	// 6 * priceFromMargin(1500, 20) = 6 * 1800
	if sale.TotalCents != 10800 {
		t.Fatalf("expected total 10800, got %d", sale.TotalCents)
	}
	if sale.ChangeCents != 50000-10800 {
		t.Fatalf("expected change %d, got %d", 50000-10800, sale.ChangeCents)
	}

	stock, err := svc.StockSummaryFor(ctx, productID)
	if err != nil {
		t.Fatalf("stock summary: %v", err)
	}
	if stock.TotalAvailable != 2 {
		t.Fatalf("expected 2 remaining, got %d", stock.TotalAvailable)
	}
	// the earlier-expiring batch is emptied first, so only the later date
	// remains to drive the earliest expiry
	if stock.EarliestExpiry == nil || stock.EarliestExpiry.Format("2006-01-02") != "2027-02-01" {
		t.Fatalf("expected earliest expiry 2027-02-01, got %v", stock.EarliestExpiry)
	}
}

func TestCommitSaleDepletesDatedStockBeforeUndated(t *testing.T) {
	svc := newTestService(t)
	ctx := adminCtx()

	invoice := recordPurchase(t, svc, "INV-015", []domain.PurchaseLineRequest{
		{ProductName: "Tolak Angin Sachet", Qty: 4, UnitCostCents: 800},
		{ProductName: "Tolak Angin Sachet", Qty: 5, UnitCostCents: 800, ExpiryDate: "2027-06-01"},
	})

	margin := 20.0
	resp, err := svc.RegisterBatch(ctx, invoice.Batches[0].ID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.RegisterBatch(ctx, invoice.Batches[1].ID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin},
	}); err != nil {
		t.Fatalf("register second: %v", err)
	}

	if _, err := svc.CommitSale(cashierCtx(), domain.SaleCreateRequest{
		Lines:           []domain.SaleLineRequest{{ProductID: resp.Product.ID, Qty: 5}},
		PaymentMethod:   "cash",
		AmountPaidCents: 50000,
	}); err != nil {
		t.Fatalf("commit sale: %v", err)
	}

	stock, err := svc.StockSummaryFor(ctx, resp.Product.ID)
	if err != nil {
		t.Fatalf("stock summary: %v", err)
	}
	if stock.TotalAvailable != 4 {
		t.Fatalf("expected 4 remaining, got %d", stock.TotalAvailable)
	}
	// the dated batch must be drained before the undated one, so no expiry
	// remains on the stock that is left
	if stock.EarliestExpiry != nil {
		t.Fatalf("expected no expiry on remaining stock, got %v", stock.EarliestExpiry)
	}
}

func TestCommitSaleInsufficientStockChangesNothing(t *testing.T) {
	svc := newTestService(t)
	ctx := adminCtx()

	invoice := recordPurchase(t, svc, "INV-011", []domain.PurchaseLineRequest{
		{ProductName: "Amoxicillin 500mg", Qty: 4, UnitCostCents: 2500},
	})
	margin := 20.0
	resp, err := svc.RegisterBatch(ctx, invoice.Batches[0].ID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err = svc.CommitSale(cashierCtx(), domain.SaleCreateRequest{
		Lines:           []domain.SaleLineRequest{{ProductID: resp.Product.ID, Qty: 9}},
		PaymentMethod:   "cash",
		AmountPaidCents: 100000,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Amoxicillin 500mg") {
		t.Fatalf("expected error to name the product, got %q", err.Error())
	}

	stock, err := svc.StockSummaryFor(ctx, resp.Product.ID)
	if err != nil {
		t.Fatalf("stock summary: %v", err)
	}
	if stock.TotalAvailable != 4 {
		t.Fatalf("expected stock untouched at 4, got %d", stock.TotalAvailable)
	}
}

func TestCommitSaleSumsDuplicateProductLines(t *testing.T) {
	svc := newTestService(t)
	ctx := adminCtx()

	invoice := recordPurchase(t, svc, "INV-016", []domain.PurchaseLineRequest{
		{ProductName: "Betadine 60ml", Qty: 5, UnitCostCents: 2000},
	})
	margin := 20.0
	resp, err := svc.RegisterBatch(ctx, invoice.Batches[0].ID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	productID := resp.Product.ID

	// Two lines of 3 against stock 5: each line fits on its own, the sum
	// does not, so the sale must fail without touching stock.
	_, err = svc.CommitSale(cashierCtx(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{
			{ProductID: productID, Qty: 3},
			{ProductID: productID, Qty: 3},
		},
		PaymentMethod:   "cash",
		AmountPaidCents: 100000,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	stock, err := svc.StockSummaryFor(ctx, productID)
	if err != nil {
		t.Fatalf("stock summary: %v", err)
	}
	if stock.TotalAvailable != 5 {
		t.Fatalf("expected stock untouched at 5, got %d", stock.TotalAvailable)
	}

	sale, err := svc.CommitSale(cashierCtx(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{
			{ProductID: productID, Qty: 2},
			{ProductID: productID, Qty: 3},
		},
		PaymentMethod:   "cash",
		AmountPaidCents: 100000,
	})
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	if len(sale.Lines) != 2 {
		t.Fatalf("expected both lines kept, got %d", len(sale.Lines))
	}

	stock, err = svc.StockSummaryFor(ctx, productID)
	if err != nil {
		t.Fatalf("stock summary: %v", err)
	}
	if stock.TotalAvailable != 0 {
		t.Fatalf("expected stock fully depleted, got %d", stock.TotalAvailable)
	}
}

func TestCommitSaleRejectsUnderpayment(t *testing.T) {
	svc := newTestService(t)
	ctx := adminCtx()

	invoice := recordPurchase(t, svc, "INV-012", []domain.PurchaseLineRequest{
		{ProductName: "Vitamin C 100mg", Qty: 10, UnitCostCents: 10000},
	})
	margin := 20.0
	resp, err := svc.RegisterBatch(ctx, invoice.Batches[0].ID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err = svc.CommitSale(cashierCtx(), domain.SaleCreateRequest{
		Lines:           []domain.SaleLineRequest{{ProductID: resp.Product.ID, Qty: 2}},
		PaymentMethod:   "cash",
		AmountPaidCents: 1000,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for underpayment, got %v", err)
	}

	stock, err := svc.StockSummaryFor(ctx, resp.Product.ID)
	if err != nil {
		t.Fatalf("stock summary: %v", err)
	}
	if stock.TotalAvailable != 10 {
		t.Fatalf("expected stock untouched at 10, got %d", stock.TotalAvailable)
	}
}

func TestCommitSaleRequiresAuthenticatedActor(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CommitSale(context.Background(), domain.SaleCreateRequest{
		Lines:         []domain.SaleLineRequest{{ProductID: "prd-x", Qty: 1}},
		PaymentMethod: "cash",
	})
	if err == nil {
		t.Fatal("expected unauthenticated sale to fail")
	}
}

func TestUpdateProductPriceDuality(t *testing.T) {
	svc := newTestService(t)
	ctx := adminCtx()

	invoice := recordPurchase(t, svc, "INV-013", []domain.PurchaseLineRequest{
		{ProductName: "Paracetamol 500mg", Qty: 10, UnitCostCents: 15000},
	})
	margin := 20.0
	resp, err := svc.RegisterBatch(ctx, invoice.Batches[0].ID, domain.RegisterBatchRequest{
		Price: domain.PriceBasis{MarginPercent: &margin},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	newMargin := 30.0
	updated, err := svc.UpdateProduct(ctx, resp.Product.ID, domain.ProductUpdateRequest{
		Price: &domain.PriceBasis{MarginPercent: &newMargin},
	})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.SellPriceCents != 19500 {
		t.Fatalf("expected price 19500 at margin 30, got %d", updated.SellPriceCents)
	}

	override := int64(17500)
	updated, err = svc.UpdateProduct(ctx, resp.Product.ID, domain.ProductUpdateRequest{
		Price: &domain.PriceBasis{OverridePriceCents: &override},
	})
	if err != nil {
		t.Fatalf("update with override: %v", err)
	}
	if updated.MarginPercent == nil || *updated.MarginPercent != 16.67 {
		t.Fatalf("expected derived margin 16.67, got %v", updated.MarginPercent)
	}
}

func TestExpiringStock(t *testing.T) {
	svc := newTestService(t)

	soon := time.Now().UTC().AddDate(0, 0, 10).Format("2006-01-02")
	far := time.Now().UTC().AddDate(0, 0, 200).Format("2006-01-02")
	recordPurchase(t, svc, "INV-014", []domain.PurchaseLineRequest{
		{ProductName: "Betadine 60ml", Qty: 3, UnitCostCents: 3000, ExpiryDate: soon},
		{ProductName: "Tolak Angin Sachet", Qty: 8, UnitCostCents: 800, ExpiryDate: far},
	})

	alertsResp, err := svc.ExpiringStock(adminCtx())
	if err != nil {
		t.Fatalf("expiring stock: %v", err)
	}
	if len(alertsResp.Alerts) != 1 {
		t.Fatalf("expected 1 alert inside the horizon, got %d", len(alertsResp.Alerts))
	}
	if alertsResp.Alerts[0].ProductName != "Betadine 60ml" {
		t.Fatalf("unexpected alert product %s", alertsResp.Alerts[0].ProductName)
	}
}
