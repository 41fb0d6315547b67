package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"apotekkita/backend/internal/domain"
)

func TestCommitSaleDepletesEarliestExpiryFirst(t *testing.T) {
	databaseURL := os.Getenv("APOTEKKITA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set APOTEKKITA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	supplierID := fmt.Sprintf("sup-sale-it-%d", stamp)
	invoiceID := fmt.Sprintf("inv-sale-it-%d", stamp)
	productID := fmt.Sprintf("prd-sale-it-%d", stamp)
	batchA := fmt.Sprintf("bat-sale-it-a-%d", stamp)
	batchB := fmt.Sprintf("bat-sale-it-b-%d", stamp)
	nameKey := fmt.Sprintf("produk sale it %d", stamp)

	var saleID string
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE product_id = $1`, productID)
		if saleID != "" {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		}
		_, _ = s.db.ExecContext(ctx, `DELETE FROM batches WHERE id IN ($1, $2)`, batchA, batchB)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM purchase_invoices WHERE id = $1`, invoiceID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, supplierID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, created_at)
		VALUES ($1, $2, now())
	`, supplierID, "PBF Sale IT "+fmt.Sprint(stamp)); err != nil {
		t.Fatalf("insert supplier: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO purchase_invoices (id, invoice_no, supplier_id, invoice_date, discount_percent, tax_percent, gross_cents, subtotal_cents, total_cents, created_at)
		VALUES ($1, $2, $3, current_date, 0, 0, 48000, 48000, 48000, now())
	`, invoiceID, "IT/"+fmt.Sprint(stamp), supplierID); err != nil {
		t.Fatalf("insert invoice: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, name_key, sell_price_cents, margin_percent, status, created_at, updated_at)
		VALUES ($1, $2, $3, 7500, 25, 'active', now(), now())
	`, productID, "Produk Sale IT "+fmt.Sprint(stamp), nameKey); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	for _, batch := range []struct {
		id     string
		qty    int
		expiry string
	}{
		{batchA, 5, "90 days"},
		{batchB, 3, "180 days"},
	} {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO batches (id, invoice_id, invoice_no, invoice_date, supplier_id, product_name, name_key,
				unit, unit_cost_cents, qty_received, qty_available, discount_percent, expiry_date, product_id, created_at)
			VALUES ($1, $2, $3, current_date, $4, $5, $6, 'strip', 6000, $7, $7, 0, current_date + $8::interval, $9, now())
		`, batch.id, invoiceID, "IT/"+fmt.Sprint(stamp), supplierID,
			"Produk Sale IT "+fmt.Sprint(stamp), nameKey, batch.qty, batch.expiry, productID); err != nil {
			t.Fatalf("insert batch %s: %v", batch.id, err)
		}
	}

	sale, err := s.CommitSale(ctx, domain.Sale{
		Lines:           []domain.SaleLine{{ProductID: productID, Qty: 6}},
		PaymentMethod:   "cash",
		AmountPaidCents: 50000,
	})
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	saleID = sale.ID
	if sale.TotalCents != 45000 {
		t.Fatalf("expected total 45000, got %d", sale.TotalCents)
	}

	var qtyA, qtyB int
	if err := s.db.QueryRowContext(ctx, `SELECT qty_available FROM batches WHERE id = $1`, batchA).Scan(&qtyA); err != nil {
		t.Fatalf("query batch A: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT qty_available FROM batches WHERE id = $1`, batchB).Scan(&qtyB); err != nil {
		t.Fatalf("query batch B: %v", err)
	}
	if qtyA != 0 || qtyB != 2 {
		t.Fatalf("expected depletion [0 2], got [%d %d]", qtyA, qtyB)
	}
}
