package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"apotekkita/backend/internal/domain"
	"apotekkita/backend/internal/store"
	"apotekkita/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, name_key, category, sell_price_cents, margin_percent, status, image_path, created_at, updated_at`

func scanProduct(scanner interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	var category, imagePath sql.NullString
	var margin sql.NullFloat64
	err := scanner.Scan(&p.ID, &p.Name, &p.NameKey, &category, &p.SellPriceCents, &margin, &p.Status, &imagePath, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.Category = category.String
	p.ImagePath = imagePath.String
	if margin.Valid {
		m := margin.Float64
		p.MarginPercent = &m
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY category NULLS LAST, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductByNameKey(ctx context.Context, nameKey string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE name_key = $1
	`, nameKey)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.SellPriceCents < 0 {
		return nil, store.ErrValidation
	}

	product.NameKey = domain.NameKey(product.Name)
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, name_key = $3, category = $4, sell_price_cents = $5,
			margin_percent = $6, status = $7, image_path = $8, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.NameKey, nullIfEmpty(product.Category),
		product.SellPriceCents, nullFloat(product.MarginPercent), product.Status, nullIfEmpty(product.ImagePath))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("product name %q taken: %w", product.Name, store.ErrValidation)
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	updated.UpdatedAt = time.Now().UTC()
	return &updated, nil
}

func (s *Store) CreatePurchaseInvoice(ctx context.Context, invoice domain.PurchaseInvoice) (*domain.PurchaseInvoice, error) {
	if invoice.InvoiceNo == "" || len(invoice.Batches) == 0 {
		return nil, store.ErrValidation
	}
	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_invoices (
			id, invoice_no, supplier_id, invoice_date, discount_percent, tax_percent,
			gross_cents, subtotal_cents, total_cents, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, invoice.ID, invoice.InvoiceNo, invoice.SupplierID, nowDateUTC(invoice.InvoiceDate),
		invoice.DiscountPercent, invoice.TaxPercent, invoice.GrossCents, invoice.SubtotalCents,
		invoice.TotalCents, invoice.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("invoice %s exists: %w", invoice.InvoiceNo, store.ErrValidation)
		}
		return nil, err
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

		_, err := tx.ExecContext(ctx, `
			INSERT INTO batches (
				id, invoice_id, invoice_no, invoice_date, supplier_id, product_name, name_key,
				unit, unit_cost_cents, qty_received, qty_available, discount_percent,
				expiry_date, product_id, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NULL,$14)
		`, batch.ID, batch.InvoiceID, batch.InvoiceNo, nowDateUTC(batch.InvoiceDate), batch.SupplierID,
			batch.ProductName, batch.NameKey, batch.Unit, batch.UnitCostCents, batch.QtyReceived,
			batch.QtyAvailable, batch.DiscountPercent, nullDate(batch.ExpiryDate), batch.CreatedAt)
		if err != nil {
			return nil, err
		}
		saved = append(saved, batch)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	invoice.Batches = saved
	return &invoice, nil
}

func (s *Store) ListPurchaseInvoices(ctx context.Context, limit int) ([]domain.PurchaseInvoice, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_no, supplier_id, invoice_date, discount_percent, tax_percent,
			gross_cents, subtotal_cents, total_cents, created_at
		FROM purchase_invoices
		ORDER BY invoice_date DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.PurchaseInvoice, 0, limit)
	index := make(map[string]int, limit)
	for rows.Next() {
		var inv domain.PurchaseInvoice
		if err := rows.Scan(&inv.ID, &inv.InvoiceNo, &inv.SupplierID, &inv.InvoiceDate, &inv.DiscountPercent,
			&inv.TaxPercent, &inv.GrossCents, &inv.SubtotalCents, &inv.TotalCents, &inv.CreatedAt); err != nil {
			return nil, err
		}
		inv.InvoiceDate = inv.InvoiceDate.UTC()
		inv.CreatedAt = inv.CreatedAt.UTC()
		index[inv.ID] = len(invoices)
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID)
	}
	if len(ids) == 0 {
		return invoices, nil
	}

	batchRows, err := s.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE invoice_id = ANY($1)
		ORDER BY invoice_id, id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer batchRows.Close()

	for batchRows.Next() {
		batch, err := scanBatch(batchRows)
		if err != nil {
			return nil, err
		}
		if pos, ok := index[batch.InvoiceID]; ok {
			invoices[pos].Batches = append(invoices[pos].Batches, batch)
		}
	}
	if err := batchRows.Err(); err != nil {
		return nil, err
	}

	return invoices, nil
}

const batchColumns = `id, invoice_id, invoice_no, invoice_date, supplier_id, product_name, name_key,
	unit, unit_cost_cents, qty_received, qty_available, discount_percent, expiry_date, product_id, created_at`

func scanBatch(scanner interface{ Scan(...any) error }) (domain.Batch, error) {
	var b domain.Batch
	var expiry sql.NullTime
	var productID sql.NullString
	err := scanner.Scan(&b.ID, &b.InvoiceID, &b.InvoiceNo, &b.InvoiceDate, &b.SupplierID, &b.ProductName,
		&b.NameKey, &b.Unit, &b.UnitCostCents, &b.QtyReceived, &b.QtyAvailable, &b.DiscountPercent,
		&expiry, &productID, &b.CreatedAt)
	if err != nil {
		return domain.Batch{}, err
	}
	if expiry.Valid {
		e := nowDateUTC(expiry.Time.UTC())
		b.ExpiryDate = &e
	}
	b.ProductID = productID.String
	b.InvoiceDate = b.InvoiceDate.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

func (s *Store) GetBatchByID(ctx context.Context, id string) (*domain.Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE id = $1
	`, id)
	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (s *Store) ListUnregisteredBatches(ctx context.Context) ([]domain.Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE product_id IS NULL
		ORDER BY invoice_date ASC, created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBatches(rows)
}

func (s *Store) ListBatchesByProduct(ctx context.Context, productID string) ([]domain.Batch, error) {
	product, err := s.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE product_id = $1 OR (product_id IS NULL AND name_key = $2)
		ORDER BY expiry_date ASC NULLS LAST, invoice_date ASC, created_at ASC, id ASC
	`, product.ID, product.NameKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBatches(rows)
}

func (s *Store) ListBatchesExpiringBefore(ctx context.Context, cutoff time.Time) ([]domain.Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE expiry_date IS NOT NULL AND expiry_date < $1 AND qty_available > 0
		ORDER BY expiry_date ASC, invoice_date ASC, id ASC
	`, nowDateUTC(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBatches(rows)
}

func collectBatches(rows *sql.Rows) ([]domain.Batch, error) {
	batches := make([]domain.Batch, 0, 32)
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) RegisterBatch(ctx context.Context, batchID string, candidate store.ProductCandidate, fix store.BatchCorrection) (*domain.Product, bool, error) {
	if candidate.Name == "" || candidate.NameKey == "" || candidate.SellPriceCents < 0 {
		return nil, false, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var qtyReceived, qtyAvailable int
	var linkedProductID sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT qty_received, qty_available, product_id
		FROM batches
		WHERE id = $1
		FOR UPDATE
	`, batchID).Scan(&qtyReceived, &qtyAvailable, &linkedProductID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, store.ErrNotFound
		}
		return nil, false, err
	}
	if linkedProductID.Valid {
		return nil, false, store.ErrAlreadyRegistered
	}

	if fix.Qty != nil || fix.Expiry != nil {
		if qtyAvailable != qtyReceived {
			return nil, false, fmt.Errorf("batch %s already depleted: %w", batchID, store.ErrValidation)
		}
		if fix.Qty != nil {
			if *fix.Qty < 1 {
				return nil, false, store.ErrValidation
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE batches SET qty_received = $2, qty_available = $2 WHERE id = $1
			`, batchID, *fix.Qty)
			if err != nil {
				return nil, false, err
			}
		}
		if fix.Expiry != nil {
			_, err = tx.ExecContext(ctx, `
				UPDATE batches SET expiry_date = $2 WHERE id = $1
			`, batchID, nowDateUTC(*fix.Expiry))
			if err != nil {
				return nil, false, err
			}
		}
	}

	row := tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE name_key = $1
		FOR UPDATE
	`, candidate.NameKey)
	existing, err := scanProduct(row)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now().UTC()
		existing = domain.Product{
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
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, name_key, category, sell_price_cents, margin_percent, status, image_path, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, existing.ID, existing.Name, existing.NameKey, nullIfEmpty(existing.Category),
			existing.SellPriceCents, nullFloat(existing.MarginPercent), existing.Status,
			nullIfEmpty(existing.ImagePath), existing.CreatedAt, existing.UpdatedAt)
		if err != nil {
			return nil, false, err
		}
		created = true
	default:
		return nil, false, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE batches SET product_id = $2 WHERE id = $1
	`, batchID, existing.ID)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	return &existing, created, nil
}

func (s *Store) StockSummary(ctx context.Context, productID string) (domain.StockSummary, error) {
	product, err := s.GetProductByID(ctx, productID)
	if err != nil {
		return domain.StockSummary{}, err
	}

	var total sql.NullInt64
	var earliest sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(qty_available), 0),
		       MIN(expiry_date) FILTER (WHERE qty_available > 0)
		FROM batches
		WHERE product_id = $1 OR (product_id IS NULL AND name_key = $2)
	`, product.ID, product.NameKey).Scan(&total, &earliest)
	if err != nil {
		return domain.StockSummary{}, err
	}

	summary := domain.StockSummary{TotalAvailable: int(total.Int64)}
	if earliest.Valid {
		e := nowDateUTC(earliest.Time.UTC())
		summary.EarliestExpiry = &e
	}
	return summary, nil
}

func (s *Store) CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 || sale.PaymentMethod == "" {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	total := int64(0)
	recomputed := make([]domain.SaleLine, 0, len(sale.Lines))
	demandByProduct := make(map[string]int, len(sale.Lines))
	nameKeyByProduct := make(map[string]string, len(sale.Lines))
	nameByProduct := make(map[string]string, len(sale.Lines))

	for _, line := range sale.Lines {
		if line.Qty < 1 {
			return nil, store.ErrValidation
		}

		var name, nameKey, status string
		var priceCents int64
		err := tx.QueryRowContext(ctx, `
			SELECT name, name_key, status, sell_price_cents
			FROM products
			WHERE id = $1
		`, line.ProductID).Scan(&name, &nameKey, &status, &priceCents)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
			}
			return nil, err
		}
		if status != domain.ProductStatusActive {
			return nil, fmt.Errorf("product %s inactive: %w", name, store.ErrValidation)
		}
		nameByProduct[line.ProductID] = name
		nameKeyByProduct[line.ProductID] = nameKey
		demandByProduct[line.ProductID] += line.Qty

		recomputed = append(recomputed, domain.SaleLine{
			ProductID:      line.ProductID,
			ProductName:    name,
			Qty:            line.Qty,
			UnitPriceCents: priceCents,
		})
		total += int64(line.Qty) * priceCents
	}

	// Stock is checked against the summed demand per product so a sale
	// listing the same product twice cannot pass each line against the
	// same snapshot and drive qty_available negative.
	type depletion struct {
		batchID string
		used    int
	}
	depletions := make([]depletion, 0, len(sale.Lines)*2)
	checked := make(map[string]bool, len(demandByProduct))
	for _, line := range sale.Lines {
		if checked[line.ProductID] {
			continue
		}
		checked[line.ProductID] = true
		demand := demandByProduct[line.ProductID]

		batchRows, err := tx.QueryContext(ctx, `
			SELECT id, qty_available
			FROM batches
			WHERE product_id = $1 OR (product_id IS NULL AND name_key = $2)
			ORDER BY expiry_date ASC NULLS LAST, invoice_date ASC, created_at ASC, id ASC
			FOR UPDATE
		`, line.ProductID, nameKeyByProduct[line.ProductID])
		if err != nil {
			return nil, err
		}
		type batchState struct {
			id        string
			available int
		}
		batches := make([]batchState, 0, 8)
		available := 0
		for batchRows.Next() {
			var b batchState
			if err := batchRows.Scan(&b.id, &b.available); err != nil {
				_ = batchRows.Close()
				return nil, err
			}
			batches = append(batches, b)
			available += b.available
		}
		if err := batchRows.Err(); err != nil {
			_ = batchRows.Close()
			return nil, err
		}
		_ = batchRows.Close()

		if available < demand {
			return nil, fmt.Errorf("%s short %d: %w", nameByProduct[line.ProductID], demand-available, store.ErrInsufficientStock)
		}

		remaining := demand
		for _, batch := range batches {
			if remaining == 0 {
				break
			}
			if batch.available < 1 {
				continue
			}
			used := remaining
			if used > batch.available {
				used = batch.available
			}
			depletions = append(depletions, depletion{batchID: batch.id, used: used})
			remaining -= used
		}
	}

	if sale.AmountPaidCents < total {
		return nil, fmt.Errorf("amount paid below total: %w", store.ErrValidation)
	}

	for _, dep := range depletions {
		_, err := tx.ExecContext(ctx, `
			UPDATE batches SET qty_available = qty_available - $1 WHERE id = $2
		`, dep.used, dep.batchID)
		if err != nil {
			return nil, err
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

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, total_cents, payment_method, amount_paid_cents, change_cents, cashier_username, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sale.ID, sale.TotalCents, sale.PaymentMethod, sale.AmountPaidCents, sale.ChangeCents,
		nullIfEmpty(sale.CashierUsername), sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, line := range sale.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, product_name, qty, unit_price_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, sale.ID, line.ProductID, line.ProductName, line.Qty, line.UnitPriceCents)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	var cashier sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, total_cents, payment_method, amount_paid_cents, change_cents, cashier_username, created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.TotalCents, &sale.PaymentMethod, &sale.AmountPaidCents, &sale.ChangeCents, &cashier, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CashierUsername = cashier.String
	sale.CreatedAt = sale.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, qty, unit_price_cents
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY product_name
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ProductID, &line.ProductName, &line.Qty, &line.UnitPriceCents); err != nil {
			return nil, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	report := domain.DailyReport{
		Date:      from.Format("2006-01-02"),
		ByProduct: make([]domain.DailyReportProduct, 0, 16),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents), 0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&report.Transactions, &report.RevenueCents)
	if err != nil {
		return report, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT si.product_id, si.product_name, SUM(si.qty), SUM(si.qty * si.unit_price_cents)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.created_at >= $1 AND s.created_at < $2
		GROUP BY si.product_id, si.product_name
		ORDER BY SUM(si.qty * si.unit_price_cents) DESC, si.product_name
	`, from, to)
	if err != nil {
		return report, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry domain.DailyReportProduct
		if err := rows.Scan(&entry.ProductID, &entry.ProductName, &entry.QtySold, &entry.RevenueCents); err != nil {
			return report, err
		}
		report.ItemsSold += int64(entry.QtySold)
		report.ByProduct = append(report.ByProduct, entry)
	}
	if err := rows.Err(); err != nil {
		return report, err
	}

	return report, nil
}

func (s *Store) GetPurchaseReport(ctx context.Context, from time.Time, to time.Time) (domain.PurchaseReport, error) {
	report := domain.PurchaseReport{
		From: from.Format("2006-01-02"),
		To:   to.Format("2006-01-02"),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents), 0)
		FROM purchase_invoices
		WHERE invoice_date >= $1 AND invoice_date < $2
	`, nowDateUTC(from), nowDateUTC(to)).Scan(&report.Invoices, &report.TotalCents)
	if err != nil {
		return report, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM batches
		WHERE invoice_date >= $1 AND invoice_date < $2
	`, nowDateUTC(from), nowDateUTC(to)).Scan(&report.BatchesIntake)
	if err != nil {
		return report, err
	}

	return report, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrValidation
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, address, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), nullIfEmpty(supplier.Address), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("supplier %s exists: %w", supplier.Name, store.ErrValidation)
		}
		return nil, err
	}

	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, address, created_at
		FROM suppliers
		ORDER BY created_at, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var sup domain.Supplier
		var phone, address sql.NullString
		if err := rows.Scan(&sup.ID, &sup.Name, &phone, &address, &sup.CreatedAt); err != nil {
			return nil, err
		}
		sup.Phone = phone.String
		sup.Address = address.String
		sup.CreatedAt = sup.CreatedAt.UTC()
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType,
		nullIfEmpty(entry.EntityID), entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var entityID sql.NullString
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.EntityID = entityID.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrValidation
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return nowDateUTC(*val)
}

func nullFloat(val *float64) any {
	if val == nil {
		return nil
	}
	return *val
}
