package alerts

import (
	"testing"
	"time"

	"apotekkita/backend/internal/domain"
)

func TestExpiringStockOrdersMostUrgentFirst(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	in5 := now.AddDate(0, 0, 5)
	in20 := now.AddDate(0, 0, 20)
	in90 := now.AddDate(0, 0, 90)

	engine := NewEngine(30, 50)
	resp := engine.ExpiringStock(now, []domain.Batch{
		{ID: "bat-1", ProductName: "Amoxicillin 500mg Strip", QtyAvailable: 12, ExpiryDate: &in20},
		{ID: "bat-2", ProductName: "Paracetamol 500mg Strip", QtyAvailable: 30, ExpiryDate: &in5},
		{ID: "bat-3", ProductName: "Vitamin C 100mg Botol", QtyAvailable: 8, ExpiryDate: &in90},
		{ID: "bat-4", ProductName: "OBH Combi 100ml", QtyAvailable: 0, ExpiryDate: &in5},
		{ID: "bat-5", ProductName: "Tolak Angin Sachet", QtyAvailable: 40},
	})

	if resp.HorizonDays != 30 {
		t.Fatalf("expected horizon 30, got %d", resp.HorizonDays)
	}
	if len(resp.Alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(resp.Alerts))
	}
	if resp.Alerts[0].BatchID != "bat-2" || resp.Alerts[0].DaysLeft != 5 {
		t.Fatalf("expected bat-2 with 5 days first, got %+v", resp.Alerts[0])
	}
	if resp.Alerts[1].BatchID != "bat-1" || resp.Alerts[1].DaysLeft != 20 {
		t.Fatalf("expected bat-1 with 20 days second, got %+v", resp.Alerts[1])
	}
}

func TestExpiringStockCapsList(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	soon := now.AddDate(0, 0, 3)

	batches := make([]domain.Batch, 0, 10)
	for i := 0; i < 10; i++ {
		batches = append(batches, domain.Batch{
			ID:           string(rune('a' + i)),
			ProductName:  "Produk",
			QtyAvailable: i + 1,
			ExpiryDate:   &soon,
		})
	}

	engine := NewEngine(7, 4)
	resp := engine.ExpiringStock(now, batches)
	if len(resp.Alerts) != 4 {
		t.Fatalf("expected cap of 4 alerts, got %d", len(resp.Alerts))
	}
	if resp.Alerts[0].QtyAvailable != 10 {
		t.Fatalf("expected largest quantity first within same day, got %d", resp.Alerts[0].QtyAvailable)
	}
}
