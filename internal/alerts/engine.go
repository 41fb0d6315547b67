// Package alerts derives advisory views over batch stock, currently the
// expiring-stock worklist shown on the dashboard and registration screens.
package alerts

import (
	"sort"
	"time"

	"apotekkita/backend/internal/domain"
)

type Engine struct {
	horizonDays int
	maxAlerts   int
}

func NewEngine(horizonDays int, maxAlerts int) *Engine {
	if horizonDays <= 0 {
		horizonDays = 30
	}
	if maxAlerts <= 0 {
		maxAlerts = 50
	}

	return &Engine{
		horizonDays: horizonDays,
		maxAlerts:   maxAlerts,
	}
}

func (e *Engine) HorizonDays() int {
	return e.horizonDays
}

// Cutoff returns the expiry date boundary for the alert horizon.
func (e *Engine) Cutoff(now time.Time) time.Time {
	return dateUTC(now).AddDate(0, 0, e.horizonDays+1)
}

// ExpiringStock turns batches with upcoming expiries into the alert list,
// most urgent first. Batches without remaining stock are skipped.
func (e *Engine) ExpiringStock(now time.Time, batches []domain.Batch) domain.ExpiryAlertResponse {
	today := dateUTC(now)
	alerts := make([]domain.ExpiryAlert, 0, len(batches))

	for _, batch := range batches {
		if batch.ExpiryDate == nil || batch.QtyAvailable < 1 {
			continue
		}
		expiry := dateUTC(*batch.ExpiryDate)
		daysLeft := int(expiry.Sub(today).Hours() / 24)
		if daysLeft > e.horizonDays {
			continue
		}
		alerts = append(alerts, domain.ExpiryAlert{
			BatchID:      batch.ID,
			ProductName:  batch.ProductName,
			ProductID:    batch.ProductID,
			QtyAvailable: batch.QtyAvailable,
			ExpiryDate:   expiry,
			DaysLeft:     daysLeft,
		})
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].DaysLeft != alerts[j].DaysLeft {
			return alerts[i].DaysLeft < alerts[j].DaysLeft
		}
		if alerts[i].QtyAvailable != alerts[j].QtyAvailable {
			return alerts[i].QtyAvailable > alerts[j].QtyAvailable
		}
		return alerts[i].BatchID < alerts[j].BatchID
	})
	if len(alerts) > e.maxAlerts {
		alerts = alerts[:e.maxAlerts]
	}

	return domain.ExpiryAlertResponse{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		HorizonDays: e.horizonDays,
		Alerts:      alerts,
	}
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}
