// Package store keeps the bounded history of scored transactions and the
// running statistics shown on the dashboard.
//
// Two backends implement Store: an in-memory ring for single-instance and
// demo use, and Redis for deployments where several API replicas and the
// stream consumer must share one history.
package store

import (
	"context"

	"cardshield/fraud-api/internal/domain"
	apperrors "cardshield/fraud-api/internal/errors"
)

// Defaults for history sizing.
const (
	DefaultCapacity = 50
	DefaultRecent   = 10
	DefaultAlerts   = 5
)

// ErrNotFound is returned by Get when a transaction is no longer (or never was) retained.
var ErrNotFound = apperrors.E(apperrors.NotFound, "transaction not found", nil)

// Store is the history and statistics backend.
type Store interface {
	// Record appends st, drops the oldest entry beyond capacity, and updates statistics.
	Record(ctx context.Context, st *domain.ScoredTransaction) error
	// Get looks up a retained transaction by ID.
	Get(ctx context.Context, id string) (*domain.ScoredTransaction, error)
	// Recent returns up to n transactions, newest first.
	Recent(ctx context.Context, n int) ([]domain.ScoredTransaction, error)
	// Alerts returns up to n fraud verdicts from history, newest first.
	Alerts(ctx context.Context, n int) ([]domain.Alert, error)
	// Statistics returns the running counters. They are not bounded by capacity.
	Statistics(ctx context.Context) (domain.Statistics, error)
	// Reset clears history and statistics.
	Reset(ctx context.Context) error
}

// alertsFrom filters a newest-first history down to at most n fraud alerts.
func alertsFrom(history []domain.ScoredTransaction, n int) []domain.Alert {
	if n < 0 {
		n = 0
	}
	alerts := make([]domain.Alert, 0, n)
	for i := range history {
		if len(alerts) == n {
			break
		}
		if history[i].Analysis.IsFraud {
			alerts = append(alerts, domain.AlertFrom(&history[i]))
		}
	}
	return alerts
}
