package usage

import "github.com/kailas-cloud/ragdesk/internal/domain"

// BudgetReader exposes the current token budget state.
type BudgetReader interface {
	Snapshot() domain.BudgetSnapshot
}
