package domain

// BudgetWindow is embedding token consumption within one budget period.
// A zero Limit means unlimited, in which case Remaining is -1.
type BudgetWindow struct {
	Limit     int64
	Used      int64
	Remaining int64
}

// Exhausted reports whether a limited window has no tokens left.
func (w BudgetWindow) Exhausted() bool {
	return w.Limit > 0 && w.Remaining <= 0
}

// BudgetSnapshot is the state of the embedding token budget at one instant.
type BudgetSnapshot struct {
	Daily   BudgetWindow
	Monthly BudgetWindow
}
