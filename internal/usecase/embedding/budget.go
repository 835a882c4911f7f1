package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
)

// BudgetAction defines behavior when token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// BudgetStore persists one token counter per budget window.
type BudgetStore interface {
	Add(ctx context.Context, key string, delta int64, ttl time.Duration) error
	Load(ctx context.Context, key string) (int64, error)
}

const (
	// counterGrace keeps a persisted counter readable after its window closes.
	counterGrace = 24 * time.Hour
	// persistTimeout bounds the write-behind of one Record call.
	persistTimeout = 2 * time.Second
)

// window is one UTC budget period: a calendar day or a calendar month.
type window struct {
	name   string // key segment: "daily" or "monthly"
	layout string // time layout of the key suffix
	floor  func(t time.Time) time.Time
	next   func(start time.Time) time.Time
	limit  int64
	used   int64
	start  time.Time
}

func dailyWindow(limit int64, now time.Time) *window {
	w := &window{
		name:   "daily",
		layout: "2006-01-02",
		floor: func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		},
		next:  func(start time.Time) time.Time { return start.AddDate(0, 0, 1) },
		limit: limit,
	}
	w.start = w.floor(now)
	return w
}

func monthlyWindow(limit int64, now time.Time) *window {
	w := &window{
		name:   "monthly",
		layout: "2006-01",
		floor: func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		},
		next:  func(start time.Time) time.Time { return start.AddDate(0, 1, 0) },
		limit: limit,
	}
	w.start = w.floor(now)
	return w
}

// roll starts a fresh window once now has passed the current one.
func (w *window) roll(now time.Time) {
	if s := w.floor(now); s.After(w.start) {
		w.start = s
		w.used = 0
	}
}

func (w *window) exceeded() bool {
	return w.limit > 0 && w.used >= w.limit
}

func (w *window) snapshot() domain.BudgetWindow {
	bw := domain.BudgetWindow{Limit: w.limit, Used: w.used, Remaining: -1}
	if w.limit > 0 {
		bw.Remaining = max(0, w.limit-w.used)
	}
	return bw
}

func (w *window) key(prefix, provider string) string {
	return fmt.Sprintf("%sbudget:%s:%s:%s", prefix, provider, w.name, w.start.Format(w.layout))
}

// ttl keeps the counter until the window ends plus a grace period.
func (w *window) ttl(now time.Time) time.Duration {
	return w.next(w.start).Sub(now) + counterGrace
}

// BudgetTracker enforces daily and monthly embedding token limits.
// Check is in-memory only; Record updates memory first, then writes behind to the store.
type BudgetTracker struct {
	mu        sync.Mutex
	daily     *window
	monthly   *window
	action    BudgetAction
	provider  string
	keyPrefix string
	store     BudgetStore
	now       func() time.Time
	logger    *zap.Logger
}

// NewBudgetTracker creates a budget tracker. A zero limit disables that window.
func NewBudgetTracker(
	provider string, dailyLimit, monthlyLimit int64,
	action BudgetAction, logger *zap.Logger,
) *BudgetTracker {
	now := time.Now().UTC()
	return &BudgetTracker{
		daily:     dailyWindow(dailyLimit, now),
		monthly:   monthlyWindow(monthlyLimit, now),
		action:    action,
		provider:  provider,
		keyPrefix: "ragdesk:",
		now:       time.Now,
		logger:    logger,
	}
}

// WithKeyPrefix sets the store key prefix (default "ragdesk:"). Call before WithStore.
func (b *BudgetTracker) WithKeyPrefix(prefix string) *BudgetTracker {
	b.keyPrefix = prefix
	return b
}

// WithStore attaches a persistence store and loads the counters of the current windows.
// Load failures start the window from zero.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	b.rollLocked()
	for _, w := range b.windows() {
		key := w.key(b.keyPrefix, b.provider)
		used, err := store.Load(ctx, key)
		if err != nil {
			b.logger.Warn("Failed to load budget counter", zap.String("key", key), zap.Error(err))
			continue
		}
		w.used = used
	}

	b.logger.Info("Budget loaded from store",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.daily.used),
		zap.Int64("monthly_used", b.monthly.used),
	)
	return b
}

func (b *BudgetTracker) windows() [2]*window {
	return [2]*window{b.daily, b.monthly}
}

func (b *BudgetTracker) rollLocked() time.Time {
	now := b.now().UTC()
	b.daily.roll(now)
	b.monthly.roll(now)
	return now
}

// Check reports whether a new embedding request may go out.
// With BudgetActionReject an exhausted window yields domain.ErrEmbeddingQuotaExceeded.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollLocked()
	var exceeded []string
	for _, w := range b.windows() {
		if w.exceeded() {
			exceeded = append(exceeded, w.name)
		}
	}
	if len(exceeded) == 0 {
		return nil
	}

	if b.action == BudgetActionReject {
		return fmt.Errorf("%s token budget of %s: %w", exceeded[0], b.provider, domain.ErrEmbeddingQuotaExceeded)
	}

	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.Strings("windows", exceeded),
		zap.Int64("daily_used", b.daily.used),
		zap.Int64("daily_limit", b.daily.limit),
		zap.Int64("monthly_used", b.monthly.used),
		zap.Int64("monthly_limit", b.monthly.limit),
	)
	return nil
}

type pendingWrite struct {
	key string
	ttl time.Duration
}

// Record registers consumed tokens in both windows and persists them when a store is attached.
func (b *BudgetTracker) Record(tokens int64) {
	if tokens <= 0 {
		return
	}

	b.mu.Lock()
	now := b.rollLocked()
	var writes []pendingWrite
	for _, w := range b.windows() {
		w.used += tokens
		if b.store != nil {
			writes = append(writes, pendingWrite{key: w.key(b.keyPrefix, b.provider), ttl: w.ttl(now)})
		}
	}
	store := b.store
	b.mu.Unlock()

	if len(writes) == 0 {
		return
	}

	// Detached from the request: the tokens are spent even if the caller gave up.
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	for _, pw := range writes {
		if err := store.Add(ctx, pw.key, tokens, pw.ttl); err != nil {
			b.logger.Warn("Failed to persist budget counter", zap.String("key", pw.key), zap.Error(err))
		}
	}
}

// Snapshot returns the current state of both windows.
func (b *BudgetTracker) Snapshot() domain.BudgetSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollLocked()
	return domain.BudgetSnapshot{
		Daily:   b.daily.snapshot(),
		Monthly: b.monthly.snapshot(),
	}
}
