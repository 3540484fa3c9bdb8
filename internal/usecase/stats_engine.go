package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tadwir/internal/domain"
	"tadwir/internal/ports"
)

const DefaultStatsKey = "recycling_stats"

// StatsConfig controls where usage stats live and how the first load behaves.
type StatsConfig struct {
	Key            string
	MinLoadLatency time.Duration
}

// StatsEngine owns the usage counters and the unlocked achievement set.
// Every mutation is written through to the store once the persisted record
// has been read; until then the read is retried on every call and changes
// accumulate in memory only. Store failures are logged, never returned.
type StatsEngine struct {
	store  ports.KeyValueStore
	events ports.EventSink
	logger *zap.Logger
	cfg    StatsConfig

	mu      sync.Mutex
	delayed bool
	loaded  bool
	stats   domain.UsageStats
}

func NewStatsEngine(store ports.KeyValueStore, events ports.EventSink, logger *zap.Logger, cfg StatsConfig) *StatsEngine {
	if cfg.Key == "" {
		cfg.Key = DefaultStatsKey
	}
	if cfg.MinLoadLatency < 0 {
		cfg.MinLoadLatency = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsEngine{
		store:  store,
		events: events,
		logger: logger.Named("stats"),
		cfg:    cfg,
		stats:  domain.UsageStats{Unlocked: domain.AchievementSet{}},
	}
}

// Load restores persisted stats on first use and returns a copy.
func (e *StatsEngine) Load(ctx context.Context) domain.UsageStats {
	e.mu.Lock()
	fresh := e.ensureLoadedLocked(ctx)
	stats := e.stats.Clone()
	e.mu.Unlock()

	e.notify(fresh)
	return stats
}

// Snapshot is an alias of Load for read-only callers.
func (e *StatsEngine) Snapshot(ctx context.Context) domain.UsageStats {
	return e.Load(ctx)
}

// IncrementStat adds one to counter and persists the full snapshot.
func (e *StatsEngine) IncrementStat(ctx context.Context, counter domain.Counter) (domain.UsageStats, error) {
	if !counter.Valid() {
		return domain.UsageStats{}, fmt.Errorf("%w: %q", domain.ErrUnknownCounter, counter)
	}

	e.mu.Lock()
	fresh := e.ensureLoadedLocked(ctx)
	e.incrementLocked(counter)
	e.persistLocked(ctx)
	stats := e.stats.Clone()
	e.mu.Unlock()

	e.notify(fresh)
	return stats, nil
}

// EvaluateUnlocks runs the catalog against the current stats and returns the
// ids unlocked by this call, in catalog order. One notification is emitted per
// returned id.
func (e *StatsEngine) EvaluateUnlocks(ctx context.Context) []domain.AchievementID {
	e.mu.Lock()
	fresh := e.ensureLoadedLocked(ctx)
	if more := e.evaluateLocked(); len(more) > 0 {
		fresh = append(fresh, more...)
		e.persistLocked(ctx)
	}
	e.mu.Unlock()

	return e.notify(fresh)
}

// Record increments every counter, then evaluates unlocks once.
func (e *StatsEngine) Record(ctx context.Context, counters ...domain.Counter) ([]domain.AchievementID, error) {
	for _, counter := range counters {
		if !counter.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownCounter, counter)
		}
	}

	e.mu.Lock()
	fresh := e.ensureLoadedLocked(ctx)
	for _, counter := range counters {
		e.incrementLocked(counter)
		e.persistLocked(ctx)
	}
	if more := e.evaluateLocked(); len(more) > 0 {
		fresh = append(fresh, more...)
		e.persistLocked(ctx)
	}
	e.mu.Unlock()

	return e.notify(fresh), nil
}

// Achievements returns the catalog with unlock flags.
func (e *StatsEngine) Achievements(ctx context.Context) []domain.AchievementStatus {
	stats := e.Load(ctx)
	out := make([]domain.AchievementStatus, 0, len(achievementCatalog))
	for _, rule := range achievementCatalog {
		out = append(out, domain.AchievementStatus{
			Achievement: rule.Achievement,
			Unlocked:    stats.Unlocked.Has(rule.ID),
		})
	}
	return out
}

func (e *StatsEngine) incrementLocked(counter domain.Counter) {
	switch counter {
	case domain.CounterItemsScanned:
		e.stats.ItemsScanned++
	case domain.CounterSearchesMade:
		e.stats.SearchesMade++
	}
}

func (e *StatsEngine) evaluateLocked() []domain.Achievement {
	var fresh []domain.Achievement
	for _, rule := range achievementCatalog {
		if e.stats.Unlocked.Has(rule.ID) {
			continue
		}
		if !rule.unlocked(e.stats) {
			continue
		}
		e.stats.Unlocked[rule.ID] = struct{}{}
		fresh = append(fresh, rule.Achievement)
	}
	return fresh
}

func (e *StatsEngine) notify(fresh []domain.Achievement) []domain.AchievementID {
	ids := make([]domain.AchievementID, 0, len(fresh))
	for _, achievement := range fresh {
		ids = append(ids, achievement.ID)
		e.logger.Info("achievement unlocked", zap.String("id", string(achievement.ID)))
		if e.events != nil {
			e.events.AchievementUnlocked(achievement)
		}
	}
	return ids
}

// ensureLoadedLocked reads the persisted record until one read succeeds.
// Changes made while the store was unreadable are merged on top of the
// stored record; achievements that merge unlocks are returned for notify.
func (e *StatsEngine) ensureLoadedLocked(ctx context.Context) []domain.Achievement {
	if e.loaded {
		return nil
	}

	if !e.delayed {
		e.delayed = true
		if e.cfg.MinLoadLatency > 0 {
			timer := time.NewTimer(e.cfg.MinLoadLatency)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
	}

	if e.store == nil {
		e.loaded = true
		return nil
	}
	blob, ok, err := e.store.Get(ctx, e.cfg.Key)
	if err != nil {
		e.logger.Warn("load usage stats failed", zap.String("key", e.cfg.Key), zap.Error(err))
		return nil
	}
	e.loaded = true

	stored := domain.UsageStats{Unlocked: domain.AchievementSet{}}
	if ok && len(blob) > 0 {
		if err := json.Unmarshal(blob, &stored); err != nil {
			e.logger.Warn("discarding corrupt usage stats", zap.String("key", e.cfg.Key), zap.Error(err))
			stored = domain.UsageStats{Unlocked: domain.AchievementSet{}}
		}
	}

	pending := e.stats
	if pending.ItemsScanned == 0 && pending.SearchesMade == 0 && len(pending.Unlocked) == 0 {
		e.stats = stored
		return nil
	}

	e.stats = stored
	e.stats.ItemsScanned += pending.ItemsScanned
	e.stats.SearchesMade += pending.SearchesMade
	for id := range pending.Unlocked {
		e.stats.Unlocked[id] = struct{}{}
	}
	fresh := e.evaluateLocked()
	e.persistLocked(ctx)
	return fresh
}

// persistLocked writes the snapshot once the stored record has been read, so
// a failed read never overwrites it with a partial view.
func (e *StatsEngine) persistLocked(ctx context.Context) {
	if e.store == nil || !e.loaded {
		return
	}
	blob, err := json.Marshal(e.stats)
	if err != nil {
		e.logger.Error("encode usage stats failed", zap.Error(err))
		return
	}
	if err := e.store.Set(ctx, e.cfg.Key, blob); err != nil {
		e.logger.Warn("persist usage stats failed", zap.String("key", e.cfg.Key), zap.Error(err))
	}
}
