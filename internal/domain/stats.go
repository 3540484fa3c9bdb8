package domain

import (
	"encoding/json"
	"sort"
)

// Counter names a usage statistic.
type Counter string

const (
	CounterItemsScanned Counter = "itemsScanned"
	CounterSearchesMade Counter = "searchesMade"
)

// Valid reports whether c is a known counter.
func (c Counter) Valid() bool {
	return c == CounterItemsScanned || c == CounterSearchesMade
}

// AchievementID is the stable key of a catalog achievement.
type AchievementID string

const (
	AchievementRookieRecycler  AchievementID = "rookieRecycler"
	AchievementCuriousExplorer AchievementID = "curiousExplorer"
	AchievementSeasonedScanner AchievementID = "seasonedScanner"
	AchievementEcoWarrior      AchievementID = "ecoWarrior"
)

// Achievement is display metadata for one catalog entry.
type Achievement struct {
	ID          AchievementID `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Icon        string        `json:"icon"`
}

// AchievementStatus pairs a catalog entry with its unlock state.
type AchievementStatus struct {
	Achievement
	Unlocked bool `json:"unlocked"`
}

// AchievementSet is an unordered set of unlocked achievement ids.
type AchievementSet map[AchievementID]struct{}

func (s AchievementSet) Has(id AchievementID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in lexical order.
func (s AchievementSet) Sorted() []AchievementID {
	ids := make([]AchievementID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// UsageStats holds the persisted usage counters and unlocked achievements.
type UsageStats struct {
	ItemsScanned int
	SearchesMade int
	Unlocked     AchievementSet
}

// Clone returns a deep copy so callers never share the unlocked set.
func (s UsageStats) Clone() UsageStats {
	out := UsageStats{
		ItemsScanned: s.ItemsScanned,
		SearchesMade: s.SearchesMade,
		Unlocked:     make(AchievementSet, len(s.Unlocked)),
	}
	for id := range s.Unlocked {
		out.Unlocked[id] = struct{}{}
	}
	return out
}

type usageStatsJSON struct {
	ItemsScanned         int             `json:"itemsScanned"`
	SearchesMade         int             `json:"searchesMade"`
	AchievementsUnlocked []AchievementID `json:"achievementsUnlocked"`
}

func (s UsageStats) MarshalJSON() ([]byte, error) {
	unlocked := s.Unlocked.Sorted()
	return json.Marshal(usageStatsJSON{
		ItemsScanned:         s.ItemsScanned,
		SearchesMade:         s.SearchesMade,
		AchievementsUnlocked: unlocked,
	})
}

// UnmarshalJSON accepts the persisted blob. Negative counters clamp to zero
// and blank ids are skipped.
func (s *UsageStats) UnmarshalJSON(data []byte) error {
	var raw usageStatsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.ItemsScanned = max(raw.ItemsScanned, 0)
	s.SearchesMade = max(raw.SearchesMade, 0)
	s.Unlocked = make(AchievementSet, len(raw.AchievementsUnlocked))
	for _, id := range raw.AchievementsUnlocked {
		if id == "" {
			continue
		}
		s.Unlocked[id] = struct{}{}
	}
	return nil
}
