package usecase

import "tadwir/internal/domain"

type achievementRule struct {
	domain.Achievement
	unlocked func(stats domain.UsageStats) bool
}

// achievementCatalog is evaluated in order; later rules may depend on
// unlocks made earlier in the same pass.
var achievementCatalog = []achievementRule{
	{
		Achievement: domain.Achievement{
			ID:          domain.AchievementRookieRecycler,
			Title:       "مُستجد التدوير",
			Description: "امسح أول مادة لك باستخدام الكاميرا.",
			Icon:        "🥇",
		},
		unlocked: func(stats domain.UsageStats) bool { return stats.ItemsScanned >= 1 },
	},
	{
		Achievement: domain.Achievement{
			ID:          domain.AchievementCuriousExplorer,
			Title:       "مستكشف فضولي",
			Description: "ابحث عن أول مادة لك في المكتبة.",
			Icon:        "📚",
		},
		unlocked: func(stats domain.UsageStats) bool { return stats.SearchesMade >= 1 },
	},
	{
		Achievement: domain.Achievement{
			ID:          domain.AchievementSeasonedScanner,
			Title:       "ماسح ضوئي متمرس",
			Description: "امسح 5 مواد مختلفة بنجاح.",
			Icon:        "📸",
		},
		unlocked: func(stats domain.UsageStats) bool { return stats.ItemsScanned >= 5 },
	},
	{
		Achievement: domain.Achievement{
			ID:          domain.AchievementEcoWarrior,
			Title:       "محارب البيئة",
			Description: "حقق 3 إنجازات.",
			Icon:        "🏆",
		},
		unlocked: func(stats domain.UsageStats) bool { return len(stats.Unlocked) >= 3 },
	},
}

// Catalog returns the achievement display metadata in evaluation order.
func Catalog() []domain.Achievement {
	out := make([]domain.Achievement, 0, len(achievementCatalog))
	for _, rule := range achievementCatalog {
		out = append(out, rule.Achievement)
	}
	return out
}

// UnlockToast is the notification text shown when an achievement unlocks.
func UnlockToast(achievement domain.Achievement) string {
	return "إنجاز جديد: " + achievement.Title
}
