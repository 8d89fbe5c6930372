package main

import (
	"context"
	"errors"
	"fmt"

	"bithrah-early-access/db"
	"bithrah-early-access/models"
	"bithrah-early-access/services"

	"github.com/joho/godotenv"
	v "github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const rootReferralCode = "BITHRAH2024"

var sampleIdeas = []services.NewIdea{
	{
		OwnerEmail:  "founder@bithrah.com",
		Title:       "منصة لتأجير المعدات الزراعية",
		Description: "تطبيق يربط المزارعين بأصحاب المعدات الزراعية لتأجيرها بالساعة أو باليوم مع تأمين وتتبع.",
		Category:    "agritech",
	},
	{
		OwnerEmail:  "founder@bithrah.com",
		Title:       "مقهى متنقل للفعاليات",
		Description: "عربة قهوة مختصة تخدم الفعاليات والمؤتمرات مع نظام حجز مسبق عبر الإنترنت.",
		Category:    "food",
	},
	{
		OwnerEmail:  "founder@bithrah.com",
		Title:       "Arabic Audiobooks Platform",
		Description: "Subscription platform for narrated Arabic books with offline listening and family plans.",
		Category:    "media",
	},
}

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	v.AutomaticEnv()
	v.SetDefault("public_base_url", "https://bithrah.com")
	v.SetDefault("early_access_batch", 1)
	v.SetDefault("seed_referrals", 4)

	dsn := v.GetString("database_url")
	if dsn == "" {
		zap.L().Fatal("DATABASE_URL environment variable not set")
	}

	conn, err := db.Open(dsn)
	if err != nil {
		zap.L().Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.Migrate(conn); err != nil {
		zap.L().Fatal("Failed to migrate database", zap.Error(err))
	}

	ctx := context.Background()
	ledger := services.NewLedgerService(conn, v.GetInt("early_access_batch"), v.GetString("public_base_url"))

	root, err := seedRoot(ctx, conn)
	if err != nil {
		zap.L().Fatal("Failed to seed root user", zap.Error(err))
	}

	for i := 1; i <= v.GetInt("seed_referrals"); i++ {
		_, err := ledger.RegisterWithReferral(ctx, services.Registration{
			Email:    fmt.Sprintf("early%d@bithrah.com", i),
			Username: fmt.Sprintf("early_%d", i),
			FullName: fmt.Sprintf("داعم مبكر %d", i),
			Source:   "seed",
		}, root.ReferralCode)
		if errors.Is(err, services.ErrDuplicateIdentity) {
			continue
		}
		if err != nil {
			zap.L().Fatal("Failed to seed referral", zap.Int("n", i), zap.Error(err))
		}
	}

	ideas := services.NewIdeaService(conn, nil)
	for _, in := range sampleIdeas {
		var n int64
		if err := conn.Model(&models.Idea{}).Where("title = ?", in.Title).Count(&n).Error; err != nil {
			zap.L().Fatal("Failed to check ideas", zap.Error(err))
		}
		if n > 0 {
			continue
		}
		if _, err := ideas.Create(ctx, in); err != nil {
			zap.L().Fatal("Failed to seed idea", zap.String("title", in.Title), zap.Error(err))
		}
	}

	stats, err := ledger.Stats(ctx, root.ID)
	if err != nil {
		zap.L().Fatal("Failed to read root stats", zap.Error(err))
	}
	zap.L().Info("Seed complete",
		zap.String("root_code", stats.ReferralCode),
		zap.Int("referral_count", stats.ReferralCount),
		zap.Int("bonus_years", stats.BonusYears),
		zap.String("referral_link", stats.ReferralLink),
	)
}

// seedRoot creates the founders' account carrying the vanity code, or
// returns it if it already exists.
func seedRoot(ctx context.Context, conn *gorm.DB) (*models.EarlyAccessUser, error) {
	root := models.EarlyAccessUser{
		Email:        "team@bithrah.com",
		Username:     "bithrah",
		FullName:     "فريق بذرة",
		Source:       "seed",
		ReferralCode: rootReferralCode,
		Batch:        1,
	}
	err := conn.WithContext(ctx).
		Where(models.EarlyAccessUser{ReferralCode: rootReferralCode}).
		FirstOrCreate(&root).Error
	if err != nil {
		return nil, err
	}
	return &root, nil
}
