package bootstrap

import (
	"log"
	"time"

	"anoa.com/playquestrewards/internal/entity"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&entity.Role{},
		&entity.User{},
		&entity.Transaction{},
		&entity.TransactionDetail{},
		&entity.Prizepool{},
		&entity.DailyPercentage{},
		&entity.IncrementLog{},
		&entity.Distribution{},
		&entity.Notification{},
	)
	if err != nil {
		return err
	}

	// Partial unique indexes AutoMigrate cannot express:
	// - at most one active prizepool at any instant
	// - at most one non-deleted increment per (source, source_id) pair
	if err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_prizepools_single_active
		 ON prizepools (is_active) WHERE is_active`,
	).Error; err != nil {
		return err
	}
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_increment_logs_source_unique
		 ON increment_logs (source, source_id) WHERE deleted_at IS NULL`,
	).Error
}

func SeedRoles(db *gorm.DB) error {
	defaultRoles := []entity.Role{
		{Name: entity.RoleAdmin, Description: "Platform operator"},
		{Name: entity.RolePlayer, Description: "Player"},
	}

	for _, role := range defaultRoles {
		var count int64
		if err := db.Model(&entity.Role{}).
			Where("name = ?", role.Name).
			Count(&count).Error; err != nil {
			return err
		}

		if count == 0 {
			if err := db.Create(&role).Error; err != nil {
				return err
			}
		}
	}

	return nil
}

func SeedAdminUser(db *gorm.DB) error {
	var adminRole entity.Role
	if err := db.Where("name = ?", entity.RoleAdmin).First(&adminRole).Error; err != nil {
		return err
	}

	var count int64
	if err := db.Model(&entity.User{}).
		Where("email = ?", "admin@playquest.local").
		Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("Admin user already exists, skipping seed")
		return nil
	}

	hashedPasswordBytes, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	adminUser := entity.User{
		Username:     "admin",
		Email:        "admin@playquest.local",
		PasswordHash: string(hashedPasswordBytes),
		RoleID:       &adminRole.ID,
	}

	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	log.Println("✅ Admin user seeded successfully")
	return nil
}

// SeedPrizepool creates the first cycle when none is active, so the
// single-active-pool invariant holds from boot. Later cycles are created by
// the weekly conclusion rotating the pool forward.
func SeedPrizepool(db *gorm.DB, location *time.Location) error {
	var count int64
	if err := db.Model(&entity.Prizepool{}).
		Where("is_active = ?", true).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().In(location)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, location)

	pool := entity.Prizepool{
		Name:                      "Weekly Prizepool",
		BasePoolValue:             1_000_000,
		StartDate:                 start,
		EndDate:                   start.AddDate(0, 0, 7),
		AdsRewardedIncrement:      500,
		AdsInterstitialIncrement:  200,
		ValuePerPurchase:          5_000,
		DailyDistributionWeights:  entity.Weights{0.5, 0.3, 0.2},
		WeeklyDistributionWeights: entity.Weights{0.4, 0.25, 0.15, 0.1, 0.05, 0.05},
		IsActive:                  true,
	}
	if err := db.Create(&pool).Error; err != nil {
		return err
	}

	percentages := make([]entity.DailyPercentage, 0, 7)
	for day := 0; day < 7; day++ {
		percentages = append(percentages, entity.DailyPercentage{
			PrizepoolID: pool.ID,
			Date:        start.AddDate(0, 0, day),
			Percentage:  0.1,
		})
	}
	if err := db.Create(&percentages).Error; err != nil {
		return err
	}

	log.Printf("✅ Initial prizepool seeded: %s → %s", pool.StartDate.Format("2006-01-02"), pool.EndDate.Format("2006-01-02"))
	return nil
}
