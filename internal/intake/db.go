// internal/intake/db.go
package intake

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"intake-service/internal/config"
	"intake-service/pkg/models"
)

var db *gorm.DB

func InitDB(cfg *config.Config) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName, cfg.DBSSLMode,
	)

	var err error
	db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}

	// Auto-migrate (safe in dev; use migrations in prod)
	err = db.AutoMigrate(&models.SyncConfig{}, &models.Referral{}, &models.SchemaRegistryEntry{}, &models.FormKind{}, &models.StaffDevice{})
	if err != nil {
		log.Fatalf("❌ Failed to migrate: %v", err)
	}

	log.Println("✅ Intake DB connected & migrated")

	// Seed form kinds after migration
	if err := seedFormKinds(db); err != nil {
		log.Printf("⚠️ Failed to seed form kinds: %v", err)
	} else {
		log.Println("✅ Form kinds seeded")
	}
}

func GetDB() *gorm.DB {
	return db
}
