// internal/intake/seed.go
package intake

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"intake-service/pkg/models"
)

// seedFormKinds populates the database with the referral form kinds the intake
// endpoints accept.
func seedFormKinds(db *gorm.DB) error {
	kinds := []models.FormKind{
		{
			Key:     string(models.ReferralKindConflict),
			Label:   "Conflict Resolution",
			Enabled: true,
		},
		{
			Key:     string(models.ReferralKindGeneral),
			Label:   "General Support",
			Enabled: true,
		},
	}

	for _, k := range kinds {
		var count int64
		db.Model(&models.FormKind{}).
			Where("key = ?", k.Key).
			Count(&count)

		if count == 0 {
			if err := db.Create(&k).Error; err != nil {
				return fmt.Errorf("failed to seed form kind %s: %w", k.Key, err)
			}
			log.Printf("✅ Seeded form kind: %s", k.Key)
		}
	}
	return nil
}
