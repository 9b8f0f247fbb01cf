package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/kursadbilgin/hrp-console/internal/repository"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_status_overrides",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.StatusOverrideModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_status_overrides_recorded_at ON status_overrides (recorded_at)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.StatusOverrideModel{})
			},
		},
	})

	return m.Migrate()
}
