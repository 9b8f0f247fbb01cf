package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kursadbilgin/hrp-console/internal/domain"
	"github.com/kursadbilgin/hrp-console/internal/override"
)

var _ override.Persistence = (*GormOverrideRepo)(nil)

// GormOverrideRepo persists status overrides in postgres. It is one of the
// pluggable durability backends behind the override store; callers treat
// its failures as best-effort.
type GormOverrideRepo struct {
	db *gorm.DB
}

func NewGormOverrideRepo(db *gorm.DB) *GormOverrideRepo {
	return &GormOverrideRepo{db: db}
}

func (r *GormOverrideRepo) Load(ctx context.Context) (map[int64]domain.StatusOverride, error) {
	var models []StatusOverrideModel
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}

	loaded := make(map[int64]domain.StatusOverride, len(models))
	for _, m := range models {
		loaded[m.RecordID] = overrideModelToDomain(m)
	}
	return loaded, nil
}

func (r *GormOverrideRepo) Save(ctx context.Context, o domain.StatusOverride) error {
	model := overrideModelFromDomain(o)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_id"}},
			UpdateAll: true,
		}).
		Create(&model).Error
}

func (r *GormOverrideRepo) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&StatusOverrideModel{}).Error
}
