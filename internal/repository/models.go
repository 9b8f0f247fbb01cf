package repository

import (
	"time"

	"github.com/kursadbilgin/hrp-console/internal/domain"
)

// StatusOverrideModel is the persistence model for the status_overrides
// table, used when override durability is configured as postgres.
type StatusOverrideModel struct {
	RecordID   int64           `gorm:"primaryKey"`
	Decision   domain.Decision `gorm:"type:varchar(10);not null"`
	Comment    string          `gorm:"type:text;not null;default:''"`
	RecordedAt time.Time       `gorm:"type:timestamptz;not null"`
}

func (StatusOverrideModel) TableName() string {
	return "status_overrides"
}

func overrideModelFromDomain(o domain.StatusOverride) StatusOverrideModel {
	return StatusOverrideModel{
		RecordID:   o.RecordID,
		Decision:   o.Decision,
		Comment:    o.Comment,
		RecordedAt: o.RecordedAt,
	}
}

func overrideModelToDomain(m StatusOverrideModel) domain.StatusOverride {
	return domain.StatusOverride{
		RecordID:   m.RecordID,
		Decision:   m.Decision,
		Comment:    m.Comment,
		RecordedAt: m.RecordedAt,
	}
}
