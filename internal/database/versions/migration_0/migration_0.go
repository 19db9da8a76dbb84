package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Job struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	SourceBucket string `gorm:"not null"`
	SourcePrefix sql.NullString
	DestBucket   string `gorm:"not null"`

	Mode string `gorm:"size:20;not null"`
	TopK int    `gorm:"default:3"`

	Status         string `gorm:"size:20;not null"`
	CreationTime   time.Time
	CompletionTime sql.NullTime

	TotalCount     int `gorm:"default:0"`
	SucceededCount int `gorm:"default:0"`
	FailedCount    int `gorm:"default:0"`

	Results []JobResult `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`
}

type JobResult struct {
	JobId     uuid.UUID `gorm:"type:uuid;primaryKey"`
	ObjectKey string    `gorm:"primaryKey"`

	Label      string
	ClassIndex int
	Confidence float32
	OverlayKey string
	Error      string

	CompletionTime time.Time
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Job{}, &JobResult{}); err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
