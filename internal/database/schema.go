package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	JobQueued    string = "QUEUED"
	JobRunning   string = "RUNNING"
	JobCompleted string = "COMPLETED"
	JobFailed    string = "FAILED"
)

// Job is one batch classification request over an object store prefix.
type Job struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	SourceBucket string `gorm:"not null"`
	SourcePrefix sql.NullString
	DestBucket   string `gorm:"not null"`

	Mode  string `gorm:"size:20;not null"`
	Layer string
	TopK  int `gorm:"default:3"`

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

	Label          string
	ClassIndex     int
	Confidence     float32
	ExplainedClass int
	OverlayKey     string
	Error          string

	CompletionTime time.Time
}
