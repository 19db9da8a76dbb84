package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func UpdateJobStatus(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == JobCompleted || status == JobFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&Job{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error updating job status", "job_id", jobId, "status", status, "error", err)
		return err
	}
	return nil
}

func GetJob(ctx context.Context, db *gorm.DB, jobId uuid.UUID) (Job, error) {
	var job Job
	if err := db.WithContext(ctx).First(&job, "id = ?", jobId).Error; err != nil {
		return Job{}, err
	}
	return job, nil
}

func ListJobResults(ctx context.Context, db *gorm.DB, jobId uuid.UUID) ([]JobResult, error) {
	var results []JobResult
	if err := db.WithContext(ctx).Where("job_id = ?", jobId).Order("object_key").Find(&results).Error; err != nil {
		return nil, fmt.Errorf("error listing results for job %s: %w", jobId, err)
	}
	return results, nil
}

func outcomeCounter(result JobResult) string {
	if result.Error != "" {
		return "failed_count"
	}
	return "succeeded_count"
}

// SaveJobResult stores the outcome of one image and updates the job
// counters. The job is marked completed once every image has a result.
// Redelivered tasks overwrite their earlier result; the counters follow the
// stored row, so an image is counted once and moves between succeeded and
// failed when its outcome changes.
func SaveJobResult(ctx context.Context, db *gorm.DB, result JobResult) error {
	if result.CompletionTime.IsZero() {
		result.CompletionTime = time.Now().UTC()
	}

	return db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var prior []JobResult
		if err := txn.Where("job_id = ? AND object_key = ?", result.JobId, result.ObjectKey).
			Limit(1).Find(&prior).Error; err != nil {
			return fmt.Errorf("error checking existing result: %w", err)
		}

		if err := txn.Clauses(clause.OnConflict{UpdateAll: true}).Create(&result).Error; err != nil {
			return fmt.Errorf("error saving result for %s: %w", result.ObjectKey, err)
		}

		counter := outcomeCounter(result)
		updates := map[string]any{counter: gorm.Expr(counter+" + ?", 1)}
		if len(prior) > 0 {
			previous := outcomeCounter(prior[0])
			if previous == counter {
				return nil
			}
			updates[previous] = gorm.Expr(previous+" - ?", 1)
		}

		if err := txn.Model(&Job{Id: result.JobId}).Updates(updates).Error; err != nil {
			return fmt.Errorf("error updating job counters: %w", err)
		}

		if err := txn.Model(&Job{}).
			Where("id = ? AND status = ? AND succeeded_count + failed_count >= total_count", result.JobId, JobRunning).
			Updates(map[string]any{"status": JobCompleted, "completion_time": time.Now().UTC()}).Error; err != nil {
			return fmt.Errorf("error completing job: %w", err)
		}
		return nil
	})
}
