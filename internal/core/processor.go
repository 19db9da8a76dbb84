package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"leaf-backend/internal/core/saliency"
	"leaf-backend/internal/database"
	"leaf-backend/internal/messaging"
	"leaf-backend/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskProcessor consumes batch classification tasks, writes overlays to the
// destination bucket and records the results.
type TaskProcessor struct {
	db       *gorm.DB
	storage  storage.ObjectStore
	reciever messaging.Reciever
	pipeline *Pipeline

	concurrency int
	wg          sync.WaitGroup
	stop        chan struct{}
	stopOnce    sync.Once
}

func NewTaskProcessor(db *gorm.DB, storage storage.ObjectStore, reciever messaging.Reciever, pipeline *Pipeline, concurrency int) *TaskProcessor {
	return &TaskProcessor{
		db:          db,
		storage:     storage,
		reciever:    reciever,
		pipeline:    pipeline,
		concurrency: max(concurrency, 1),
		stop:        make(chan struct{}),
	}
}

// Start blocks until the task channel is closed or Stop is called.
// Preprocessing runs concurrently across tasks, network calls are serialized
// by the classifier.
func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor", "concurrency", proc.concurrency)

	tasks := proc.reciever.Tasks()
	proc.wg.Add(proc.concurrency)
	for i := 0; i < proc.concurrency; i++ {
		go func() {
			defer proc.wg.Done()
			for {
				select {
				case task, ok := <-tasks:
					if !ok {
						return
					}
					proc.ProcessTask(task)
				case <-proc.stop:
					return
				}
			}
		}()
	}
	proc.wg.Wait()
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")
	proc.stopOnce.Do(func() { close(proc.stop) })
	proc.reciever.Close()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {
	case messaging.ClassifyQueue:
		var payload messaging.ClassifyTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling classify task", "error", err)
			if err := task.Reject(); err != nil {
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processClassifyTask(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

// OverlayKey is where the explanation of objectKey is written for a job.
func OverlayKey(jobId uuid.UUID, objectKey string) string {
	stem := strings.TrimSuffix(objectKey, path.Ext(objectKey))
	return fmt.Sprintf("%s/%s_gradcam.png", jobId, stem)
}

// processClassifyTask records per-image failures as results so the job still
// completes. Only failures to record anything are returned.
func (proc *TaskProcessor) processClassifyTask(ctx context.Context, payload messaging.ClassifyTaskPayload) error {
	slog.Info("processing classify task", "job_id", payload.JobId, "object", payload.ObjectKey)

	var mode saliency.Mode
	if payload.Mode != "" {
		parsed, err := saliency.ParseMode(payload.Mode)
		if err != nil {
			return proc.saveFailure(ctx, payload, err)
		}
		mode = parsed
	}

	data, err := proc.storage.GetObject(ctx, payload.SourceBucket, payload.ObjectKey)
	if err != nil {
		return proc.saveFailure(ctx, payload, fmt.Errorf("error reading object: %w", err))
	}

	analysis, err := proc.pipeline.Analyze(ctx, data, AnalyzeOptions{
		TopK:    payload.TopK,
		Mode:    mode,
		Layer:   payload.Layer,
		Explain: true,
	})
	if err != nil {
		return proc.saveFailure(ctx, payload, err)
	}

	overlayKey := OverlayKey(payload.JobId, payload.ObjectKey)
	if err := proc.storage.PutObject(ctx, payload.DestBucket, overlayKey, bytes.NewReader(analysis.Overlay)); err != nil {
		return proc.saveFailure(ctx, payload, fmt.Errorf("error writing overlay: %w", err))
	}

	return database.SaveJobResult(ctx, proc.db, database.JobResult{
		JobId:          payload.JobId,
		ObjectKey:      payload.ObjectKey,
		Label:          analysis.Predicted.Label,
		ClassIndex:     analysis.Predicted.Index,
		Confidence:     analysis.Predicted.Probability,
		ExplainedClass: analysis.ExplainedClass,
		OverlayKey:     overlayKey,
	})
}

func (proc *TaskProcessor) saveFailure(ctx context.Context, payload messaging.ClassifyTaskPayload, cause error) error {
	slog.Warn("classification failed", "job_id", payload.JobId, "object", payload.ObjectKey, "error", cause)
	return database.SaveJobResult(ctx, proc.db, database.JobResult{
		JobId:     payload.JobId,
		ObjectKey: payload.ObjectKey,
		Error:     cause.Error(),
	})
}
