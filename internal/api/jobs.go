package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"leaf-backend/internal/core/inference"
	"leaf-backend/internal/database"
	"leaf-backend/internal/messaging"
	"leaf-backend/pkg/api"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// IsAllowedImage reports whether a batch job should pick up key.
func IsAllowedImage(key string) bool {
	_, ok := allowedExtensions[strings.ToLower(path.Ext(key))]
	return ok
}

func (s *BackendService) batchEnabled() error {
	if s.db == nil || s.storage == nil || s.publisher == nil {
		return CodedErrorf(http.StatusServiceUnavailable, "batch jobs are not enabled on this server")
	}
	return nil
}

func (s *BackendService) SubmitJob(r *http.Request) (any, error) {
	if err := s.batchEnabled(); err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.SubmitJobRequest](r)
	if err != nil {
		return nil, err
	}

	if req.SourceBucket == "" || req.DestBucket == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "missing required fields: source_bucket, dest_bucket")
	}

	mode, err := parseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if req.Layer != "" && s.pipeline != nil && !s.pipeline.Classifier().HasLayer(req.Layer) {
		return nil, CodedErrorf(http.StatusBadRequest, "%v: %q", inference.ErrLayerNotFound, req.Layer)
	}
	if req.TopK <= 0 {
		req.TopK = inference.DefaultTopK
	}

	ctx := r.Context()

	objects, err := s.storage.ListObjects(ctx, req.SourceBucket, req.SourcePrefix)
	if err != nil {
		slog.Error("error listing source objects", "bucket", req.SourceBucket, "prefix", req.SourcePrefix, "error", err)
		return nil, CodedErrorf(http.StatusBadRequest, "unable to list objects in %s/%s", req.SourceBucket, req.SourcePrefix)
	}

	var keys []string
	for _, obj := range objects {
		if IsAllowedImage(obj.Name) {
			keys = append(keys, obj.Name)
		}
	}

	job := database.Job{
		Id:           uuid.New(),
		SourceBucket: req.SourceBucket,
		SourcePrefix: sql.NullString{String: req.SourcePrefix, Valid: req.SourcePrefix != ""},
		DestBucket:   req.DestBucket,
		Mode:         string(mode),
		Layer:        req.Layer,
		TopK:         req.TopK,
		Status:       database.JobRunning,
		CreationTime: time.Now().UTC(),
		TotalCount:   len(keys),
	}
	if len(keys) == 0 {
		job.Status = database.JobCompleted
		job.CompletionTime = sql.NullTime{Time: job.CreationTime, Valid: true}
	}

	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		slog.Error("error creating job", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create job entry")
	}

	for _, key := range keys {
		payload := messaging.ClassifyTaskPayload{
			JobId:        job.Id,
			SourceBucket: req.SourceBucket,
			ObjectKey:    key,
			DestBucket:   req.DestBucket,
			Mode:         string(mode),
			Layer:        req.Layer,
			TopK:         req.TopK,
		}
		if err := s.publisher.PublishClassifyTask(ctx, payload); err != nil {
			slog.Error("error publishing classify task", "job_id", job.Id, "object", key, "error", err)
			if err := database.SaveJobResult(ctx, s.db, database.JobResult{JobId: job.Id, ObjectKey: key, Error: "failed to queue task"}); err != nil {
				slog.Error("error recording publish failure", "job_id", job.Id, "object", key, "error", err)
			}
		}
	}

	slog.Info("submitted job", "job_id", job.Id, "tasks", len(keys))
	return api.SubmitJobResponse{JobId: job.Id, TaskCount: len(keys)}, nil
}

func (s *BackendService) getJob(r *http.Request) (database.Job, error) {
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		return database.Job{}, err
	}

	job, err := database.GetJob(r.Context(), s.db, jobId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Job{}, CodedErrorf(http.StatusNotFound, "job not found")
		}
		slog.Error("error getting job", "job_id", jobId, "error", err)
		return database.Job{}, CodedErrorf(http.StatusInternalServerError, "error retrieving job record")
	}
	return job, nil
}

func (s *BackendService) GetJob(r *http.Request) (any, error) {
	if err := s.batchEnabled(); err != nil {
		return nil, err
	}
	job, err := s.getJob(r)
	if err != nil {
		return nil, err
	}
	return convertJob(job), nil
}

func (s *BackendService) GetJobResults(r *http.Request) (any, error) {
	if err := s.batchEnabled(); err != nil {
		return nil, err
	}
	job, err := s.getJob(r)
	if err != nil {
		return nil, err
	}

	results, err := database.ListJobResults(r.Context(), s.db, job.Id)
	if err != nil {
		slog.Error("error listing job results", "job_id", job.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving job results")
	}
	return convertJobResults(results), nil
}
