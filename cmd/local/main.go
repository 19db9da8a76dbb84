package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"leaf-backend/cmd"
	"leaf-backend/internal/api"
	"leaf-backend/internal/config"
	"leaf-backend/internal/core"
	"leaf-backend/internal/database"
	"leaf-backend/internal/messaging"
	"leaf-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

// requeueRunningJobs republishes the objects of unfinished jobs that have no
// result yet, since the in memory queue does not survive a restart.
func requeueRunningJobs(ctx context.Context, db *gorm.DB, store storage.ObjectStore, queue messaging.Publisher) error {
	var jobs []database.Job
	if err := db.WithContext(ctx).Where("status = ?", database.JobRunning).Find(&jobs).Error; err != nil {
		return fmt.Errorf("error fetching running jobs: %w", err)
	}

	for _, job := range jobs {
		results, err := database.ListJobResults(ctx, db, job.Id)
		if err != nil {
			return err
		}
		done := make(map[string]bool, len(results))
		for _, r := range results {
			done[r.ObjectKey] = true
		}

		objects, err := store.ListObjects(ctx, job.SourceBucket, job.SourcePrefix.String)
		if err != nil {
			slog.Error("unable to list objects for running job", "job_id", job.Id, "error", err)
			continue
		}

		requeued := 0
		for _, obj := range objects {
			if !api.IsAllowedImage(obj.Name) || done[obj.Name] {
				continue
			}
			if err := queue.PublishClassifyTask(ctx, messaging.ClassifyTaskPayload{
				JobId:        job.Id,
				SourceBucket: job.SourceBucket,
				ObjectKey:    obj.Name,
				DestBucket:   job.DestBucket,
				Mode:         job.Mode,
				Layer:        job.Layer,
				TopK:         job.TopK,
			}); err != nil {
				return fmt.Errorf("error requeueing task: %w", err)
			}
			requeued++
		}
		slog.Info("requeued running job", "job_id", job.Id, "tasks", requeued)
	}
	return nil
}

func main() {
	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.CacheDir, os.ModePerm); err != nil {
		log.Fatalf("error creating directory for log file: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.CacheDir, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	slog.Info("starting local backend", "port", cfg.Port, "model_dir", cfg.ModelDir, "storage_dir", cfg.StorageDir, "database", cfg.DatabaseURL)

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := cmd.NewObjectStore(cfg)
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}

	pipeline, cleanup, err := cmd.LoadPipeline(context.Background(), cfg, store)
	if err != nil {
		log.Fatalf("Failed to load analysis pipeline: %v", err)
	}
	defer cleanup()

	queue := messaging.NewInMemoryQueue()
	if err := requeueRunningJobs(context.Background(), db, store, queue); err != nil {
		log.Fatalf("Failed to requeue running jobs: %v", err)
	}

	worker := core.NewTaskProcessor(db, store, queue, pipeline, cfg.WorkerConcurrency)

	r := chi.NewRouter()
	r.Use(api.CORS(cfg.CORSOrigins))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	api.NewBackendService(pipeline, db, store, queue, cfg.MaxUploadBytes).AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	slog.Info("starting worker")
	go worker.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
