package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"leaf-backend/cmd"
	"leaf-backend/internal/config"
	"leaf-backend/internal/core"
	"leaf-backend/internal/database"
	"leaf-backend/internal/messaging"
)

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.RabbitMQURL == "" {
		log.Fatalf("RABBITMQ_URL must be set for the worker")
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := cmd.NewObjectStore(cfg)
	if err != nil {
		log.Fatalf("Worker: Failed to create object store: %v", err)
	}

	pipeline, cleanup, err := cmd.LoadPipeline(context.Background(), cfg, store)
	if err != nil {
		log.Fatalf("Worker: Failed to load analysis pipeline: %v", err)
	}
	defer cleanup()

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL, cfg.WorkerConcurrency)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	worker := core.NewTaskProcessor(db, store, receiver, pipeline, cfg.WorkerConcurrency)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutdown signal received, waiting for in flight tasks")
		worker.Stop()
	}()

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")
	worker.Start()

	log.Println("Worker process stopped.")
}
