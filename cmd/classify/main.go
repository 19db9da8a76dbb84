// Command classify runs the analysis pipeline over a local directory of leaf
// images and writes one JSON line per image plus the explanation overlays.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"leaf-backend/cmd"
	"leaf-backend/internal/api"
	"leaf-backend/internal/config"
	"leaf-backend/internal/core"
	"leaf-backend/internal/core/saliency"
	"leaf-backend/internal/core/types"
	"leaf-backend/internal/core/utils"

	"github.com/schollz/progressbar/v3"
)

type record struct {
	File       string                   `json:"file"`
	Class      string                   `json:"predicted_class,omitempty"`
	Confidence float32                  `json:"confidence,omitempty"`
	Top        []types.RankedPrediction `json:"top,omitempty"`
	Overlay    string                   `json:"overlay,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

func listImages(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && api.IsAllowedImage(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func main() {
	input := flag.String("input", "", "directory of images to classify")
	output := flag.String("output", "./classified", "directory for results.jsonl and overlays")
	workers := flag.Int("workers", 0, "number of images analyzed concurrently, defaults to WORKER_CONCURRENCY")
	mode := flag.String("mode", "", "saliency mode: gradcam or gradcam++")
	layer := flag.String("layer", "", "layer to explain")
	explain := flag.Bool("explain", true, "render explanation overlays")

	cmd.LoadEnvFile()

	if *input == "" {
		log.Fatalf("-input must be set")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}
	if *workers <= 0 {
		*workers = cfg.WorkerConcurrency
	}

	var saliencyMode saliency.Mode
	if *mode != "" {
		if saliencyMode, err = saliency.ParseMode(*mode); err != nil {
			log.Fatalf("invalid -mode: %v", err)
		}
	}

	files, err := listImages(*input)
	if err != nil {
		log.Fatalf("error listing images in %s: %v", *input, err)
	}
	if len(files) == 0 {
		log.Fatalf("no images found in %s", *input)
	}

	if err := os.MkdirAll(*output, os.ModePerm); err != nil {
		log.Fatalf("error creating output directory: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cmd.NewObjectStore(cfg)
	if err != nil {
		log.Fatalf("error creating object store: %v", err)
	}

	pipeline, cleanup, err := cmd.LoadPipeline(ctx, cfg, store)
	if err != nil {
		log.Fatalf("error loading analysis pipeline: %v", err)
	}
	defer cleanup()

	opts := core.AnalyzeOptions{Mode: saliencyMode, Layer: *layer, Explain: *explain}

	analyze := func(ctx context.Context, path string) (record, error) {
		rel, err := filepath.Rel(*input, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		rec := record{File: filepath.ToSlash(rel)}

		data, err := os.ReadFile(path)
		if err != nil {
			return rec, err
		}

		analysis, err := pipeline.Analyze(ctx, data, opts)
		if err != nil {
			return rec, err
		}
		rec.Class = analysis.Predicted.Label
		rec.Confidence = analysis.Predicted.Probability
		rec.Top = analysis.Top

		if analysis.Overlay != nil {
			name := strings.TrimSuffix(rec.File, filepath.Ext(rec.File)) + "_gradcam.png"
			dest := filepath.Join(*output, "overlays", filepath.FromSlash(name))
			if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
				return rec, err
			}
			if err := os.WriteFile(dest, analysis.Overlay, 0644); err != nil {
				return rec, fmt.Errorf("error writing overlay: %w", err)
			}
			rec.Overlay = dest
		}
		return rec, nil
	}

	out, err := os.Create(filepath.Join(*output, "results.jsonl"))
	if err != nil {
		log.Fatalf("error creating results file: %v", err)
	}
	defer out.Close()
	encoder := json.NewEncoder(out)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("classifying"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	failed := 0
	for task := range utils.RunInPool(ctx, analyze, files, *workers) {
		rec := task.Result
		if task.Error != nil {
			failed++
			rec.File = files[task.Index]
			rec.Error = task.Error.Error()
			slog.Warn("failed to classify image", "file", files[task.Index], "error", task.Error)
		}
		if err := encoder.Encode(rec); err != nil {
			log.Fatalf("error writing result: %v", err)
		}
		_ = bar.Add(1)
	}

	slog.Info("classification finished", "images", len(files), "failed", failed, "results", out.Name())
}
