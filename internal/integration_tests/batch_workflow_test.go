package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"leaf-backend/internal/api"
	"leaf-backend/internal/core"
	"leaf-backend/internal/core/imaging"
	"leaf-backend/internal/database"
	pkgapi "leaf-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getJSON[T any](t *testing.T, h http.Handler, endpoint string) T {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, endpoint, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// TestBatchWorkflow submits a job through the API and lets a worker consume
// it from RabbitMQ, with postgres for job state and minio for images.
func TestBatchWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewDatabase(setupPostgresContainer(t, ctx))
	require.NoError(t, err)

	store := setupTestObjectStore(t, ctx)
	require.NoError(t, store.CreateBucket(ctx, "explanations"))
	require.NoError(t, store.PutObject(ctx, bucketName, "field/leaf_1.png", bytes.NewReader(leafPNG(t, 64, 48))))
	require.NoError(t, store.PutObject(ctx, bucketName, "field/leaf_2.jpg", strings.NewReader("corrupt upload")))
	require.NoError(t, store.PutObject(ctx, bucketName, "field/readme.txt", strings.NewReader("skipped")))

	publisher, receiver := setupRabbitMQContainer(t, ctx)

	pipeline := newTestPipeline()

	r := chi.NewRouter()
	api.NewBackendService(pipeline, db, store, publisher, 0).AddRoutes(r)

	worker := core.NewTaskProcessor(db, store, receiver, pipeline, 2)
	go worker.Start()
	t.Cleanup(worker.Stop)

	body := `{"source_bucket":"` + bucketName + `","source_prefix":"field/","dest_bucket":"explanations"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var submitted pkgapi.SubmitJobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&submitted))
	require.Equal(t, 2, submitted.TaskCount)

	jobURL := "/jobs/" + submitted.JobId.String()
	require.Eventually(t, func() bool {
		job := getJSON[pkgapi.Job](t, r, jobURL)
		return job.Status == database.JobCompleted
	}, 2*time.Minute, 500*time.Millisecond)

	job := getJSON[pkgapi.Job](t, r, jobURL)
	assert.Equal(t, 1, job.SucceededCount)
	assert.Equal(t, 1, job.FailedCount)

	results := getJSON[[]pkgapi.JobResult](t, r, jobURL+"/results")
	require.Len(t, results, 2)

	ok, failed := results[0], results[1]
	assert.Equal(t, "field/leaf_1.png", ok.ObjectKey)
	assert.Equal(t, "jasminum", ok.Label)
	assert.Equal(t, 2, ok.ExplainedClass)
	assert.Contains(t, failed.Error, "invalid image")

	overlay, err := store.GetObject(ctx, "explanations", ok.OverlayKey)
	require.NoError(t, err)
	header, err := imaging.Sniff(overlay)
	require.NoError(t, err)
	assert.Equal(t, 64, header.Width)
	assert.Equal(t, 48, header.Height)
}
