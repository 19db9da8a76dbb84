package core_test

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"leaf-backend/internal/core"
	"leaf-backend/internal/core/imaging"
	"leaf-backend/internal/database"
	"leaf-backend/internal/messaging"
	"leaf-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayKey(t *testing.T) {
	id := uuid.MustParse("7b0c2a8e-7f45-4d5c-9d0a-2b1f3e9c8a11")
	assert.Equal(t, id.String()+"/batch/leaf_01_gradcam.png", core.OverlayKey(id, "batch/leaf_01.jpg"))
	assert.Equal(t, id.String()+"/noext_gradcam.png", core.OverlayKey(id, "noext"))
}

func TestTaskProcessor(t *testing.T) {
	ctx := context.Background()

	db, err := database.NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.PutObject(ctx, "leaves", "batch/good.png", bytes.NewReader(leafPNG(t, 40, 30))))
	require.NoError(t, store.PutObject(ctx, "leaves", "batch/broken.jpg", bytes.NewReader([]byte("not an image"))))

	job := database.Job{
		Id:           uuid.New(),
		SourceBucket: "leaves",
		SourcePrefix: sql.NullString{String: "batch", Valid: true},
		DestBucket:   "explanations",
		Mode:         "gradcam++",
		TopK:         3,
		Status:       database.JobRunning,
		CreationTime: time.Now().UTC(),
		TotalCount:   3,
	}
	require.NoError(t, db.Create(&job).Error)

	queue := messaging.NewInMemoryQueue()
	for _, key := range []string{"batch/good.png", "batch/broken.jpg", "batch/missing.png"} {
		require.NoError(t, queue.PublishClassifyTask(ctx, messaging.ClassifyTaskPayload{
			JobId:        job.Id,
			SourceBucket: "leaves",
			ObjectKey:    key,
			DestBucket:   "explanations",
			Mode:         "gradcam++",
			TopK:         3,
		}))
	}
	queue.Close()

	net := &channelNetwork{probs: []float32{0.2, 0.7, 0.1}}
	proc := core.NewTaskProcessor(db, store, queue, newPipeline(net), 1)
	proc.Start()

	loaded, err := database.GetJob(ctx, db, job.Id)
	require.NoError(t, err)
	assert.Equal(t, database.JobCompleted, loaded.Status)
	assert.Equal(t, 1, loaded.SucceededCount)
	assert.Equal(t, 2, loaded.FailedCount)

	results, err := database.ListJobResults(ctx, db, job.Id)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byKey := map[string]database.JobResult{}
	for _, r := range results {
		byKey[r.ObjectKey] = r
	}

	good := byKey["batch/good.png"]
	assert.Empty(t, good.Error)
	assert.Equal(t, "azadirachta_indica", good.Label)
	assert.Equal(t, 1, good.ClassIndex)
	assert.Equal(t, core.OverlayKey(job.Id, "batch/good.png"), good.OverlayKey)

	overlay, err := store.GetObject(ctx, "explanations", good.OverlayKey)
	require.NoError(t, err)
	header, err := imaging.Sniff(overlay)
	require.NoError(t, err)
	assert.Equal(t, 40, header.Width)
	assert.Equal(t, 30, header.Height)

	assert.Contains(t, byKey["batch/broken.jpg"].Error, "invalid image")
	assert.Contains(t, byKey["batch/missing.png"].Error, "error reading object")
}

type recordingTask struct {
	queue   string
	payload []byte
	acked   bool
	nacked  bool
	reject  bool
}

func (t *recordingTask) Type() string    { return t.queue }
func (t *recordingTask) Payload() []byte { return t.payload }
func (t *recordingTask) Ack() error      { t.acked = true; return nil }
func (t *recordingTask) Nack() error     { t.nacked = true; return nil }
func (t *recordingTask) Reject() error   { t.reject = true; return nil }

func TestProcessTaskRejectsMalformedMessages(t *testing.T) {
	proc := core.NewTaskProcessor(nil, nil, messaging.NewInMemoryQueue(), nil, 1)

	unknown := &recordingTask{queue: "training_queue", payload: []byte(`{}`)}
	proc.ProcessTask(unknown)
	assert.True(t, unknown.reject)

	malformed := &recordingTask{queue: messaging.ClassifyQueue, payload: []byte(`{"JobId":`)}
	proc.ProcessTask(malformed)
	assert.True(t, malformed.reject)
	assert.False(t, malformed.acked)
}
