package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueuePublishAndReceive(t *testing.T) {
	queue := NewInMemoryQueue()
	defer queue.Close()

	payload := ClassifyTaskPayload{
		JobId:        uuid.New(),
		SourceBucket: "uploads",
		ObjectKey:    "leaves/neem.jpg",
		DestBucket:   "results",
		Mode:         "gradcam",
		TopK:         3,
	}
	require.NoError(t, queue.PublishClassifyTask(context.Background(), payload))

	task := <-queue.Tasks()
	assert.Equal(t, ClassifyQueue, task.Type())

	var got ClassifyTaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &got))
	assert.Equal(t, payload, got)
	assert.NoError(t, task.Ack())
}

func TestInMemoryQueueCloseEndsTasks(t *testing.T) {
	queue := NewInMemoryQueue()
	queue.Close()
	queue.Close()

	_, ok := <-queue.Tasks()
	assert.False(t, ok)
}

func TestInMemoryQueuePublishHonorsContext(t *testing.T) {
	queue := &InMemoryQueue{tasks: make(chan Task)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := queue.PublishClassifyTask(ctx, ClassifyTaskPayload{JobId: uuid.New()})
	assert.ErrorIs(t, err, context.Canceled)
}
