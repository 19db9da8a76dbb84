package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ClassifyQueue = "classify_queue"
	// DeadLetterQueue collects classify tasks that were nacked or rejected.
	DeadLetterQueue = ClassifyQueue + ".dead"

	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// ClassifyTaskPayload asks a worker to classify and explain one image of a
// batch job.
type ClassifyTaskPayload struct {
	JobId        uuid.UUID
	SourceBucket string
	ObjectKey    string
	DestBucket   string
	Mode         string
	Layer        string
	TopK         int
}

type Publisher interface {
	PublishClassifyTask(ctx context.Context, payload ClassifyTaskPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
