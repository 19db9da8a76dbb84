package integrationtests

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"leaf-backend/internal/core"
	"leaf-backend/internal/core/inference"
	"leaf-backend/internal/core/saliency"
	"leaf-backend/internal/core/types"
	"leaf-backend/internal/messaging"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	minioUsername = "admin"
	minioPassword = "password"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := minioContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	return "http://" + connStr
}

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	dbName, dbUser, dbPassword := "test_db", "test_user", "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		err := postgresContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate PostgreSQL container")
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get PostgreSQL connection string")

	return connStr
}

func startRabbitMQ(t *testing.T, ctx context.Context) string {
	rabbitmqContainer, err := rabbitmq.Run(ctx, "rabbitmq:3.13-management-alpine")
	require.NoError(t, err, "Failed to start RabbitMQ container")

	t.Cleanup(func() {
		err := rabbitmqContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate RabbitMQ container")
	})

	connStr, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err, "Failed to get RabbitMQ AMQP URL")

	return connStr
}

func setupRabbitMQContainer(t *testing.T, ctx context.Context) (*messaging.RabbitMQPublisher, *messaging.RabbitMQReceiver) {
	connStr := startRabbitMQ(t, ctx)

	publisher, err := messaging.NewRabbitMQPublisher(connStr)
	require.NoError(t, err)
	t.Cleanup(publisher.Close)

	receiver, err := messaging.NewRabbitMQReceiver(connStr, 1)
	require.NoError(t, err)
	t.Cleanup(receiver.Close)

	return publisher, receiver
}

var labels = []string{"alpinia_galanga", "azadirachta_indica", "jasminum"}

// gridNetwork stands in for the onnx classifier: it always predicts jasminum
// and explains with a diagonal activation pattern.
type gridNetwork struct{}

func (gridNetwork) Classes() []string     { return labels }
func (gridNetwork) InputSize() (int, int) { return 32, 32 }
func (gridNetwork) Layers() []string      { return []string{saliency.DefaultLayer} }
func (gridNetwork) Close()                {}

func (gridNetwork) Predict(in inference.Inputs) ([]float32, error) {
	return []float32{0.1, 0.3, 0.6}, nil
}

func (gridNetwork) Gradients(in inference.Inputs, layer string, class int) (types.Tensor, types.Tensor, []float32, error) {
	acts := types.NewTensor(1, 4, 4, 3)
	grads := types.NewTensor(1, 4, 4, 3)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			i := (y*4 + x) * 3
			if x == y {
				acts.Data[i+class] = 1
			}
			grads.Data[i+class] = 1
		}
	}
	return acts, grads, []float32{0.1, 0.3, 0.6}, nil
}

func newTestPipeline() *core.Pipeline {
	classifier := inference.NewClassifier(gridNetwork{}, inference.ActivationSoftmax)
	return core.NewPipeline(classifier, nil, nil, core.DefaultConfig())
}

func leafPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 25, G: uint8(90 + (x*y)%120), B: 35, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
