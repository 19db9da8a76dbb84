package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

func dial(url string) (*amqp.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxConnectRetry; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			slog.Info("connected to rabbitmq", "attempt", attempt)
			return conn, nil
		}
		lastErr = err
		slog.Warn("rabbitmq dial failed", "attempt", attempt, "max_attempts", MaxConnectRetry, "error", err)
		time.Sleep(RetryDelay)
	}
	return nil, fmt.Errorf("unable to reach rabbitmq after %d attempts: %w", MaxConnectRetry, lastErr)
}

// openChannel opens a channel and declares the classify queue together with
// its dead letter queue. Both sides declare the same topology, so whichever
// starts first creates it.
func openChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", DeadLetterQueue, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadLetterQueue,
	}
	if _, err := ch.QueueDeclare(ClassifyQueue, true, false, false, false, args); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", ClassifyQueue, err)
	}
	return ch, nil
}

type RabbitMQPublisher struct {
	mu      sync.RWMutex
	url     string
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

func NewRabbitMQPublisher(rabbitMQURL string) (*RabbitMQPublisher, error) {
	p := &RabbitMQPublisher{url: rabbitMQURL}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect must be called with mu held for writing, or before p is shared.
func (p *RabbitMQPublisher) connect() error {
	conn, err := dial(p.url)
	if err != nil {
		return err
	}
	ch, err := openChannel(conn)
	if err != nil {
		conn.Close()
		return err
	}

	p.conn, p.channel = conn, ch
	go p.watch(ch)
	return nil
}

// watch reconnects after the broker drops the channel.
func (p *RabbitMQPublisher) watch(ch *amqp.Channel) {
	amqpErr, ok := <-ch.NotifyClose(make(chan *amqp.Error, 1))
	if !ok {
		return
	}
	slog.Warn("rabbitmq publisher channel lost, reconnecting", "error", amqpErr)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.conn, p.channel = nil, nil
	for !p.closed {
		if err := p.connect(); err == nil {
			slog.Info("rabbitmq publisher reconnected")
			return
		}
		time.Sleep(RetryDelay * 10)
	}
}

func (p *RabbitMQPublisher) publish(ctx context.Context, queue string, correlationId string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", queue, err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.channel == nil || p.channel.IsClosed() {
		return fmt.Errorf("rabbitmq channel is not open")
	}

	err = p.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: correlationId,
		Timestamp:     time.Now().UTC(),
		Body:          body,
	})
	if err != nil {
		slog.Error("rabbitmq publish failed", "queue", queue, "correlation_id", correlationId, "error", err)
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return nil
}

// PublishClassifyTask correlates the message with its job id so the dead
// letter queue can be traced back to jobs.
func (p *RabbitMQPublisher) PublishClassifyTask(ctx context.Context, payload ClassifyTaskPayload) error {
	return p.publish(ctx, ClassifyQueue, payload.JobId.String(), payload)
}

func (p *RabbitMQPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			slog.Error("error closing rabbitmq publisher", "error", err)
		}
	}
}

type RabbitMQTask struct {
	d amqp.Delivery
}

func (t *RabbitMQTask) Type() string {
	return t.d.RoutingKey
}

func (t *RabbitMQTask) Payload() []byte {
	return t.d.Body
}

func (t *RabbitMQTask) Ack() error {
	return t.d.Ack(false)
}

// Nack moves the delivery to the dead letter queue.
func (t *RabbitMQTask) Nack() error {
	return t.d.Nack(false, false)
}

// Reject moves a delivery that can never succeed to the dead letter queue.
func (t *RabbitMQTask) Reject() error {
	return t.d.Reject(false)
}

type RabbitMQReceiver struct {
	url      string
	prefetch int
	tasks    chan Task
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRabbitMQReceiver consumes the classify queue with at most prefetch
// unacknowledged deliveries in flight.
func NewRabbitMQReceiver(rabbitMQURL string, prefetch int) (*RabbitMQReceiver, error) {
	r := &RabbitMQReceiver{
		url:      rabbitMQURL,
		prefetch: max(prefetch, 1),
		tasks:    make(chan Task),
		stop:     make(chan struct{}),
	}
	if err := r.subscribe(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQReceiver) subscribe() error {
	conn, err := dial(r.url)
	if err != nil {
		return err
	}
	ch, err := openChannel(conn)
	if err != nil {
		conn.Close()
		return err
	}

	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set prefetch to %d: %w", r.prefetch, err)
	}

	deliveries, err := ch.Consume(ClassifyQueue, "", false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to consume from %s: %w", ClassifyQueue, err)
	}
	slog.Info("consuming rabbitmq queue", "queue", ClassifyQueue, "prefetch", r.prefetch)

	go r.forward(deliveries)
	go r.watch(conn, ch)
	return nil
}

func (r *RabbitMQReceiver) forward(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		select {
		case r.tasks <- &RabbitMQTask{d: d}:
		case <-r.stop:
			return
		}
	}
}

// watch resubscribes after the broker drops the channel and closes the
// connection once the receiver is stopped.
func (r *RabbitMQReceiver) watch(conn *amqp.Connection, ch *amqp.Channel) {
	select {
	case amqpErr, ok := <-ch.NotifyClose(make(chan *amqp.Error, 1)):
		if !ok {
			return
		}
		slog.Warn("rabbitmq consumer channel lost, resubscribing", "error", amqpErr)
		for {
			select {
			case <-r.stop:
				return
			default:
			}
			if err := r.subscribe(); err == nil {
				slog.Info("rabbitmq consumer resubscribed")
				return
			}
			time.Sleep(RetryDelay * 10)
		}
	case <-r.stop:
		if err := conn.Close(); err != nil {
			slog.Error("error closing rabbitmq consumer", "error", err)
		}
	}
}

func (r *RabbitMQReceiver) Tasks() <-chan Task {
	return r.tasks
}

func (r *RabbitMQReceiver) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}
