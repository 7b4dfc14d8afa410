package amqp

import (
	"context"
	"sync"

	"fintrack/internal/log"
	"fintrack/internal/notify"
)

// DefaultRoutingPrefix prefixes the routing key of every settlement message.
const DefaultRoutingPrefix = "ledger"

// MessagePublisher is the part of Client the Publisher needs.
type MessagePublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Publisher forwards settlement notifications to the broker. Notify only
// enqueues; a background goroutine publishes, so a slow broker never delays
// the write path. When the buffer is full the notification is dropped.
type Publisher struct {
	client MessagePublisher
	prefix string
	logger *log.Logger

	mu     sync.Mutex
	closed bool
	queue  chan notify.Notification
	done   chan struct{}
}

var _ notify.Notifier = (*Publisher)(nil)

func NewPublisher(client MessagePublisher, prefix string, buffer int, logger *log.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultRoutingPrefix
	}
	if buffer < 1 {
		buffer = 64
	}
	p := &Publisher{
		client: client,
		prefix: prefix,
		logger: log.OrDiscard(logger).WithComponent(log.ComponentAMQP),
		queue:  make(chan notify.Notification, buffer),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Notify implements notify.Notifier.
func (p *Publisher) Notify(_ context.Context, n notify.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- n:
	default:
		p.logger.Warn("Settlement message dropped, buffer full", log.FieldMutationID, n.MutationID)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for n := range p.queue {
		msg := NewSettlementMessage(n)
		body, err := msg.ToJSON()
		if err != nil {
			p.logger.Error("Failed to marshal settlement message", log.FieldError, err)
			continue
		}
		key := msg.RoutingKey(p.prefix)
		if err := p.client.Publish(context.Background(), key, body); err != nil {
			p.logger.Error("Failed to publish settlement message",
				log.FieldMutationID, msg.MutationID, "routing_key", key, log.FieldError, err)
			continue
		}
		p.logger.Debug("Published settlement message", log.FieldMutationID, msg.MutationID, "routing_key", key)
	}
}

// Close stops accepting notifications and waits until the buffered ones are
// published or ctx ends.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
