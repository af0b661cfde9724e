package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

var ErrProducerClosed = errors.New("kafka: producer closed")

const peerKafka = "kafka"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer relays domain events to a topic. Publish only enqueues; a single
// goroutine writes and logs failures.
type Producer struct {
	w       messageWriter
	inbox   chan kafka.Message
	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	log     observability.Logger
	ext     observability.Counter
	extDur  observability.Histogram
	started sync.Once
}

func NewProducer(brokers []string, topic string, buf int, tel observability.Observability) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newProducer(w, buf, tel)
}

func newProducer(w messageWriter, buf int, tel observability.Observability) *Producer {
	logger, _, metrics := observability.Resolve(tel)
	if buf <= 0 {
		buf = 1024
	}
	return &Producer{
		w:      w,
		inbox:  make(chan kafka.Message, buf),
		done:   make(chan struct{}),
		log:    logger.With(observability.F("component", "kafka_producer")),
		ext:    metrics.Counter(observability.MExternalRequests),
		extDur: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

func (p *Producer) Start() {
	p.started.Do(func() { go p.loop() })
}

func (p *Producer) loop() {
	defer close(p.done)
	for m := range p.inbox {
		start := time.Now()
		err := p.w.WriteMessages(context.Background(), m)
		outcome := "success"
		if err != nil {
			outcome = "error"
			p.log.Error("kafka_write_failed",
				observability.F("key", string(m.Key)),
				observability.F("error", err),
			)
		}
		p.ext.Add(1,
			observability.L("peer", peerKafka),
			observability.L("endpoint", "write"),
			observability.L("outcome", outcome),
		)
		p.extDur.Observe(time.Since(start).Seconds(),
			observability.L("peer", peerKafka),
			observability.L("endpoint", "write"),
		)
	}
}

// Handle is a domoutbox.Handler that wraps e in an Envelope and enqueues it.
func (p *Producer) Handle(ctx context.Context, e domoutbox.Event) error {
	env, err := NewEnvelope(e)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kafka: encode envelope: %w", err)
	}
	return p.enqueue(ctx, kafka.Message{
		Key:   []byte(PartitionKey(e)),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
		},
	})
}

func (p *Producer) enqueue(ctx context.Context, m kafka.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes queued messages and closes the writer. It waits for the flush
// until ctx expires.
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.inbox)
	p.mu.Unlock()

	p.Start()
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.w.Close()
}
