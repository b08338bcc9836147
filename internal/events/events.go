// Package events publishes domain events without blocking the caller.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	ItemCreated = "item_created"
	ItemUpdated = "item_updated"
	ItemDeleted = "item_deleted"
)

// Event is a named occurrence with an arbitrary JSON-serialisable payload.
type Event struct {
	Name       string      `json:"name"`
	Payload    interface{} `json:"payload"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// Sink delivers one event to its destination.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

// RedisSink publishes events as JSON on a pub/sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Deliver(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Name, err)
	}
	return nil
}

// LogSink writes events to the log. Used when no broker is configured.
type LogSink struct {
	log *logrus.Logger
}

func NewLogSink(log *logrus.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Deliver(_ context.Context, ev Event) error {
	s.log.WithFields(logrus.Fields{
		"event":   ev.Name,
		"payload": ev.Payload,
	}).Info("event")
	return nil
}

// Dispatcher queues events and hands them to a Sink on a single worker
// goroutine. Delivery failures are logged and never reach the emitter.
type Dispatcher struct {
	sink    Sink
	log     *logrus.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

// NewDispatcher starts a dispatcher with room for buffer pending events.
func NewDispatcher(sink Sink, buffer int, log *logrus.Logger) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	d := &Dispatcher{
		sink:    sink,
		log:     log,
		timeout: 5 * time.Second,
		queue:   make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit enqueues an event. It never blocks: when the queue is full or the
// dispatcher is closed the event is dropped and logged.
func (d *Dispatcher) Emit(name string, payload interface{}) {
	ev := Event{Name: name, Payload: payload, OccurredAt: time.Now().UTC()}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.WithField("event", name).Warn("event dropped: dispatcher closed")
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.log.WithField("event", name).Warn("event dropped: queue full")
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithFields(logrus.Fields{"event": ev.Name, "panic": r}).Error("event sink panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.sink.Deliver(ctx, ev); err != nil {
		d.log.WithError(err).WithField("event", ev.Name).Error("event delivery failed")
	}
}

// Close stops accepting events and waits for queued ones to be delivered,
// or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
