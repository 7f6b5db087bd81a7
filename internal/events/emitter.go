// Package events publishes order lifecycle events to kafka, best-effort. A
// dropped or failed event never fails the user operation that produced it.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	TypeOrderPlaced        = "order_placed"
	TypeOrderStatusChanged = "order_status_changed"
)

type Event struct {
	EventID string    `json:"event_id"`
	Type    string    `json:"type"`
	OrderID int64     `json:"order_id"`
	UserID  int64     `json:"user_id"`
	Status  string    `json:"status,omitempty"`
	Total   float64   `json:"total,omitempty"`
	At      time.Time `json:"at"`
}

type Emitter struct {
	w       *kafka.Writer
	log     *slog.Logger
	inbox   chan kafka.Message
	closeCh chan struct{}
}

// NewEmitter returns a disabled emitter when no brokers are configured; every
// method on it is a no-op.
func NewEmitter(brokers []string, topic string, buf int, log *slog.Logger) *Emitter {
	if len(brokers) == 0 {
		return &Emitter{log: log}
	}
	return &Emitter{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		log:     log,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (e *Emitter) Enabled() bool {
	return e != nil && e.w != nil
}

func (e *Emitter) Start(ctx context.Context) {
	if !e.Enabled() {
		return
	}
	go func() {
		defer close(e.closeCh)
		for {
			select {
			case <-ctx.Done():
				e.drain()
				return
			case m, ok := <-e.inbox:
				if !ok {
					_ = e.w.Close()
					return
				}
				if err := e.w.WriteMessages(context.Background(), m); err != nil {
					e.log.Warn("event publish failed", "error", err)
				}
			}
		}
	}()
}

// Emit queues the event. When the inbox is full the event is dropped rather
// than blocking the caller.
func (e *Emitter) Emit(ev Event) {
	if !e.Enabled() {
		return
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		e.log.Warn("event marshal failed", "error", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.Type),
		Value: data,
		Time:  ev.At,
	}
	select {
	case e.inbox <- msg:
	default:
		e.log.Warn("event dropped, inbox full", "type", ev.Type)
	}
}

func (e *Emitter) drain() {
	close(e.inbox)
	for m := range e.inbox {
		_ = e.w.WriteMessages(context.Background(), m)
	}
	_ = e.w.Close()
}

func (e *Emitter) Close() {
	if e.Enabled() {
		close(e.inbox)
	}
}

func (e *Emitter) WaitClosed() {
	if e.Enabled() {
		<-e.closeCh
	}
}
