// Package memory provides an in-memory implementation of the relay's
// Publisher port. It offers a lightweight, non-persistent bus suitable for
// testing and development environments where durability is not required.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/clipwave/mediarelay/internal/domain/events"
)

// Publisher implements the Publisher port by delivering envelopes to
// in-process subscribers and retaining every published envelope for
// inspection.
type Publisher struct {
	mu          sync.RWMutex
	subscribers []func(events.EventEnvelope) error
	published   []events.EventEnvelope
}

// NewPublisher creates an empty in-memory publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish delivers the envelope to all subscribers, stopping at the first
// error. The subscriber list is copied before iteration to avoid holding
// the lock while handlers execute.
func (p *Publisher) Publish(ctx context.Context, event events.EventEnvelope) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.Lock()
	p.published = append(p.published, event)
	subscribers := make([]func(events.EventEnvelope) error, len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.mu.Unlock()

	for _, handler := range subscribers {
		if err := handler(event); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Subscribe registers a handler for every subsequently published envelope.
// The handler is removed when ctx is canceled.
func (p *Publisher) Subscribe(ctx context.Context, handler func(events.EventEnvelope) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	p.mu.Lock()
	index := len(p.subscribers)
	p.subscribers = append(p.subscribers, handler)
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		if index < len(p.subscribers) {
			p.subscribers = append(p.subscribers[:index], p.subscribers[index+1:]...)
		}
	}()

	return nil
}

// Published returns a snapshot of every envelope published so far, in
// publish order.
func (p *Publisher) Published() []events.EventEnvelope {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]events.EventEnvelope, len(p.published))
	copy(out, p.published)
	return out
}
