// Copyright (c) 2025 TRELLIS LABS PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package eventbus

import (
	"context"
	"errors"
	"sync"
)

// Bus is a thin abstraction over the console's internal event distribution.
type Bus interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(topic string, ch chan<- any) (unsubscribe func(), err error)
}

// Memory is an in-process Bus suitable for a single-node console. Delivery
// is best effort: a subscriber whose channel is full misses the payload
// rather than blocking the publisher.
type Memory struct {
	mu     sync.RWMutex
	topics map[string][]chan<- any
}

var _ Bus = (*Memory)(nil)

// NewMemory creates an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{topics: make(map[string][]chan<- any)}
}

// Publish fans the payload out to every subscriber of topic.
func (b *Memory) Publish(ctx context.Context, topic string, payload any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.topics[topic] {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a channel for a topic and returns its unsubscribe
// function. The caller owns the channel and must keep draining it until
// unsubscribed.
func (b *Memory) Subscribe(topic string, ch chan<- any) (func(), error) {
	if ch == nil {
		return nil, errors.New("eventbus: channel must not be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[topic] = append(b.topics[topic], ch)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.topics[topic]
		for i := range subs {
			if subs[i] == ch {
				b.topics[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.topics[topic]) == 0 {
			delete(b.topics, topic)
		}
	}, nil
}
