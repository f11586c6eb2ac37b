// Package auditfeed streams committed audit records to operational and
// support tooling. The feed is a live tail, not a query surface: durable
// history stays in the audit store, and a watcher that connects late simply
// misses earlier records.
package auditfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/railstack/go-resv/v1/audit"
)

// Feed fans audit record payloads out to watchers of an entity key.
type Feed interface {
	// Publish sends data to all watchers of key.
	Publish(ctx context.Context, key string, data []byte) error
	// Watch subscribes to payloads for key until ctx is cancelled or
	// Unwatch is called.
	Watch(ctx context.Context, key string) (chan []byte, error)
	// Unwatch stops delivering payloads for key to ch.
	Unwatch(ctx context.Context, key string, ch chan []byte) error
}

// EntityKey builds the watch key for an entity. Keys embed the tenant so a
// watcher can never observe another tenant's records.
func EntityKey(tenantID, entityType string, entityID int64) string {
	return fmt.Sprintf("%s/%s/%d", tenantID, entityType, entityID)
}

// InMemoryFeed is a process-local Feed.
type InMemoryFeed struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

// NewInMemoryFeed returns a new InMemoryFeed.
func NewInMemoryFeed() *InMemoryFeed {
	return &InMemoryFeed{subs: make(map[string][]chan []byte)}
}

// Publish implements Feed.Publish. Slow watchers are skipped rather than
// blocking the publisher.
func (f *InMemoryFeed) Publish(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	chans := append([]chan []byte(nil), f.subs[key]...)
	f.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

// Watch implements Feed.Watch.
func (f *InMemoryFeed) Watch(ctx context.Context, key string) (chan []byte, error) {
	ch := make(chan []byte, 16)
	f.mu.Lock()
	f.subs[key] = append(f.subs[key], ch)
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		_ = f.Unwatch(context.Background(), key, ch)
	}()
	return ch, nil
}

// Unwatch implements Feed.Unwatch.
func (f *InMemoryFeed) Unwatch(ctx context.Context, key string, ch chan []byte) error {
	f.mu.Lock()
	subs := f.subs[key]
	for i, c := range subs {
		if c == ch {
			subs[i] = subs[len(subs)-1]
			subs = subs[:len(subs)-1]
			f.subs[key] = subs
			close(c)
			break
		}
	}
	if len(subs) == 0 {
		delete(f.subs, key)
	}
	f.mu.Unlock()
	return nil
}

// Sink adapts a Feed into an audit.Sink so the recorder publishes every
// committed record onto its entity's watch key.
type Sink struct {
	feed Feed
}

// NewSink returns a Sink publishing to feed.
func NewSink(feed Feed) *Sink {
	return &Sink{feed: feed}
}

// Publish implements audit.Sink.
func (s *Sink) Publish(ctx context.Context, rec *audit.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.feed.Publish(ctx, EntityKey(rec.TenantID, rec.EntityType, rec.EntityID), data)
}
