package syncbus

import (
	"context"
	stdErrors "errors"
	"sync"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"

	resverrors "github.com/railstack/go-resv/v1/errors"
)

const redisBusTimeout = 5 * time.Second

type redisSubscription struct {
	pubsub *redis.PubSub
	chans  []chan struct{}
}

// RedisBus implements Bus over Redis Pub/Sub. One PubSub connection is held
// per topic and fanned out to local subscribers.
type RedisBus struct {
	client *redis.Client

	mu        sync.Mutex
	subs      map[string]*redisSubscription
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewRedisBus returns a new RedisBus using the provided client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client, subs: make(map[string]*redisSubscription)}
}

// Publish implements Bus.Publish.
func (b *RedisBus) Publish(ctx context.Context, topic string) error {
	cctx, cancel := context.WithTimeout(ctx, redisBusTimeout)
	defer cancel()
	if err := b.client.Publish(cctx, topic, "1").Err(); err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return resverrors.ErrTimeout
		}
		if stdErrors.Is(err, redis.ErrClosed) {
			return resverrors.ErrConnectionClosed
		}
		return err
	}
	b.published.Add(1)
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (chan struct{}, error) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	sub, ok := b.subs[topic]
	if ok {
		sub.chans = append(sub.chans, ch)
		b.mu.Unlock()
	} else {
		b.mu.Unlock()
		cctx, cancel := context.WithTimeout(ctx, redisBusTimeout)
		ps := b.client.Subscribe(cctx, topic)
		_, err := ps.Receive(cctx)
		cancel()
		if err != nil {
			_ = ps.Close()
			if stdErrors.Is(err, context.DeadlineExceeded) {
				return nil, resverrors.ErrTimeout
			}
			return nil, err
		}
		b.mu.Lock()
		sub = &redisSubscription{pubsub: ps, chans: []chan struct{}{ch}}
		b.subs[topic] = sub
		b.mu.Unlock()
		go b.dispatch(topic, sub)
	}

	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), topic, ch)
	}()
	return ch, nil
}

func (b *RedisBus) dispatch(topic string, sub *redisSubscription) {
	for range sub.pubsub.Channel() {
		b.mu.Lock()
		chans := append([]chan struct{}(nil), sub.chans...)
		b.mu.Unlock()
		for _, ch := range chans {
			select {
			case ch <- struct{}{}:
				b.delivered.Add(1)
			default:
			}
		}
	}
}

// Unsubscribe implements Bus.Unsubscribe. Closing the last local subscriber
// for a topic tears down the Redis subscription.
func (b *RedisBus) Unsubscribe(ctx context.Context, topic string, ch chan struct{}) error {
	b.mu.Lock()
	sub := b.subs[topic]
	if sub == nil {
		b.mu.Unlock()
		return nil
	}
	for i, c := range sub.chans {
		if c == ch {
			sub.chans[i] = sub.chans[len(sub.chans)-1]
			sub.chans = sub.chans[:len(sub.chans)-1]
			close(c)
			break
		}
	}
	if len(sub.chans) > 0 {
		b.mu.Unlock()
		return nil
	}
	delete(b.subs, topic)
	b.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, redisBusTimeout)
	defer cancel()
	_ = sub.pubsub.Unsubscribe(cctx, topic)
	if err := sub.pubsub.Close(); err != nil {
		if stdErrors.Is(err, redis.ErrClosed) {
			return resverrors.ErrConnectionClosed
		}
		return err
	}
	return nil
}

// Close tears down all Redis subscriptions held by the bus.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		_ = sub.pubsub.Close()
		for _, ch := range sub.chans {
			close(ch)
		}
	}
	b.subs = make(map[string]*redisSubscription)
	return nil
}

// Metrics returns the published and delivered counts.
func (b *RedisBus) Metrics() Metrics {
	return Metrics{Published: b.published.Load(), Delivered: b.delivered.Load()}
}
