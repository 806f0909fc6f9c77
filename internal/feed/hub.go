package feed

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/julianparra1/villavix/internal/logging"
	"github.com/julianparra1/villavix/internal/posts"
)

const (
	redisChannel   = "villavix:posts:changed"
	publishTimeout = 2 * time.Second
)

// Hub fans "posts changed" signals out to live feeds on this instance and, through
// Redis, on every other instance.
type Hub struct {
	redis          *redis.Client
	log            *zap.Logger
	origin         string
	publishTimeout time.Duration

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// Subscription receives at most one pending signal; bursts coalesce into one refresh.
type Subscription struct {
	C chan struct{}
}

func NewHub(redisClient *redis.Client, logger *zap.Logger) *Hub {
	return &Hub{
		redis:          redisClient,
		log:            logging.OrNop(logger),
		origin:         uuid.NewString(),
		publishTimeout: publishTimeout,
		subs:           map[*Subscription]struct{}{},
	}
}

func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{C: make(chan struct{}, 1)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.C)
	}
}

// Notify signals local subscribers and publishes the change for other instances.
// The publish runs in the background, bounded by publishTimeout.
func (h *Hub) Notify() {
	h.deliver()

	if h.redis != nil {
		go h.publish()
	}
}

func (h *Hub) publish() {
	ctx, cancel := context.WithTimeout(context.Background(), h.publishTimeout)
	defer cancel()
	if err := h.redis.Publish(ctx, redisChannel, h.origin).Err(); err != nil {
		h.log.Warn("redis publish failed", zap.Error(err))
	}
}

func (h *Hub) deliver() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.C <- struct{}{}:
		default:
		}
	}
}

// Run relays remote notifications until ctx is done. Messages this hub published
// itself were already delivered locally and are skipped.
func (h *Hub) Run(ctx context.Context) error {
	if h.redis == nil {
		<-ctx.Done()
		return nil
	}
	pubsub := h.redis.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg.Payload != h.origin {
				h.deliver()
			}
		}
	}
}

// Relay feeds store-side change events into local subscribers only; every instance
// runs its own listener, so they are not republished.
func (h *Hub) Relay(ctx context.Context, w posts.Watcher, limit int) {
	if err := w.Watch(ctx, limit, h.deliver); err != nil {
		h.log.Error("posts listener stopped", zap.Error(err))
	}
}
