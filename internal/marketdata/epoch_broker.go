package marketdata

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EpochBroker fans out publish-epoch notifications to subscribers
// (spec.md §4.2's subscribe() stream). Two implementations share the same
// per-key monotonic ordering contract: localBroker (in-process, default)
// and redisBroker (multi-process, opt-in via REDIS_URL per SPEC_FULL.md).
type EpochBroker interface {
	Publish(key string, epoch uint64)
	Subscribe() (<-chan Notification, func())
}

// Notification is one publish-epoch event: key identifies the
// (exchange,symbol) pair, epoch is MDS's monotonically increasing stamp.
type Notification struct {
	Key   string
	Epoch uint64
}

// localBroker is the default in-process broker: a buffered-channel fan-out,
// the same pattern internal/events.Bus uses for event delivery.
type localBroker struct {
	mu   sync.RWMutex
	subs map[int]chan Notification
	next int
}

// NewLocalBroker creates the default in-process EpochBroker.
func NewLocalBroker() EpochBroker {
	return &localBroker{subs: make(map[int]chan Notification)}
}

func (b *localBroker) Publish(key string, epoch uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := Notification{Key: key, Epoch: epoch}
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func (b *localBroker) Subscribe() (<-chan Notification, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Notification, 64)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// redisBroker fans out over a redis pub/sub channel, letting OD/SE run in a
// separate process from MDS (SPEC_FULL.md's EpochBroker section).
type redisBroker struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

// NewRedisBroker creates a multi-process EpochBroker backed by client.
func NewRedisBroker(client *redis.Client, channel string, log zerolog.Logger) EpochBroker {
	return &redisBroker{client: client, channel: channel, log: log.With().Str("component", "marketdata_redis_broker").Logger()}
}

func (b *redisBroker) Publish(key string, epoch uint64) {
	payload, err := json.Marshal(Notification{Key: key, Epoch: epoch})
	if err != nil {
		b.log.Error().Err(err).Msg("failed to marshal epoch notification")
		return
	}
	if err := b.client.Publish(context.Background(), b.channel, payload).Err(); err != nil {
		b.log.Warn().Err(err).Msg("failed to publish epoch notification to redis")
	}
}

func (b *redisBroker) Subscribe() (<-chan Notification, func()) {
	sub := b.client.Subscribe(context.Background(), b.channel)
	out := make(chan Notification, 64)
	done := make(chan struct{})

	go func() {
		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					close(out)
					return
				}
				var n Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					b.log.Warn().Err(err).Msg("failed to unmarshal epoch notification")
					continue
				}
				select {
				case out <- n:
				default:
				}
			case <-done:
				close(out)
				return
			}
		}
	}()

	return out, func() {
		close(done)
		_ = sub.Close()
	}
}
