package memory

import (
	"context"
	"path"
	"sync"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// SignalBus is an in-process pub/sub used when Redis is disabled. Channel
// patterns follow path.Match, which covers the "bot:*" form. Slow
// subscribers drop messages.
type SignalBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscription
}

type subscription struct {
	pattern string
	ch      chan []byte
}

func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[int]subscription)}
}

func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if ok, _ := path.Match(sub.pattern, channel); !ok {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers until ctx ends, then closes the returned channel.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{pattern: channel, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
