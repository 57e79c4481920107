package memory

import (
	"context"
	"sync"

	"github.com/dkeye/octopresence/internal/domain"
	"github.com/rs/zerolog/log"
)

// Transport keeps one buffered mailbox per opened channel. Delivery to a
// channel nobody opened fails with domain.ErrChannelNotFound.
type Transport struct {
	mu        sync.RWMutex
	mailboxes map[domain.ChannelName]chan domain.Envelope
	capacity  int
}

func NewTransport(capacity int) *Transport {
	if capacity < 1 {
		capacity = 1
	}
	return &Transport{
		mailboxes: make(map[domain.ChannelName]chan domain.Envelope),
		capacity:  capacity,
	}
}

func (t *Transport) Open(_ context.Context, channel domain.ChannelName) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.mailboxes[channel]; !ok {
		t.mailboxes[channel] = make(chan domain.Envelope, t.capacity)
	}
	return nil
}

func (t *Transport) Deliver(_ context.Context, channel domain.ChannelName, env domain.Envelope) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	mb, ok := t.mailboxes[channel]
	if !ok {
		return domain.ErrChannelNotFound
	}
	select {
	case mb <- env:
		return nil
	default:
		log.Warn().Str("module", "adapters.memory").Str("channel", string(channel)).Msg("mailbox full")
		return domain.ErrChannelFull
	}
}

func (t *Transport) Receive(ctx context.Context, channel domain.ChannelName) (domain.Envelope, error) {
	t.mu.RLock()
	mb, ok := t.mailboxes[channel]
	t.mu.RUnlock()
	if !ok {
		return domain.Envelope{}, domain.ErrChannelNotFound
	}
	select {
	case <-ctx.Done():
		return domain.Envelope{}, ctx.Err()
	case env, ok := <-mb:
		if !ok {
			return domain.Envelope{}, domain.ErrChannelNotFound
		}
		return env, nil
	}
}

func (t *Transport) Close(_ context.Context, channel domain.ChannelName) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if mb, ok := t.mailboxes[channel]; ok {
		delete(t.mailboxes, channel)
		close(mb)
	}
	return nil
}
