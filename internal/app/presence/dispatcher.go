package presence

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

const (
	DefaultDispatchWorkers = 8
	DefaultDispatchQueue   = 1024
)

var (
	ErrDispatcherClosed = errors.New("dispatcher closed")
	ErrQueueFull        = errors.New("dispatch queue full")
)

// ConnectionChanger is the part of Router the dispatcher drives.
type ConnectionChanger interface {
	OnConnectionChange(ctx context.Context, group string) error
}

// Dispatcher runs connection-change handling off the caller's goroutine.
// Events are queued and handled by a fixed set of workers; failures are
// logged.
type Dispatcher struct {
	target ConnectionChanger
	queue  chan string
	ctx    context.Context
	cancel context.CancelFunc
	pool   *pool.ContextPool

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(parent context.Context, target ConnectionChanger, workers, queue int) *Dispatcher {
	if workers < 1 {
		workers = DefaultDispatchWorkers
	}
	if queue < 1 {
		queue = DefaultDispatchQueue
	}
	ctx, cancel := context.WithCancel(parent)
	d := &Dispatcher{
		target: target,
		queue:  make(chan string, queue),
		ctx:    ctx,
		cancel: cancel,
		pool:   pool.New().WithContext(ctx),
	}
	for range workers {
		d.pool.Go(d.work)
	}
	return d
}

// Dispatch enqueues a connection change for group. It never blocks; a full
// queue drops the event.
func (d *Dispatcher) Dispatch(group string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- group:
		return nil
	default:
		log.Warn().Str("module", "app.presence").Str("group", group).Msg("dispatch queue full, event dropped")
		return ErrQueueFull
	}
}

func (d *Dispatcher) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case group, ok := <-d.queue:
			if !ok {
				return nil
			}
			if err := d.target.OnConnectionChange(ctx, group); err != nil {
				log.Error().Err(err).Str("module", "app.presence").Str("group", group).Msg("connection change")
			}
		}
	}
}

// Close stops accepting events, drains what is queued and waits for the
// workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	_ = d.pool.Wait()
	d.cancel()
}
