package core

import (
	"context"
	"time"

	"github.com/dkeye/octopresence/internal/domain"
)

// GroupStore owns the time-scored member sets. Nothing else mutates them.
// Implementations must be safe for concurrent use and must return
// *domain.TransportError when the backing store fails.
type GroupStore interface {
	// Add inserts channel or refreshes its score to at.
	Add(ctx context.Context, group string, channel domain.ChannelName, at time.Time) error
	// Remove drops channel from group. Missing members are not an error.
	Remove(ctx context.Context, group string, channel domain.ChannelName) error
	// Count returns the number of members touched at or after since.
	Count(ctx context.Context, group string, since time.Time) (int, error)
	// Members lists the channels touched at or after since.
	Members(ctx context.Context, group string, since time.Time) ([]domain.ChannelName, error)
	Ping(ctx context.Context) error
}

// Transport moves envelopes into per-channel mailboxes.
type Transport interface {
	// Open prepares a mailbox for a locally consumed channel.
	Open(ctx context.Context, channel domain.ChannelName) error
	// Deliver enqueues env for channel. domain.ErrChannelNotFound when the
	// transport knows the mailbox is gone, domain.ErrChannelFull on overflow.
	Deliver(ctx context.Context, channel domain.ChannelName, env domain.Envelope) error
	// Receive blocks until an envelope arrives or ctx is done.
	Receive(ctx context.Context, channel domain.ChannelName) (domain.Envelope, error)
	// Close releases the mailbox.
	Close(ctx context.Context, channel domain.ChannelName) error
}

// ChannelLayer is the pub/sub API the presence router is built on.
type ChannelLayer interface {
	Send(ctx context.Context, channel domain.ChannelName, env domain.Envelope) error
	GroupSend(ctx context.Context, group string, env domain.Envelope) (DeliveryResult, error)
	Touch(ctx context.Context, group string, channel domain.ChannelName) error
	Discard(ctx context.Context, group string, channel domain.ChannelName) error
	CountActive(ctx context.Context, group string, opts ...CountOption) (int, error)
}

// DeliveryResult reports fan-out stats; failures never abort a group send.
type DeliveryResult struct {
	Delivered int
	Failed    []DeliveryFailure
}

type DeliveryFailure struct {
	Channel domain.ChannelName
	Err     error
}

// StatusCache holds the last-known status reported by a printer agent.
type StatusCache interface {
	DeleteStatus(ctx context.Context, id domain.PrinterID) error
}

// Printer is the external record consulted by the should-watch relay.
type Printer interface {
	ID() domain.PrinterID
	ShouldWatch(ctx context.Context) (bool, error)
}

type PrinterRepository interface {
	// Printer returns domain.ErrPrinterNotFound for unknown ids.
	Printer(ctx context.Context, id domain.PrinterID) (Printer, error)
	Ping(ctx context.Context) error
}
