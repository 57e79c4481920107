package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChannelName addresses a single connected client's mailbox.
type ChannelName string

const specificPrefix = "specific."

// NewChannelName returns a process-unique mailbox address.
func NewChannelName() ChannelName {
	return ChannelName(specificPrefix + strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// ValidateChannelName rejects names the stores cannot key on.
func ValidateChannelName(name ChannelName) error {
	if name == "" || len(name) > maxChannelLen {
		return fmt.Errorf("%w: %q", ErrInvalidChannelName, name)
	}
	if strings.ContainsAny(string(name), " \t\r\n") {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidChannelName, name)
	}
	return nil
}

// Member is one channel's participation in a group.
// No transport or lifecycle logic here.
type Member struct {
	Channel   ChannelName `json:"channel"`
	TouchedAt time.Time   `json:"touched_at"`
}

// AliveAt reports whether the member was touched within window of now.
// The boundary is inclusive.
func (m Member) AliveAt(now time.Time, window time.Duration) bool {
	return !m.TouchedAt.Before(now.Add(-window))
}
