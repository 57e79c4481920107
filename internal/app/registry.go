package app

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/octopresence/internal/domain"
	"github.com/rs/zerolog/log"
)

// Session describes one local socket.
type Session struct {
	Channel domain.ChannelName `json:"channel"`
	Group   string             `json:"group"`
	Client  string             `json:"client,omitempty"`
}

type sessionEntry struct {
	Group  domain.GroupName
	Client string
	Cancel context.CancelFunc
}

// Registry tracks the sockets served by this process. Group membership
// itself lives in the channel layer; the registry only knows which local
// channel belongs to which group and how to stop it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ChannelName]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.ChannelName]*sessionEntry)}
}

// Bind records a socket. client is the HTTP client token of the browser or
// agent that opened it, empty when unknown.
func (r *Registry) Bind(channel domain.ChannelName, group domain.GroupName, client string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[channel] = &sessionEntry{Group: group, Client: client, Cancel: cancel}
	log.Info().
		Str("module", "app.registry").
		Str("channel", string(channel)).
		Str("group", group.String()).
		Str("client", client).
		Msg("bound session")
}

func (r *Registry) Unbind(channel domain.ChannelName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, channel)
	log.Info().Str("module", "app.registry").Str("channel", string(channel)).Msg("unbind session")
}

func (r *Registry) GroupOf(channel domain.ChannelName) (domain.GroupName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[channel]
	if !ok {
		return domain.GroupName{}, false
	}
	return e.Group, true
}

// MembersOf lists local sessions bound to group, sorted by channel.
func (r *Registry) MembersOf(group domain.GroupName) []Session {
	r.mu.RLock()
	out := make([]Session, 0)
	for ch, e := range r.sessions {
		if e.Group == group {
			out = append(out, Session{Channel: ch, Group: group.String(), Client: e.Client})
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(channel domain.ChannelName) bool {
	r.mu.RLock()
	e, ok := r.sessions[channel]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("channel", string(channel)).Msg("canceled session")
	return true
}

// CancelAll stops every local session, used on shutdown so each socket
// discards itself from its group.
func (r *Registry) CancelAll() int {
	r.mu.RLock()
	cancels := make([]context.CancelFunc, 0, len(r.sessions))
	for _, e := range r.sessions {
		if e.Cancel != nil {
			cancels = append(cancels, e.Cancel)
		}
	}
	r.mu.RUnlock()
	for _, c := range cancels {
		c()
	}
	log.Info().Str("module", "app.registry").Int("sessions", len(cancels)).Msg("canceled all sessions")
	return len(cancels)
}
