package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/octopresence/internal/domain"
	"github.com/rs/zerolog/log"
)

// GroupStore is a threadsafe in-process member store for single-node runs
// and tests. It never evicts members; reads filter by score.
type GroupStore struct {
	mu     sync.RWMutex
	groups map[string]map[domain.ChannelName]time.Time
}

func NewGroupStore() *GroupStore {
	return &GroupStore{groups: make(map[string]map[domain.ChannelName]time.Time)}
}

func (s *GroupStore) Add(_ context.Context, group string, channel domain.ChannelName, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.groups[group]
	if !ok {
		members = make(map[domain.ChannelName]time.Time)
		s.groups[group] = members
	}
	members[channel] = at
	log.Debug().Str("module", "adapters.memory").Str("group", group).Str("channel", string(channel)).Msg("member touched")
	return nil
}

func (s *GroupStore) Remove(_ context.Context, group string, channel domain.ChannelName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.groups[group]
	if !ok {
		return nil
	}
	delete(members, channel)
	if len(members) == 0 {
		delete(s.groups, group)
	}
	log.Debug().Str("module", "adapters.memory").Str("group", group).Str("channel", string(channel)).Msg("member removed")
	return nil
}

func (s *GroupStore) Count(_ context.Context, group string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, at := range s.groups[group] {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

// Members returns channels ordered by touch time, oldest first, like a
// sorted-set range.
func (s *GroupStore) Members(_ context.Context, group string, since time.Time) ([]domain.ChannelName, error) {
	s.mu.RLock()
	snapshot := make([]domain.Member, 0, len(s.groups[group]))
	for ch, at := range s.groups[group] {
		if !at.Before(since) {
			snapshot = append(snapshot, domain.Member{Channel: ch, TouchedAt: at})
		}
	}
	s.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].TouchedAt.Equal(snapshot[j].TouchedAt) {
			return snapshot[i].Channel < snapshot[j].Channel
		}
		return snapshot[i].TouchedAt.Before(snapshot[j].TouchedAt)
	})
	out := make([]domain.ChannelName, len(snapshot))
	for i, m := range snapshot {
		out[i] = m.Channel
	}
	return out, nil
}

// Snapshot returns the raw member set of a group, including dead members.
func (s *GroupStore) Snapshot(group string) []domain.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Member, 0, len(s.groups[group]))
	for ch, at := range s.groups[group] {
		out = append(out, domain.Member{Channel: ch, TouchedAt: at})
	}
	return out
}

func (s *GroupStore) Ping(context.Context) error { return nil }
