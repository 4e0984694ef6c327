// Package realtime holds the live side of chat: user groups, websocket connections and the inbox.
package realtime

import (
	"context"
	"strconv"
	"sync"
)

type (
	// Member is a live connection that can join groups.
	Member interface {
		ID() string
		// Send queues payload for delivery and must not block.
		Send(payload []byte) error
		Close()
	}

	// Publisher fans a payload out to every member of a group.
	Publisher interface {
		Publish(ctx context.Context, group string, payload []byte) error
	}

	Stats struct {
		Groups      int `json:"groups"`
		Connections int `json:"connections"`
	}

	// Registry maps groups to their live members. It is safe for concurrent use.
	Registry struct {
		mu     sync.RWMutex
		groups map[string]map[string]Member
	}
)

var _ Publisher = (*Registry)(nil)

// UserGroup is the inbox group of a user: every open connection of that user joins it.
func UserGroup(userID int) string {
	return "user_" + strconv.Itoa(userID)
}

func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]map[string]Member)}
}

func (r *Registry) Join(group string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		members = make(map[string]Member)
		r.groups[group] = members
	}
	members[m.ID()] = m
}

// Leave removes m from group. Leaving a group one is not part of is a no-op.
func (r *Registry) Leave(group string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		return
	}
	delete(members, m.ID())
	if len(members) == 0 {
		delete(r.groups, group)
	}
}

// Members returns a snapshot of the members of group.
func (r *Registry) Members(group string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Member, 0, len(r.groups[group]))
	for _, m := range r.groups[group] {
		members = append(members, m)
	}
	return members
}

// Deliver sends payload to the members of group in this process and returns how many accepted it.
// Sends happen outside the lock so a slow member cannot stall joins and leaves.
func (r *Registry) Deliver(group string, payload []byte) int {
	var delivered int
	for _, m := range r.Members(group) {
		if err := m.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) Publish(_ context.Context, group string, payload []byte) error {
	r.Deliver(group, payload)
	return nil
}

// CloseAll closes every member. Members leave their groups as their handlers return.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	members := make([]Member, 0)
	for _, group := range r.groups {
		for _, m := range group {
			members = append(members, m)
		}
	}
	r.mu.RUnlock()

	for _, m := range members {
		m.Close()
	}
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{Groups: len(r.groups)}
	for _, members := range r.groups {
		stats.Connections += len(members)
	}
	return stats
}
