package agent

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds the agents for every configured room and routes inbound
// messages to them. Rooms are fixed at startup; messages from rooms without
// an agent are dropped.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*RoomAgent
}

// NewRegistry builds one agent per room ID using the supplied constructor.
// On any failure the already-built agents are stopped before returning.
func NewRegistry(roomIDs []string, build func(roomID string) (*RoomAgent, error)) (*Registry, error) {
	r := &Registry{agents: make(map[string]*RoomAgent, len(roomIDs))}
	for _, roomID := range roomIDs {
		if _, ok := r.agents[roomID]; ok {
			r.Stop()
			return nil, fmt.Errorf("registry: duplicate room %s", roomID)
		}
		a, err := build(roomID)
		if err != nil {
			r.Stop()
			return nil, fmt.Errorf("registry: room %s: %w", roomID, err)
		}
		r.agents[roomID] = a
	}
	return r, nil
}

// Dispatch hands an inbound message to its room's agent.
func (r *Registry) Dispatch(in Inbound) {
	r.mu.RLock()
	a, ok := r.agents[in.RoomID]
	r.mu.RUnlock()
	if !ok {
		slog.Debug("registry: message for unconfigured room dropped", "room", in.RoomID)
		return
	}
	a.Enqueue(in)
}

// Rooms returns the configured room IDs.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.agents))
	for roomID := range r.agents {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// Stop tears down every agent.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agents {
		a.Stop()
	}
}
