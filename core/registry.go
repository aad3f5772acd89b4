package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry creates, looks up, and destroys rooms by id. The registry map has
// its own lock; each room serializes its own state, so operations on
// different rooms never contend.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	logger *slog.Logger

	// emptyTTL is how long a room may sit empty before the janitor destroys
	// it. Zero keeps empty rooms forever.
	emptyTTL      time.Duration
	sweepInterval time.Duration
}

type RegistryOption func(*Registry)

// WithEmptyRoomTTL enables destruction of rooms that have been empty of users
// for at least ttl.
func WithEmptyRoomTTL(ttl time.Duration) RegistryOption {
	return func(g *Registry) {
		g.emptyTTL = ttl
	}
}

func WithSweepInterval(d time.Duration) RegistryOption {
	return func(g *Registry) {
		g.sweepInterval = d
	}
}

func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	g := &Registry{
		rooms:         make(map[string]*Room),
		logger:        logger,
		sweepInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GetOrCreate creates a room, failing with ErrRoomExists when the id is
// already taken. An empty password leaves the room unprotected.
func (g *Registry) GetOrCreate(id, password string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.rooms[id]; ok {
		return nil, ErrRoomExists
	}
	room := newRoom(id, password, g.logger)
	g.rooms[id] = room
	g.logger.Info(fmt.Sprintf("room %s created", id))
	return room, nil
}

// Get looks up an existing room, failing with ErrRoomNotFound when absent.
func (g *Registry) Get(id string) (*Room, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (g *Registry) Destroy(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, id)
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// StartJanitor periodically destroys rooms that have been empty longer than
// the configured TTL. It is a no-op when no TTL is set.
func (g *Registry) StartJanitor(ctx context.Context) {
	if g.emptyTTL <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(g.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.sweep(time.Now())
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (g *Registry) sweep(now time.Time) {
	if g.emptyTTL <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, room := range g.rooms {
		since, empty := room.EmptySince()
		if empty && now.Sub(since) >= g.emptyTTL {
			delete(g.rooms, id)
			g.logger.Info(fmt.Sprintf("room %s destroyed after sitting empty", id))
		}
	}
}
