package storage

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu         sync.RWMutex
	byUsername map[string]User
	byUUID     map[uint64]User
	flowIDs    map[uint64]struct{}
	flows      []Flow
	messages   []Message
}

// NewMemory creates a concurrency-safe in-memory repository. It backs the
// unit tests and the default storage configuration.
func NewMemory() Repository {
	return &memoryRepository{
		byUsername: make(map[string]User),
		byUUID:     make(map[uint64]User),
		flowIDs:    make(map[uint64]struct{}),
	}
}

func (r *memoryRepository) FindUserByUsername(_ context.Context, username string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byUsername[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindUserByUUID(_ context.Context, uuid uint64) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byUUID[uuid]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryRepository) CreateUser(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byUsername[user.Username]; exists {
		return ErrDuplicateUsername
	}
	if _, exists := r.byUUID[user.UUID]; exists {
		return ErrDuplicateID
	}
	r.byUsername[user.Username] = user
	r.byUUID[user.UUID] = user
	return nil
}

func (r *memoryRepository) CreateMessage(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

func (r *memoryRepository) ListMessages(_ context.Context) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out, nil
}

func (r *memoryRepository) CreateFlow(_ context.Context, flow Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.flowIDs[flow.FlowID]; exists {
		return ErrDuplicateID
	}
	r.flowIDs[flow.FlowID] = struct{}{}
	r.flows = append(r.flows, flow)
	return nil
}

func (r *memoryRepository) ListFlows(_ context.Context) ([]Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Flow, len(r.flows))
	copy(out, r.flows)
	return out, nil
}
