package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps request and modmail state in process memory. It is used
// when persistent storage is disabled; state is lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	requests []Request
	notes    []ProgressNote
	threads  map[string]string // user -> thread
	routes   []RouteEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]string)}
}

func (m *MemoryStore) CreateRequest(_ context.Context, req Request) (Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return req, nil
}

func (m *MemoryStore) CountRequestsSince(_ context.Context, channelID, authorID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.ChannelID == channelID && r.AuthorID == authorID && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) RequestByInternalMessage(_ context.Context, internalMessageID string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.requests {
		if m.requests[i].InternalMessageID == internalMessageID {
			r := m.requests[i]
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) AddProgressNote(_ context.Context, note ProgressNote) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}
	m.mu.Lock()
	m.notes = append(m.notes, note)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ProgressNotes(_ context.Context, requestID string) ([]ProgressNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ProgressNote
	for _, n := range m.notes {
		if n.RequestID == requestID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ModmailThreadForUser(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.threads[userID]; ok {
		return id, nil
	}
	return "", ErrNotFound
}

func (m *MemoryStore) ModmailUserForThread(_ context.Context, threadID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for user, thread := range m.threads {
		if thread == threadID {
			return user, nil
		}
	}
	return "", ErrNotFound
}

func (m *MemoryStore) SaveModmailThread(_ context.Context, userID, threadID string) error {
	m.mu.Lock()
	m.threads[userID] = threadID
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) RecordRoute(_ context.Context, e RouteEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.mu.Lock()
	m.routes = append(m.routes, e)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) RecentRoutes(_ context.Context, limit int) ([]RouteEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RouteEntry
	for i := len(m.routes) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.routes[i])
	}
	return out, nil
}
