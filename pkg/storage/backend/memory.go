package backend

import (
	"context"
	"sync"

	"github.com/matzehuels/trek/pkg/errors"
)

// Memory implements an in-memory backend for development and testing.
// It records the order of writes so tests can assert serialization.
type Memory struct {
	mu    sync.RWMutex
	trajs map[string]map[string]Record

	writeLog []string
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{trajs: make(map[string]map[string]Record)}
}

// WriteNode upserts one node record.
func (m *Memory) WriteNode(ctx context.Context, traj string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	nodes, ok := m.trajs[traj]
	if !ok {
		nodes = make(map[string]Record)
		m.trajs[traj] = nodes
	}
	nodes[rec.FullName] = rec
	m.writeLog = append(m.writeLog, traj+":"+rec.FullName)
	return nil
}

// ReadNode reads one node record.
func (m *Memory) ReadNode(ctx context.Context, traj, fullName string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.trajs[traj][fullName]
	if !ok {
		return Record{}, errors.New(errors.ErrCodeNotFound,
			"trajectory %q has no stored node %q", traj, fullName)
	}
	return rec, nil
}

// ListChildren returns the names of the direct children of fullName.
func (m *Memory) ListChildren(ctx context.Context, traj, fullName string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := []string{}
	for key := range m.trajs[traj] {
		if parent, ok := parentOf(key); ok && parent == fullName {
			names = append(names, lastSegment(key))
		}
	}
	return names, nil
}

// DeleteNode removes one node record.
func (m *Memory) DeleteNode(ctx context.Context, traj, fullName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trajs[traj], fullName)
	if len(m.trajs[traj]) == 0 {
		delete(m.trajs, traj)
	}
	return nil
}

// ListTrajectories returns the names of all stored trajectories.
func (m *Memory) ListTrajectories(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.trajs))
	for name := range m.trajs {
		names = append(names, name)
	}
	return names, nil
}

// Close does nothing for the in-memory backend.
func (m *Memory) Close() error { return nil }

// WriteLog returns the traj:fullName keys of all writes in order.
// Intended for tests asserting write serialization.
func (m *Memory) WriteLog() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.writeLog...)
}

// Len returns the number of stored nodes for a trajectory. Intended for
// tests.
func (m *Memory) Len(traj string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trajs[traj])
}

// Ensure Memory implements Backend.
var _ Backend = (*Memory)(nil)
