package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"wallcal/internal/model"
)

// Memory is an in-process Store. It backs tests and the -once CLI mode.
type Memory struct {
	mu   sync.Mutex
	defs []model.Definition
	rev  uint64
	hub  *Hub
}

var _ Store = (*Memory)(nil)

// NewMemory returns a Memory holding copies of defs.
func NewMemory(defs ...model.Definition) *Memory {
	m := &Memory{hub: NewHub()}
	for _, d := range defs {
		m.defs = append(m.defs, d.Clone())
	}
	return m
}

func (m *Memory) All(ctx context.Context) ([]model.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(), nil
}

func (m *Memory) Get(ctx context.Context, id string) (model.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(id)
	if i < 0 {
		return model.Definition{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return m.defs[i].Clone(), nil
}

func (m *Memory) Create(ctx context.Context, def model.Definition) (model.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	def = def.Clone()
	def.ID = uuid.NewString()
	m.defs = append(m.defs, def)
	m.changed()
	return def.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, id string, patch model.Patch) (model.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.index(id)
	if i < 0 {
		return model.Definition{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	updated := patch.Apply(m.defs[i])
	updated.ID = id
	m.defs[i] = updated
	m.changed()
	return updated.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.index(id)
	if i < 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	m.defs = slices.Delete(m.defs, i, i+1)
	m.changed()
	return nil
}

func (m *Memory) ReplaceAll(ctx context.Context, defs []model.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]model.Definition, 0, len(defs))
	for _, d := range defs {
		next = append(next, d.Clone())
	}
	m.defs = next
	m.changed()
	return nil
}

func (m *Memory) Revision() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rev
}

func (m *Memory) Subscribe(buffer int) *Subscription {
	return m.hub.Subscribe(buffer)
}

func (m *Memory) index(id string) int {
	return slices.IndexFunc(m.defs, func(d model.Definition) bool { return d.ID == id })
}

func (m *Memory) snapshot() []model.Definition {
	out := make([]model.Definition, len(m.defs))
	for i, d := range m.defs {
		out[i] = d.Clone()
	}
	return out
}

// changed must be called with mu held.
func (m *Memory) changed() {
	m.rev++
	m.hub.Publish(Change{Revision: m.rev, Definitions: m.snapshot()})
}
