package collection

import (
	"fmt"
	"sync"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
)

// Manager owns every Buffer created during one render and guarantees they
// are all closed (and their temp files removed) when the render ends,
// regardless of how many repeats bound the same collection.
type Manager struct {
	mu      sync.Mutex
	dir     string
	buffers map[string]*Buffer
}

// NewManager returns a Manager that spills buffers under dir (empty means
// the OS default temp directory).
func NewManager(dir string) *Manager {
	return &Manager{dir: dir, buffers: make(map[string]*Buffer)}
}

// GetOrCreate returns the existing buffer for name if one was already
// materialized this render, otherwise drains it into a fresh Buffer by
// calling source. Sequential calls invoke source once per name per render;
// two concurrent first calls for the same name may each invoke it, and
// only one of the resulting buffers is kept.
func (m *Manager) GetOrCreate(name string, source func() (model.ItemIterator, error)) (*Buffer, error) {
	m.mu.Lock()
	if b, ok := m.buffers[name]; ok {
		m.mu.Unlock()
		return b, nil
	}
	m.mu.Unlock()

	it, err := source()
	if err != nil {
		return nil, err
	}
	b, err := NewBuffer(m.dir, name)
	if err != nil {
		it.Close()
		return nil, err
	}
	if err := b.Fill(it); err != nil {
		b.Close()
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.buffers[name]; ok {
		// Lost a race with a concurrent GetOrCreate for the same name;
		// discard the duplicate and keep the one already registered.
		b.Close()
		return existing, nil
	}
	m.buffers[name] = b
	return b, nil
}

// CloseAll closes and removes every buffer this manager created. Safe to
// call once at the end of a render; returns the first error encountered,
// if any, after attempting to close every buffer.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, b := range m.buffers {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing buffer %q: %w", name, err)
		}
	}
	m.buffers = make(map[string]*Buffer)
	return firstErr
}
