package storage

import (
	"sync"

	"legato/internal/player"
)

// Memory keeps the state in process memory. It is what tests and the
// "memory" backend use.
type Memory struct {
	mutex sync.Mutex
	state *player.State
	saves int
}

// NewMemory creates an empty in-memory storage
func NewMemory() *Memory {
	return &Memory{}
}

// Load returns the last saved state, or nil if nothing was saved.
func (m *Memory) Load() (*player.State, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.state == nil {
		return nil, nil
	}
	s := m.state.Clone()
	return &s, nil
}

// Save replaces the stored state with a copy of s.
func (m *Memory) Save(s player.State) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	c := s.Clone()
	m.state = &c
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *Memory) Saves() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.saves
}
