package player

import (
	"math"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Storage persists the player state between sessions.
// Load returns (nil, nil) when nothing was saved yet.
type Storage interface {
	Load() (*State, error)
	Save(State) error
}

// Flusher is implemented by storages that buffer writes.
type Flusher interface {
	Flush() error
}

// Observer is called with a snapshot after every committed change.
type Observer func(State)

type observerEntry struct {
	id uint64
	fn Observer
}

// Store holds the player state and is the only place it changes.
//
// Commits are serialized under a mutex and queued; a single goroutine at a
// time drains the queue, persisting and notifying observers in commit order.
// An observer may therefore call Update or Apply itself: its change is queued
// and delivered after the current one instead of deadlocking.
type Store struct {
	mutex      sync.Mutex
	state      State
	pending    []State
	delivering bool

	obsMutex  sync.RWMutex
	observers []observerEntry
	nextID    uint64

	storage  Storage
	defaults State
	logger   logrus.FieldLogger
}

// NewStore creates a store hydrated from storage. A nil storage keeps the
// state in memory only. Load failures fall back to the defaults.
func NewStore(storage Storage, logger logrus.FieldLogger) *Store {
	return NewStoreWithDefaults(storage, DefaultState(), logger)
}

// NewStoreWithDefaults is NewStore with the state used when nothing was
// persisted and on Reset.
func NewStoreWithDefaults(storage Storage, defaults State, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	defaults = defaults.Clone()
	defaults.normalize()
	s := &Store{
		storage:  storage,
		defaults: defaults,
		logger:   logger,
	}
	s.state = s.hydrate()
	return s
}

func (s *Store) hydrate() State {
	if s.storage == nil {
		return s.defaults.Clone()
	}
	loaded, err := s.storage.Load()
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load persisted player state, using defaults")
		return s.defaults.Clone()
	}
	if loaded == nil {
		s.logger.Debug("No persisted player state, using defaults")
		return s.defaults.Clone()
	}
	state := loaded.Clone()
	state.normalize()
	return state
}

// Read returns a deep copy of the current state.
func (s *Store) Read() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.Clone()
}

// Update merges patch into the state. Unknown fields carried in patch.Extra
// are kept and persisted.
func (s *Store) Update(patch Patch) {
	s.Apply(func(State) (Patch, bool) { return patch, true })
}

// UpdateTimes is the playback clock fast path: it only touches currentTime,
// elapsed and duration.
func (s *Store) UpdateTimes(currentTime, duration float64) {
	currentTime = finite(currentTime)
	duration = finite(duration)
	s.Update(Patch{
		CurrentTime: lo.ToPtr(currentTime),
		Elapsed:     lo.ToPtr(FormatClock(currentTime)),
		Duration:    lo.ToPtr(FormatClock(duration)),
	})
}

// Apply computes a patch from the state current at apply time and merges it.
// fn runs under the store lock and must not call back into the store.
// It reports whether fn produced a change.
func (s *Store) Apply(fn func(State) (Patch, bool)) bool {
	s.mutex.Lock()
	patch, ok := fn(s.state.Clone())
	if !ok {
		s.mutex.Unlock()
		return false
	}
	next := s.state.Clone()
	next.merge(patch)
	next.normalize()
	deliver := s.commitLocked(next)
	s.mutex.Unlock()

	if deliver {
		s.drain()
	}
	return true
}

// Reset returns the state to the store's defaults, dropping any extra fields.
func (s *Store) Reset() {
	s.mutex.Lock()
	deliver := s.commitLocked(s.defaults.Clone())
	s.mutex.Unlock()

	if deliver {
		s.drain()
	}
}

// Observe registers fn and returns a func that removes it.
func (s *Store) Observe(fn Observer) func() {
	s.obsMutex.Lock()
	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, observerEntry{id: id, fn: fn})
	s.obsMutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMutex.Lock()
			defer s.obsMutex.Unlock()
			s.observers = lo.Filter(s.observers, func(e observerEntry, _ int) bool {
				return e.id != id
			})
		})
	}
}

// Flush forces buffered storage writes out.
func (s *Store) Flush() error {
	if f, ok := s.storage.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// commitLocked must be called with s.mutex held. It reports whether the
// caller has to drain the delivery queue.
func (s *Store) commitLocked(next State) bool {
	s.state = next
	s.pending = append(s.pending, next.Clone())
	if s.delivering {
		return false
	}
	s.delivering = true
	return true
}

func (s *Store) drain() {
	for {
		s.mutex.Lock()
		if len(s.pending) == 0 {
			s.delivering = false
			s.mutex.Unlock()
			return
		}
		snapshot := s.pending[0]
		s.pending = s.pending[1:]
		s.mutex.Unlock()

		s.persist(snapshot)
		s.notify(snapshot)
	}
}

func (s *Store) persist(state State) {
	if s.storage == nil {
		return
	}
	if err := s.storage.Save(state); err != nil {
		s.logger.WithError(err).Warn("Failed to persist player state")
	}
}

func (s *Store) notify(state State) {
	s.obsMutex.RLock()
	observers := s.observers
	s.obsMutex.RUnlock()

	for _, o := range observers {
		o.fn(state.Clone())
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
