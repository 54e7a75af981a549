package storage

import (
	"sync"
	"time"

	"legato/internal/player"

	"github.com/sirupsen/logrus"
)

// Debounced coalesces bursts of saves (the playback clock saves on every
// tick) into one write per delay. Flush writes anything still pending.
type Debounced struct {
	inner  player.Storage
	delay  time.Duration
	logger logrus.FieldLogger

	mutex   sync.Mutex
	pending *player.State
	timer   *time.Timer
	writeMu sync.Mutex
}

// NewDebounced wraps inner so that saves are delayed by delay.
func NewDebounced(inner player.Storage, delay time.Duration, logger logrus.FieldLogger) *Debounced {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Debounced{
		inner:  inner,
		delay:  delay,
		logger: logger,
	}
}

// Load returns the pending state if a save has not been written yet.
func (d *Debounced) Load() (*player.State, error) {
	d.mutex.Lock()
	if d.pending != nil {
		s := d.pending.Clone()
		d.mutex.Unlock()
		return &s, nil
	}
	d.mutex.Unlock()
	return d.inner.Load()
}

// Save records s and schedules a write. It never fails; write errors are
// logged when the write happens.
func (d *Debounced) Save(s player.State) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	c := s.Clone()
	d.pending = &c
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.fire)
	}
	return nil
}

func (d *Debounced) fire() {
	if err := d.write(); err != nil {
		d.logger.WithError(err).Warn("Failed to write debounced player state")
	}
}

// Flush writes the pending state now.
func (d *Debounced) Flush() error {
	d.mutex.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mutex.Unlock()

	if err := d.write(); err != nil {
		return err
	}
	if f, ok := d.inner.(player.Flusher); ok {
		return f.Flush()
	}
	return nil
}

func (d *Debounced) write() error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mutex.Lock()
	pending := d.pending
	d.pending = nil
	d.timer = nil
	d.mutex.Unlock()

	if pending == nil {
		return nil
	}
	return d.inner.Save(*pending)
}
