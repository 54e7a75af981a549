package player

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTickInterval is used when no interval is configured.
const DefaultTickInterval = 500 * time.Millisecond

// Driver is the audio side of playback. It reports where in the current
// sound it is, in seconds.
type Driver interface {
	Position() (current, duration float64)
}

// StateObserver is implemented by drivers that need to follow state changes.
type StateObserver interface {
	Observe(State)
}

// Clock polls the driver while the store says a sound is playing and feeds
// the result back through Store.UpdateTimes.
type Clock struct {
	store    *Store
	driver   Driver
	interval time.Duration
	onEnded  func()
	logger   logrus.FieldLogger

	mutex     sync.Mutex
	parent    context.Context
	cancel    context.CancelFunc
	unobserve func()
	wg        sync.WaitGroup
}

// NewClock creates a stopped clock. onEnded, if set, is called once each
// time the driver reaches the end of the current sound.
func NewClock(store *Store, driver Driver, interval time.Duration, onEnded func(), logger logrus.FieldLogger) *Clock {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Clock{
		store:    store,
		driver:   driver,
		interval: interval,
		onEnded:  onEnded,
		logger:   logger,
	}
}

// Start begins following the store. Ticking starts and stops with isPlaying
// until ctx is cancelled or Stop is called.
func (c *Clock) Start(ctx context.Context) {
	c.mutex.Lock()
	if c.unobserve != nil {
		c.mutex.Unlock()
		return
	}
	c.parent = ctx
	c.unobserve = c.store.Observe(c.follow)
	c.mutex.Unlock()

	c.follow(c.store.Read())
}

// Running reports whether the ticker goroutine is active.
func (c *Clock) Running() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.cancel != nil
}

// Stop detaches the clock from the store and waits for the ticker to exit.
func (c *Clock) Stop() {
	c.mutex.Lock()
	if c.unobserve != nil {
		c.unobserve()
		c.unobserve = nil
	}
	c.haltLocked()
	c.mutex.Unlock()

	c.wg.Wait()
}

func (c *Clock) follow(state State) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.unobserve == nil {
		return
	}
	switch {
	case state.IsPlaying && c.cancel == nil:
		c.runLocked()
	case !state.IsPlaying && c.cancel != nil:
		c.haltLocked()
	}
}

func (c *Clock) runLocked() {
	if c.parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.parent)
	c.cancel = cancel
	c.wg.Add(1)
	go c.tick(ctx)
	c.logger.Debug("Playback clock started")
}

// haltLocked cancels the ticker without waiting for it, so it can be called
// from an observer running on the ticker's own goroutine.
func (c *Clock) haltLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	c.logger.Debug("Playback clock stopped")
}

func (c *Clock) tick(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	ended := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current, duration := c.driver.Position()
		if ctx.Err() != nil {
			return
		}
		c.store.UpdateTimes(current, duration)

		atEnd := duration > 0 && current >= duration
		if atEnd && !ended && c.onEnded != nil {
			c.onEnded()
		}
		ended = atEnd
	}
}

// EstimatingDriver derives the position from wall-clock time for sessions
// with no audio element reporting back. It re-anchors whenever the state's
// currentTime is changed by someone else, e.g. a seek or a new sound.
type EstimatingDriver struct {
	mutex    sync.Mutex
	now      func() time.Time
	anchor   time.Time
	base     float64
	duration float64
	playing  bool
	emitted  float64
}

// NewEstimatingDriver creates a driver positioned at zero.
func NewEstimatingDriver() *EstimatingDriver {
	return &EstimatingDriver{now: time.Now}
}

// Observe re-anchors the estimate on external changes.
func (d *EstimatingDriver) Observe(s State) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if sound := s.CurrentSound(); sound != nil && sound.Duration > 0 {
		d.duration = float64(sound.Duration)
	} else if parsed, err := ParseClock(s.Duration); err == nil {
		d.duration = parsed
	}

	if s.IsPlaying == d.playing && s.CurrentTime == d.emitted {
		return
	}
	d.base = s.CurrentTime
	d.anchor = d.now()
	d.playing = s.IsPlaying
	d.emitted = s.CurrentTime
}

// Position implements Driver.
func (d *EstimatingDriver) Position() (float64, float64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	current := d.positionLocked()
	d.emitted = current
	return current, d.duration
}

func (d *EstimatingDriver) positionLocked() float64 {
	current := d.base
	if d.playing {
		current += d.now().Sub(d.anchor).Seconds()
	}
	if d.duration > 0 && current > d.duration {
		current = d.duration
	}
	return current
}
