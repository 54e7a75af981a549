package player

import (
	"context"
	"time"

	"legato/internal/bus"

	"github.com/sirupsen/logrus"
)

// Options configures a player Context. Every field is optional.
type Options struct {
	// Storage persists the state; nil keeps it in memory.
	Storage Storage
	// Driver reports playback position. Without one the clock does not run
	// and positions arrive through ReportTimes.
	Driver       Driver
	TickInterval time.Duration
	// Defaults is the state of a fresh or reset player; nil means DefaultState.
	Defaults     *State
	Reducer      *Reducer
	Logger       logrus.FieldLogger
}

// Context wires one player: its bus, store, controller and clock. There is
// one per client session.
type Context struct {
	Bus        *bus.Bus
	Store      *Store
	Controller *Controller
	Clock      *Clock

	unobserveDriver func()
}

// NewContext builds and starts a player. The clock, when present, stops
// when ctx is cancelled.
func NewContext(ctx context.Context, opts Options) *Context {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	b := bus.New()
	defaults := DefaultState()
	if opts.Defaults != nil {
		defaults = *opts.Defaults
	}
	store := NewStoreWithDefaults(opts.Storage, defaults, logger)
	pc := &Context{
		Bus:        b,
		Store:      store,
		Controller: NewController(b, store, opts.Reducer, logger),
	}

	if opts.Driver != nil {
		if observer, ok := opts.Driver.(StateObserver); ok {
			observer.Observe(store.Read())
			pc.unobserveDriver = store.Observe(observer.Observe)
		}
		pc.Clock = NewClock(store, opts.Driver, opts.TickInterval, func() {
			b.Emit(SoundEnded{})
		}, logger)
		pc.Clock.Start(ctx)
	}
	return pc
}

// Emit publishes cmd on the player's bus.
func (c *Context) Emit(cmd Command) {
	c.Bus.Emit(cmd)
}

// ReportTimes records a position reported by the client's audio element.
func (c *Context) ReportTimes(currentTime, duration float64) {
	c.Store.UpdateTimes(currentTime, duration)
}

// Close stops the clock, detaches the controller and flushes storage.
func (c *Context) Close() error {
	if c.Clock != nil {
		c.Clock.Stop()
	}
	if c.unobserveDriver != nil {
		c.unobserveDriver()
	}
	c.Controller.Close()
	return c.Store.Flush()
}
