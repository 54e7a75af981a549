package player

import (
	"errors"

	"legato/internal/bus"

	"github.com/sirupsen/logrus"
)

// Controller turns commands from the bus into store updates.
type Controller struct {
	store       *Store
	reducer     *Reducer
	logger      logrus.FieldLogger
	unsubscribe []func()
}

// NewController subscribes a handler for every command tag on b.
func NewController(b *bus.Bus, store *Store, reducer *Reducer, logger logrus.FieldLogger) *Controller {
	if reducer == nil {
		reducer = NewReducer()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Controller{
		store:   store,
		reducer: reducer,
		logger:  logger,
	}
	for _, tag := range AllTags {
		c.unsubscribe = append(c.unsubscribe, b.Subscribe(tag, c.handle))
	}
	return c
}

func (c *Controller) handle(event bus.Event) {
	cmd, ok := event.(Command)
	if !ok {
		c.logger.WithField("tag", event.Tag()).Debug("Ignoring non-command event")
		return
	}
	if _, err := c.Dispatch(cmd); err != nil {
		c.logger.WithError(err).WithField("tag", cmd.Tag()).Debug("Rejected command")
	}
}

// Dispatch reduces cmd against the latest state and merges the result.
// It reports whether the command changed anything.
func (c *Controller) Dispatch(cmd Command) (bool, error) {
	if cmd == nil {
		return false, ErrUnknownCommand
	}
	if _, ok := cmd.(ResetPlayer); ok {
		c.store.Reset()
		return true, nil
	}

	var reduceErr error
	applied := c.store.Apply(func(s State) (Patch, bool) {
		patch, ok, err := c.reducer.Reduce(s, cmd)
		if err != nil {
			reduceErr = err
			return Patch{}, false
		}
		return patch, ok
	})
	if reduceErr != nil {
		return false, reduceErr
	}

	if !applied {
		c.logger.WithField("tag", cmd.Tag()).Debug("Command precondition not met, ignored")
	}
	return applied, nil
}

// Close unsubscribes every handler. It is safe to call more than once.
func (c *Controller) Close() {
	for _, unsubscribe := range c.unsubscribe {
		unsubscribe()
	}
}

// IsUnknownCommand reports whether err came from an unrecognized command.
func IsUnknownCommand(err error) bool {
	return errors.Is(err, ErrUnknownCommand)
}
