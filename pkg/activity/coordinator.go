// Package activity tracks in-flight network operations so dependent code can
// wait until the client is idle.
package activity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrWaitTimeout is returned by Wait when the hard timeout elapsed before the
// coordinator was idle for the requested delay.
var ErrWaitTimeout = errors.New("activity wait timed out")

// Signal is a payload-free activity notification.
type Signal int

const (
	// SignalBegin is broadcast by Start.
	SignalBegin Signal = iota + 1

	// SignalEnd is broadcast by End.
	SignalEnd
)

// String returns the signal name.
func (s Signal) String() string {
	switch s {
	case SignalBegin:
		return "begin"
	case SignalEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Observer receives activity signals. Observers are called synchronously
// from Start and End and must not block.
type Observer func(Signal)

// Change describes one Start or End. InFlight and Seq are taken under the
// coordinator lock, so ordering by Seq restores the order of the calls even
// when watchers run concurrently.
type Change struct {
	Signal   Signal
	InFlight int
	Seq      uint64
}

// Coordinator counts outstanding operations and runs deferred continuations
// once the count drops to zero. Create one per process and share it.
type Coordinator struct {
	mu        sync.Mutex
	counter   int
	epoch     uint64
	seq       uint64
	queue     []func()
	observers map[int]func(Change)
	nextID    int
	logger    zerolog.Logger
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		observers: make(map[int]func(Change)),
		logger:    logger.With().Str("component", "activity").Logger(),
	}
}

// Start records the beginning of an operation.
func (c *Coordinator) Start() {
	c.mu.Lock()
	c.counter++
	c.epoch++
	change := c.change(SignalBegin)
	observers := c.snapshotObservers()
	c.mu.Unlock()

	activityStartsTotal.Inc()
	c.logger.Debug().Int("in_flight", change.InFlight).Msg("Activity started")

	notify(observers, change)
}

// End records the completion of an operation. Extra calls are tolerated;
// the counter never drops below zero. When the counter reaches zero all
// queued continuations run once.
func (c *Coordinator) End() {
	c.mu.Lock()
	if c.counter > 0 {
		c.counter--
	} else {
		activityUnbalancedEndsTotal.Inc()
		c.logger.Warn().Msg("Activity end without matching start")
	}
	change := c.change(SignalEnd)
	var drained []func()
	if change.InFlight == 0 {
		drained = c.queue
		c.queue = nil
	}
	observers := c.snapshotObservers()
	c.mu.Unlock()

	c.logger.Debug().Int("in_flight", change.InFlight).Msg("Activity ended")

	notify(observers, change)

	for _, fn := range drained {
		fn()
	}
}

// Busy reports whether any operation is in flight.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter > 0
}

// Count returns the number of operations in flight.
func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}

// Subscribe registers an observer and returns a function that removes it.
func (c *Coordinator) Subscribe(o Observer) (unsubscribe func()) {
	return c.Watch(func(ch Change) { o(ch.Signal) })
}

// Watch is like Subscribe but passes the counter state of each change.
func (c *Coordinator) Watch(fn func(Change)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

// Wait blocks until the coordinator has stayed idle for idleDelay, measured
// from the moment it became idle after the call. Activity that starts during
// the delay restarts the wait. timeout bounds the whole wait and yields
// ErrWaitTimeout; a cancelled ctx yields ctx.Err().
func (c *Coordinator) Wait(ctx context.Context, idleDelay, timeout time.Duration) error {
	idle := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(idle) }) }

	var check func()
	check = func() {
		select {
		case <-idle:
			return
		default:
		}

		epoch, ok := c.whenIdle(check)
		if !ok {
			return
		}

		time.AfterFunc(idleDelay, func() {
			c.mu.Lock()
			quiet := c.counter == 0 && c.epoch == epoch
			c.mu.Unlock()

			if quiet {
				finish()
				return
			}
			check()
		})
	}
	check()

	hard := time.NewTimer(timeout)
	defer hard.Stop()

	select {
	case <-idle:
		return nil
	case <-hard.C:
		finish()
		c.logger.Warn().Dur("timeout", timeout).Msg("Gave up waiting for idle")
		return ErrWaitTimeout
	case <-ctx.Done():
		finish()
		return ctx.Err()
	}
}

// whenIdle queues fn for the next transition to idle if the coordinator is
// busy. Otherwise it reports the current activity epoch and ok=true.
func (c *Coordinator) whenIdle(fn func()) (epoch uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counter > 0 {
		c.queue = append(c.queue, fn)
		return 0, false
	}
	return c.epoch, true
}

// change stamps a signal and publishes the counter to the in-flight gauge.
// Callers hold c.mu.
func (c *Coordinator) change(s Signal) Change {
	c.seq++
	activityInFlight.Set(float64(c.counter))
	return Change{Signal: s, InFlight: c.counter, Seq: c.seq}
}

func (c *Coordinator) snapshotObservers() []func(Change) {
	if len(c.observers) == 0 {
		return nil
	}
	out := make([]func(Change), 0, len(c.observers))
	for _, o := range c.observers {
		out = append(out, o)
	}
	return out
}

func notify(observers []func(Change), ch Change) {
	for _, o := range observers {
		o(ch)
	}
}
