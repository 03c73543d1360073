// Package motion turns hardware motion triggers into recording sessions.
//
// Every trigger line is registered against the same Dispatcher, which does
// not care which line fired. OnMotion is safe to call from any number of
// goroutines at once and never blocks on I/O.
package motion

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pimotion/motionrec/internal/logging"
)

// Sessions is the recording side of the dispatcher
type Sessions interface {
	Now() time.Time
	// Observe stores the latest motion timestamp without locking
	Observe(t time.Time)
	// Trigger starts a session unless one is active
	Trigger(t time.Time) bool
}

// Dispatcher forwards motion events to the session controller
type Dispatcher struct {
	sessions Sessions
	log      *logrus.Entry

	events  atomic.Uint64
	started atomic.Uint64
}

func NewDispatcher(sessions Sessions) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		log:      logging.NewLogger("motion"),
	}
}

// OnMotion handles one motion event from any line
func (d *Dispatcher) OnMotion() {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Error("motion handler recovered from panic")
		}
	}()

	now := d.sessions.Now()
	d.sessions.Observe(now)
	d.events.Add(1)

	if d.sessions.Trigger(now) {
		d.started.Add(1)
	}
}

// Handler returns the callback to register for one trigger line
func (d *Dispatcher) Handler(line string) func() {
	return func() {
		d.log.WithField("line", line).Debug("motion detected")
		d.OnMotion()
	}
}

// Stats returns how many events were seen and how many sessions they started
func (d *Dispatcher) Stats() (events, sessions uint64) {
	return d.events.Load(), d.started.Load()
}

// Source delivers motion events for one trigger line
type Source interface {
	Name() string
	// Run calls onMotion for every event until ctx is done
	Run(ctx context.Context, onMotion func()) error
}

// Listen runs every source against d until ctx is cancelled or a source fails
func Listen(ctx context.Context, d *Dispatcher, sources ...Source) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			d.log.WithField("line", src.Name()).Info("listening for motion")
			return src.Run(ctx, d.Handler(src.Name()))
		})
	}
	return g.Wait()
}
