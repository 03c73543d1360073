package session

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/pimotion/motionrec/internal/logging"
	"github.com/pimotion/motionrec/internal/recorder"
	"github.com/pimotion/motionrec/internal/storage"
)

// DefaultGracePeriod is the minimum length of a recording when Settings
// leaves GracePeriod unset
const DefaultGracePeriod = 8 * time.Second

// State of the recording controller
type State int

const (
	Idle State = iota
	Starting
	Active
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Reclaimer frees space in the record store after each session
type Reclaimer interface {
	EnsureFreeSpace(dir string, minFreeMB uint64) storage.Result
}

// Journal receives a record for every finished session
type Journal interface {
	Save(rec *Record) error
}

// Settings describe where and how recordings are made
type Settings struct {
	Dir          string
	Extension    string
	RecorderPath string
	// Argv builds the recorder's argv for an output file
	Argv        func(outFile string) []string
	GracePeriod time.Duration
	MinFreeMB   uint64
}

// Controller coalesces motion events into at most one recording at a time.
// A session lasts at least the grace period, then keeps going for as long
// as motion keeps arriving during each debounce wait.
type Controller struct {
	settings  Settings
	launcher  recorder.Launcher
	reclaimer Reclaimer
	journal   Journal
	syncFS    func()
	now       func() time.Time
	log       *logrus.Entry

	start time.Time

	// lastMotion is written without the lock; a stale read only shifts the
	// end of a recording by one event.
	lastMotion atomic.Int64

	mu     sync.Mutex
	active bool
	state  State
	events int
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Controller)

// WithJournal records finished sessions
func WithJournal(j Journal) Option {
	return func(c *Controller) {
		c.journal = j
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithSync replaces the filesystem flush run before reclamation
func WithSync(fn func()) Option {
	return func(c *Controller) {
		c.syncFS = fn
	}
}

// NewController creates a controller. Its start time, the base of every
// recording name, is taken here.
func NewController(settings Settings, launcher recorder.Launcher, reclaimer Reclaimer, opts ...Option) *Controller {
	if settings.GracePeriod <= 0 {
		settings.GracePeriod = DefaultGracePeriod
	}
	if settings.Argv == nil {
		settings.Argv = func(outFile string) []string {
			return []string{filepath.Base(settings.RecorderPath), outFile}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		settings:  settings,
		launcher:  launcher,
		reclaimer: reclaimer,
		syncFS:    unix.Sync,
		now:       time.Now,
		log:       logging.NewLogger("session"),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.start = c.now()
	return c
}

// StartTime is the instant recording names are measured from
func (c *Controller) StartTime() time.Time {
	return c.start
}

// Now reads the controller's clock
func (c *Controller) Now() time.Time {
	return c.now()
}

// State reports the controller state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Observe records that motion happened at t. It takes no lock.
func (c *Controller) Observe(t time.Time) {
	c.lastMotion.Store(t.UnixMicro())
}

// Trigger starts a new session for motion observed at t unless one is
// already running. It never blocks: the recorder is launched and watched on
// its own goroutine. It reports whether a session was started.
func (c *Controller) Trigger(t time.Time) bool {
	if !c.acquire() {
		return false
	}

	go c.run(t)
	return true
}

// acquire is the single test-and-set guarding session creation
func (c *Controller) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if c.active {
		c.events++
		return false
	}
	c.active = true
	c.state = Starting
	c.events = 1
	// Added under the lock so Shutdown cannot start waiting in between
	c.wg.Add(1)
	return true
}

// release clears the active flag and returns the number of coalesced events
func (c *Controller) release() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = false
	c.state = Idle
	return c.events
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Controller) run(at time.Time) {
	defer c.wg.Done()

	name := Filename(c.start, at, c.settings.Extension)
	outFile := filepath.Join(c.settings.Dir, name)
	rec := &Record{
		ID:        uuid.NewString(),
		File:      name,
		StartedAt: at,
	}
	log := c.log.WithFields(logrus.Fields{"session": rec.ID, "file": name})

	handle, err := c.launcher.Spawn(c.settings.RecorderPath, c.settings.Argv(outFile))
	if err != nil {
		log.WithError(err).Error("failed to start recorder, session aborted")
		rec.Events = c.release()
		c.finish(log, rec, ExitSpawnFailed)
		return
	}

	rec.RecorderPID = handle.Pid()
	c.setState(Active)
	log.WithField("pid", rec.RecorderPID).Info("recording started")

	reason := c.watch(at)

	c.setState(Stopping)
	if err := handle.Stop(); err != nil {
		log.WithError(err).Warn("failed to stop recorder")
		rec.StopError = err.Error()
	}
	rec.Events = c.release()

	c.syncFS()
	c.reclaimer.EnsureFreeSpace(c.settings.Dir, c.settings.MinFreeMB)

	c.finish(log, rec, reason)
}

// watch blocks for the grace period, then for as long as motion keeps
// arriving. Each wait lasts exactly the gap between the previous and the
// current motion snapshot; a zero gap means the scene went quiet.
func (c *Controller) watch(at time.Time) string {
	used := at.UnixMicro()

	if !c.sleep(c.settings.GracePeriod) {
		return ExitShutdown
	}

	var wait time.Duration
	for {
		if !c.sleep(wait) {
			return ExitShutdown
		}

		last := c.lastMotion.Load()
		wait = time.Duration(last-used) * time.Microsecond
		used = last
		if wait <= 0 {
			return ExitQuiet
		}
	}
}

// sleep waits for d and reports false if the controller was shut down
func (c *Controller) sleep(d time.Duration) bool {
	if d <= 0 {
		return c.ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Controller) finish(log *logrus.Entry, rec *Record, reason string) {
	stopped := c.now()
	rec.StoppedAt = &stopped
	rec.ExitReason = reason

	log.WithFields(logrus.Fields{
		"reason":   reason,
		"events":   rec.Events,
		"duration": rec.Duration().Round(time.Millisecond),
	}).Info("recording finished")

	if c.journal == nil {
		return
	}
	if err := c.journal.Save(rec); err != nil {
		log.WithError(err).Warn("failed to journal session")
	}
}

// Shutdown refuses new sessions, cuts the running one short and waits for
// it to be stopped, flushed and reclaimed.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
