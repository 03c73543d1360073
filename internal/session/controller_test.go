package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pimotion/motionrec/internal/recorder"
	"github.com/pimotion/motionrec/internal/storage"
)

// steps records the order of side effects across fakes
type steps struct {
	mu  sync.Mutex
	log []string
}

func (s *steps) add(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, step)
}

func (s *steps) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

type fakeHandle struct {
	pid     int
	stopErr error
	steps   *steps
	stopped chan time.Time
	done    chan struct{}
}

func (h *fakeHandle) Pid() int { return h.pid }

func (h *fakeHandle) Stop() error {
	h.steps.add("stop")
	h.stopped <- time.Now()
	return h.stopErr
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) ExitErr() error        { return nil }

type fakeLauncher struct {
	mu       sync.Mutex
	argvs    [][]string
	failNext int
	stopErr  error
	steps    *steps
	stopped  chan time.Time
}

func newFakeLauncher(s *steps) *fakeLauncher {
	return &fakeLauncher{steps: s, stopped: make(chan time.Time, 16)}
}

func (l *fakeLauncher) Spawn(path string, argv []string) (recorder.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failNext > 0 {
		l.failNext--
		return nil, errors.New("exec format error")
	}
	l.argvs = append(l.argvs, argv)
	l.steps.add("spawn")
	return &fakeHandle{pid: 1000 + len(l.argvs), stopErr: l.stopErr, steps: l.steps, stopped: l.stopped, done: make(chan struct{})}, nil
}

func (l *fakeLauncher) spawns() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.argvs)
}

type fakeReclaimer struct {
	steps *steps
	calls atomic.Int32
}

func (r *fakeReclaimer) EnsureFreeSpace(dir string, minFreeMB uint64) storage.Result {
	r.steps.add("reclaim")
	r.calls.Add(1)
	return storage.Result{Satisfied: true}
}

type fakeJournal struct {
	records chan *Record
}

func (j *fakeJournal) Save(rec *Record) error {
	j.records <- rec
	return nil
}

type harness struct {
	ctrl      *Controller
	launcher  *fakeLauncher
	reclaimer *fakeReclaimer
	journal   *fakeJournal
	steps     *steps
}

func newHarness(t *testing.T, grace time.Duration) *harness {
	t.Helper()

	s := &steps{}
	h := &harness{
		launcher:  newFakeLauncher(s),
		reclaimer: &fakeReclaimer{steps: s},
		journal:   &fakeJournal{records: make(chan *Record, 16)},
		steps:     s,
	}
	h.ctrl = NewController(Settings{
		Dir:          "/root/records",
		Extension:    "h264",
		RecorderPath: "/bin/raspivid",
		Argv: func(outFile string) []string {
			return []string{"raspivid", "-t", "0", "-n", "-fps", "24", "-o", outFile}
		},
		GracePeriod: grace,
		MinFreeMB:   500,
	}, h.launcher, h.reclaimer,
		WithJournal(h.journal),
		WithSync(func() { s.add("sync") }),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.ctrl.Shutdown(ctx)
	})
	return h
}

// motion mimics the dispatcher: timestamp first, then the test-and-set
func (h *harness) motion() bool {
	now := time.Now()
	h.ctrl.Observe(now)
	return h.ctrl.Trigger(now)
}

func (h *harness) nextRecord(t *testing.T) *Record {
	t.Helper()

	select {
	case rec := <-h.journal.records:
		return rec
	case <-time.After(5 * time.Second):
		t.Fatal("no session finished")
		return nil
	}
}

func TestBurstStartsExactlyOneSession(t *testing.T) {
	h := newHarness(t, 200*time.Millisecond)

	const n = 64
	var started atomic.Int32
	var wg sync.WaitGroup
	gate := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			if h.motion() {
				started.Add(1)
			}
		}()
	}
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())

	rec := h.nextRecord(t)
	assert.Equal(t, 1, h.launcher.spawns())
	assert.Equal(t, n, rec.Events)
	assert.Equal(t, ExitQuiet, rec.ExitReason)
}

func TestQuietSessionStopsAfterGracePeriod(t *testing.T) {
	const grace = 100 * time.Millisecond
	h := newHarness(t, grace)

	t0 := time.Now()
	require.True(t, h.motion())

	stoppedAt := <-h.launcher.stopped
	assert.GreaterOrEqual(t, stoppedAt.Sub(t0), grace)
	assert.Less(t, stoppedAt.Sub(t0), grace+time.Second)

	rec := h.nextRecord(t)
	assert.Equal(t, ExitQuiet, rec.ExitReason)
	assert.Equal(t, 1, rec.Events)
	assert.Equal(t, 1001, rec.RecorderPID)
	assert.Equal(t, Idle, h.ctrl.State())
}

func TestMotionDuringGraceExtendsSession(t *testing.T) {
	const grace = 100 * time.Millisecond
	h := newHarness(t, grace)

	t0 := time.Now()
	require.True(t, h.motion())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, h.motion())
	time.Sleep(30 * time.Millisecond)
	last := time.Now()
	assert.False(t, h.motion())

	stoppedAt := <-h.launcher.stopped
	// The session must run for the grace period plus the gap up to the last event
	assert.GreaterOrEqual(t, stoppedAt.Sub(t0), grace+last.Sub(t0)-time.Millisecond)

	rec := h.nextRecord(t)
	assert.Equal(t, 3, rec.Events)
	assert.Equal(t, 1, h.launcher.spawns())
}

func TestRetriggerWhileActiveOnlyRefreshesTimestamp(t *testing.T) {
	h := newHarness(t, 200*time.Millisecond)

	require.True(t, h.motion())
	require.Eventually(t, func() bool { return h.ctrl.State() == Active }, time.Second, time.Millisecond)

	for i := 0; i < 5; i++ {
		assert.False(t, h.motion())
	}
	assert.Equal(t, Active, h.ctrl.State())
	assert.Equal(t, 1, h.launcher.spawns())

	h.nextRecord(t)
}

func TestSpawnFailureClearsFlag(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond)
	h.launcher.failNext = 1

	require.True(t, h.motion())
	rec := h.nextRecord(t)
	assert.Equal(t, ExitSpawnFailed, rec.ExitReason)
	assert.Zero(t, rec.RecorderPID)
	assert.Equal(t, Idle, h.ctrl.State())
	assert.Zero(t, h.reclaimer.calls.Load())

	// The next motion event is free to start a real session
	require.True(t, h.motion())
	rec = h.nextRecord(t)
	assert.Equal(t, ExitQuiet, rec.ExitReason)
	assert.Equal(t, 1, h.launcher.spawns())
}

func TestStopFailureStillReleasesAndReclaims(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond)
	h.launcher.stopErr = fmt.Errorf("failed to interrupt recorder pid 1001: %w", errors.New("no such process"))

	require.True(t, h.motion())
	rec := h.nextRecord(t)

	assert.Contains(t, rec.StopError, "no such process")
	assert.Equal(t, Idle, h.ctrl.State())
	assert.Equal(t, int32(1), h.reclaimer.calls.Load())
	assert.True(t, h.motion(), "flag must be clear after a failed stop")
	h.nextRecord(t)
}

func TestStopSequence(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond)

	require.True(t, h.motion())
	h.nextRecord(t)

	assert.Equal(t, []string{"spawn", "stop", "sync", "reclaim"}, h.steps.all())
}

func TestRecorderTargetsElapsedFilename(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond)

	at := h.ctrl.StartTime().Add(86465 * time.Second)
	h.ctrl.Observe(at)
	require.True(t, h.ctrl.Trigger(at))

	rec := h.nextRecord(t)
	assert.Equal(t, "rec_02_00-01-05.h264", rec.File)

	h.launcher.mu.Lock()
	defer h.launcher.mu.Unlock()
	require.Len(t, h.launcher.argvs, 1)
	assert.Equal(t, []string{"raspivid", "-t", "0", "-n", "-fps", "24", "-o", "/root/records/rec_02_00-01-05.h264"}, h.launcher.argvs[0])
}

func TestShutdownStopsActiveSession(t *testing.T) {
	h := newHarness(t, time.Hour)

	require.True(t, h.motion())
	require.Eventually(t, func() bool { return h.ctrl.State() == Active }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.ctrl.Shutdown(ctx))

	rec := h.nextRecord(t)
	assert.Equal(t, ExitShutdown, rec.ExitReason)
	assert.Equal(t, int32(1), h.reclaimer.calls.Load())

	assert.False(t, h.motion(), "no sessions after shutdown")
	assert.Equal(t, 1, h.launcher.spawns())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "starting", Starting.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "unknown", State(42).String())
}
