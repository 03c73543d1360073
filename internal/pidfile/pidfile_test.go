package pidfile

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadPID returns the PID of a process that has already exited
func deadPID(t *testing.T) int {
	t.Helper()

	cmd := exec.Command("/bin/true")
	require.NoError(t, cmd.Run())
	return cmd.Process.Pid
}

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "motionrec.pid")

	require.NoError(t, Acquire(path))

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	running, err := Running(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), running)

	require.NoError(t, Release(path))
	_, err = Running(path)
	assert.Error(t, err)
}

func TestAcquireRefusesLiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "motionrec.pid")

	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(cmd.Process.Pid)), 0644))

	err := Acquire(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestAcquireReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "motionrec.pid")
	stale := deadPID(t)
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(stale)), 0644))

	_, err := Running(path)
	assert.ErrorContains(t, err, "stale pid")

	require.NoError(t, Acquire(path))
	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestIsProcessAlive(t *testing.T) {
	assert.True(t, IsProcessAlive(os.Getpid()))
	assert.False(t, IsProcessAlive(0))
	assert.False(t, IsProcessAlive(-1))
	assert.False(t, IsProcessAlive(deadPID(t)))
}
