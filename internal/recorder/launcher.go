package recorder

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/pimotion/motionrec/internal/logging"
)

// Launcher starts the external capture program
type Launcher interface {
	Spawn(path string, argv []string) (Handle, error)
}

// Handle is an opaque reference to a running recorder
type Handle interface {
	Pid() int
	// Stop asks the recorder to finish cooperatively. It sends one interrupt
	// and does not wait for the process to exit.
	Stop() error
	// Done is closed once the process has exited and been reaped
	Done() <-chan struct{}
	// ExitErr is the result of waiting on the process, valid after Done
	ExitErr() error
}

// ExecLauncher spawns recorders with os/exec
type ExecLauncher struct {
	log *logrus.Entry
}

func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{log: logging.NewLogger("recorder")}
}

// Spawn runs path with argv (argv[0] included). The child's stderr is
// forwarded to the debug log.
func (l *ExecLauncher) Spawn(path string, argv []string) (Handle, error) {
	if len(argv) == 0 {
		argv = []string{filepath.Base(path)}
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Args = argv

	stderr := l.log.WithField("recorder", filepath.Base(path)).WriterLevel(logrus.DebugLevel)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = stderr.Close()
		return nil, fmt.Errorf("failed to start recorder %s: %w", path, err)
	}

	p := &process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		_ = stderr.Close()
		close(p.done)
	}()

	l.log.WithFields(logrus.Fields{"pid": p.Pid(), "argv": argv}).Debug("recorder started")
	return p, nil
}

type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *process) Pid() int {
	return p.cmd.Process.Pid
}

func (p *process) Stop() error {
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("failed to interrupt recorder pid %d: %w", p.Pid(), err)
	}
	return nil
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) ExitErr() error {
	<-p.done
	return p.err
}
