package motion

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/pimotion/motionrec/internal/logging"
)

// SignalSource treats every SIGUSR1 sent to the daemon as motion
type SignalSource struct{}

func (SignalSource) Name() string { return "sigusr1" }

func (SignalSource) Run(ctx context.Context, onMotion func()) error {
	sigs := make(chan os.Signal, 16)
	signal.Notify(sigs, syscall.SIGUSR1)
	defer signal.Stop(sigs)

	for {
		select {
		case <-sigs:
			onMotion()
		case <-ctx.Done():
			return nil
		}
	}
}

// FileSource reports motion whenever a watched path is written or created.
// Point it at a file an edge detector rewrites on every rising edge, or at a
// directory that receives one file per trigger.
type FileSource struct {
	path    string
	isDir   bool
	watcher *fsnotify.Watcher
	logger  *logrus.Entry
}

// NewFileSource starts watching path. The path must already exist.
func NewFileSource(path string) (*FileSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("motion line %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// fsnotify loses single files that are replaced by rename, so watch the
	// parent and filter by name
	dir := abs
	if !info.IsDir() {
		dir = filepath.Dir(abs)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("motion line %s: %w", path, err)
	}

	return &FileSource{
		path:    abs,
		isDir:   info.IsDir(),
		watcher: watcher,
		logger:  logging.NewLogger("motion").WithField("line", abs),
	}, nil
}

func (s *FileSource) Name() string { return s.path }

// Run blocks until ctx is cancelled
func (s *FileSource) Run(ctx context.Context, onMotion func()) error {
	defer s.watcher.Close()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !s.isDir && event.Name != s.path {
				continue
			}
			onMotion()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			// Overflows and transient errors must not take the daemon down
			s.logger.WithError(err).Warn("watcher error")
		case <-ctx.Done():
			return nil
		}
	}
}

// Close releases the watcher of a source that was never run
func (s *FileSource) Close() error {
	return s.watcher.Close()
}
