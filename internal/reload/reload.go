// Package reload implements the development auto-restart supervisor: an
// fsnotify watcher over the source tree debounces change bursts and then
// respawns the child server process.
package reload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultDelay is the debounce window between the first change event
	// and the restart.
	DefaultDelay = 5 * time.Second

	terminateGrace = 5 * time.Second
)

// skipDirs are never watched.
var skipDirs = map[string]bool{
	".git":     true,
	"vendor":   true,
	"data":     true,
	"testdata": true,
}

// Supervisor restarts a child command when watched files change.
type Supervisor struct {
	command  []string
	watchDir string
	delay    time.Duration
	logger   *slog.Logger

	// restarted is bumped on every respawn; tests read it.
	restarted atomic.Int64
}

// NewSupervisor supervises command (argv form), watching watchDir
// recursively. A zero delay takes the default.
func NewSupervisor(command []string, watchDir string, delay time.Duration, logger *slog.Logger) (*Supervisor, error) {
	if len(command) == 0 {
		return nil, errors.New("supervisor requires a command")
	}
	if watchDir == "" {
		watchDir = "."
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		command:  command,
		watchDir: watchDir,
		delay:    delay,
		logger:   logger.With("component", "reload"),
	}, nil
}

// Run starts the child and restarts it on debounced changes until ctx is
// cancelled. A child that exits on its own ends the supervisor with the
// child's error.
func (s *Supervisor) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dirs, err := watchableDirs(s.watchDir)
	if err != nil {
		return fmt.Errorf("scan watch tree: %w", err)
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			s.logger.Warn("cannot watch directory", "dir", dir, "error", err)
		}
	}
	s.logger.Info("watching for changes",
		"dirs", len(dirs),
		"delay", s.delay)

	reloads := debounce(ctx, relevantEvents(ctx, watcher), s.delay)

	for {
		child, exited, err := s.start()
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			s.terminate(child)
			<-exited
			return nil
		case err := <-exited:
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return fmt.Errorf("child exited: %w", err)
			}
			return errors.New("child exited unexpectedly")
		case <-reloads:
			s.logger.Info("change detected, restarting")
			s.terminate(child)
			<-exited
			s.restarted.Add(1)
		}
	}
}

func (s *Supervisor) start() (*exec.Cmd, <-chan error, error) {
	child := exec.Command(s.command[0], s.command[1:]...)
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	child.Env = os.Environ()
	// Own process group, so terminate() reaches the whole child tree.
	child.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := child.Start(); err != nil {
		return nil, nil, fmt.Errorf("start child: %w", err)
	}
	s.logger.Info("child started", "pid", child.Process.Pid)

	exited := make(chan error, 1)
	go func() { exited <- child.Wait() }()
	return child, exited, nil
}

// terminate sends SIGTERM to the child's process group and escalates to
// SIGKILL after the grace period.
func (s *Supervisor) terminate(child *exec.Cmd) {
	pgid := -child.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)

	deadline := time.After(terminateGrace)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			_ = syscall.Kill(pgid, syscall.SIGKILL)
			return
		case <-tick.C:
			// Signal 0 probes for liveness.
			if err := syscall.Kill(pgid, 0); err != nil {
				return
			}
		}
	}
}

// relevantEvents filters watcher output down to source-affecting changes.
func relevantEvents(ctx context.Context, watcher *fsnotify.Watcher) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename) {
					continue
				}
				if !watchableFile(event.Name) {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// debounce collapses event bursts: the output fires once per quiet period
// of at least delay after the last input event.
func debounce(ctx context.Context, in <-chan struct{}, delay time.Duration) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case _, ok := <-in:
				if !ok {
					return
				}
				if timer == nil {
					timer = time.NewTimer(delay)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(delay)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				select {
				case out <- struct{}{}:
				default:
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// watchableDirs walks root and returns every directory worth watching.
func watchableDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (skipDirs[name] || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs, err
}

// watchableFile reports whether a change to path should trigger a reload.
func watchableFile(path string) bool {
	switch filepath.Ext(path) {
	case ".go", ".mod", ".sum", ".env", ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}
