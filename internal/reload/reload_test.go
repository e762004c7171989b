package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSupervisor_Validation(t *testing.T) {
	_, err := NewSupervisor(nil, ".", 0, nil)
	require.Error(t, err)

	s, err := NewSupervisor([]string{"sleep", "60"}, "", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, ".", s.watchDir)
	assert.Equal(t, DefaultDelay, s.delay)
}

func TestWatchableDirs(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"internal/server", ".git/objects", "vendor/pkg", "_build"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}

	dirs, err := watchableDirs(root)
	require.NoError(t, err)

	assert.Contains(t, dirs, root)
	assert.Contains(t, dirs, filepath.Join(root, "internal"))
	assert.Contains(t, dirs, filepath.Join(root, "internal/server"))
	for _, dir := range dirs {
		assert.NotContains(t, dir, ".git")
		assert.NotContains(t, dir, "vendor")
		assert.NotContains(t, dir, "_build")
	}
}

func TestWatchableFile(t *testing.T) {
	assert.True(t, watchableFile("internal/server/server.go"))
	assert.True(t, watchableFile("go.mod"))
	assert.True(t, watchableFile(".env"))
	assert.False(t, watchableFile("server.log"))
	assert.False(t, watchableFile("binary"))
}

func TestDebounce_CollapsesBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan struct{}, 16)
	out := debounce(ctx, in, 30*time.Millisecond)

	// A burst of events yields a single firing, no earlier than the delay.
	start := time.Now()
	for range 5 {
		in <- struct{}{}
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case <-out:
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("debounced event never fired")
	}

	// Quiet period produces nothing further.
	select {
	case <-out:
		t.Fatal("unexpected second firing")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestSupervisor_RestartsOnChange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))

	s, err := NewSupervisor([]string{"sleep", "60"}, root, 50*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Let the watcher settle, then touch a source file.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n\n"), 0o644))

	require.Eventually(t, func() bool {
		return s.restarted.Load() >= 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}
}

func TestSupervisor_ChildExitEndsRun(t *testing.T) {
	root := t.TempDir()

	s, err := NewSupervisor([]string{"false"}, root, 50*time.Millisecond, nil)
	require.NoError(t, err)

	err = s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "child exited")
}
