package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherTriggersOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	triggered := make(chan struct{}, 1)
	w, err := New(20*time.Millisecond, func() {
		select {
		case triggered <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Track(path))

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0644))

	select {
	case <-triggered:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a trigger after the watched file changed")
	}
}

func TestWatcherDebouncesBurstsIntoOneTrigger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("v0"), 0644))

	var count int
	done := make(chan struct{})
	w, err := New(100*time.Millisecond, func() {
		count++
		select {
		case done <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Track(path))

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0644))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a trigger after the burst settled")
	}
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 1, count, "a burst of writes within the debounce window should fire one trigger")
}

func TestTrackIsIdempotentForSameDirectory(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, nil, 0644))
	require.NoError(t, os.WriteFile(b, nil, 0644))

	w, err := New(10*time.Millisecond, func() {})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Track(a))
	require.NoError(t, w.Track(b))
}
