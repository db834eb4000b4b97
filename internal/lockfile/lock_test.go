package lockfile

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquirePreventsSecondHolder(t *testing.T) {
	dir := t.TempDir()
	dbPath := dir + "/ask.db"

	lock1, err := Acquire(dir, dbPath, "test")
	require.NoError(t, err)
	defer lock1.Close()

	_, err = Acquire(dir, dbPath, "test")
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lock1.Close())

	lock3, err := Acquire(dir, dbPath, "test")
	require.NoError(t, err)
	require.NoError(t, lock3.Close())
}

func TestProbeDetectsHeldLock(t *testing.T) {
	dir := t.TempDir()
	dbPath := dir + "/ask.db"

	running, _ := Probe(dir)
	require.False(t, running)

	lock, err := Acquire(dir, dbPath, "test")
	require.NoError(t, err)
	defer lock.Close()

	running, pid := Probe(dir)
	require.True(t, running)
	require.Equal(t, os.Getpid(), pid)
}

func TestReadReturnsStampedMetadata(t *testing.T) {
	dir := t.TempDir()
	dbPath := dir + "/ask.db"

	lock, err := Acquire(dir, dbPath, "v0.0.0-test")
	require.NoError(t, err)
	defer lock.Close()

	info, err := Read(dir)
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), info.PID)
	require.Equal(t, dbPath, info.Database)
	require.Equal(t, "v0.0.0-test", info.Version)
}
