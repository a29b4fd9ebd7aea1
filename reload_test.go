package sentryd

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReloadManagerCounterTrigger(t *testing.T) {
	path := writeListFile(t, "ads.example.com")
	store := NewBlocklistStore("block", path)
	rm := NewReloadManager(store, 3)
	defer rm.Close()

	require.Equal(t, 0, store.Len()) // not yet reloaded

	rm.Tick()
	rm.Tick()
	require.Equal(t, 0, store.Len())

	rm.Tick() // 3rd tick triggers the reload
	require.Equal(t, 1, store.Len())
}

func TestReloadManagerForceReload(t *testing.T) {
	path := writeListFile(t, "ads.example.com")
	store := NewBlocklistStore("block", path)
	rm := NewReloadManager(store, 0) // counter disabled
	defer rm.Close()

	result, err := rm.ForceReload()
	require.NoError(t, err)
	require.Equal(t, 1, result.Accepted)
	require.Equal(t, 1, store.Len())
}

func TestReloadManagerWatchFile(t *testing.T) {
	path := writeListFile(t, "ads.example.com")
	store := NewBlocklistStore("block", path)
	require.NoError(t, store.Reload())
	require.Equal(t, 1, store.Len())

	rm := NewReloadManager(store, 0)
	require.NoError(t, rm.WatchFile())
	defer rm.Close()

	require.NoError(t, os.WriteFile(path, []byte("ads.example.com\ntracker.io\n"), 0o644))

	require.Eventually(t, func() bool {
		return store.Len() == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestReloadManagerCloseIdempotent(t *testing.T) {
	store := NewBlocklistStore("block", "/nonexistent")
	rm := NewReloadManager(store, 0)
	require.NoError(t, rm.Close())
	require.NoError(t, rm.Close())
}
