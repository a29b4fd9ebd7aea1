package sentryd

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyDebounce absorbs the burst of Write/Chmod events a single editor
// save often produces, so a blocklist update triggers one Reload instead of
// several back-to-back ones.
const fsnotifyDebounce = 500 * time.Millisecond

// ReloadManager drives BlocklistStore.Reload from three independent
// triggers: a datagram counter ("every N queries"), an fsnotify watch on
// the blocklist file (so an edit takes effect without waiting for
// traffic), and an explicit call from the admin HTTP surface. All three
// converge on the same atomic-swap Reload, so none of them can observe or
// publish a partial set.
type ReloadManager struct {
	store     *BlocklistStore
	threshold uint32
	counter   uint32

	watcher  *fsnotify.Watcher
	done     chan struct{}
	closeOne sync.Once
}

// NewReloadManager returns a manager for store that reloads every
// threshold calls to Tick. threshold <= 0 disables the counter trigger.
func NewReloadManager(store *BlocklistStore, threshold uint32) *ReloadManager {
	return &ReloadManager{store: store, threshold: threshold, done: make(chan struct{})}
}

// Tick should be called once per inbound datagram/connection. Every
// threshold-th call triggers a reload; this is a load-shedding policy, not
// a guarantee that the blocklist is ever reloaded under light traffic,
// which is exactly why WatchFile and ForceReload exist alongside it.
func (r *ReloadManager) Tick() {
	if r.threshold == 0 {
		return
	}
	if n := atomic.AddUint32(&r.counter, 1); n%r.threshold == 0 {
		if err := r.store.Reload(); err != nil {
			Log.WithError(err).Warn("counter-triggered blocklist reload failed")
		}
	}
}

// ForceReload reloads the store immediately and returns the resulting
// version and accepted/rejected counts, for the admin '/reload' endpoint
// and for tests.
func (r *ReloadManager) ForceReload() (ReloadResult, error) {
	if err := r.store.Reload(); err != nil {
		return ReloadResult{}, err
	}
	result, _ := tryRecvReloadResult(r.store)
	return result, nil
}

// WatchFile starts an fsnotify watch on the store's file and reloads on
// every debounced write. fsnotify watches directories, not bare files (a
// save-by-rename loses the watch on the original inode otherwise), so the
// watch target is the file's parent directory, filtered down to events for
// the configured filename.
func (r *ReloadManager) WatchFile() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(r.store.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	r.watcher = w
	go r.watchLoop()
	return nil
}

func (r *ReloadManager) watchLoop() {
	name := filepath.Base(r.store.path)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(fsnotifyDebounce)
			timerC = timer.C
		case <-timerC:
			timerC = nil
			if err := r.store.Reload(); err != nil {
				Log.WithError(err).Warn("fsnotify-triggered blocklist reload failed")
			} else if result, ok := tryRecvReloadResult(r.store); ok {
				Log.WithFields(map[string]interface{}{
					"version":  result.Version,
					"accepted": result.Accepted,
					"rejected": result.Rejected,
				}).Info("fsnotify-triggered blocklist reload")
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			Log.WithError(err).Warn("blocklist watcher error")
		case <-r.done:
			return
		}
	}
}

// Close stops the fsnotify watch, if one was started. Safe to call more
// than once and safe to call even if WatchFile was never called.
func (r *ReloadManager) Close() error {
	var err error
	r.closeOne.Do(func() {
		close(r.done)
		if r.watcher != nil {
			err = r.watcher.Close()
		}
	})
	return err
}

// tryRecvReloadResult does a non-blocking receive of the most recent
// ReloadResult a store has published, for callers that just triggered a
// Reload and want to report its accepted/rejected counts without holding a
// lock on the store itself.
func tryRecvReloadResult(store *BlocklistStore) (ReloadResult, bool) {
	select {
	case r := <-store.Events():
		return r, true
	default:
		return ReloadResult{}, false
	}
}
