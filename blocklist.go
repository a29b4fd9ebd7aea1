package sentryd

import (
	"bufio"
	"expvar"
	"os"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// blocklistSnapshot is an immutable set of normalized blocked-name entries
// plus the version it was built as. A BlocklistStore never mutates a
// published snapshot; Reload always builds a fresh one and swaps it in.
type blocklistSnapshot struct {
	entries map[string]struct{}
	version uint64
}

// BlocklistStore holds the current snapshot of normalized host names for
// one rule file. Reload rebuilds the set off to the side and publishes it
// with a single atomic.Value.Store, so concurrent readers (the DNS and
// stream interceptors) never observe a half-populated set, matching the
// snapshot-swap strategy called for by the design notes on the shared
// mutable blocklist.
type BlocklistStore struct {
	id       string
	path     string
	snapshot atomic.Value // holds *blocklistSnapshot
	entriesG *expvar.Int
	events   chan ReloadResult
}

// ReloadResult reports the outcome of one BlocklistStore.Reload call: the
// snapshot version it produced, the number of distinct entries in that
// snapshot (Accepted), and how many non-blank lines parseRuleLine
// discarded (Rejected).
type ReloadResult struct {
	Version  uint64
	Accepted int
	Rejected int
}

// NewBlocklistStore returns a store for the given path with an empty
// snapshot. Callers must call Reload to populate it; the constructor itself
// never does I/O so tests and the admin '/reload' handler can both trigger
// the first load explicitly. id namespaces the store's expvar counters,
// since a process may run a blocklist and an allowlist store side by side.
func NewBlocklistStore(id, path string) *BlocklistStore {
	s := &BlocklistStore{
		id:       id,
		path:     path,
		entriesG: getVarInt("store", id, "entries"),
		events:   make(chan ReloadResult, 1),
	}
	s.snapshot.Store(&blocklistSnapshot{entries: map[string]struct{}{}})
	return s
}

// Events returns the channel the store publishes a ReloadResult to after
// every successful Reload. The channel holds only the most recent result:
// a Reload that finds it full drops the stale entry rather than blocking,
// so a consumer that receives from it always sees the latest outcome, not
// a backlog of every reload that has happened since it last checked.
func (s *BlocklistStore) Events() <-chan ReloadResult {
	return s.events
}

// Reload reads the store's file from disk, parses every line with
// parseRuleLine, and atomically publishes the resulting set. A missing file
// is logged and treated as an empty set, not a fatal error. Reload is
// idempotent: calling it twice on an unchanged file produces two snapshots
// with identical content (and different version numbers).
func (s *BlocklistStore) Reload() error {
	entries, rejected, err := s.load()
	if err != nil {
		if os.IsNotExist(err) {
			Log.WithField("path", s.path).Warn("blocklist file missing, continuing with empty set")
			entries = map[string]struct{}{}
			rejected = 0
		} else {
			return err
		}
	}

	prev := s.snapshot.Load().(*blocklistSnapshot)
	next := &blocklistSnapshot{entries: entries, version: prev.version + 1}
	s.snapshot.Store(next)
	s.entriesG.Set(int64(len(entries)))
	Log.WithFields(logrus.Fields{"id": s.id, "path": s.path, "entries": len(entries), "version": next.version}).Debug("reloaded blocklist")

	s.publish(ReloadResult{Version: next.version, Accepted: len(entries), Rejected: rejected})
	return nil
}

// publish delivers result on the events channel without blocking, dropping
// a stale unread result first if the single-slot buffer is already full.
func (s *BlocklistStore) publish(result ReloadResult) {
	select {
	case s.events <- result:
	default:
		select {
		case <-s.events:
		default:
		}
		s.events <- result
	}
}

func (s *BlocklistStore) load() (entries map[string]struct{}, rejected int, err error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	entries = make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if host, ok := parseRuleLine(line); ok {
			entries[host] = struct{}{}
		} else if strings.TrimSpace(line) != "" {
			rejected++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}
	return entries, rejected, nil
}

// contains reports whether host is present verbatim in the current
// snapshot. It takes no lock: the snapshot is read once via atomic.Value
// and never mutated after publication, so holding a reference across the
// lookup is safe even if Reload runs concurrently.
func (s *BlocklistStore) contains(host string) bool {
	snap := s.snapshot.Load().(*blocklistSnapshot)
	_, ok := snap.entries[host]
	return ok
}

// Version returns the current snapshot's version counter, bumped on every
// successful Reload starting from 0 for the empty initial snapshot.
func (s *BlocklistStore) Version() uint64 {
	return s.snapshot.Load().(*blocklistSnapshot).version
}

// Len returns the number of entries in the current snapshot.
func (s *BlocklistStore) Len() int {
	return len(s.snapshot.Load().(*blocklistSnapshot).entries)
}

// Rules returns the normalized entries of the current snapshot (not the
// original rule lines), used only by the URL-substring fallback matcher.
func (s *BlocklistStore) Rules() []string {
	snap := s.snapshot.Load().(*blocklistSnapshot)
	rules := make([]string, 0, len(snap.entries))
	for r := range snap.entries {
		rules = append(rules, r)
	}
	return rules
}
