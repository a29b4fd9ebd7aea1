package sentryd

import "strings"

// HostMatcher answers "is this host blocked" with exact and label-aligned
// right-suffix semantics over a blocklist, consulting an optional allowlist
// first. A blocklist entry "ads.example.com" matches "x.ads.example.com"
// but not "bads.example.com": suffixes are only formed starting right after
// a '.' boundary, never in the middle of a label.
type HostMatcher struct {
	block *BlocklistStore
	allow *BlocklistStore
}

// NewHostMatcher returns a matcher backed by block and, optionally, allow.
// allow may be nil, in which case the allowlist short-circuit never fires.
func NewHostMatcher(block, allow *BlocklistStore) *HostMatcher {
	return &HostMatcher{block: block, allow: allow}
}

// IsBlocked reports whether host or any label-aligned suffix of it is a
// blocklist entry, unless it or a suffix of it is allowlisted first. Empty
// input and an empty blocklist both return false.
func (m *HostMatcher) IsBlocked(host string) bool {
	host = canonicalQueryHost(host)
	if host == "" {
		return false
	}
	if m.allow != nil && matchesSuffix(m.allow, host) {
		return false
	}
	return matchesSuffix(m.block, host)
}

// canonicalQueryHost lowercases host and strips a single trailing root dot,
// the form DNS query names and TLS SNI values commonly arrive in.
func canonicalQueryHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimSuffix(host, ".")
}

// matchesSuffix reports whether host, or the right suffix starting just
// after any '.' in host, is present in store. Suffixes are tried left to
// right so the first (longest) match short-circuits the scan.
func matchesSuffix(store *BlocklistStore, host string) bool {
	if store == nil {
		return false
	}
	if store.contains(host) {
		return true
	}
	for i := 0; i < len(host); i++ {
		if host[i] != '.' {
			continue
		}
		suffix := host[i+1:]
		if suffix == "" {
			continue
		}
		if store.contains(suffix) {
			return true
		}
	}
	return false
}

// URLMatcher is the filter engine's coarse, last-resort fallback: it treats
// every retained rule string as a plain substring pattern against a full
// URL. This is a deliberate compromise, not a filter-list grammar, and
// produces false positives (a rule "ads.example.com" also matches
// "notads.example.com.attacker.test/ads.example.com"). It exists only for
// callers that need a best-effort check against a raw URL rather than a
// resolved host, and is never consulted by the DNS or stream interceptors.
type URLMatcher struct {
	store *BlocklistStore
}

// NewURLMatcher returns a URLMatcher backed by store.
func NewURLMatcher(store *BlocklistStore) *URLMatcher {
	return &URLMatcher{store: store}
}

// MatchesURL reports whether any rule in the store's current snapshot
// appears as a substring of url.
func (m *URLMatcher) MatchesURL(url string) bool {
	if m.store == nil {
		return false
	}
	url = strings.ToLower(url)
	for _, rule := range m.store.Rules() {
		if rule != "" && strings.Contains(url, rule) {
			return true
		}
	}
	return false
}
