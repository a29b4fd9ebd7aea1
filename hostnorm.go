package sentryd

import (
	"strings"

	"golang.org/x/net/idna"
)

// normalizeHost turns a raw rule line or a DNS query name into a canonical
// host: lowercase ASCII, no scheme, no port, no wildcard markers. Only a
// single leading dot present before step 7 is dropped, so a dot uncovered
// by removing a leading '*' ("*.a.com" -> ".a.com") remains. It mirrors foxcpp/rhole's normalize(), generalized to the
// network-anchor and URL rule forms this blocklist format also accepts.
//
// Steps, applied in order:
//  1. lowercase the whole line
//  2. drop through a "scheme://" prefix, if present
//  3. drop a leading "||" network anchor marker
//  4. truncate at the first '/', '^' or '$'
//  5. drop a single leading '.'
//  6. truncate at the first ':' (strip a port)
//  7. remove all '*' wildcard characters
//  8. IDNA-normalize to ASCII; on failure keep the lowercased result as-is
func normalizeHost(line string) string {
	s := strings.ToLower(strings.TrimSpace(line))

	if idx := strings.Index(s, "://"); idx != -1 {
		s = s[idx+3:]
	}

	s = strings.TrimPrefix(s, "||")

	if idx := strings.IndexAny(s, "/^$"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimPrefix(s, ".")

	if idx := strings.IndexByte(s, ':'); idx != -1 {
		s = s[:idx]
	}

	s = strings.ReplaceAll(s, "*", "")

	if ascii, err := idna.ToASCII(s); err == nil {
		s = ascii
	}

	return s
}

// isValidBlockedName reports whether a normalized host satisfies the
// Blocked-name entry invariant: non-empty, at least one label separator,
// and no longer than 253 octets.
func isValidBlockedName(host string) bool {
	return host != "" && len(host) <= 253 && strings.Contains(host, ".")
}
