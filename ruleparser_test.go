package sentryd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRuleLine(t *testing.T) {
	cases := []struct {
		line   string
		host   string
		wantOK bool
	}{
		{"ads.example.com", "ads.example.com", true},
		{"ADS.EXAMPLE.COM", "ads.example.com", true},
		{"! a comment", "", false},
		{"# a comment", "", false},
		{"@@ads.example.com", "", false},
		{"example.com##.banner", "", false},
		{"||tracker.io^", "tracker.io", true},
		{"http://tracker.io:8080/path?x=1", "tracker.io", true},
		{"https://sub.tracker.io/", "sub.tracker.io", true},
		{".leading-dot.example.com", "leading-dot.example.com", true},
		{"*.wild.example.com", ".wild.example.com", true}, // leading-dot trim happens before '*' removal, so the dot survives
		{"", "", false},
		{"   ", "", false},
		{"justahost", "", false}, // no '.' label separator
	}

	for _, c := range cases {
		host, ok := parseRuleLine(c.line)
		require.Equal(t, c.wantOK, ok, "line %q", c.line)
		if ok {
			require.Equal(t, c.host, host, "line %q", c.line)
		}
	}
}

func TestParseRuleLineWildcardStar(t *testing.T) {
	host, ok := parseRuleLine("*ads.example.com")
	require.True(t, ok)
	require.Equal(t, "ads.example.com", host)
}
