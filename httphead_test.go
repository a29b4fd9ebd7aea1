package sentryd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHTTPHeadBasic(t *testing.T) {
	raw := "GET /path?x=1 HTTP/1.1\r\nHost: ads.example.com\r\nUser-Agent: test\r\n\r\n"
	head, err := ParseHTTPHead(strings.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, "GET", head.Method)
	require.Equal(t, "/path?x=1", head.Target)
	require.Equal(t, "ads.example.com", head.Host)
	require.Equal(t, raw, string(head.Raw))
	require.Empty(t, head.Trailing)
}

func TestParseHTTPHeadHostCaseInsensitive(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nhOST:   ads.example.com  \r\n\r\n"
	head, err := ParseHTTPHead(strings.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, "ads.example.com", head.Host)
}

func TestParseHTTPHeadConnect(t *testing.T) {
	raw := "CONNECT ads.example.com:443 HTTP/1.1\r\nHost: ads.example.com:443\r\n\r\n"
	head, err := ParseHTTPHead(strings.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, "CONNECT", head.Method)
	require.Equal(t, "ads.example.com:443", head.Target)
	require.Equal(t, "ads.example.com:443", head.Host)
}

func TestParseHTTPHeadPreservesTrailingBody(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nHost: example.com\r\nContent-Length: 5\r\n\r\nhello"
	head, err := ParseHTTPHead(strings.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, "hello", string(head.Trailing))
	require.Equal(t, "POST / HTTP/1.1\r\nHost: example.com\r\nContent-Length: 5\r\n\r\n", string(head.Raw))
}

func TestParseHTTPHeadTooLarge(t *testing.T) {
	var b strings.Builder
	b.WriteString("GET / HTTP/1.1\r\n")
	for b.Len() < maxHTTPHeadSize+1024 {
		b.WriteString("X-Padding: 0123456789012345678901234567890123456789\r\n")
	}
	_, err := ParseHTTPHead(strings.NewReader(b.String()))
	require.ErrorIs(t, err, ErrHeadTooLarge)
}

func TestParseHTTPHeadShortRead(t *testing.T) {
	_, err := ParseHTTPHead(strings.NewReader("GET / HTTP/1.1\r\nHost: example.com"))
	require.Error(t, err)
}

func TestStripPort(t *testing.T) {
	require.Equal(t, "example.com", stripPort("example.com:443"))
	require.Equal(t, "example.com", stripPort("example.com"))
	require.Equal(t, "::1", stripPort("::1"))
	require.Equal(t, "::1", stripPort("[::1]:443"))
}
