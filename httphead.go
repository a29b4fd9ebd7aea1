package sentryd

import (
	"bytes"
	"io"
	"strings"
)

// maxHTTPHeadSize bounds the request head the parser will accumulate
// before giving up.
const maxHTTPHeadSize = 64 * 1024

var crlfcrlf = []byte("\r\n\r\n")

// HTTPHead is the result of reading a request head off a stream: the
// method and request-target from the request line, the Host header value
// with surrounding whitespace trimmed, the verbatim head bytes (through and
// including the terminating blank line) for forwarding to the origin, and
// any bytes read past the head boundary in the same underlying read that
// belong to the request body and must not be dropped.
type HTTPHead struct {
	Method   string
	Target   string
	Host     string
	Raw      []byte
	Trailing []byte
}

// ParseHTTPHead reads from r, one chunk at a time, accumulating bytes until
// the "\r\n\r\n" terminator appears, then parses the request line and Host
// header out of the accumulated head. It returns ErrHeadTooLarge if no
// terminator is found within maxHTTPHeadSize bytes, and the underlying
// read error (including io.EOF) if the stream ends first.
func ParseHTTPHead(r io.Reader) (*HTTPHead, error) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for {
		n, rerr := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if idx := bytes.Index(buf, crlfcrlf); idx != -1 {
				head := append([]byte(nil), buf[:idx+len(crlfcrlf)]...)
				trailing := append([]byte(nil), buf[idx+len(crlfcrlf):]...)
				return parseHeadBytes(head, trailing)
			}
			if len(buf) > maxHTTPHeadSize {
				return nil, ErrHeadTooLarge
			}
		}
		if rerr != nil {
			return nil, rerr
		}
	}
}

func parseHeadBytes(raw, trailing []byte) (*HTTPHead, error) {
	lines := strings.Split(string(raw), "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, ErrNoSNI // the stream opened with a blank line: no request line
	}

	fields := strings.Fields(lines[0])
	head := &HTTPHead{Raw: raw, Trailing: trailing}
	if len(fields) >= 1 {
		head.Method = fields[0]
	}
	if len(fields) >= 2 {
		head.Target = fields[1]
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := splitHeaderLine(line)
		if !ok {
			continue
		}
		if strings.EqualFold(name, "Host") {
			head.Host = strings.TrimSpace(value)
		}
	}

	return head, nil
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx == -1 {
		return "", "", false
	}
	return line[:idx], line[idx+1:], true
}

// stripPort removes a trailing ":port" from host, leaving IPv6 literals
// (which contain ':' as part of the address, not a port separator) alone
// unless they're bracketed, matching the Host header forms a forward proxy
// actually receives in practice ("example.com:8080", "example.com").
func stripPort(host string) string {
	idx := strings.LastIndexByte(host, ':')
	if idx == -1 {
		return host
	}
	// Bail out on bare IPv6 literals without brackets; rare in a Host
	// header but better to keep the whole value than mis-split it.
	if strings.Count(host, ":") > 1 && !strings.HasPrefix(host, "[") {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(host[:idx], "["), "]")
}
