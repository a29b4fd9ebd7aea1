package sentryd

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is by callers that need to
// distinguish these conditions from opaque I/O failures.
var (
	// ErrPoolExhausted names the condition in which the stream
	// interceptor's bounded connection pool has no free slot for a newly
	// accepted connection. The interceptor does not return it: it closes
	// such a connection and counts it under stream.{id}.rejected.
	ErrPoolExhausted = errors.New("sentryd: connection pool exhausted")

	// ErrNoSNI is returned by the TLS SNI parser when the input could not
	// be recognized as a ClientHello carrying a server_name extension. The
	// HTTP head parser also returns it for a head with an empty request
	// line.
	ErrNoSNI = errors.New("sentryd: no server_name extension found")

	// ErrHeadTooLarge is returned by the HTTP head parser when the
	// accumulated request head exceeds the configured limit without a
	// terminating blank line.
	ErrHeadTooLarge = errors.New("sentryd: http request head too large")

	// ErrShortDNSMessage names a buffer too small to contain a DNS header.
	// ParseQName does not return it; it reports that case with ok == false.
	ErrShortDNSMessage = errors.New("sentryd: dns message shorter than header")

	// ErrAlreadyRunning is returned by Start when the interceptor already
	// owns a running listener.
	ErrAlreadyRunning = errors.New("sentryd: interceptor already running")
)

// QueryTimeoutError describes an upstream DNS query that timed out. The DNS
// interceptor does not return it: a timed-out relay is counted under
// dns.{id}.upstream_errors and dropped.
type QueryTimeoutError struct {
	Upstream string
	Qname    string
}

func (e QueryTimeoutError) Error() string {
	return fmt.Sprintf("query for %q to %s timed out", e.Qname, e.Upstream)
}

// ListenError wraps a failure to bind a listening socket with the
// interceptor and address involved, so logs and error chains show which
// component failed to start without string-matching the message.
type ListenError struct {
	Component string
	Addr      string
	Err       error
}

func (e *ListenError) Error() string {
	return fmt.Sprintf("sentryd: %s: listen %s: %v", e.Component, e.Addr, e.Err)
}

func (e *ListenError) Unwrap() error { return e.Err }
