package sentryd

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

// streamReceiveTimeout bounds how long the interceptor waits for a client
// to send enough bytes to classify the flow.
const streamReceiveTimeout = 5 * time.Second

// streamSNIPeekSize is how many bytes are peeked, without consuming them,
// to feed the TLS SNI parser.
const streamSNIPeekSize = 8 * 1024

// defaultMaxConnections is the bounded worker pool's default capacity when
// a Config leaves MaxConnections unset.
const defaultMaxConnections = 512

const (
	httpDefaultPort    = "80"
	httpsConnectPort   = "443"
	connectEstablished = "HTTP/1.1 200 Connection Established\r\n\r\n"
)

// StreamInterceptor is a TCP accept loop that classifies each flow as TLS
// (by SNI) or HTTP/CONNECT (by request line and Host header), enforces the
// Host Matcher, and otherwise relays HTTP and CONNECT flows transparently.
// A raw TLS flow whose SNI is not blocked is not relayed: it falls through
// to the HTTP head parser, which fails on it, and the flow is closed. Like
// DNSInterceptor, it owns its socket and running flag directly; nothing
// about it is process-wide, so multiple instances can coexist in one
// process.
type StreamInterceptor struct {
	id             string
	addr           string
	matcher        *HostMatcher
	maxConnections int
	dialer         net.Dialer

	mu       sync.Mutex
	listener net.Listener
	running  bool
	wg       sync.WaitGroup

	sem chan struct{}
}

// NewStreamInterceptor returns an interceptor listening on addr
// (host:port) and enforcing matcher. maxConnections <= 0 uses
// defaultMaxConnections.
func NewStreamInterceptor(id, addr string, matcher *HostMatcher, maxConnections int) *StreamInterceptor {
	if maxConnections <= 0 {
		maxConnections = defaultMaxConnections
	}
	return &StreamInterceptor{
		id:             id,
		addr:           addr,
		matcher:        matcher,
		maxConnections: maxConnections,
		sem:            make(chan struct{}, maxConnections),
	}
}

func (s *StreamInterceptor) String() string { return s.id }

// Start binds the listening socket and accepts connections until Stop is
// called. It blocks; callers run it in its own goroutine.
func (s *StreamInterceptor) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return &ListenError{Component: "stream:" + s.id, Addr: s.addr, Err: err}
	}
	s.listener = ln
	s.running = true
	s.mu.Unlock()

	Log.WithFields(map[string]interface{}{"id": s.id, "addr": s.addr}).Info("stream interceptor listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := !s.running
			s.mu.Unlock()
			if stopped {
				s.wg.Wait()
				return nil
			}
			continue
		}

		select {
		case s.sem <- struct{}{}:
			s.wg.Add(1)
			go s.handle(conn)
		default:
			getVarInt("stream", s.id, "rejected").Add(1)
			conn.Close()
		}
	}
}

// Stop closes the listening socket, unblocking the pending Accept in
// Start, then waits for every in-flight handler goroutine to release its
// pool slot. Safe to call more than once and on an interceptor that was
// never started.
func (s *StreamInterceptor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	ln := s.listener
	s.mu.Unlock()

	err := ln.Close()
	s.wg.Wait()
	return err
}

func (s *StreamInterceptor) handle(conn net.Conn) {
	defer func() {
		<-s.sem
		s.wg.Done()
	}()
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(streamReceiveTimeout))

	// A single Read returns as soon as any data is available rather than
	// waiting to fill the buffer, so this doesn't stall short ClientHellos
	// or HTTP requests until the receive timeout the way bufio.Peek would.
	peekBuf := make([]byte, streamSNIPeekSize)
	n, err := conn.Read(peekBuf)
	if err != nil {
		return
	}
	peeked := peekBuf[:n]

	if sni, err := ParseClientHelloSNI(peeked); err == nil {
		if s.matcher.IsBlocked(sni) {
			getVarInt("stream", s.id, "blocked_sni").Add(1)
			return
		}
	}

	// The bytes already read off the wire belong to the head the HTTP
	// parser needs to see; prepend them so nothing already consumed is lost.
	stream := io.MultiReader(bytes.NewReader(peeked), conn)
	head, err := ParseHTTPHead(stream)
	if err != nil {
		getVarInt("stream", s.id, "parse_errors").Add(1)
		return
	}

	host := stripPort(head.Host)
	if host == "" {
		return
	}
	if s.matcher.IsBlocked(host) {
		getVarInt("stream", s.id, "blocked_http").Add(1)
		return
	}

	port := httpDefaultPort
	if head.Method == "CONNECT" {
		port = httpsConnectPort
	}

	upstream, err := s.dialer.Dial("tcp", net.JoinHostPort(host, port))
	if err != nil {
		getVarInt("stream", s.id, "dial_errors").Add(1)
		return
	}
	defer upstream.Close()

	_ = conn.SetReadDeadline(time.Time{})

	if head.Method == "CONNECT" {
		if _, err := io.WriteString(conn, connectEstablished); err != nil {
			return
		}
	} else {
		if _, err := upstream.Write(head.Raw); err != nil {
			return
		}
		if len(head.Trailing) > 0 {
			if _, err := upstream.Write(head.Trailing); err != nil {
				return
			}
		}
	}

	s.relay(conn, upstream)
}

// relay runs bidirectional copies between client and upstream, half
// closing the write side of each peer as its source reaches EOF, and
// returns once both directions have finished.
func (s *StreamInterceptor) relay(client, upstream net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		n, _ := io.Copy(upstream, client)
		getVarInt("stream", s.id, "relayed_bytes").Add(n)
		closeWrite(upstream)
	}()
	go func() {
		defer wg.Done()
		n, _ := io.Copy(client, upstream)
		getVarInt("stream", s.id, "relayed_bytes").Add(n)
		closeWrite(client)
	}()

	wg.Wait()
}

// closeWrite half-closes conn's write side if it supports it, so the peer
// observes EOF without the whole connection being torn down before the
// other direction's copy finishes.
func closeWrite(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
}
