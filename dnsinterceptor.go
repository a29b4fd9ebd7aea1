package sentryd

import (
	"net"
	"sync"
	"time"
)

// dnsUDPBufSize is large enough for any query this interceptor is expected
// to receive; EDNS0 and IPv6 answers are not handled.
const dnsUDPBufSize = 4096

// dnsUpstreamTimeout bounds how long a single relayed query waits for the
// upstream resolver to answer before the client is left to retry.
const dnsUpstreamTimeout = 5 * time.Second

// dnsReloadEvery is the datagram-count cadence of the interceptor's own
// reload trigger, supplemented (not replaced) by ReloadManager's fsnotify
// and admin-API triggers.
const dnsReloadEvery = 100

// DNSInterceptor is a UDP relay bound to a single listening socket: it
// synthesizes a sinkhole answer for blocked names and otherwise forwards
// the query to an upstream resolver, copying the first reply back
// verbatim. It holds no package-level state; each instance owns its own
// socket and running flag, so multiple instances can coexist on different
// ports in the same process.
type DNSInterceptor struct {
	id       string
	addr     string
	upstream string
	matcher  *HostMatcher
	reload   *ReloadManager

	mu      sync.Mutex
	conn    *net.UDPConn
	running bool
}

// NewDNSInterceptor returns an interceptor that will listen on addr
// (host:port, typically "0.0.0.0:<port>"), relay non-blocked queries to
// upstream (host:port, default port 53 if omitted by the caller), and
// consult matcher for the block decision. reload may be nil, in which case
// the datagram-count trigger is disabled.
func NewDNSInterceptor(id, addr, upstream string, matcher *HostMatcher, reload *ReloadManager) *DNSInterceptor {
	return &DNSInterceptor{
		id:       id,
		addr:     addr,
		upstream: upstream,
		matcher:  matcher,
		reload:   reload,
	}
}

func (d *DNSInterceptor) String() string { return d.id }

// Start binds the listening socket and serves datagrams until Stop is
// called; a bind failure is returned at once, and read errors while running
// are skipped. It blocks; callers run it in its own goroutine.
func (d *DNSInterceptor) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	udpAddr, err := net.ResolveUDPAddr("udp", d.addr)
	if err != nil {
		d.mu.Unlock()
		return &ListenError{Component: "dns:" + d.id, Addr: d.addr, Err: err}
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		d.mu.Unlock()
		return &ListenError{Component: "dns:" + d.id, Addr: d.addr, Err: err}
	}
	d.conn = conn
	d.running = true
	d.mu.Unlock()

	Log.WithFields(map[string]interface{}{"id": d.id, "addr": d.addr}).Info("dns interceptor listening")

	buf := make([]byte, dnsUDPBufSize)
	for {
		n, clientAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			d.mu.Lock()
			stopped := !d.running
			d.mu.Unlock()
			if stopped {
				return nil
			}
			continue
		}
		query := append([]byte(nil), buf[:n]...)
		d.handleDatagram(conn, query, clientAddr)

		if d.reload != nil {
			d.reload.Tick()
		}
	}
}

func (d *DNSInterceptor) handleDatagram(conn *net.UDPConn, query []byte, clientAddr *net.UDPAddr) {
	getVarInt("dns", d.id, "query").Add(1)

	qname, ok := ParseQName(query)
	if !ok {
		// Parse failure: treat as non-blocked and forward rather than drop.
		d.relay(conn, query, clientAddr)
		return
	}

	if d.matcher.IsBlocked(qname) {
		getVarInt("dns", d.id, "blocked").Add(1)
		resp := SynthesizeBlockResponse(query, defaultSinkAddr)
		_, _ = conn.WriteToUDP(resp, clientAddr)
		return
	}

	d.relay(conn, query, clientAddr)
}

// relay opens a fresh ephemeral socket per query, forwards it to the
// configured upstream, waits up to dnsUpstreamTimeout for the first reply,
// and copies it back to the client verbatim. Timeouts and send/receive
// errors are dropped silently; the client will retry.
func (d *DNSInterceptor) relay(conn *net.UDPConn, query []byte, clientAddr *net.UDPAddr) {
	getVarInt("dns", d.id, "forwarded").Add(1)

	upstreamAddr, err := net.ResolveUDPAddr("udp", withDefaultPort(d.upstream, "53"))
	if err != nil {
		getVarInt("dns", d.id, "upstream_errors").Add(1)
		return
	}

	up, err := net.DialUDP("udp", nil, upstreamAddr)
	if err != nil {
		getVarInt("dns", d.id, "upstream_errors").Add(1)
		return
	}
	defer up.Close()

	if _, err := up.Write(query); err != nil {
		getVarInt("dns", d.id, "upstream_errors").Add(1)
		return
	}

	_ = up.SetReadDeadline(time.Now().Add(dnsUpstreamTimeout))
	respBuf := make([]byte, dnsUDPBufSize)
	n, err := up.Read(respBuf)
	if err != nil {
		getVarInt("dns", d.id, "upstream_errors").Add(1)
		return
	}

	_, _ = conn.WriteToUDP(respBuf[:n], clientAddr)
}

// Stop closes the listening socket, which unblocks the pending
// ReadFromUDP in Start and causes it to return. Safe to call more than
// once and safe to call on an interceptor that was never started.
func (d *DNSInterceptor) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}
	d.running = false
	return d.conn.Close()
}

// withDefaultPort appends ":port" to addr if addr has no port of its own.
func withDefaultPort(addr, port string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, port)
}
