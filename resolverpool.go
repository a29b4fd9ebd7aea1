package sentryd

import (
	"sync"
	"time"

	"github.com/miekg/dns"
)

// resolverPoolQueryTimeout bounds a single health-check query.
const resolverPoolQueryTimeout = 2 * time.Second

// resolverPoolProbeName is queried against every configured upstream as a
// reachability check; NS queries for the root are cheap and every
// resolver answers them.
const resolverPoolProbeName = "."

// ResolverPool wraps a miekg/dns client down to the one thing this
// implementation actually needs from a richer DNS client library: a
// reachability probe run after a reload, not the per-query hot path,
// which does its own raw-socket parsing instead. It is the only place
// github.com/miekg/dns message types are constructed, and its CheckAll
// is invoked by the admin surface's '/reload' handler right after every
// forced blocklist reload.
type ResolverPool struct {
	mu        sync.Mutex
	upstreams []string
	client    *dns.Client
}

// NewResolverPool returns a pool over the given upstream addresses
// (host:port, default port 53 if omitted).
func NewResolverPool(upstreams []string) *ResolverPool {
	return &ResolverPool{
		upstreams: upstreams,
		client:    &dns.Client{Net: "udp", Timeout: resolverPoolQueryTimeout},
	}
}

// ProbeResult is one upstream's reachability outcome.
type ProbeResult struct {
	Upstream string
	RTT      time.Duration
	Err      error
}

// CheckAll queries every configured upstream with a cheap NS probe and
// returns one ProbeResult per upstream, in configured order. It never
// blocks a client-facing DNS answer: callers run it from the reload path,
// not from DNSInterceptor's per-datagram handler.
func (p *ResolverPool) CheckAll() []ProbeResult {
	p.mu.Lock()
	upstreams := append([]string(nil), p.upstreams...)
	p.mu.Unlock()

	results := make([]ProbeResult, len(upstreams))
	var wg sync.WaitGroup
	for i, addr := range upstreams {
		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			results[i] = p.probe(addr)
		}(i, addr)
	}
	wg.Wait()
	return results
}

func (p *ResolverPool) probe(addr string) ProbeResult {
	msg := new(dns.Msg)
	msg.SetQuestion(resolverPoolProbeName, dns.TypeNS)
	msg.RecursionDesired = true

	_, rtt, err := p.client.Exchange(msg, withDefaultPort(addr, "53"))
	if err != nil {
		Log.WithFields(map[string]interface{}{"upstream": addr, "error": err}).Warn("resolver pool probe failed")
		return ProbeResult{Upstream: addr, Err: err}
	}
	return ProbeResult{Upstream: addr, RTT: rtt}
}
