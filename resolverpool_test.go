package sentryd

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// startDNSEchoServer runs a minimal miekg/dns-speaking UDP server that
// answers every NS query for "." with a trivial, well-formed response.
func startDNSEchoServer(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	srv := &dns.Server{PacketConn: pc}
	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		_ = w.WriteMsg(m)
	})
	srv.Handler = mux
	go srv.ActivateAndServe()
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestResolverPoolCheckAllReachable(t *testing.T) {
	addr := startDNSEchoServer(t)
	pool := NewResolverPool([]string{addr})
	results := pool.CheckAll()
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Equal(t, addr, results[0].Upstream)
}

func TestResolverPoolCheckAllUnreachable(t *testing.T) {
	pool := NewResolverPool([]string{"127.0.0.1:1"})
	results := pool.CheckAll()
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
}

func TestResolverPoolMultipleUpstreams(t *testing.T) {
	a := startDNSEchoServer(t)
	b := startDNSEchoServer(t)
	pool := NewResolverPool([]string{a, b, "127.0.0.1:1"})
	results := pool.CheckAll()
	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
	require.Error(t, results[2].Err)
}
