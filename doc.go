/*
Package sentryd implements an on-device content-blocking engine for mobile
network flows. It offers a DNS interceptor that sink-holes queries for
blocked hostnames and relays everything else to an upstream resolver, and a
stream interceptor that classifies accepted TCP connections as HTTP,
HTTP CONNECT, or raw TLS, enforces the same blocklist against the extracted
target host, and otherwise relays the flow transparently.

Both interceptors consult a single shared BlocklistStore through a
HostMatcher, so a rule loaded once is enforced consistently across DNS and
TCP traffic.

	handle, err := sentryd.Start(sentryd.Config{
		ID:               "mobile",
		DNSListenAddr:    "127.0.0.1:5300",
		StreamListenAddr: "127.0.0.1:8443",
		UpstreamDNS:      "1.1.1.1:53",
		BlocklistPath:    "/data/blocklist.txt",
	})
	if err != nil {
		panic(err)
	}
	defer handle.Stop()

Callers are expected to run sentryd behind a platform shim that owns the TUN
device and routes matching traffic to the listeners started here; opening
the TUN descriptor and installing the routing rule is outside this
package's scope.
*/
package sentryd
