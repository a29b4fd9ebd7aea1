package sentryd

import "github.com/pkg/errors"

// Config holds everything needed to start one Service instance. Every
// field maps directly onto the corresponding interceptor constructor; the
// TOML config file decoded by cmd/sentryd translates to one of these.
type Config struct {
	ID string

	DNSListenAddr string
	UpstreamDNS   string

	StreamListenAddr string
	MaxConnections   int

	BlocklistPath string
	AllowlistPath string

	// ReloadEvery is the datagram-count cadence for DNSInterceptor's own
	// reload trigger. 0 selects dnsReloadEvery (100).
	ReloadEvery uint32

	// WatchBlocklistFile enables the fsnotify-driven reload trigger on top
	// of the counter trigger.
	WatchBlocklistFile bool
}

// Service is the top-level supervisor: it owns one DNSInterceptor and one
// StreamInterceptor as independent values rather than process-wide
// singletons, so nothing prevents running two Services side by side in
// the same process on different ports.
type Service struct {
	dns       *DNSInterceptor
	stream    *StreamInterceptor
	reload    *ReloadManager
	block     *BlocklistStore
	allow     *BlocklistStore
	resolvers *ResolverPool
}

// Handle is returned by Service.Start; Stop blocks until every goroutine
// the Service owns has exited.
type Handle struct {
	svc *Service
	err chan error
}

// Start builds the blocklist/allowlist stores, the host matcher, the
// reload manager, and both interceptors from cfg, performs the initial
// blocklist load, and starts both interceptors in their own goroutines.
// It returns once both have bound their listening sockets (or the first
// one to fail has reported its error).
func Start(cfg Config) (*Handle, error) {
	block := NewBlocklistStore(cfg.ID+"-block", cfg.BlocklistPath)
	if err := block.Reload(); err != nil {
		return nil, errors.Wrapf(err, "failed to load blocklist '%s'", cfg.BlocklistPath)
	}

	var allow *BlocklistStore
	if cfg.AllowlistPath != "" {
		allow = NewBlocklistStore(cfg.ID+"-allow", cfg.AllowlistPath)
		if err := allow.Reload(); err != nil {
			return nil, errors.Wrapf(err, "failed to load allowlist '%s'", cfg.AllowlistPath)
		}
	}

	matcher := NewHostMatcher(block, allow)
	reloadEvery := cfg.ReloadEvery
	if reloadEvery == 0 {
		reloadEvery = dnsReloadEvery
	}
	reload := NewReloadManager(block, reloadEvery)
	if cfg.WatchBlocklistFile {
		if err := reload.WatchFile(); err != nil {
			Log.WithError(err).Warn("could not start blocklist file watch")
		}
	}

	dns := NewDNSInterceptor(cfg.ID, cfg.DNSListenAddr, cfg.UpstreamDNS, matcher, reload)
	stream := NewStreamInterceptor(cfg.ID, cfg.StreamListenAddr, matcher, cfg.MaxConnections)

	var resolvers *ResolverPool
	if cfg.UpstreamDNS != "" {
		resolvers = NewResolverPool([]string{cfg.UpstreamDNS})
	}

	svc := &Service{dns: dns, stream: stream, reload: reload, block: block, allow: allow, resolvers: resolvers}
	h := &Handle{svc: svc, err: make(chan error, 2)}

	started := make(chan struct{}, 2)
	go func() {
		started <- struct{}{}
		h.err <- dns.Start()
	}()
	go func() {
		started <- struct{}{}
		h.err <- stream.Start()
	}()
	<-started
	<-started

	return h, nil
}

// Stop stops both owned interceptors and closes the reload manager's file
// watch, if any, blocking until every goroutine the Service started has
// exited. Safe to call more than once.
func (h *Handle) Stop() error {
	dnsErr := h.svc.dns.Stop()
	streamErr := h.svc.stream.Stop()
	_ = h.svc.reload.Close()

	if dnsErr != nil {
		return dnsErr
	}
	return streamErr
}

// Errors returns the channel both interceptors report their terminal
// Start error on (nil on a clean Stop), for callers that want to log or
// act on an unexpected listener failure.
func (h *Handle) Errors() <-chan error {
	return h.err
}

// Reload forces an immediate blocklist reload and returns its version and
// accepted/rejected counts, for the admin '/reload' endpoint.
func (h *Handle) Reload() (ReloadResult, error) {
	return h.svc.reload.ForceReload()
}

// BlocklistLen reports the current blocklist entry count, for the admin
// surface's JSON response after a reload.
func (h *Handle) BlocklistLen() int {
	return h.svc.block.Len()
}

// CheckUpstreams probes the configured upstream resolver for reachability
// and returns one ProbeResult per configured address. It reports no
// results if the service was started without an upstream configured. This
// is the health check the admin surface's '/reload' handler runs after
// every forced reload; it never runs on the DNS interceptor's per-query
// path.
func (h *Handle) CheckUpstreams() []ProbeResult {
	if h.svc.resolvers == nil {
		return nil
	}
	return h.svc.resolvers.CheckAll()
}
