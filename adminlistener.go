package sentryd

import (
	"context"
	"encoding/json"
	"expvar"
	"net"
	"net/http"
	"time"
)

// adminServerTimeout bounds read/write on the admin HTTP surface.
const adminServerTimeout = 10 * time.Second

// AdminListener exposes the service's metrics and a reload trigger over
// plain HTTP on a loopback-only address. There is no QUIC or TLS option
// here: the admin surface is consumed by the on-device UI over loopback,
// not by remote clients.
type AdminListener struct {
	httpServer *http.Server
	id         string
	addr       string
	handle     *Handle
	mux        *http.ServeMux
}

var _ Listener = &AdminListener{}

// NewAdminListener returns an admin listener bound to addr (expected to be
// a loopback address) that serves GET /vars and POST /reload against
// handle.
func NewAdminListener(id, addr string, handle *Handle) *AdminListener {
	l := &AdminListener{id: id, addr: addr, handle: handle, mux: http.NewServeMux()}
	l.mux.Handle("/vars", expvar.Handler())
	l.mux.HandleFunc("/reload", l.handleReload)
	return l
}

// reloadResponse is the admin surface's JSON report of a '/reload' call:
// the new snapshot version and accepted/rejected line counts from the
// blocklist load, plus a reachability probe of the configured upstream
// resolver run immediately afterward.
type reloadResponse struct {
	Entries   int                    `json:"entries"`
	Version   uint64                 `json:"version"`
	Rejected  int                    `json:"rejected"`
	Upstreams []reloadUpstreamStatus `json:"upstreams,omitempty"`
}

type reloadUpstreamStatus struct {
	Upstream  string `json:"upstream"`
	RTTMillis int64  `json:"rtt_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *AdminListener) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result, err := s.handle.Reload()
	if err != nil {
		Log.WithError(err).Warn("admin-triggered reload failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	probes := s.handle.CheckUpstreams()
	upstreams := make([]reloadUpstreamStatus, 0, len(probes))
	for _, p := range probes {
		status := reloadUpstreamStatus{Upstream: p.Upstream, RTTMillis: p.RTT.Milliseconds()}
		if p.Err != nil {
			status.Error = p.Err.Error()
			Log.WithFields(map[string]interface{}{"upstream": p.Upstream, "error": p.Err}).Warn("upstream unreachable after reload")
		}
		upstreams = append(upstreams, status)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reloadResponse{
		Entries:   result.Accepted,
		Version:   result.Version,
		Rejected:  result.Rejected,
		Upstreams: upstreams,
	})
}

// Start the admin server. It blocks until Stop is called.
func (s *AdminListener) Start() error {
	Log.WithFields(map[string]interface{}{"id": s.id, "addr": s.addr}).Info("admin listener starting")

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  adminServerTimeout,
		WriteTimeout: adminServerTimeout,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return &ListenError{Component: "admin:" + s.id, Addr: s.addr, Err: err}
	}
	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the admin server down, letting in-flight requests finish.
func (s *AdminListener) Stop() error {
	Log.WithField("id", s.id).Info("admin listener stopping")
	return s.httpServer.Shutdown(context.Background())
}

func (s *AdminListener) String() string { return s.id }
