package sentryd

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdminListenerVarsAndReload(t *testing.T) {
	blockPath := writeListFile(t, "ads.example.com")
	h, err := Start(Config{
		ID:               "admin-test",
		DNSListenAddr:    "127.0.0.1:0",
		UpstreamDNS:      "127.0.0.1:1",
		StreamListenAddr: "127.0.0.1:0",
		BlocklistPath:    blockPath,
	})
	require.NoError(t, err)
	defer h.Stop()

	admin := NewAdminListener("admin-test", "127.0.0.1:0", h)
	srv := httptest.NewServer(admin.mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/vars")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), "sentryd")

	require.NoError(t, writeListFileContent(blockPath, "ads.example.com\ntracker.io"))
	reloadResp, err := http.Post(srv.URL+"/reload", "application/json", nil)
	require.NoError(t, err)
	defer reloadResp.Body.Close()
	require.Equal(t, http.StatusOK, reloadResp.StatusCode)
	require.Equal(t, 2, h.BlocklistLen())
}

func TestAdminListenerReloadRejectsGET(t *testing.T) {
	blockPath := writeListFile(t, "ads.example.com")
	h, err := Start(Config{
		ID:               "admin-test-2",
		DNSListenAddr:    "127.0.0.1:0",
		UpstreamDNS:      "127.0.0.1:1",
		StreamListenAddr: "127.0.0.1:0",
		BlocklistPath:    blockPath,
	})
	require.NoError(t, err)
	defer h.Stop()

	admin := NewAdminListener("admin-test-2", "127.0.0.1:0", h)
	srv := httptest.NewServer(admin.mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/reload")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
