package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-p2pci/internal/core/index"
	"github.com/dep2p/go-p2pci/internal/core/metrics"
	"github.com/dep2p/go-p2pci/pkg/types"
)

func setupHandler(t *testing.T) (*Handler, *index.RfcIndex, *index.PeerRegistry) {
	t.Helper()

	x := index.NewRfcIndex()
	peers := index.NewPeerRegistry()
	reg := prometheus.NewRegistry()
	metrics.RegisterIndex(reg, x, peers)

	x.AddRfc(2, "Two", "hostB", 9002)
	x.AddRfc(1, "One", "hostA", 9001)
	peers.AddPeer("hostB", 9002)
	peers.AddPeer("hostA", 9001)

	return NewHandler(x, peers, reg), x, peers
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// TestHandler_Health 测试存活检查
func TestHandler_Health(t *testing.T) {
	h, _, _ := setupHandler(t)
	w := get(t, h.Router(), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

// TestHandler_Peers 测试注册表快照
func TestHandler_Peers(t *testing.T) {
	h, _, _ := setupHandler(t)
	w := get(t, h.Router(), "/peers")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var peers []types.PeerInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &peers))
	assert.Equal(t, []types.PeerInfo{{Host: "hostA", Port: 9001}, {Host: "hostB", Port: 9002}}, peers)
}

// TestHandler_Rfcs 测试记录查询
func TestHandler_Rfcs(t *testing.T) {
	h, x, _ := setupHandler(t)
	router := h.Router()

	w := get(t, router, "/rfcs")
	require.Equal(t, http.StatusOK, w.Code)
	var all []types.RfcRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].Number)

	w = get(t, router, "/rfcs/2")
	require.Equal(t, http.StatusOK, w.Code)
	var one []types.RfcRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &one))
	assert.Equal(t, []types.RfcRecord{{Number: 2, Title: "Two", Host: "hostB", Port: 9002}}, one)

	assert.Equal(t, http.StatusNotFound, get(t, router, "/rfcs/3").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/rfcs/abc").Code)

	x.RemovePeer("hostA", index.AnyPort)
	x.RemovePeer("hostB", index.AnyPort)
	w = get(t, router, "/rfcs")
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

// TestHandler_Metrics 测试指标导出
func TestHandler_Metrics(t *testing.T) {
	h, _, _ := setupHandler(t)
	w := get(t, h.Router(), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "p2pci_index_records 2")
	assert.Contains(t, w.Body.String(), "p2pci_registry_peers 2")

	noMetrics := NewHandler(index.NewRfcIndex(), index.NewPeerRegistry(), nil)
	assert.Equal(t, http.StatusNotFound, get(t, noMetrics.Router(), "/metrics").Code)
}

// TestServer_Serve 测试诊断服务的启动与优雅关闭
func TestServer_Serve(t *testing.T) {
	h, _, _ := setupHandler(t)
	srv := NewServer("127.0.0.1:0", h.Router())
	require.NoError(t, srv.Listen(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get("http://" + srv.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("admin server did not stop")
	}

	assert.Error(t, NewServer("127.0.0.1:0", h.Router()).Serve(context.Background()))
}
