// Package admin 提供索引服务器的诊断 HTTP 接口
//
// 路由:
//
//	GET /healthz        存活检查
//	GET /peers          节点注册表快照（按主机排序）
//	GET /rfcs           全部记录
//	GET /rfcs/{num}     指定编号的记录
//	GET /metrics        Prometheus 指标
package admin

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-p2pci/internal/core/index"
	"github.com/dep2p/go-p2pci/pkg/types"
)

// Handler 诊断接口的处理器
type Handler struct {
	index    *index.RfcIndex
	peers    *index.PeerRegistry
	gatherer prometheus.Gatherer
}

// NewHandler 创建处理器
//
// gatherer 为 nil 时不注册 /metrics。
func NewHandler(x *index.RfcIndex, peers *index.PeerRegistry, gatherer prometheus.Gatherer) *Handler {
	return &Handler{index: x, peers: peers, gatherer: gatherer}
}

// Router 构造 chi 路由
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes 在已有路由上注册诊断接口
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Get("/peers", h.handlePeers)
	r.Get("/rfcs", h.handleListRfcs)
	r.Get("/rfcs/{num}", h.handleLookupRfc)
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handlePeers(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.peers.Snapshot()
	peers := make([]types.PeerInfo, 0, len(snapshot))
	for _, p := range snapshot {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Host < peers[j].Host })
	writeJSON(w, http.StatusOK, peers)
}

func (h *Handler) handleListRfcs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.index.ListAll())
}

func (h *Handler) handleLookupRfc(w http.ResponseWriter, r *http.Request) {
	num, err := strconv.Atoi(chi.URLParam(r, "num"))
	if err != nil || num < 0 {
		http.Error(w, "invalid document number", http.StatusBadRequest)
		return
	}
	records := h.index.Lookup(num)
	if len(records) == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("编码响应失败", "error", err)
	}
}
