package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dep2p/go-p2pci/internal/core/index"
)

const namespace = "p2pci"

// NewRegistry 创建带 Go 运行时与进程指标的注册表
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ============================================================================
//                              索引服务器
// ============================================================================

// Server 索引服务器指标
type Server struct {
	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	requests       *prometheus.CounterVec
	cleanups       *prometheus.CounterVec
	rejected       prometheus.Counter
}

// NewServer 创建并注册索引服务器指标
func NewServer(reg prometheus.Registerer) *Server {
	m := &Server{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "server", Name: "sessions_active",
			Help: "Control sessions currently open.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server", Name: "sessions_total",
			Help: "Control sessions accepted.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server", Name: "requests_total",
			Help: "Control requests handled, by method and status code.",
		}, []string{"method", "status"}),
		cleanups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server", Name: "cleanups_total",
			Help: "Peer teardowns, by trigger.",
		}, []string{"reason"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "server", Name: "conns_rejected_total",
			Help: "Control connections refused by the connection limiter.",
		}),
	}
	reg.MustRegister(m.sessionsActive, m.sessionsTotal, m.requests, m.cleanups, m.rejected)
	return m
}

// SessionOpened 记录会话建立
func (m *Server) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
	m.sessionsTotal.Inc()
}

// SessionClosed 记录会话结束
func (m *Server) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// Request 记录一次请求
func (m *Server) Request(method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(methodLabel(method), strconv.Itoa(status)).Inc()
}

// Cleanup 记录一次拆除
func (m *Server) Cleanup(reason string) {
	if m == nil {
		return
	}
	m.cleanups.WithLabelValues(reason).Inc()
}

// Rejected 记录一次被拒绝的连接
func (m *Server) Rejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

// RegisterIndex 注册索引与注册表的即时统计
func RegisterIndex(reg prometheus.Registerer, x *index.RfcIndex, peers *index.PeerRegistry) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "index", Name: "records",
			Help: "Records held in the RFC index.",
		}, func() float64 { return float64(x.Stats().Records) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "index", Name: "buckets",
			Help: "Distinct document numbers in the RFC index.",
		}, func() float64 { return float64(x.Stats().Buckets) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "registry", Name: "peers",
			Help: "Hosts held in the peer registry.",
		}, func() float64 { return float64(peers.Len()) }),
	)
}

// methodLabel 收敛未知方法，避免标签基数失控
func methodLabel(method string) string {
	switch method {
	case "ADD", "LOOKUP", "LIST", "EXIT", "GET":
		return method
	default:
		return "UNKNOWN"
	}
}

// ============================================================================
//                              内容服务器
// ============================================================================

// Content 内容服务器指标
type Content struct {
	requests *prometheus.CounterVec
	bytes    prometheus.Counter
	rejected prometheus.Counter
}

// NewContent 创建并注册内容服务器指标
func NewContent(reg prometheus.Registerer) *Content {
	m := &Content{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "content", Name: "requests_total",
			Help: "Content requests served, by status code.",
		}, []string{"status"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "content", Name: "bytes_served_total",
			Help: "Document body bytes written.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "content", Name: "conns_rejected_total",
			Help: "Content connections refused by the connection limiter.",
		}),
	}
	reg.MustRegister(m.requests, m.bytes, m.rejected)
	return m
}

// Request 记录一次内容请求
func (m *Content) Request(status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// Served 记录写出的正文字节数
func (m *Content) Served(n int) {
	if m == nil {
		return
	}
	m.bytes.Add(float64(n))
}

// Rejected 记录一次被拒绝的连接
func (m *Content) Rejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}
