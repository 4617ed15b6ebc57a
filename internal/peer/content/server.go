package content

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/dep2p/go-p2pci/internal/core/connlimit"
	"github.com/dep2p/go-p2pci/internal/core/metrics"
	"github.com/dep2p/go-p2pci/internal/util/logger"
	"github.com/dep2p/go-p2pci/pkg/protocol/p2pci"
)

var log = logger.Logger("peer.content")

// ServerConfig 内容服务器配置
type ServerConfig struct {
	// ListenAddr 监听地址，端口 0 表示系统分配
	ListenAddr string

	// OS 写入 OS 头部的操作系统
	OS string

	// RequestTimeout 单个连接的处理时限（0 = 不限制）
	RequestTimeout time.Duration

	// Clock 生成 Date 头部的时钟，nil 时使用系统时钟
	Clock clock.Clock
}

// ============================================================================
//                              Server
// ============================================================================

// Server 内容服务器
type Server struct {
	config  ServerConfig
	store   Store
	limiter *connlimit.Limiter
	metrics *metrics.Content
	clock   clock.Clock

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}

	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
}

// NewServer 创建内容服务器
//
// limiter 与 m 均可为 nil。
func NewServer(cfg ServerConfig, store Store, limiter *connlimit.Limiter, m *metrics.Content) *Server {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Server{
		config:  cfg,
		store:   store,
		limiter: limiter,
		metrics: m,
		clock:   clk,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start 绑定监听地址并开始接受连接
func (s *Server) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.ListenAddr)
	if err != nil {
		s.started.Store(false)
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	log.Info("内容服务器已启动", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr 返回实际监听地址，未启动时返回 nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port 返回实际监听端口，未启动时返回 0
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Stop 关闭监听器并等待在途请求结束
//
// 在途连接受 RequestTimeout 约束；没有超时时会被直接关闭。
func (s *Server) Stop() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	s.mu.Lock()
	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	if s.config.RequestTimeout <= 0 {
		for conn := range s.conns {
			err = multierr.Append(err, ignoreClosed(conn.Close()))
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Info("内容服务器已停止")
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("接受连接失败", "error", err)
			continue
		}

		release, err := s.limiter.Acquire(conn.RemoteAddr())
		if err != nil {
			log.Debug("拒绝内容连接", "remote", conn.RemoteAddr().String(), "error", err)
			s.metrics.Rejected()
			_ = conn.Close()
			continue
		}

		if !s.track(conn) {
			release()
			_ = conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer release()
			defer s.untrack(conn)
			s.serve(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// serve 处理一个 GET 请求后关闭连接
func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	if s.config.RequestTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.config.RequestTimeout))
	}

	r := p2pci.NewReader(conn)
	line, err := r.ReadLine()
	if err != nil {
		log.Debug("读取请求行失败", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	// 头部块（Host、OS）读取后忽略
	if _, err := r.ReadHeaders(); err != nil && !errors.Is(err, p2pci.ErrMalformedRequest) {
		log.Debug("读取头部失败", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}

	w := p2pci.NewWriter(conn)
	num, code := s.parseRequest(line)
	if code != p2pci.StatusOK {
		s.writeError(w, code)
		return
	}

	doc, err := s.store.Open(num)
	if err != nil {
		if !errors.Is(err, ErrDocumentNotFound) {
			log.Warn("读取本地文档失败", "number", num, "error", err)
		}
		s.writeError(w, p2pci.StatusNotFound)
		return
	}

	w.Status(p2pci.StatusOK)
	w.Header(p2pci.HeaderDate, httpDate(s.clock.Now()))
	w.Header(p2pci.HeaderOS, s.config.OS)
	w.Header(p2pci.HeaderLastModified, httpDate(doc.ModTime))
	w.Header(p2pci.HeaderContentLength, strconv.Itoa(len(doc.Data)))
	w.Header(p2pci.HeaderContentType, p2pci.ContentTypeText)
	w.Blank()
	w.Body(doc.Data)
	if err := w.Flush(); err != nil {
		log.Debug("写出文档失败", "number", num, "error", err)
		return
	}

	s.metrics.Request(int(p2pci.StatusOK))
	s.metrics.Served(len(doc.Data))
	log.Debug("文档已发送", "number", num, "bytes", len(doc.Data), "remote", conn.RemoteAddr().String())
}

// parseRequest 校验 GET RFC <num> P2P-CI/1.0
//
// 形状与编号先于版本校验，版本先于文档查找。
func (s *Server) parseRequest(line string) (int, p2pci.StatusCode) {
	fields := strings.Fields(line)
	if len(fields) != 4 || fields[0] != p2pci.MethodGet || fields[1] != p2pci.KeywordRFC {
		return 0, p2pci.StatusBadRequest
	}
	num, err := strconv.Atoi(fields[2])
	if err != nil || num < 0 {
		return 0, p2pci.StatusBadRequest
	}
	if fields[3] != p2pci.Version {
		return 0, p2pci.StatusVersionNotSupported
	}
	return num, p2pci.StatusOK
}

// writeError 写出状态行、OS 头部与空行
func (s *Server) writeError(w *p2pci.Writer, code p2pci.StatusCode) {
	w.Status(code)
	w.Header(p2pci.HeaderOS, s.config.OS)
	w.Blank()
	_ = w.Flush()
	s.metrics.Request(int(code))
}

func httpDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
