package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dep2p/go-p2pci/internal/core/connlimit"
	"github.com/dep2p/go-p2pci/internal/core/index"
	"github.com/dep2p/go-p2pci/internal/core/metrics"
	"github.com/dep2p/go-p2pci/internal/util/logger"
)

var log = logger.Logger("server")

// ============================================================================
//                              IndexServer
// ============================================================================

// IndexServer 索引服务器
//
// 接受控制连接并为每个连接派生一个会话协程。RfcIndex 与 PeerRegistry
// 由外部注入并在所有会话之间共享。
type IndexServer struct {
	config  Config
	index   *index.RfcIndex
	peers   *index.PeerRegistry
	limiter *connlimit.Limiter
	metrics *metrics.Server

	mu       sync.Mutex
	listener net.Listener
	sessions map[*session]struct{}

	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
}

// NewIndexServer 创建索引服务器
//
// m 可以为 nil（不采集指标）。
func NewIndexServer(cfg Config, x *index.RfcIndex, peers *index.PeerRegistry, m *metrics.Server) *IndexServer {
	return &IndexServer{
		config:   cfg,
		index:    x,
		peers:    peers,
		limiter:  connlimit.New(cfg.limiterConfig()),
		metrics:  m,
		sessions: make(map[*session]struct{}),
	}
}

// Start 绑定监听地址并开始接受连接
func (s *IndexServer) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	// KeepAlive 零值即启用系统默认的 TCP 保活，失联节点的会话由保活探测结束
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.ListenAddr)
	if err != nil {
		s.started.Store(false)
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	log.Info("索引服务器已启动", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr 返回实际监听地址，未启动时返回 nil
func (s *IndexServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop 停止服务器
//
// 关闭监听器与所有存活会话的连接，并等待会话协程完成隐式 EXIT 清理。
func (s *IndexServer) Stop() error {
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
	for sess := range s.sessions {
		if cerr := sess.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Info("索引服务器已停止")
	return err
}

// SessionCount 返回当前会话数
func (s *IndexServer) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// acceptLoop 接受连接循环
func (s *IndexServer) acceptLoop(ln net.Listener) {
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
			log.Debug("拒绝控制连接", "remote", conn.RemoteAddr().String(), "error", err)
			s.metrics.Rejected()
			_ = conn.Close()
			continue
		}

		sess := newSession(s, conn, uuid.NewString())
		if !s.track(sess) {
			release()
			_ = conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer release()
			defer s.untrack(sess)
			sess.run()
		}()
	}
}

// track 登记会话，服务器已停止时返回 false
func (s *IndexServer) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return false
	}
	s.sessions[sess] = struct{}{}
	s.metrics.SessionOpened()
	return true
}

func (s *IndexServer) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()

	s.metrics.SessionClosed()
}
