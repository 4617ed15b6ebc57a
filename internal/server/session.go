package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/dep2p/go-p2pci/internal/core/index"
	"github.com/dep2p/go-p2pci/internal/util/logger"
	"github.com/dep2p/go-p2pci/pkg/protocol/p2pci"
	"github.com/dep2p/go-p2pci/pkg/types"
)

var sessionLog = logger.Logger("server.session")

// 清理触发原因（同时用作指标标签）
const (
	reasonExit       = "exit"
	reasonDisconnect = "disconnect"
)

// ============================================================================
//                              session
// ============================================================================

// session 单个控制连接的状态
//
// 只由自己的协程访问，不需要加锁。
type session struct {
	id   string
	srv  *IndexServer
	conn net.Conn
	r    *p2pci.Reader
	w    *p2pci.Writer

	// 绑定身份：第一次成功 ADD 时设置，之后不再改变
	bound     bool
	boundHost string
	boundPort int

	cleanupDone bool
}

func newSession(srv *IndexServer, conn net.Conn, id string) *session {
	return &session{
		id:   id,
		srv:  srv,
		conn: conn,
		r:    p2pci.NewReader(conn),
		w:    p2pci.NewWriter(conn),
	}
}

// run 请求循环
//
// 读到 EOF、传输错误、EXIT 或连接被服务器关闭时退出，
// 退出前若会话已绑定且尚未清理，则执行隐式 EXIT。
func (s *session) run() {
	remote := s.conn.RemoteAddr().String()
	sessionLog.Debug("会话已建立", "session", s.id, "remote", remote)

	defer func() {
		if s.bound {
			s.cleanup(s.boundHost, s.boundPort, reasonDisconnect)
		}
		_ = s.conn.Close()
		sessionLog.Debug("会话已结束", "session", s.id, "remote", remote)
	}()

	for {
		_ = s.conn.SetReadDeadline(deadline(s.srv.config.ControlIdleTimeout))
		line, err := s.r.ReadLine()
		if err != nil {
			if errors.Is(err, p2pci.ErrLineTooLong) {
				s.reply("", p2pci.StatusBadRequest)
			}
			if !errors.Is(err, io.EOF) {
				sessionLog.Debug("读取请求行失败", "session", s.id, "error", err)
			}
			return
		}
		if !s.handle(line) {
			return
		}
	}
}

// handle 处理一个请求，返回连接是否继续
func (s *session) handle(line string) bool {
	// 空请求行：不读取头部块，直接 400
	if strings.TrimSpace(line) == "" {
		return s.reply("", p2pci.StatusBadRequest)
	}

	_ = s.conn.SetReadDeadline(deadline(s.srv.config.IOTimeout))
	headers, headerErr := s.r.ReadHeaders()
	if headerErr != nil && !errors.Is(headerErr, p2pci.ErrMalformedRequest) {
		// 头部块中途断开：尽力回复 400 后结束会话
		if errors.Is(headerErr, io.ErrUnexpectedEOF) {
			s.reply("", p2pci.StatusBadRequest)
		}
		sessionLog.Debug("读取头部失败", "session", s.id, "error", headerErr)
		return false
	}

	req, err := p2pci.ParseRequestLine(line)
	if err != nil {
		return s.reply("", p2pci.StatusBadRequest)
	}
	req.Headers = headers

	switch req.Method {
	case p2pci.MethodAdd:
		return s.handleAdd(&req, headerErr)
	case p2pci.MethodLookup:
		return s.handleLookup(&req, headerErr)
	case p2pci.MethodList:
		return s.handleList(&req, headerErr)
	case p2pci.MethodExit:
		s.handleExit(&req, headerErr)
		return false
	default:
		return s.reply(req.Method, p2pci.StatusBadRequest)
	}
}

// ============================================================================
//                              方法处理
// ============================================================================

// handleAdd ADD RFC <num> P2P-CI/1.0 + Host/Port/Title
func (s *session) handleAdd(req *p2pci.Request, headerErr error) bool {
	num, host, port, err := s.rfcRequest(req, headerErr)
	if err != nil {
		return s.fail(req.Method, err)
	}
	values, err := req.Headers.Expect(p2pci.HeaderHost, p2pci.HeaderPort, p2pci.HeaderTitle)
	if err != nil {
		return s.fail(req.Method, err)
	}
	title := values[2]
	if strings.TrimSpace(title) == "" {
		return s.fail(req.Method, fmt.Errorf("%w: empty title", p2pci.ErrMalformedRequest))
	}

	s.srv.peers.AddPeer(host, port)
	added := s.srv.index.AddRfc(num, title, host, port)

	if !s.bound {
		s.bound = true
		s.boundHost = host
		s.boundPort = port
		sessionLog.Info("会话已绑定节点", "session", s.id, "host", host, "port", port)
	}

	sessionLog.Debug("ADD 已处理", "session", s.id, "number", num, "host", host, "port", port, "added", added)

	s.begin(req.Method, p2pci.StatusOK)
	s.w.Line(p2pci.FormatRecord(types.RfcRecord{
		Number: num,
		Title:  title,
		Host:   host,
		Port:   port,
	}))
	s.w.Blank()
	return s.flush()
}

// handleLookup LOOKUP RFC <num> P2P-CI/1.0 + Host/Port[/Title]
func (s *session) handleLookup(req *p2pci.Request, headerErr error) bool {
	num, _, _, err := s.rfcRequest(req, headerErr)
	if err != nil {
		return s.fail(req.Method, err)
	}

	records := s.srv.index.Lookup(num)
	if len(records) == 0 {
		return s.reply(req.Method, p2pci.StatusNotFound)
	}

	s.begin(req.Method, p2pci.StatusOK)
	s.w.Blank()
	for _, r := range records {
		s.w.Line(p2pci.FormatRecord(r))
	}
	s.w.Blank()
	return s.flush()
}

// handleList LIST ALL P2P-CI/1.0 + Host/Port
func (s *session) handleList(req *p2pci.Request, headerErr error) bool {
	if len(req.Args) != 1 || req.Args[0] != p2pci.KeywordAll {
		return s.reply(req.Method, p2pci.StatusBadRequest)
	}
	if _, _, err := s.identity(req, headerErr); err != nil {
		return s.fail(req.Method, err)
	}

	s.begin(req.Method, p2pci.StatusOK)
	s.w.Blank()
	for _, r := range s.srv.index.ListAll() {
		s.w.Line(p2pci.FormatRecord(r))
	}
	s.w.Blank()
	return s.flush()
}

// handleExit EXIT P2P-CI/1.0 + Host[/Port]
//
// 无论结果如何，回复后连接都会关闭。
func (s *session) handleExit(req *p2pci.Request, headerErr error) {
	if len(req.Args) != 0 {
		s.reply(req.Method, p2pci.StatusBadRequest)
		return
	}
	if err := req.CheckVersion(); err != nil {
		s.fail(req.Method, err)
		return
	}

	switch {
	case s.bound:
		s.cleanup(s.boundHost, s.boundPort, reasonExit)
	default:
		host, port, err := s.exitIdentity(req, headerErr)
		if err != nil {
			s.fail(req.Method, err)
			return
		}
		s.cleanup(host, port, reasonExit)
	}
	s.reply(req.Method, p2pci.StatusOK)
}

// exitIdentity 未绑定会话的 EXIT 身份
//
// Host + 数字 Port 精确移除；只有 Host 时按主机移除（端口通配）。
func (s *session) exitIdentity(req *p2pci.Request, headerErr error) (string, int, error) {
	if headerErr != nil {
		return "", 0, headerErr
	}
	values, err := req.Headers.Expect(p2pci.HeaderHost)
	if err != nil {
		return "", 0, err
	}
	host := strings.TrimSpace(values[0])
	if host == "" {
		return "", 0, fmt.Errorf("%w: empty host", p2pci.ErrMalformedRequest)
	}

	if len(req.Headers) < 2 || !strings.EqualFold(req.Headers[1].Key, p2pci.HeaderPort) {
		return host, index.AnyPort, nil
	}
	port, err := parsePort(req.Headers[1].Value)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// ============================================================================
//                              校验辅助
// ============================================================================

// rfcRequest 校验 <METHOD> RFC <num> 形状、版本以及 Host/Port 头部
//
// 形状错误优先于版本错误。
func (s *session) rfcRequest(req *p2pci.Request, headerErr error) (int, string, int, error) {
	num, err := req.RfcArg()
	if err != nil {
		return 0, "", 0, err
	}
	host, port, err := s.identity(req, headerErr)
	if err != nil {
		return 0, "", 0, err
	}
	return num, host, port, nil
}

// identity 校验版本以及按序出现的 Host/Port 头部
func (s *session) identity(req *p2pci.Request, headerErr error) (string, int, error) {
	if err := req.CheckVersion(); err != nil {
		return "", 0, err
	}
	if headerErr != nil {
		return "", 0, headerErr
	}
	values, err := req.Headers.Expect(p2pci.HeaderHost, p2pci.HeaderPort)
	if err != nil {
		return "", 0, err
	}
	host := strings.TrimSpace(values[0])
	if host == "" {
		return "", 0, fmt.Errorf("%w: empty host", p2pci.ErrMalformedRequest)
	}
	port, err := parsePort(values[1])
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func parsePort(v string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("%w: bad port %q", p2pci.ErrMalformedRequest, v)
	}
	return port, nil
}

// ============================================================================
//                              清理与响应
// ============================================================================

// cleanup 移除节点的记录与注册，每个会话至多执行一次
func (s *session) cleanup(host string, port int, reason string) {
	if s.cleanupDone {
		return
	}
	s.cleanupDone = true

	removed := s.srv.index.RemovePeer(host, port)
	unregistered := s.srv.peers.RemovePeer(host, port)
	s.srv.metrics.Cleanup(reason)

	sessionLog.Info("节点已清理",
		"session", s.id,
		"host", host,
		"port", port,
		"reason", reason,
		"records", removed,
		"unregistered", unregistered)
}

// begin 写出状态行并记录指标
func (s *session) begin(method string, code p2pci.StatusCode) {
	s.srv.metrics.Request(method, int(code))
	s.w.Status(code)
}

// reply 写出只有状态行与空行的响应
func (s *session) reply(method string, code p2pci.StatusCode) bool {
	s.begin(method, code)
	s.w.Blank()
	return s.flush()
}

// fail 将协议错误映射为状态码并回复
func (s *session) fail(method string, err error) bool {
	code := p2pci.StatusFor(err)
	if code == 0 {
		code = p2pci.StatusBadRequest
	}
	sessionLog.Debug("请求被拒绝", "session", s.id, "method", method, "status", int(code), "error", err)
	return s.reply(method, code)
}

// flush 在 IO 超时内刷出响应，失败时结束会话
func (s *session) flush() bool {
	_ = s.conn.SetWriteDeadline(deadline(s.srv.config.IOTimeout))
	if err := s.w.Flush(); err != nil {
		sessionLog.Debug("写出响应失败", "session", s.id, "error", err)
		return false
	}
	return true
}
