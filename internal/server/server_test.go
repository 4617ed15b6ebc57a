package server

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/dep2p/go-p2pci/config"
	"github.com/dep2p/go-p2pci/internal/core/index"
	"github.com/dep2p/go-p2pci/internal/core/metrics"
	"github.com/dep2p/go-p2pci/pkg/protocol/p2pci"
	"github.com/dep2p/go-p2pci/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

type testServer struct {
	*IndexServer
	index *index.RfcIndex
	peers *index.PeerRegistry
}

func startServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()

	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	for _, m := range mutate {
		m(&cfg)
	}

	x := index.NewRfcIndex()
	peers := index.NewPeerRegistry()
	srv := NewIndexServer(cfg, x, peers, nil)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })

	return &testServer{IndexServer: srv, index: x, peers: peers}
}

// rawClient 直接收发报文的测试客户端
type rawClient struct {
	t    *testing.T
	conn net.Conn
	r    *p2pci.Reader
}

func dial(t *testing.T, srv *testServer) *rawClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	return &rawClient{t: t, conn: conn, r: p2pci.NewReader(conn)}
}

func (c *rawClient) send(lines ...string) {
	c.t.Helper()
	_, err := io.WriteString(c.conn, strings.Join(lines, "\r\n")+"\r\n")
	require.NoError(c.t, err)
}

func (c *rawClient) status() p2pci.StatusCode {
	c.t.Helper()
	st, err := c.r.ReadStatus()
	require.NoError(c.t, err)
	return st.Code
}

func (c *rawClient) line() string {
	c.t.Helper()
	line, err := c.r.ReadLine()
	require.NoError(c.t, err)
	return line
}

// expectEmpty 读取只有状态行与空行的响应
func (c *rawClient) expectEmpty(code p2pci.StatusCode) {
	c.t.Helper()
	require.Equal(c.t, code, c.status())
	require.Equal(c.t, "", c.line())
}

// expectRecords 读取 LOOKUP/LIST 的 200 响应
func (c *rawClient) expectRecords() []types.RfcRecord {
	c.t.Helper()
	require.Equal(c.t, p2pci.StatusOK, c.status())
	require.Equal(c.t, "", c.line())

	lines, err := c.r.ReadBlock()
	require.NoError(c.t, err)

	records := make([]types.RfcRecord, 0, len(lines))
	for _, l := range lines {
		r, err := p2pci.ParseRecord(l)
		require.NoError(c.t, err)
		records = append(records, r)
	}
	return records
}

func (c *rawClient) expectClosed() {
	c.t.Helper()
	_, err := c.r.ReadLine()
	assert.Error(c.t, err)
}

func (c *rawClient) add(num int, title, host string, port int) string {
	c.t.Helper()
	c.send(
		"ADD RFC "+strconv.Itoa(num)+" P2P-CI/1.0",
		"Host: "+host,
		"Port: "+strconv.Itoa(port),
		"Title: "+title,
		"",
	)
	require.Equal(c.t, p2pci.StatusOK, c.status())
	echo := c.line()
	require.Equal(c.t, "", c.line())
	return echo
}

func (c *rawClient) lookup(num int) {
	c.send("LOOKUP RFC "+strconv.Itoa(num)+" P2P-CI/1.0", "Host: hostQ", "Port: 1", "Title: x", "")
}

func (c *rawClient) list() {
	c.send("LIST ALL P2P-CI/1.0", "Host: hostQ", "Port: 1", "")
}

// ============================================================================
//                              ADD / LOOKUP / LIST
// ============================================================================

// TestAddThenLookup 测试 ADD 后 LOOKUP 返回同一记录
func TestAddThenLookup(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)

	echo := c.add(100, "Internet Protocol", "hostA", 9001)
	assert.Equal(t, "RFC 100 Internet Protocol hostA 9001", echo)

	c.lookup(100)
	records := c.expectRecords()
	assert.Equal(t, []types.RfcRecord{
		{Number: 100, Title: "Internet Protocol", Host: "hostA", Port: 9001},
	}, records)

	p, ok := srv.peers.GetPeer("hostA")
	require.True(t, ok)
	assert.Equal(t, 9001, p.Port)
}

// TestAddIdempotent 测试重复 ADD 不产生重复记录
func TestAddIdempotent(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)

	c.add(7, "Seven", "hostA", 9001)
	c.add(7, "Seven", "hostA", 9001)

	c.lookup(7)
	assert.Len(t, c.expectRecords(), 1)
	assert.Equal(t, 1, srv.index.Stats().Records)
}

// TestLookupNotFound 测试查找未登记的编号
func TestLookupNotFound(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)

	c.lookup(42)
	c.expectEmpty(p2pci.StatusNotFound)

	// 连接仍可用
	c.list()
	assert.Empty(t, c.expectRecords())
}

// TestListAll 测试 LIST 返回全部记录，桶按编号升序
func TestListAll(t *testing.T) {
	srv := startServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	a.add(30, "Thirty", "hostA", 9001)
	a.add(10, "Ten", "hostA", 9001)
	b.add(30, "Thirty", "hostB", 9002)
	b.add(20, "Twenty", "hostB", 9002)

	a.list()
	records := a.expectRecords()
	require.Len(t, records, 4)

	nums := make([]int, len(records))
	for i, r := range records {
		nums[i] = r.Number
	}
	assert.Equal(t, []int{10, 20, 30, 30}, nums)
	// 桶内保持插入顺序
	assert.Equal(t, "hostA", records[2].Host)
	assert.Equal(t, "hostB", records[3].Host)
}

// TestAddValidation 测试 ADD 的头部校验
func TestAddValidation(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)

	cases := [][]string{
		{"ADD RFC 1 P2P-CI/1.0", "Host: hostA", "Port: 9001", ""},
		{"ADD RFC 1 P2P-CI/1.0", "Port: 9001", "Host: hostA", "Title: t", ""},
		{"ADD RFC 1 P2P-CI/1.0", "Host: hostA", "Port: abc", "Title: t", ""},
		{"ADD RFC 1 P2P-CI/1.0", "Host: hostA", "Port: 9001", "Title: ", ""},
		{"ADD RFC 1 P2P-CI/1.0", "Host: hostA", "Port: 9001", "Title:    ", ""},
		{"ADD RFC x P2P-CI/1.0", "Host: hostA", "Port: 9001", "Title: t", ""},
		{"ADD RFC 1 P2P-CI/1.0", "Host: hostA", "no colon", "Port: 9001", "Title: t", ""},
	}
	for _, lines := range cases {
		c.send(lines...)
		c.expectEmpty(p2pci.StatusBadRequest)
	}
	assert.Equal(t, 0, srv.index.Stats().Records)
	assert.Equal(t, 0, srv.peers.Len())

	// 头部键不区分大小写，多余的头部被忽略
	c.send("ADD RFC 1 P2P-CI/1.0", "host: hostA", "PORT: 9001", "title: One", "X-Extra: y", "")
	require.Equal(t, p2pci.StatusOK, c.status())
	assert.Equal(t, "RFC 1 One hostA 9001", c.line())
	assert.Equal(t, "", c.line())
}

// TestAddKeepsTitleWhitespace 测试标题保留尾部空格，Host/Port 去除首尾空白
func TestAddKeepsTitleWhitespace(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)

	c.send("ADD RFC 7 P2P-CI/1.0", "Host:  hostA ", "Port: 9001 ", "Title: Padded  Title  ", "")
	require.Equal(t, p2pci.StatusOK, c.status())
	assert.Equal(t, "RFC 7 Padded  Title   hostA 9001", c.line())
	assert.Equal(t, "", c.line())

	records := srv.index.Lookup(7)
	require.Len(t, records, 1)
	assert.Equal(t, "Padded  Title  ", records[0].Title)
	assert.Equal(t, "hostA", records[0].Host)

	_, ok := srv.peers.GetPeer("hostA")
	assert.True(t, ok)
}

// ============================================================================
//                              错误与版本
// ============================================================================

// TestMalformedRequestKeepsSession 测试格式错误的请求不会中断会话
func TestMalformedRequestKeepsSession(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)

	c.send("GARBAGE", "")
	c.expectEmpty(p2pci.StatusBadRequest)

	c.send("FETCH RFC 1 P2P-CI/1.0", "Host: hostA", "")
	c.expectEmpty(p2pci.StatusBadRequest)

	// 空请求行不读取头部块
	c.send("")
	c.expectEmpty(p2pci.StatusBadRequest)

	echo := c.add(5, "Five", "hostA", 9001)
	assert.Equal(t, "RFC 5 Five hostA 9001", echo)
}

// TestVersionNotSupported 测试版本校验与形状优先
func TestVersionNotSupported(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)

	c.send("LOOKUP RFC 1 P2P-CI/2.0", "Host: hostA", "Port: 9001", "")
	c.expectEmpty(p2pci.StatusVersionNotSupported)

	c.send("LIST ALL HTTP/1.1", "Host: hostA", "Port: 9001", "")
	c.expectEmpty(p2pci.StatusVersionNotSupported)

	// 形状错误时无论版本如何都是 400
	c.send("LOOKUP 1 P2P-CI/2.0", "Host: hostA", "Port: 9001", "")
	c.expectEmpty(p2pci.StatusBadRequest)

	c.send("ADD RFC 1 P2P-CI/1.1", "Host: hostA", "Port: 9001", "Title: t", "")
	c.expectEmpty(p2pci.StatusVersionNotSupported)
	assert.Equal(t, 0, srv.index.Stats().Records)
}

// TestHeaderBlockEOF 测试头部块中途断开
func TestHeaderBlockEOF(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)

	_, err := io.WriteString(c.conn, "ADD RFC 1 P2P-CI/1.0\r\nHost: hostA\r\n")
	require.NoError(t, err)
	require.NoError(t, c.conn.(*net.TCPConn).CloseWrite())

	c.expectEmpty(p2pci.StatusBadRequest)
	c.expectClosed()
	assert.Equal(t, 0, srv.index.Stats().Records)
}

// ============================================================================
//                              EXIT 与清理
// ============================================================================

// TestExitRemovesPeer 测试 EXIT 移除节点的全部记录
func TestExitRemovesPeer(t *testing.T) {
	srv := startServer(t)
	a := dial(t, srv)
	q := dial(t, srv)

	a.add(1, "One", "hostA", 9001)
	a.add(2, "Two", "hostA", 9001)
	q.add(2, "Two", "hostB", 9002)

	a.send("EXIT P2P-CI/1.0", "Host: hostA", "Port: 9001", "")
	a.expectEmpty(p2pci.StatusOK)
	a.expectClosed()

	q.lookup(1)
	q.expectEmpty(p2pci.StatusNotFound)

	q.lookup(2)
	assert.Equal(t, []types.RfcRecord{{Number: 2, Title: "Two", Host: "hostB", Port: 9002}}, q.expectRecords())

	_, ok := srv.peers.Snapshot()["hostA"]
	assert.False(t, ok)
	assert.Equal(t, 1, srv.peers.Len())
}

// TestImplicitExitOnClose 测试断开连接触发隐式 EXIT
func TestImplicitExitOnClose(t *testing.T) {
	srv := startServer(t)
	a := dial(t, srv)

	a.add(1, "One", "hostA", 9001)
	require.NoError(t, a.conn.Close())

	require.Eventually(t, func() bool {
		return srv.index.Lookup(1) == nil && srv.peers.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	q := dial(t, srv)
	q.lookup(1)
	q.expectEmpty(p2pci.StatusNotFound)
}

// TestBindingIsFirstAdd 测试会话身份只在第一次 ADD 时绑定
func TestBindingIsFirstAdd(t *testing.T) {
	srv := startServer(t)
	a := dial(t, srv)

	a.add(1, "One", "hostA", 9001)
	a.add(2, "Two", "hostB", 9002)

	// 头部中的身份被忽略，使用绑定身份
	a.send("EXIT P2P-CI/1.0", "Host: hostB", "Port: 9002", "")
	a.expectEmpty(p2pci.StatusOK)
	a.expectClosed()

	require.Eventually(t, func() bool { return srv.index.Lookup(1) == nil }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, srv.index.Lookup(2), 1)
	_, ok := srv.peers.GetPeer("hostB")
	assert.True(t, ok)
}

// TestExitUnbound 测试未绑定会话的 EXIT
func TestExitUnbound(t *testing.T) {
	t.Run("HostAndPort", func(t *testing.T) {
		srv := startServer(t)
		a := dial(t, srv)
		a.add(1, "One", "hostA", 9001)
		a.add(1, "One", "hostA", 9001)

		x := dial(t, srv)
		x.send("EXIT P2P-CI/1.0", "Host: hostA", "Port: 9001", "")
		x.expectEmpty(p2pci.StatusOK)
		x.expectClosed()
		assert.Nil(t, srv.index.Lookup(1))
	})

	t.Run("HostOnly", func(t *testing.T) {
		srv := startServer(t)
		a := dial(t, srv)
		b := dial(t, srv)
		a.add(1, "One", "hostA", 9001)
		b.add(2, "Two", "hostA", 9002)

		x := dial(t, srv)
		x.send("EXIT P2P-CI/1.0", "Host: hostA", "")
		x.expectEmpty(p2pci.StatusOK)
		x.expectClosed()
		assert.Equal(t, 0, srv.index.Stats().Records)
		assert.Equal(t, 0, srv.peers.Len())
	})

	t.Run("NoIdentity", func(t *testing.T) {
		srv := startServer(t)
		x := dial(t, srv)
		x.send("EXIT P2P-CI/1.0", "")
		x.expectEmpty(p2pci.StatusBadRequest)
		x.expectClosed()
	})

	t.Run("BadPort", func(t *testing.T) {
		srv := startServer(t)
		x := dial(t, srv)
		x.send("EXIT P2P-CI/1.0", "Host: hostA", "Port: nine", "")
		x.expectEmpty(p2pci.StatusBadRequest)
		x.expectClosed()
	})
}

// TestMultiHoming 测试同一主机的旧会话断开不会驱逐新注册
func TestMultiHoming(t *testing.T) {
	srv := startServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	a.add(1, "One", "hostA", 9001)
	b.add(2, "Two", "hostA", 9002)
	require.NoError(t, a.conn.Close())

	require.Eventually(t, func() bool { return srv.index.Lookup(1) == nil }, 2*time.Second, 10*time.Millisecond)

	p, ok := srv.peers.GetPeer("hostA")
	require.True(t, ok)
	assert.Equal(t, 9002, p.Port)
	assert.Len(t, srv.index.Lookup(2), 1)
}

// ============================================================================
//                              生命周期与限流
// ============================================================================

// TestStopCleansSessions 测试停止服务器时清理所有会话
func TestStopCleansSessions(t *testing.T) {
	srv := startServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	a.add(1, "One", "hostA", 9001)
	b.add(2, "Two", "hostB", 9002)
	assert.Equal(t, 2, srv.SessionCount())

	require.NoError(t, srv.Stop())
	assert.Equal(t, 0, srv.index.Stats().Records)
	assert.Equal(t, 0, srv.peers.Len())
	assert.Equal(t, 0, srv.SessionCount())

	a.expectClosed()
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerClosed)
}

// TestStartTwice 测试重复启动
func TestStartTwice(t *testing.T) {
	srv := startServer(t)
	assert.ErrorIs(t, srv.Start(context.Background()), ErrAlreadyStarted)
}

// TestSessionLimitPerIP 测试单 IP 会话上限
func TestSessionLimitPerIP(t *testing.T) {
	srv := startServer(t, func(c *Config) { c.MaxSessionsPerIP = 1 })
	a := dial(t, srv)
	a.add(1, "One", "hostA", 9001)

	b := dial(t, srv)
	b.expectClosed()

	// 第一个会话不受影响
	a.lookup(1)
	assert.Len(t, a.expectRecords(), 1)
}

// TestIdleTimeout 测试空闲超时触发隐式 EXIT
func TestIdleTimeout(t *testing.T) {
	srv := startServer(t, func(c *Config) { c.ControlIdleTimeout = 100 * time.Millisecond })
	a := dial(t, srv)
	a.add(1, "One", "hostA", 9001)

	require.Eventually(t, func() bool {
		return srv.index.Lookup(1) == nil && srv.peers.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
	a.expectClosed()
}

// TestIdleSessionSurvivesByDefault 测试默认配置下空闲会话不受 IO 超时影响
func TestIdleSessionSurvivesByDefault(t *testing.T) {
	srv := startServer(t, func(c *Config) { c.IOTimeout = 50 * time.Millisecond })
	require.Zero(t, srv.config.ControlIdleTimeout)

	a := dial(t, srv)
	a.add(1, "One", "hostA", 9001)

	// 远超 IOTimeout 的空闲之后会话与记录仍然存在
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, srv.index.Lookup(1), 1)
	assert.Equal(t, 1, srv.SessionCount())

	a.lookup(1)
	assert.Len(t, a.expectRecords(), 1)
}

// TestModule 测试 Fx 模块装配
func TestModule(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ListenAddr = "127.0.0.1:0"

	var srv *IndexServer
	app := fxtest.New(t,
		fx.WithLogger(func() fxevent.Logger { return &fxevent.ZapLogger{Logger: zap.NewNop()} }),
		fx.Supply(cfg),
		index.Module,
		metrics.Module,
		Module,
		fx.Populate(&srv),
	)
	app.RequireStart()

	require.NotNil(t, srv.Addr())
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	_ = conn.Close()

	app.RequireStop()
}
