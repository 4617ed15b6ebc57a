// Package control 实现连接索引服务器的控制客户端
//
// 客户端维持一条持久连接，请求通过互斥锁串行化，同一时刻只有一个请求在途。
// 任意 IO 失败都会关闭连接并进入断开状态，之后的调用直接返回 ErrNotConnected。
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dep2p/go-p2pci/internal/util/logger"
	"github.com/dep2p/go-p2pci/pkg/protocol/p2pci"
	"github.com/dep2p/go-p2pci/pkg/types"
)

var log = logger.Logger("peer.control")

// Config 控制客户端配置
type Config struct {
	// ServerAddr 索引服务器地址
	ServerAddr string

	// Host 请求头中通告的主机标识
	Host string

	// UploadPort 请求头中通告的上传端口
	UploadPort int

	// IOTimeout 单个请求的读写超时（0 = 不限制）
	IOTimeout time.Duration
}

// Client 控制客户端
type Client struct {
	config Config

	mu        sync.Mutex
	conn      net.Conn
	r         *p2pci.Reader
	w         *p2pci.Writer
	connected bool
}

// New 创建控制客户端（不发起连接）
func New(cfg Config) *Client {
	return &Client{config: cfg}
}

// Connect 连接索引服务器
//
// 已连接时直接返回 nil；断开后可再次调用以重新连接。
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.config.ServerAddr)
	if err != nil {
		return fmt.Errorf("control: dial %s: %w", c.config.ServerAddr, err)
	}

	c.conn = conn
	c.r = p2pci.NewReader(conn)
	c.w = p2pci.NewWriter(conn)
	c.connected = true

	log.Info("已连接索引服务器", "server", c.config.ServerAddr, "host", c.config.Host, "uploadPort", c.config.UploadPort)
	return nil
}

// SetUploadPort 设置通告的上传端口
//
// 内容服务器使用系统分配端口时，在其启动后、Connect 之前调用。
func (c *Client) SetUploadPort(port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.UploadPort = port
}

// Connected 是否处于连接状态
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close 不发送 EXIT 直接关闭连接，服务器将执行隐式 EXIT
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	return c.disconnect()
}

// ============================================================================
//                              请求
// ============================================================================

// AddRfc 登记本节点持有的文档，返回服务器回显的记录
func (c *Client) AddRfc(ctx context.Context, num int, title string) (types.RfcRecord, error) {
	var rec types.RfcRecord
	if strings.ContainsAny(title, "\r\n") {
		return rec, fmt.Errorf("%w: %q contains a line break", ErrInvalidTitle, title)
	}

	req := p2pci.NewRfcRequest(p2pci.MethodAdd, num, c.identity(p2pci.Header{Key: p2pci.HeaderTitle, Value: title})...)
	err := c.roundTrip(ctx, req, func(st p2pci.Status) error {
		if st.Code != p2pci.StatusOK {
			return c.drainError(st)
		}
		echo, err := c.r.ReadLine()
		if err != nil {
			return err
		}
		if _, err := c.r.ReadBlock(); err != nil {
			return err
		}
		rec, err = p2pci.ParseRecord(echo)
		if err != nil {
			// 回显格式无法解析时退回本地构造的记录
			log.Warn("无法解析 ADD 回显", "line", echo, "error", err)
			rec = types.RfcRecord{Number: num, Title: title, Host: c.config.Host, Port: c.config.UploadPort}
		}
		return nil
	})
	return rec, err
}

// LookupRfc 查询持有文档的节点
//
// 文档未登记（404）时返回空切片和 nil 错误。
func (c *Client) LookupRfc(ctx context.Context, num int) ([]types.RfcRecord, error) {
	var records []types.RfcRecord

	req := p2pci.NewRfcRequest(p2pci.MethodLookup, num, c.identity(p2pci.Header{Key: p2pci.HeaderTitle})...)
	err := c.roundTrip(ctx, req, func(st p2pci.Status) error {
		if st.Code == p2pci.StatusNotFound {
			_, err := c.r.ReadBlock()
			return err
		}
		var err error
		records, err = c.readRecords(st)
		return err
	})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []types.RfcRecord{}
	}
	return records, nil
}

// ListAll 列出索引中的全部记录
func (c *Client) ListAll(ctx context.Context) ([]types.RfcRecord, error) {
	var records []types.RfcRecord

	req := p2pci.Request{
		Method:  p2pci.MethodList,
		Args:    []string{p2pci.KeywordAll},
		Version: p2pci.Version,
		Headers: c.identity(),
	}
	err := c.roundTrip(ctx, req, func(st p2pci.Status) error {
		var err error
		records, err = c.readRecords(st)
		return err
	})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []types.RfcRecord{}
	}
	return records, nil
}

// Exit 发送 EXIT 并关闭连接
func (c *Client) Exit(ctx context.Context) error {
	req := p2pci.Request{
		Method:  p2pci.MethodExit,
		Version: p2pci.Version,
		Headers: c.identity(),
	}
	err := c.roundTrip(ctx, req, func(st p2pci.Status) error {
		if st.Code != p2pci.StatusOK {
			return c.drainError(st)
		}
		_, err := c.r.ReadBlock()
		return err
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		_ = c.disconnect()
	}
	return err
}

// ============================================================================
//                              内部方法
// ============================================================================

// identity 构造 Host/Port 头部，附加 extra
func (c *Client) identity(extra ...p2pci.Header) p2pci.Headers {
	hdrs := p2pci.Headers{
		{Key: p2pci.HeaderHost, Value: c.config.Host},
		{Key: p2pci.HeaderPort, Value: strconv.Itoa(c.config.UploadPort)},
	}
	return append(hdrs, extra...)
}

// roundTrip 发送请求并由 read 解析响应
//
// IO 错误（包括 ctx 取消）会断开连接；协议层面的非 200 状态不会。
func (c *Client) roundTrip(ctx context.Context, req p2pci.Request, read func(p2pci.Status) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dl := time.Time{}
	if c.config.IOTimeout > 0 {
		dl = time.Now().Add(c.config.IOTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (dl.IsZero() || d.Before(dl)) {
		dl = d
	}
	conn := c.conn
	_ = conn.SetDeadline(dl)

	// ctx 取消时让阻塞的读写立即返回
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	err := c.exchange(req, read)
	if err == nil {
		return nil
	}

	var se *StatusError
	if errors.As(err, &se) {
		return err
	}

	_ = c.disconnect()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	log.Warn("与索引服务器的连接已断开", "method", req.Method, "error", err)
	return fmt.Errorf("control: %s: %w", req.Method, err)
}

func (c *Client) exchange(req p2pci.Request, read func(p2pci.Status) error) error {
	c.w.Request(req)
	if err := c.w.Flush(); err != nil {
		return err
	}
	st, err := c.r.ReadStatus()
	if err != nil {
		return err
	}
	log.Debug("收到响应", "method", req.Method, "status", int(st.Code))
	return read(st)
}

// readRecords 读取 200 响应的头部块与数据块
func (c *Client) readRecords(st p2pci.Status) ([]types.RfcRecord, error) {
	if st.Code != p2pci.StatusOK {
		return nil, c.drainError(st)
	}
	if _, err := c.r.ReadBlock(); err != nil {
		return nil, err
	}
	lines, err := c.r.ReadBlock()
	if err != nil {
		return nil, err
	}

	records := make([]types.RfcRecord, 0, len(lines))
	for _, line := range lines {
		rec, err := p2pci.ParseRecord(line)
		if err != nil {
			log.Warn("跳过无法解析的记录行", "line", line, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// drainError 读取错误响应的剩余部分并转换为 StatusError
func (c *Client) drainError(st p2pci.Status) error {
	if _, err := c.r.ReadBlock(); err != nil {
		return err
	}
	return &StatusError{Code: st.Code, Reason: st.Reason}
}

// disconnect 关闭连接并进入断开状态，调用方需持有锁
func (c *Client) disconnect() error {
	c.connected = false
	err := c.conn.Close()
	c.conn, c.r, c.w = nil, nil, nil
	return err
}
