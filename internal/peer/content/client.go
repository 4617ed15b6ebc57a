package content

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dep2p/go-p2pci/pkg/protocol/p2pci"
	"github.com/dep2p/go-p2pci/pkg/types"
)

// ClientConfig 内容客户端配置
type ClientConfig struct {
	// Host 写入 Host 头部的本机标识
	Host string

	// OS 写入 OS 头部的操作系统
	OS string

	// Timeout 单次下载的总时限（0 = 只受 ctx 约束）
	Timeout time.Duration

	// MaxBodySize 接受的最大 Content-Length（0 = DefaultMaxBodySize）
	MaxBodySize int64
}

// DefaultMaxBodySize 默认的正文长度上限
const DefaultMaxBodySize int64 = 64 << 20

func (c ClientConfig) maxBodySize() int64 {
	if c.MaxBodySize > 0 {
		return c.MaxBodySize
	}
	return DefaultMaxBodySize
}

// Client 内容客户端
//
// 无状态，每次 Fetch 都建立新连接，可并发使用。
type Client struct {
	config ClientConfig
}

// NewClient 创建内容客户端
func NewClient(cfg ClientConfig) *Client {
	return &Client{config: cfg}
}

// Fetch 从对端下载文档
func (c *Client) Fetch(ctx context.Context, peer types.PeerInfo, num int) (*Document, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", peer.Addr())
	if err != nil {
		return nil, fmt.Errorf("content: dial %s: %w", peer.Addr(), err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	doc, err := c.exchange(conn, num)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	log.Debug("文档已下载", "number", num, "peer", peer.Addr(), "bytes", len(doc.Data))
	return doc, nil
}

// Download 下载文档并写入本地存储
func (c *Client) Download(ctx context.Context, peer types.PeerInfo, num int, store Store) (*Document, error) {
	doc, err := c.Fetch(ctx, peer, num)
	if err != nil {
		return nil, err
	}
	if err := store.Put(num, doc.Data); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) exchange(conn net.Conn, num int) (*Document, error) {
	w := p2pci.NewWriter(conn)
	w.Request(p2pci.NewRfcRequest(p2pci.MethodGet, num,
		p2pci.Header{Key: p2pci.HeaderHost, Value: c.config.Host},
		p2pci.Header{Key: p2pci.HeaderOS, Value: c.config.OS},
	))
	if err := w.Flush(); err != nil {
		return nil, err
	}

	r := p2pci.NewReader(conn)
	st, err := r.ReadStatus()
	if err != nil {
		return nil, err
	}
	headers, err := r.ReadHeaders()
	if err != nil && !errors.Is(err, p2pci.ErrMalformedRequest) {
		return nil, err
	}

	switch st.Code {
	case p2pci.StatusOK:
	case p2pci.StatusNotFound:
		return nil, ErrDocumentNotFound
	case p2pci.StatusBadRequest:
		return nil, ErrBadRequest
	case p2pci.StatusVersionNotSupported:
		return nil, ErrVersionNotSupported
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, st)
	}

	v, ok := headers.Get(p2pci.HeaderContentLength)
	if !ok {
		return nil, ErrMissingContentLength
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingContentLength, v)
	}
	if limit := c.config.maxBodySize(); n > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrBodyTooLarge, n, limit)
	}

	body, err := r.ReadBody(n)
	if err != nil {
		return nil, err
	}

	doc := &Document{Number: num, Data: body}
	if lm, ok := headers.Get(p2pci.HeaderLastModified); ok {
		if t, err := http.ParseTime(lm); err == nil {
			doc.ModTime = t
		}
	}
	return doc, nil
}
