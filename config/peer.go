package config

import (
	"fmt"
	"os"
	"runtime"
	"time"
)

// PeerConfig 节点配置
//
// 一个节点同时运行控制客户端（连接索引服务器）和内容服务器（向其他节点提供文档）。
type PeerConfig struct {
	// ServerAddr 索引服务器地址
	// 默认值: "localhost:7734"
	ServerAddr string `json:"server_addr" yaml:"server_addr"`

	// Host 在请求头中通告的主机标识，为空时使用本机主机名
	Host string `json:"host" yaml:"host"`

	// UploadPort 内容服务器端口（0 = 系统分配）
	UploadPort int `json:"upload_port" yaml:"upload_port"`

	// Dir 本地文档目录，布局为 <dir>/rfc<num>.txt
	// 默认值: "rfc"
	Dir string `json:"dir" yaml:"dir"`

	// OS 在 OS 头部中通告的操作系统
	// 默认值: runtime.GOOS
	OS string `json:"os" yaml:"os"`

	// RequestTimeout 单个内容连接的处理时限
	// 默认值: 30s
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout"`

	// IOTimeout 控制客户端的读写超时（0 = 不限制）
	// 默认值: 30s
	IOTimeout Duration `json:"io_timeout" yaml:"io_timeout"`

	// MaxConnsPerIP 单 IP 最大并发内容连接数（0 = 不限制）
	MaxConnsPerIP int `json:"max_conns_per_ip" yaml:"max_conns_per_ip"`

	// RequestRate 每秒允许的内容请求数（0 = 不限制）
	RequestRate float64 `json:"request_rate" yaml:"request_rate"`

	// RequestBurst 请求令牌桶容量
	RequestBurst int `json:"request_burst" yaml:"request_burst"`

	// CacheSize 文档内容缓存条目数
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// MaxBodySize 下载时接受的最大 Content-Length（字节）
	// 默认值: 64 MiB
	MaxBodySize int64 `json:"max_body_size" yaml:"max_body_size"`
}

// DefaultPeerConfig 返回默认的节点配置
func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		ServerAddr:     "localhost:7734",
		UploadPort:     0,
		Dir:            "rfc",
		OS:             runtime.GOOS,
		RequestTimeout: Duration(30 * time.Second),
		IOTimeout:      Duration(30 * time.Second),
		MaxConnsPerIP:  8,
		RequestRate:    50,
		RequestBurst:   100,
		CacheSize:      64,
		MaxBodySize:    64 << 20,
	}
}

// Validate 验证节点配置
func (c *PeerConfig) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("peer: server_addr cannot be empty")
	}
	if c.UploadPort < 0 || c.UploadPort > 65535 {
		return fmt.Errorf("peer: upload_port %d out of range", c.UploadPort)
	}
	if c.Dir == "" {
		return fmt.Errorf("peer: dir cannot be empty")
	}
	if c.RequestTimeout < 0 || c.IOTimeout < 0 {
		return fmt.Errorf("peer: timeouts cannot be negative")
	}
	if c.MaxConnsPerIP < 0 || c.RequestRate < 0 || c.RequestBurst < 0 {
		return fmt.Errorf("peer: limits cannot be negative")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("peer: cache_size must be positive")
	}
	if c.MaxBodySize <= 0 {
		return fmt.Errorf("peer: max_body_size must be positive")
	}
	return nil
}

// AdvertisedHost 返回请求头中通告的主机标识
//
// Host 为空时使用本机主机名，主机名不可用时为 "localhost"。
func (c *PeerConfig) AdvertisedHost() string {
	if c.Host != "" {
		return c.Host
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "localhost"
}
