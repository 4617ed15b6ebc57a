package server

import (
	"time"

	"github.com/dep2p/go-p2pci/config"
	"github.com/dep2p/go-p2pci/internal/core/connlimit"
)

// Config 索引服务器配置
type Config struct {
	// ListenAddr 监听地址
	ListenAddr string

	// ControlIdleTimeout 等待下一个请求行的最长时间（0 = 不限制）
	ControlIdleTimeout time.Duration

	// IOTimeout 读取头部与写出响应的超时（0 = 不限制）
	IOTimeout time.Duration

	// MaxSessions 最大并发会话数（0 = 不限制）
	MaxSessions int

	// MaxSessionsPerIP 单 IP 最大并发会话数（0 = 不限制）
	MaxSessionsPerIP int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置创建服务器配置
func ConfigFromUnified(cfg *config.Config) Config {
	sc := config.DefaultServerConfig()
	if cfg != nil {
		sc = cfg.Server
	}
	return Config{
		ListenAddr:         sc.ListenAddr,
		ControlIdleTimeout: sc.ControlIdleTimeout.Duration(),
		IOTimeout:          sc.IOTimeout.Duration(),
		MaxSessions:        sc.MaxSessions,
		MaxSessionsPerIP:   sc.MaxSessionsPerIP,
	}
}

func (c Config) limiterConfig() connlimit.Config {
	return connlimit.Config{
		MaxConns:      c.MaxSessions,
		MaxConnsPerIP: c.MaxSessionsPerIP,
	}
}

// deadline 将超时换算为截止时间，0 表示不设截止
func deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}
