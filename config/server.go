package config

import (
	"fmt"
	"time"
)

// ServerConfig 索引服务器配置
type ServerConfig struct {
	// ListenAddr 控制连接监听地址
	// 默认值: ":7734"
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`

	// ControlIdleTimeout 等待下一个请求行的最长时间（0 = 不限制）
	// 默认值: 0。控制连接在节点存活期间保持，失联节点由 TCP 保活发现
	ControlIdleTimeout Duration `json:"control_idle_timeout" yaml:"control_idle_timeout"`

	// IOTimeout 读取头部与写出响应的超时（0 = 不限制）
	// 默认值: 30s
	IOTimeout Duration `json:"io_timeout" yaml:"io_timeout"`

	// MaxSessions 最大并发控制会话数（0 = 不限制）
	MaxSessions int `json:"max_sessions" yaml:"max_sessions"`

	// MaxSessionsPerIP 单 IP 最大并发控制会话数（0 = 不限制）
	MaxSessionsPerIP int `json:"max_sessions_per_ip" yaml:"max_sessions_per_ip"`
}

// DefaultServerConfig 返回默认的索引服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:         ":7734",
		ControlIdleTimeout: 0,
		IOTimeout:          Duration(30 * time.Second),
		MaxSessions:        1024,
		MaxSessionsPerIP:   16,
	}
}

// Validate 验证索引服务器配置
func (c *ServerConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("server: listen_addr cannot be empty")
	}
	if c.ControlIdleTimeout < 0 || c.IOTimeout < 0 {
		return fmt.Errorf("server: timeouts cannot be negative")
	}
	if c.MaxSessions < 0 || c.MaxSessionsPerIP < 0 {
		return fmt.Errorf("server: session limits cannot be negative")
	}
	if c.MaxSessions > 0 && c.MaxSessionsPerIP > c.MaxSessions {
		return fmt.Errorf("server: max_sessions_per_ip (%d) exceeds max_sessions (%d)",
			c.MaxSessionsPerIP, c.MaxSessions)
	}
	return nil
}
