package config

import (
	"fmt"
	"net"
)

// AdminConfig 诊断 HTTP 服务配置
type AdminConfig struct {
	// ListenAddr 监听地址，为空时不启动
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

// DefaultAdminConfig 返回默认的诊断服务配置（关闭）
func DefaultAdminConfig() AdminConfig {
	return AdminConfig{}
}

// Enabled 是否启用诊断服务
func (c *AdminConfig) Enabled() bool {
	return c.ListenAddr != ""
}

// Validate 验证诊断服务配置
func (c *AdminConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("admin: invalid listen_addr %q: %w", c.ListenAddr, err)
	}
	return nil
}
