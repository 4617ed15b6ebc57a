// Package config 提供 p2pci 的统一配置
//
// 配置来源的优先级（由低到高）：
//   - DefaultConfig 默认值
//   - 配置文件（YAML，JSON 作为其子集同样可读）
//   - P2PCI_* 环境变量
//   - 命令行参数（由 cmd 负责）
//
// 使用示例：
//
//	cfg, err := config.Load("p2pci.yaml")
//	if err != nil {
//	    return err
//	}
//	config.ApplyEnv(cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 是 p2pci 的完整配置结构
//
//   - Server: 索引服务器
//   - Peer: 节点（控制客户端与内容服务器）
//   - Admin: 诊断 HTTP 服务
type Config struct {
	// Server 索引服务器配置
	Server ServerConfig `json:"server" yaml:"server"`

	// Peer 节点配置
	Peer PeerConfig `json:"peer" yaml:"peer"`

	// Admin 诊断服务配置
	Admin AdminConfig `json:"admin" yaml:"admin"`
}

// DefaultConfig 创建默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: DefaultServerConfig(),
		Peer:   DefaultPeerConfig(),
		Admin:  DefaultAdminConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Peer.Validate(); err != nil {
		return err
	}
	return c.Admin.Validate()
}

// Load 从文件加载配置
//
// 文件中未出现的字段保留默认值。path 为空时直接返回默认配置。
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: 用户指定的配置文件路径是预期行为
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse 将 YAML（或 JSON）数据解析到 cfg 之上
func Parse(data []byte, cfg *Config) error {
	return yaml.Unmarshal(data, cfg)
}
