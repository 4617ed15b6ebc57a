package config

import (
	"os"
	"strconv"
	"time"
)

// 环境变量名称
const (
	EnvPrefix = "P2PCI_"

	EnvServerListen = "SERVER_LISTEN"
	EnvServerAddr   = "SERVER_ADDR"
	EnvPeerHost     = "PEER_HOST"
	EnvUploadPort   = "UPLOAD_PORT"
	EnvDir          = "DIR"
	EnvOS           = "OS"
	EnvAdminListen  = "ADMIN_LISTEN"
	EnvIOTimeout    = "IO_TIMEOUT"
)

// ApplyEnv 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。无法解析的值被忽略。
// 支持的环境变量（均使用 P2PCI_ 前缀）：
//   - P2PCI_SERVER_LISTEN: 索引服务器监听地址
//   - P2PCI_SERVER_ADDR: 节点连接的索引服务器地址
//   - P2PCI_PEER_HOST: 节点通告的主机标识
//   - P2PCI_UPLOAD_PORT: 内容服务器端口
//   - P2PCI_DIR: 本地文档目录
//   - P2PCI_OS: 通告的操作系统
//   - P2PCI_ADMIN_LISTEN: 诊断服务监听地址
//   - P2PCI_IO_TIMEOUT: 服务器与节点的 IO 超时
func ApplyEnv(cfg *Config) {
	if v := lookup(EnvServerListen); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := lookup(EnvServerAddr); v != "" {
		cfg.Peer.ServerAddr = v
	}
	if v := lookup(EnvPeerHost); v != "" {
		cfg.Peer.Host = v
	}
	if v := lookup(EnvUploadPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Peer.UploadPort = port
		}
	}
	if v := lookup(EnvDir); v != "" {
		cfg.Peer.Dir = v
	}
	if v := lookup(EnvOS); v != "" {
		cfg.Peer.OS = v
	}
	if v := lookup(EnvAdminListen); v != "" {
		cfg.Admin.ListenAddr = v
	}
	if v := lookup(EnvIOTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.IOTimeout = Duration(d)
			cfg.Peer.IOTimeout = Duration(d)
		}
	}
}

func lookup(name string) string {
	return os.Getenv(EnvPrefix + name)
}
