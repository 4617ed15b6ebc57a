package control

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pci/config"
)

// Module 控制客户端的 Fx 模块
//
// 只负责构造，连接由节点启动流程在内容服务器就绪后发起。
var Module = fx.Module("peer_control",
	fx.Provide(NewFromParams),
)

// Params 控制客户端依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// ConfigFromUnified 从统一配置创建控制客户端配置
func ConfigFromUnified(cfg *config.Config) Config {
	pc := config.DefaultPeerConfig()
	if cfg != nil {
		pc = cfg.Peer
	}
	return Config{
		ServerAddr: pc.ServerAddr,
		Host:       pc.AdvertisedHost(),
		UploadPort: pc.UploadPort,
		IOTimeout:  pc.IOTimeout.Duration(),
	}
}

// NewFromParams 从 Fx 参数创建 Client
func NewFromParams(p Params) *Client {
	return New(ConfigFromUnified(p.UnifiedCfg))
}
