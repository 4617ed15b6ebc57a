package app

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pci/internal/admin"
	"github.com/dep2p/go-p2pci/internal/core/index"
	"github.com/dep2p/go-p2pci/internal/core/metrics"
	"github.com/dep2p/go-p2pci/internal/peer/content"
	"github.com/dep2p/go-p2pci/internal/peer/control"
	"github.com/dep2p/go-p2pci/internal/server"
)

// ServerModules 索引服务器模块组合
//
// 存储 → 指标 → 控制会话服务器 → 诊断服务。
func ServerModules() fx.Option {
	return fx.Options(
		index.Module,
		metrics.Module,
		server.Module,
		admin.Module,
	)
}

// PeerModules 节点模块组合
//
// 内容模块先于控制模块：上传端口绑定后才能向索引服务器通告。
func PeerModules() fx.Option {
	return fx.Options(
		metrics.Module,
		content.Module,
		control.Module,
	)
}
