package server

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pci/config"
	"github.com/dep2p/go-p2pci/internal/core/index"
	"github.com/dep2p/go-p2pci/internal/core/metrics"
)

// Module 索引服务器的 Fx 模块
//
// 依赖 index.Module 提供的 RfcIndex 与 PeerRegistry。
var Module = fx.Module("server",
	fx.Provide(NewFromParams),
	fx.Invoke(registerLifecycle),
)

// Params 索引服务器依赖参数
type Params struct {
	fx.In

	Index      *index.RfcIndex
	Peers      *index.PeerRegistry
	Registerer prometheus.Registerer `optional:"true"`
	UnifiedCfg *config.Config        `optional:"true"`
}

// NewFromParams 从 Fx 参数创建 IndexServer
func NewFromParams(p Params) *IndexServer {
	var m *metrics.Server
	if p.Registerer != nil {
		m = metrics.NewServer(p.Registerer)
		metrics.RegisterIndex(p.Registerer, p.Index, p.Peers)
	}
	return NewIndexServer(ConfigFromUnified(p.UnifiedCfg), p.Index, p.Peers, m)
}

func registerLifecycle(lc fx.Lifecycle, s *IndexServer) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return s.Stop()
		},
	})
}
