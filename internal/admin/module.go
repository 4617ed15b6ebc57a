package admin

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pci/config"
	"github.com/dep2p/go-p2pci/internal/core/index"
)

// Module 诊断服务的 Fx 模块
//
// admin.listen_addr 为空时只提供 Handler，不启动 HTTP 服务。
var Module = fx.Module("admin",
	fx.Provide(NewHandlerFromParams),
	fx.Invoke(registerLifecycle),
)

// Params 诊断服务依赖参数
type Params struct {
	fx.In

	Index    *index.RfcIndex
	Peers    *index.PeerRegistry
	Gatherer prometheus.Gatherer `optional:"true"`
}

// NewHandlerFromParams 从 Fx 参数创建 Handler
func NewHandlerFromParams(p Params) *Handler {
	return NewHandler(p.Index, p.Peers, p.Gatherer)
}

type lifecycleInput struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Handler    *Handler
	UnifiedCfg *config.Config `optional:"true"`
}

func registerLifecycle(input lifecycleInput) {
	if input.UnifiedCfg == nil || !input.UnifiedCfg.Admin.Enabled() {
		return
	}

	srv := NewServer(input.UnifiedCfg.Admin.ListenAddr, input.Handler.Router())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	input.Lifecycle.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := srv.Listen(startCtx); err != nil {
				cancel()
				return err
			}
			go func() { done <- srv.Serve(ctx) }()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case err := <-done:
				return err
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
