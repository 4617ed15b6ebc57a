package content

import (
	"context"
	"net"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pci/config"
	"github.com/dep2p/go-p2pci/internal/core/connlimit"
	"github.com/dep2p/go-p2pci/internal/core/metrics"
)

// Module 内容传输的 Fx 模块
//
// 提供 DirStore（同时作为 Store）、Server 与 Client，并在启动时绑定上传端口。
var Module = fx.Module("peer_content",
	fx.Provide(
		NewStoreFromParams,
		func(s *DirStore) Store { return s },
		NewServerFromParams,
		NewClientFromParams,
	),
	fx.Invoke(registerLifecycle),
)

// Params 内容模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config        `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

func peerConfig(cfg *config.Config) config.PeerConfig {
	if cfg == nil {
		return config.DefaultPeerConfig()
	}
	return cfg.Peer
}

// ServerConfigFromUnified 从统一配置创建内容服务器配置
func ServerConfigFromUnified(cfg *config.Config) ServerConfig {
	pc := peerConfig(cfg)
	return ServerConfig{
		ListenAddr:     net.JoinHostPort("", strconv.Itoa(pc.UploadPort)),
		OS:             pc.OS,
		RequestTimeout: pc.RequestTimeout.Duration(),
	}
}

// LimiterConfigFromUnified 从统一配置创建内容连接限流配置
func LimiterConfigFromUnified(cfg *config.Config) connlimit.Config {
	pc := peerConfig(cfg)
	return connlimit.Config{
		MaxConnsPerIP: pc.MaxConnsPerIP,
		Rate:          pc.RequestRate,
		Burst:         pc.RequestBurst,
	}
}

// NewStoreFromParams 从 Fx 参数创建 DirStore
func NewStoreFromParams(p Params) (*DirStore, error) {
	pc := peerConfig(p.UnifiedCfg)
	return NewDirStore(pc.Dir, pc.CacheSize)
}

// NewServerFromParams 从 Fx 参数创建内容服务器
func NewServerFromParams(p Params, store Store) *Server {
	var m *metrics.Content
	if p.Registerer != nil {
		m = metrics.NewContent(p.Registerer)
	}
	limiter := connlimit.New(LimiterConfigFromUnified(p.UnifiedCfg))
	return NewServer(ServerConfigFromUnified(p.UnifiedCfg), store, limiter, m)
}

// NewClientFromParams 从 Fx 参数创建内容客户端
func NewClientFromParams(p Params) *Client {
	pc := peerConfig(p.UnifiedCfg)
	return NewClient(ClientConfig{
		Host:        pc.AdvertisedHost(),
		OS:          pc.OS,
		Timeout:     pc.RequestTimeout.Duration(),
		MaxBodySize: pc.MaxBodySize,
	})
}

func registerLifecycle(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return s.Stop()
		},
	})
}
