// Package app 提供 p2pci 应用编排层
//
// app 包负责：
//   - fx 模块组装（索引服务器 / 节点两种角色）
//   - 日志与 fx 事件日志设置
//   - 生命周期管理
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-p2pci/config"
	"github.com/dep2p/go-p2pci/internal/util/logger"
)

var log = logger.Logger("app")

// defaultTimeout 默认启动与停止超时
const defaultTimeout = 30 * time.Second

// Role 应用角色
type Role int

const (
	// RoleServer 索引服务器
	RoleServer Role = iota
	// RolePeer 节点
	RolePeer
)

// String 实现 fmt.Stringer
func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RolePeer:
		return "peer"
	default:
		return "unknown"
	}
}

// Bootstrap 应用引导程序
type Bootstrap struct {
	config  *config.Config
	role    Role
	debug   bool
	timeout time.Duration
	extra   []fx.Option

	fxApp *fx.App
}

// NewBootstrap 创建引导程序
func NewBootstrap(cfg *config.Config, role Role, opts ...BootstrapOption) *Bootstrap {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	b := &Bootstrap{
		config:  cfg,
		role:    role,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// StartServer 构建并启动索引服务器
func (b *Bootstrap) StartServer(ctx context.Context) (*ServerRuntime, error) {
	if b.role != RoleServer {
		return nil, fmt.Errorf("app: bootstrap role is %s", b.role)
	}

	rt := &ServerRuntime{stop: b.Stop}
	if err := b.start(ctx,
		fx.Populate(&rt.Server, &rt.Registry),
	); err != nil {
		return nil, err
	}
	return rt, nil
}

// StartPeer 构建并启动节点
func (b *Bootstrap) StartPeer(ctx context.Context) (*PeerRuntime, error) {
	if b.role != RolePeer {
		return nil, fmt.Errorf("app: bootstrap role is %s", b.role)
	}

	rt := &PeerRuntime{stop: b.Stop}
	if err := b.start(ctx,
		fx.Invoke(registerPeerLifecycle),
		fx.Populate(&rt.Control, &rt.Content, &rt.Fetcher, &rt.Store, &rt.Registry),
	); err != nil {
		return nil, err
	}
	return rt, nil
}

// Stop 停止应用
func (b *Bootstrap) Stop(ctx context.Context) error {
	if b.fxApp == nil {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	return b.fxApp.Stop(stopCtx)
}

func (b *Bootstrap) start(ctx context.Context, opts ...fx.Option) error {
	if err := b.config.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	b.setupLogging()

	b.fxApp = fx.New(
		fx.WithLogger(b.fxLogger),
		fx.Supply(b.config),
		b.modules(),
		fx.Options(b.extra...),
		fx.Options(opts...),
	)
	if err := b.fxApp.Err(); err != nil {
		return fmt.Errorf("构建应用失败: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.fxApp.Start(startCtx); err != nil {
		return fmt.Errorf("启动应用失败: %w", err)
	}
	log.Info("应用已启动", "role", b.role.String())
	return nil
}

func (b *Bootstrap) modules() fx.Option {
	if b.role == RolePeer {
		return PeerModules()
	}
	return ServerModules()
}

// setupLogging 应用调试开关（必须在模块构造之前）
func (b *Bootstrap) setupLogging() {
	if b.debug {
		logger.SetGlobalLevel(slog.LevelDebug)
	}
}

// fxLogger fx 事件日志：默认丢弃，调试模式输出 zap 开发日志
func (b *Bootstrap) fxLogger() fxevent.Logger {
	if b.debug {
		if zl, err := zap.NewDevelopment(); err == nil {
			return &fxevent.ZapLogger{Logger: zl}
		}
	}
	return &fxevent.ZapLogger{Logger: zap.NewNop()}
}

