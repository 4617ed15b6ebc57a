package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-p2pci/internal/peer/content"
	"github.com/dep2p/go-p2pci/internal/peer/control"
)

type peerLifecycleInput struct {
	fx.In

	Lifecycle fx.Lifecycle
	Store     content.Store
	Content   *content.Server
	Control   *control.Client
}

// registerPeerLifecycle 节点启动流程
//
// 必须在 content.Module 的生命周期钩子之后注册：启动时内容服务器已绑定端口，
// 随后连接索引服务器并逐个 ADD 本地文档；停止时先 EXIT 再关闭内容服务器。
func registerPeerLifecycle(input peerLifecycleInput) {
	input.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			port := input.Content.Port()
			if port == 0 {
				return errors.New("app: content server is not listening")
			}
			input.Control.SetUploadPort(port)

			if err := input.Control.Connect(ctx); err != nil {
				return err
			}
			return Publish(ctx, input.Store, input.Control)
		},
		OnStop: func(ctx context.Context) error {
			if !input.Control.Connected() {
				return nil
			}
			return input.Control.Exit(ctx)
		},
	})
}

// Publish 扫描本地存储并向索引服务器 ADD 每一份文档
func Publish(ctx context.Context, store content.Store, ctl *control.Client) error {
	infos, err := store.Scan()
	if err != nil {
		return err
	}
	for _, info := range infos {
		if _, err := ctl.AddRfc(ctx, info.Number, info.Title); err != nil {
			return fmt.Errorf("app: publish rfc %d: %w", info.Number, err)
		}
	}
	log.Info("本地文档已通告", "count", len(infos))
	return nil
}
