package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-p2pci/internal/peer/content"
	"github.com/dep2p/go-p2pci/internal/peer/control"
	"github.com/dep2p/go-p2pci/internal/server"
)

// ServerRuntime 已启动的索引服务器
type ServerRuntime struct {
	Server   *server.IndexServer
	Registry *prometheus.Registry

	stop func(ctx context.Context) error
}

// Stop 停止运行时（触发 fx 生命周期 OnStop）
func (r *ServerRuntime) Stop(ctx context.Context) error {
	if r.stop == nil {
		return nil
	}
	return r.stop(ctx)
}

// PeerRuntime 已启动的节点
//
// 启动完成时内容服务器已在监听，控制客户端已连接并通告了本地文档。
type PeerRuntime struct {
	Control  *control.Client
	Content  *content.Server
	Fetcher  *content.Client
	Store    content.Store
	Registry *prometheus.Registry

	stop func(ctx context.Context) error
}

// Stop 停止运行时：发送 EXIT 后关闭内容服务器
func (r *PeerRuntime) Stop(ctx context.Context) error {
	if r.stop == nil {
		return nil
	}
	return r.stop(ctx)
}
