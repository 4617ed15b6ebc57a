// Package main 提供 P2P-CI 节点命令行入口
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dep2p/go-p2pci/config"
	"github.com/dep2p/go-p2pci/internal/app"
	"github.com/dep2p/go-p2pci/internal/util/logger"
	"github.com/dep2p/go-p2pci/pkg/types"
)

var log = logger.Logger("cmd.peer")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
// 优先级：命令行参数 > 环境变量（P2PCI_*）> 配置文件 > 默认值
var (
	configFile = flag.String("config", "", "配置文件路径（YAML 或 JSON）")
	serverAddr = flag.String("server", "", "索引服务器地址（默认 localhost:7734）")
	host       = flag.String("host", "", "通告的主机标识（默认本机主机名）")
	uploadPort = flag.Int("upload-port", 0, "内容服务器端口（0 = 随机端口）")
	dir        = flag.String("dir", "", "本地文档目录（默认 ./rfc）")
	osName     = flag.String("os", "", "响应头中通告的操作系统")
	debug      = flag.Bool("debug", false, "输出调试日志")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := app.NewBootstrap(cfg, app.RolePeer, app.WithDebug(*debug))
	rt, err := b.StartPeer(ctx)
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}

	self := types.PeerInfo{Host: cfg.Peer.AdvertisedHost(), Port: rt.Content.Port()}
	fmt.Println("P2P-CI 节点已启动")
	fmt.Printf("  索引服务器 : %s\n", cfg.Peer.ServerAddr)
	fmt.Printf("  文档目录   : %s\n", cfg.Peer.Dir)
	fmt.Printf("  上传端点   : %s\n", self)
	fmt.Printf("  操作系统   : %s\n", cfg.Peer.OS)
	fmt.Println("输入 help 查看命令")

	sh := &shell{
		index:   rt.Control,
		fetcher: rt.Fetcher,
		store:   rt.Store,
		self:    self,
		timeout: cfg.Peer.RequestTimeout.Duration(),
		out:     os.Stdout,
	}

	// 输入结束、exit 命令或退出信号都会结束交互
	done := make(chan struct{})
	go func() {
		sh.run(ctx, os.Stdin)
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Info("收到退出信号")
	}

	fmt.Println("正在退出...")
	return rt.Stop(context.Background())
}

// loadConfig 加载配置：文件 → 环境变量 → 命令行参数
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg)

	if isFlagSet("server") {
		cfg.Peer.ServerAddr = *serverAddr
	}
	if isFlagSet("host") {
		cfg.Peer.Host = *host
	}
	if isFlagSet("upload-port") {
		cfg.Peer.UploadPort = *uploadPort
	}
	if isFlagSet("dir") {
		cfg.Peer.Dir = *dir
	}
	if isFlagSet("os") {
		cfg.Peer.OS = *osName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
