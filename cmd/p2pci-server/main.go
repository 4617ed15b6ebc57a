// Package main 提供 P2P-CI 索引服务器命令行入口
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
)

var log = logger.Logger("cmd.server")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
// 优先级：命令行参数 > 环境变量（P2PCI_*）> 配置文件 > 默认值
var (
	configFile = flag.String("config", "", "配置文件路径（YAML 或 JSON）")
	listenAddr = flag.String("listen", "", "控制连接监听地址（默认 :7734）")
	adminAddr  = flag.String("admin", "", "诊断 HTTP 服务监听地址（为空则不启动）")
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

	b := app.NewBootstrap(cfg, app.RoleServer, app.WithDebug(*debug))
	rt, err := b.StartServer(ctx)
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}

	fmt.Printf("P2P-CI 索引服务器已启动: %s\n", rt.Server.Addr())
	if cfg.Admin.Enabled() {
		fmt.Printf("诊断服务: http://%s/\n", cfg.Admin.ListenAddr)
	}
	fmt.Println("按 Ctrl+C 退出")

	<-ctx.Done()
	fmt.Println("\n正在关闭服务器...")
	log.Info("收到退出信号")

	return rt.Stop(context.Background())
}

// loadConfig 加载配置：文件 → 环境变量 → 命令行参数
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg)

	if isFlagSet("listen") {
		cfg.Server.ListenAddr = *listenAddr
	}
	if isFlagSet("admin") {
		cfg.Admin.ListenAddr = *adminAddr
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
