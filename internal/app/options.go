package app

import (
	"time"

	"go.uber.org/fx"
)

// BootstrapOption Bootstrap 配置选项
type BootstrapOption func(*Bootstrap)

// WithDebug 启用调试日志（子系统日志降到 debug，fx 事件输出到 zap 开发日志）
func WithDebug(debug bool) BootstrapOption {
	return func(b *Bootstrap) {
		b.debug = debug
	}
}

// WithStartTimeout 设置启动与停止超时
func WithStartTimeout(d time.Duration) BootstrapOption {
	return func(b *Bootstrap) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithFxOptions 追加额外的 fx 选项（测试中用于替换或取出组件）
func WithFxOptions(opts ...fx.Option) BootstrapOption {
	return func(b *Bootstrap) {
		b.extra = append(b.extra, opts...)
	}
}
