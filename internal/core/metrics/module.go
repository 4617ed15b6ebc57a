package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Module 指标注册表的 Fx 模块
//
// 提供 *prometheus.Registry 以及它的 Registerer / Gatherer 视图。
// 具体指标（NewServer / NewContent）由使用方模块按需提供。
var Module = fx.Module("metrics",
	fx.Provide(
		NewRegistry,
		func(reg *prometheus.Registry) prometheus.Registerer { return reg },
		func(reg *prometheus.Registry) prometheus.Gatherer { return reg },
	),
)
