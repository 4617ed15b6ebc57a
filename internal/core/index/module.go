package index

import (
	"go.uber.org/fx"
)

// Module 索引存储的 Fx 模块
//
// RfcIndex 与 PeerRegistry 各构造一次，由所有控制会话共享。
var Module = fx.Module("index",
	fx.Provide(
		NewRfcIndex,
		NewPeerRegistry,
	),
)
