// Package index 实现索引服务器的两个共享存储
//
// # RfcIndex
//
// 文档编号 → 通告该文档的记录列表（桶）。
//   - 桶内保持插入顺序
//   - 同一桶内 (host, port) 重复的插入被忽略
//   - 桶永不为空：最后一条记录被移除时桶随之删除
//
// # PeerRegistry
//
// 主机标识 → 最后一次已知的上传端点。同一主机再次注册会覆盖端口。
//
// # 多宿主策略
//
// 同一主机可以以多个端口出现在 RfcIndex 中，但在 PeerRegistry 中只有一个端口。
// PeerRegistry.RemovePeer(host, port) 仅在存储的端口与 port 相同（或 port 为 AnyPort）
// 时删除条目，避免旧会话拆除时误删同一主机更新后的注册。
//
// # 并发
//
// 每个存储由一把互斥锁串行化全部读写操作。操作复杂度为 O(每文档节点数)，
// 在预期的网络规模下无需分片。
package index
