// Package server 实现 P2P-CI 索引服务器
//
// 每个被接受的控制连接对应一个会话协程，会话内的请求严格按序处理。
// 会话在第一次成功 ADD 时绑定 (host, port) 身份，并在 EXIT、断开或服务器停止时
// 恰好执行一次清理：从 RfcIndex 中移除该节点的全部记录，并从 PeerRegistry 中注销。
//
// 响应形状:
//
//	ADD    200: 状态行 + 回显记录行 + 空行
//	LOOKUP 200: 状态行 + 空行 + 记录行... + 空行
//	LIST   200: 同 LOOKUP
//	EXIT   200: 状态行 + 空行，随后关闭连接
//	错误:       状态行 + 空行
//
// 使用示例:
//
//	srv := server.NewIndexServer(server.DefaultConfig(), index.NewRfcIndex(), index.NewPeerRegistry(), nil)
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Stop()
package server
