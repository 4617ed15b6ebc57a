// Package types 定义 P2P-CI 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在索引服务器、节点与协议编解码之间传递数据。
//
// # 文件组织
//
//   - rfc.go - RfcRecord（索引记录）, PeerInfo（上传端点）
package types
