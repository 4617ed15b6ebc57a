package types

import (
	"net"
	"strconv"
)

// ============================================================================
//                              文档记录
// ============================================================================

// RfcRecord 节点通告的文档记录
//
// 去重身份为同一文档编号下的 (Host, Port)：同一节点不能在同一编号下出现两次，
// 但可以出现在多个编号下。
type RfcRecord struct {
	// Number 文档编号
	Number int `json:"number"`

	// Title 文档标题（可包含空格）
	Title string `json:"title"`

	// Host 持有者主机标识
	Host string `json:"host"`

	// Port 持有者上传端口
	Port int `json:"port"`
}

// Peer 返回记录持有者的上传端点
func (r RfcRecord) Peer() PeerInfo {
	return PeerInfo{Host: r.Host, Port: r.Port}
}

// SameHolder 检查两条记录是否来自同一 (Host, Port)
func (r RfcRecord) SameHolder(host string, port int) bool {
	return r.Host == host && r.Port == port
}

// ============================================================================
//                              节点信息
// ============================================================================

// PeerInfo 节点最后一次已知的上传端点
type PeerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr 返回 host:port 形式的拨号地址
func (p PeerInfo) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// String 实现 fmt.Stringer
func (p PeerInfo) String() string {
	return p.Addr()
}

// ParsePeerInfo 解析 host:port 形式的地址
func ParsePeerInfo(addr string) (PeerInfo, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return PeerInfo{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return PeerInfo{}, &net.AddrError{Err: "invalid port", Addr: addr}
	}
	return PeerInfo{Host: host, Port: port}, nil
}
