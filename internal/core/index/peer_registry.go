package index

import (
	"sync"

	"github.com/dep2p/go-p2pci/pkg/types"
)

// ============================================================================
//                              PeerRegistry
// ============================================================================

// PeerRegistry 主机到上传端点的并发映射
type PeerRegistry struct {
	mu    sync.Mutex
	peers map[string]types.PeerInfo
}

// NewPeerRegistry 创建空注册表
func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{
		peers: make(map[string]types.PeerInfo),
	}
}

// AddPeer 注册或覆盖主机的上传端口
func (r *PeerRegistry) AddPeer(host string, port int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers[host] = types.PeerInfo{Host: host, Port: port}
}

// GetPeer 获取主机的上传端点
func (r *PeerRegistry) GetPeer(host string) (types.PeerInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[host]
	return p, ok
}

// RemovePeer 删除主机条目
//
// 仅当存储的端口等于 port（或 port 为 AnyPort）时删除，返回是否删除。
func (r *PeerRegistry) RemovePeer(host string, port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[host]
	if !ok || !matchPort(port, p.Port) {
		return false
	}
	delete(r.peers, host)
	return true
}

// Snapshot 返回注册表的拷贝
func (r *PeerRegistry) Snapshot() map[string]types.PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]types.PeerInfo, len(r.peers))
	for host, p := range r.peers {
		out[host] = p
	}
	return out
}

// Len 返回已注册主机数
func (r *PeerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.peers)
}
