package index

import (
	"sort"
	"sync"

	"github.com/dep2p/go-p2pci/internal/util/logger"
	"github.com/dep2p/go-p2pci/pkg/types"
)

// 包级别日志实例
var log = logger.Logger("index")

// ============================================================================
//                              RfcIndex
// ============================================================================

// RfcIndex 文档编号到记录列表的并发映射
type RfcIndex struct {
	mu sync.Mutex

	// buckets: number -> records（插入顺序）
	buckets map[int][]types.RfcRecord

	records int
}

// Stats 索引统计
type Stats struct {
	Records int `json:"records"`
	Buckets int `json:"buckets"`
}

// NewRfcIndex 创建空索引
func NewRfcIndex() *RfcIndex {
	return &RfcIndex{
		buckets: make(map[int][]types.RfcRecord),
	}
}

// AddRfc 幂等插入记录
//
// 若 (host, port) 已存在于 num 的桶中则不做任何修改并返回 false。
func (x *RfcIndex) AddRfc(num int, title, host string, port int) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	bucket := x.buckets[num]
	for _, r := range bucket {
		if r.SameHolder(host, port) {
			return false
		}
	}

	x.buckets[num] = append(bucket, types.RfcRecord{
		Number: num,
		Title:  title,
		Host:   host,
		Port:   port,
	})
	x.records++

	log.Debug("添加文档记录", "number", num, "host", host, "port", port)
	return true
}

// Lookup 返回 num 桶的快照，不存在时返回 nil
func (x *RfcIndex) Lookup(num int) []types.RfcRecord {
	x.mu.Lock()
	defer x.mu.Unlock()

	bucket, ok := x.buckets[num]
	if !ok {
		return nil
	}
	out := make([]types.RfcRecord, len(bucket))
	copy(out, bucket)
	return out
}

// ListAll 返回全部记录的快照
//
// 桶按编号升序排列，桶内保持插入顺序。
func (x *RfcIndex) ListAll() []types.RfcRecord {
	x.mu.Lock()
	defer x.mu.Unlock()

	nums := make([]int, 0, len(x.buckets))
	for num := range x.buckets {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	out := make([]types.RfcRecord, 0, x.records)
	for _, num := range nums {
		out = append(out, x.buckets[num]...)
	}
	return out
}

// RemovePeer 从所有桶中移除 (host, port) 的记录，并删除因此变空的桶
//
// port 为 AnyPort 时移除该主机的全部记录。返回移除的记录数。
func (x *RfcIndex) RemovePeer(host string, port int) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	removed := 0
	for num, bucket := range x.buckets {
		kept := bucket[:0]
		for _, r := range bucket {
			if r.Host == host && matchPort(port, r.Port) {
				removed++
				continue
			}
			kept = append(kept, r)
		}

		if len(kept) == 0 {
			delete(x.buckets, num)
			continue
		}
		// 清掉尾部残留，避免底层数组持有已移除的记录
		clear(bucket[len(kept):])
		x.buckets[num] = kept
	}
	x.records -= removed

	if removed > 0 {
		log.Debug("移除节点记录", "host", host, "port", port, "count", removed)
	}
	return removed
}

// Stats 返回统计信息
func (x *RfcIndex) Stats() Stats {
	x.mu.Lock()
	defer x.mu.Unlock()

	return Stats{Records: x.records, Buckets: len(x.buckets)}
}
