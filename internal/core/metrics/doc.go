// Package metrics 提供 p2pci 的 Prometheus 指标
//
// 每个进程持有一个独立的 *prometheus.Registry（而不是全局默认注册表），
// 便于测试中并行构造多个服务器。
//
// 指标一览:
//
//	p2pci_server_sessions_active            当前控制会话数
//	p2pci_server_sessions_total             累计控制会话数
//	p2pci_server_requests_total{method,status}
//	p2pci_server_cleanups_total{reason}     exit | disconnect
//	p2pci_server_conns_rejected_total
//	p2pci_index_records / p2pci_index_buckets / p2pci_registry_peers
//	p2pci_content_requests_total{status}
//	p2pci_content_bytes_served_total
//	p2pci_content_conns_rejected_total
//
// 所有方法对 nil 接收者安全，未启用指标时传 nil 即可。
package metrics
