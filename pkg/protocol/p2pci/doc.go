// Package p2pci 实现 P2P-CI/1.0 文本协议的线路语法
//
// 控制会话（节点 ↔ 索引服务器）与内容传输（节点 ↔ 节点）共用同一套语法：
//
//	请求:  <METHOD> <arg>... P2P-CI/1.0\r\n
//	       <Key>: <value>\r\n        (0..n 行)
//	       \r\n
//
//	响应:  P2P-CI/1.0 <code> <reason>\r\n
//	       头部行 / 数据行
//	       \r\n
//
// 内容响应在空行之后紧跟 Content-Length 字节的原始正文，无结束符。
//
// # 状态码
//
//   - 200 OK
//   - 400 Bad Request
//   - 404 Not Found
//   - 505 P2P-CI Version Not Supported
//
// 版本号必须严格等于 P2P-CI/1.0，其他任何值返回 505 而不是 400。
//
// # 使用示例
//
//	r := p2pci.NewReader(conn)
//	line, err := r.ReadLine()
//	req, err := p2pci.ParseRequestLine(line)
//	req.Headers, err = r.ReadHeaders()
//
//	w := p2pci.NewWriter(conn)
//	w.Status(p2pci.StatusOK)
//	w.Line(p2pci.FormatRecord(rec))
//	w.Blank()
//	err = w.Flush()
package p2pci
