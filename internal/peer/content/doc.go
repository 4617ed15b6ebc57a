// Package content 实现节点之间的文档传输
//
// Server 在上传端口上接受一次性的 GET 连接：每个连接处理恰好一个请求，
// 写出状态行、头部和 Content-Length 字节的原始正文后关闭。
// Client 为每次下载建立新连接，并严格读取 Content-Length 字节。
//
// 请求:
//
//	GET RFC <num> P2P-CI/1.0
//	Host: <host>
//	OS: <os>
//
// 成功响应:
//
//	P2P-CI/1.0 200 OK
//	Date: <http date>
//	OS: <os>
//	Last-Modified: <http date>
//	Content-Length: <n>
//	Content-Type: text/plain
//
//	<n 字节正文>
//
// 本地文档由 Store 提供，默认实现 DirStore 使用 <dir>/rfc<num>.txt 布局。
package content
