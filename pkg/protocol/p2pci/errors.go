package p2pci

import (
	"errors"
)

// 预定义错误
var (
	// ErrMalformedRequest 请求行或头部格式错误（400）
	ErrMalformedRequest = errors.New("p2pci: malformed request")

	// ErrUnsupportedVersion 协议版本不支持（505）
	ErrUnsupportedVersion = errors.New("p2pci: version not supported")

	// ErrNotFound 文档不存在（404）
	ErrNotFound = errors.New("p2pci: not found")

	// ErrMalformedResponse 响应状态行格式错误
	ErrMalformedResponse = errors.New("p2pci: malformed response")

	// ErrMalformedRecord 数据行不是 RFC <num> <title> <host> <port>
	ErrMalformedRecord = errors.New("p2pci: malformed record line")

	// ErrLineTooLong 单行超过 MaxLineLength
	ErrLineTooLong = errors.New("p2pci: line too long")
)

// StatusFor 将协议错误映射为状态码
//
// 非协议错误（传输错误等）返回 0，调用方应据此拆除连接而不是回复。
func StatusFor(err error) StatusCode {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrUnsupportedVersion):
		return StatusVersionNotSupported
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	case errors.Is(err, ErrMalformedRequest):
		return StatusBadRequest
	default:
		return 0
	}
}
