package control

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-p2pci/pkg/protocol/p2pci"
)

// 预定义错误
var (
	// ErrNotConnected 未连接或连接已因 IO 错误断开
	ErrNotConnected = errors.New("control: not connected")

	// ErrInvalidTitle 标题包含换行，无法作为单个头部发送
	ErrInvalidTitle = errors.New("control: invalid title")
)

// StatusError 服务器返回了非 200 状态
//
// 通过 errors.Is 可与 p2pci.ErrMalformedRequest (400)、p2pci.ErrNotFound (404)、
// p2pci.ErrUnsupportedVersion (505) 匹配。
type StatusError struct {
	Code   p2pci.StatusCode
	Reason string
}

// Error 实现 error 接口
func (e *StatusError) Error() string {
	return fmt.Sprintf("control: server replied %d %s", int(e.Code), e.Reason)
}

// Is 支持 errors.Is 匹配协议哨兵错误
func (e *StatusError) Is(target error) bool {
	switch e.Code {
	case p2pci.StatusBadRequest:
		return target == p2pci.ErrMalformedRequest
	case p2pci.StatusNotFound:
		return target == p2pci.ErrNotFound
	case p2pci.StatusVersionNotSupported:
		return target == p2pci.ErrUnsupportedVersion
	default:
		return false
	}
}
