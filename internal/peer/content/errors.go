package content

import "errors"

// 预定义错误
var (
	// ErrDocumentNotFound 文档不存在（本地缺失或对端返回 404）
	ErrDocumentNotFound = errors.New("content: document not found")

	// ErrBadRequest 对端返回 400
	ErrBadRequest = errors.New("content: bad request")

	// ErrVersionNotSupported 对端返回 505
	ErrVersionNotSupported = errors.New("content: version not supported")

	// ErrUnexpectedStatus 对端返回了其他状态码
	ErrUnexpectedStatus = errors.New("content: unexpected status")

	// ErrMissingContentLength 200 响应缺少有效的 Content-Length
	ErrMissingContentLength = errors.New("content: missing content length")

	// ErrBodyTooLarge Content-Length 超过客户端允许的上限
	ErrBodyTooLarge = errors.New("content: body too large")

	// ErrServerClosed 内容服务器已停止
	ErrServerClosed = errors.New("content: server closed")

	// ErrAlreadyStarted 内容服务器已启动
	ErrAlreadyStarted = errors.New("content: server already started")
)
