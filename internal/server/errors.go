package server

import "errors"

// 预定义错误
var (
	// ErrServerClosed 服务器已停止
	ErrServerClosed = errors.New("server: closed")

	// ErrAlreadyStarted 服务器已启动
	ErrAlreadyStarted = errors.New("server: already started")
)
