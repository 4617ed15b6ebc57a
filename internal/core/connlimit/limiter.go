// Package connlimit 限制入站连接的并发数与速率
//
// 索引服务器与内容服务器在 accept 之后、派生工作协程之前调用 Acquire。
package connlimit

import (
	"errors"
	"net"
	"sync"

	"golang.org/x/time/rate"
)

// 预定义错误
var (
	// ErrTooManyConns 总连接数超限
	ErrTooManyConns = errors.New("connlimit: too many connections")

	// ErrTooManyConnsPerIP 单 IP 连接数超限
	ErrTooManyConnsPerIP = errors.New("connlimit: too many connections from address")

	// ErrRateLimited 请求速率超限
	ErrRateLimited = errors.New("connlimit: rate limited")
)

// Config 限流配置（0 = 不限制）
type Config struct {
	// MaxConns 最大并发连接数
	MaxConns int

	// MaxConnsPerIP 单 IP 最大并发连接数
	MaxConnsPerIP int

	// Rate 每秒允许的新连接数
	Rate float64

	// Burst 令牌桶容量
	Burst int
}

// Limiter 连接限流器
type Limiter struct {
	config Config
	rate   *rate.Limiter

	mu    sync.Mutex
	perIP map[string]int
	total int
}

// New 创建限流器
func New(config Config) *Limiter {
	l := &Limiter{
		config: config,
		perIP:  make(map[string]int),
	}
	if config.Rate > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = int(config.Rate) + 1
		}
		l.rate = rate.NewLimiter(rate.Limit(config.Rate), burst)
	}
	return l
}

// Acquire 为远端地址申请一个连接槽位
//
// 成功时返回的 release 必须且只能调用一次。nil Limiter 不做限制。
func (l *Limiter) Acquire(remote net.Addr) (release func(), err error) {
	if l == nil {
		return func() {}, nil
	}
	ip := hostOf(remote)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.config.MaxConns > 0 && l.total >= l.config.MaxConns {
		return nil, ErrTooManyConns
	}
	if l.config.MaxConnsPerIP > 0 && l.perIP[ip] >= l.config.MaxConnsPerIP {
		return nil, ErrTooManyConnsPerIP
	}
	if l.rate != nil && !l.rate.Allow() {
		return nil, ErrRateLimited
	}

	l.perIP[ip]++
	l.total++

	var once sync.Once
	return func() { once.Do(func() { l.release(ip) }) }, nil
}

func (l *Limiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total--
	if l.perIP[ip] <= 1 {
		delete(l.perIP, ip)
		return
	}
	l.perIP[ip]--
}

// Active 返回当前占用的槽位数
func (l *Limiter) Active() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
