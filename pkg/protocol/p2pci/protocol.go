package p2pci

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dep2p/go-p2pci/pkg/types"
)

// ============================================================================
//                              协议常量
// ============================================================================

const (
	// Version 唯一支持的协议版本
	Version = "P2P-CI/1.0"

	// DefaultServerPort 索引服务器默认端口
	DefaultServerPort = 7734

	// MaxLineLength 单行最大长度（含行尾）
	MaxLineLength = 8 << 10

	// MaxHeaders 单个请求最多保留的头部数，多余的被读取并丢弃
	MaxHeaders = 32
)

// 请求方法
const (
	MethodAdd    = "ADD"
	MethodLookup = "LOOKUP"
	MethodList   = "LIST"
	MethodExit   = "EXIT"
	MethodGet    = "GET"
)

// 请求参数关键字
const (
	KeywordRFC = "RFC"
	KeywordAll = "ALL"
)

// 头部名称
const (
	HeaderHost          = "Host"
	HeaderPort          = "Port"
	HeaderTitle         = "Title"
	HeaderOS            = "OS"
	HeaderDate          = "Date"
	HeaderLastModified  = "Last-Modified"
	HeaderContentLength = "Content-Length"
	HeaderContentType   = "Content-Type"
)

// ContentTypeText 内容响应的 Content-Type
const ContentTypeText = "text/plain"

// ============================================================================
//                              状态码
// ============================================================================

// StatusCode 响应状态码
type StatusCode int

const (
	StatusOK                  StatusCode = 200
	StatusBadRequest          StatusCode = 400
	StatusNotFound            StatusCode = 404
	StatusVersionNotSupported StatusCode = 505
)

// Reason 返回状态码的原因短语
func (c StatusCode) Reason() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "Not Found"
	case StatusVersionNotSupported:
		return "P2P-CI Version Not Supported"
	default:
		return "Unknown"
	}
}

// String 实现 fmt.Stringer
func (c StatusCode) String() string {
	return strconv.Itoa(int(c)) + " " + c.Reason()
}

// Status 已解析的响应状态行
type Status struct {
	Version string
	Code    StatusCode
	Reason  string
}

// String 返回原始状态行形式
func (s Status) String() string {
	return fmt.Sprintf("%s %d %s", s.Version, s.Code, s.Reason)
}

// StatusLine 构造状态行（不含行尾）
func StatusLine(code StatusCode) string {
	return Version + " " + code.String()
}

// ParseStatusLine 解析 P2P-CI/1.0 <code> <reason>
func ParseStatusLine(line string) (Status, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Status{}, fmt.Errorf("%w: %q", ErrMalformedResponse, line)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return Status{}, fmt.Errorf("%w: bad status code %q", ErrMalformedResponse, fields[1])
	}
	return Status{
		Version: fields[0],
		Code:    StatusCode(code),
		Reason:  strings.Join(fields[2:], " "),
	}, nil
}

// ============================================================================
//                              请求
// ============================================================================

// Request 已解析的请求
//
// Args 为方法与版本之间的参数，例如 "ADD RFC 100 P2P-CI/1.0" 的 Args 为 ["RFC", "100"]。
type Request struct {
	Method  string
	Args    []string
	Version string
	Headers Headers
}

// ParseRequestLine 解析请求行
//
// 只校验整体形状（至少方法和版本两个字段），方法相关的参数校验由调用方完成。
func ParseRequestLine(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Request{}, fmt.Errorf("%w: request line %q", ErrMalformedRequest, line)
	}
	return Request{
		Method:  fields[0],
		Args:    fields[1 : len(fields)-1],
		Version: fields[len(fields)-1],
	}, nil
}

// CheckVersion 校验版本号
func (r *Request) CheckVersion() error {
	if r.Version != Version {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, r.Version)
	}
	return nil
}

// RfcArg 解析 "RFC <num>" 形式的参数
func (r *Request) RfcArg() (int, error) {
	if len(r.Args) != 2 || r.Args[0] != KeywordRFC {
		return 0, fmt.Errorf("%w: expected RFC <num>", ErrMalformedRequest)
	}
	num, err := strconv.Atoi(r.Args[1])
	if err != nil || num < 0 {
		return 0, fmt.Errorf("%w: bad document number %q", ErrMalformedRequest, r.Args[1])
	}
	return num, nil
}

// Line 返回请求行（不含行尾）
func (r *Request) Line() string {
	parts := make([]string, 0, len(r.Args)+2)
	parts = append(parts, r.Method)
	parts = append(parts, r.Args...)
	parts = append(parts, r.Version)
	return strings.Join(parts, " ")
}

// NewRfcRequest 构造 <METHOD> RFC <num> P2P-CI/1.0 请求
func NewRfcRequest(method string, num int, headers ...Header) Request {
	return Request{
		Method:  method,
		Args:    []string{KeywordRFC, strconv.Itoa(num)},
		Version: Version,
		Headers: headers,
	}
}

// ============================================================================
//                              头部
// ============================================================================

// Header 单个头部
type Header struct {
	Key   string
	Value string
}

// Headers 有序头部列表
type Headers []Header

// ParseHeader 解析 <Key>: <value>
//
// value 为冒号后第一个空格之后的全部内容，因此可以包含空格。
func ParseHeader(line string) (Header, error) {
	key, rest, ok := strings.Cut(line, ":")
	if !ok || key == "" || strings.ContainsAny(key, " \t") {
		return Header{}, fmt.Errorf("%w: header line %q", ErrMalformedRequest, line)
	}
	return Header{Key: key, Value: strings.TrimPrefix(rest, " ")}, nil
}

// Get 返回第一个名称匹配（不区分大小写）的头部值
func (h Headers) Get(key string) (string, bool) {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Key, key) {
			return hdr.Value, true
		}
	}
	return "", false
}

// Expect 按固定顺序校验前 len(keys) 个头部并返回原样的值
//
// 值只去掉了冒号后的单个空格（见 ParseHeader），其余空白由调用方按字段处理，
// 因此 Title 的尾部空格得以保留。缺失或乱序的头部返回 ErrMalformedRequest。
// 多余的尾部头部被忽略。
func (h Headers) Expect(keys ...string) ([]string, error) {
	values := make([]string, len(keys))
	for i, key := range keys {
		if i >= len(h) {
			return nil, fmt.Errorf("%w: missing %s header", ErrMalformedRequest, key)
		}
		if !strings.EqualFold(h[i].Key, key) {
			return nil, fmt.Errorf("%w: expected %s header, got %q", ErrMalformedRequest, key, h[i].Key)
		}
		values[i] = h[i].Value
	}
	return values, nil
}

// ============================================================================
//                              数据行
// ============================================================================

// FormatRecord 格式化 RFC <num> <title> <host> <port>
func FormatRecord(r types.RfcRecord) string {
	return fmt.Sprintf("%s %d %s %s %d", KeywordRFC, r.Number, r.Title, r.Host, r.Port)
}

// ParseRecord 解析 RFC <num> <title> <host> <port>
//
// 最后两个字段分别为 port 和 host，编号与它们之间的字段以单个空格重新拼接为标题。
// 标题末尾若恰好形如 "<host> <port>" 则无法与真实端点区分，这是语法本身的歧义。
func ParseRecord(line string) (types.RfcRecord, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != KeywordRFC {
		return types.RfcRecord{}, fmt.Errorf("%w: %q", ErrMalformedRecord, line)
	}
	num, err := strconv.Atoi(fields[1])
	if err != nil {
		return types.RfcRecord{}, fmt.Errorf("%w: bad number in %q", ErrMalformedRecord, line)
	}
	port, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return types.RfcRecord{}, fmt.Errorf("%w: bad port in %q", ErrMalformedRecord, line)
	}
	return types.RfcRecord{
		Number: num,
		Title:  strings.Join(fields[2:len(fields)-2], " "),
		Host:   fields[len(fields)-2],
		Port:   port,
	}, nil
}
