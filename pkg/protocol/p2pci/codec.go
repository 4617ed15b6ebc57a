package p2pci

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ============================================================================
//                              Reader
// ============================================================================

// bodyPrealloc 正文长度不超过该值时一次性预分配缓冲
const bodyPrealloc = 64 << 10

// Reader 按行读取 P2P-CI 报文，并支持读取定长正文
//
// 行以 CRLF 结尾，也接受单独的 LF。
type Reader struct {
	br *bufio.Reader
}

// NewReader 创建 Reader
func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{br: br}
	}
	return &Reader{br: bufio.NewReader(r)}
}

// ReadLine 读取一行并去掉行尾
//
// 流在行首结束返回 io.EOF；行中途结束返回 io.ErrUnexpectedEOF。
func (r *Reader) ReadLine() (string, error) {
	var buf []byte
	for {
		frag, err := r.br.ReadSlice('\n')
		if len(buf)+len(frag) > MaxLineLength {
			return "", ErrLineTooLong
		}
		buf = append(buf, frag...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(buf) > 0 {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	line := strings.TrimSuffix(string(buf), "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// ReadHeaders 读取头部直到空行
//
// 即使遇到格式错误的头部也会继续读到空行，保证连接上的下一个请求对齐；
// 此时返回已解析的头部和 ErrMalformedRequest。流在空行之前结束返回 io.ErrUnexpectedEOF。
func (r *Reader) ReadHeaders() (Headers, error) {
	var (
		headers   Headers
		malformed error
	)
	for {
		line, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return headers, io.ErrUnexpectedEOF
			}
			return headers, err
		}
		if line == "" {
			return headers, malformed
		}
		hdr, err := ParseHeader(line)
		if err != nil {
			if malformed == nil {
				malformed = err
			}
			continue
		}
		if len(headers) >= MaxHeaders {
			continue
		}
		headers = append(headers, hdr)
	}
}

// ReadStatus 读取并解析状态行
func (r *Reader) ReadStatus() (Status, error) {
	line, err := r.ReadLine()
	if err != nil {
		return Status{}, err
	}
	return ParseStatusLine(line)
}

// ReadBlock 读取数据行直到空行
func (r *Reader) ReadBlock() ([]string, error) {
	var lines []string
	for {
		line, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, io.ErrUnexpectedEOF
			}
			return lines, err
		}
		if line == "" {
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// ReadBody 读取恰好 n 字节正文
//
// 缓冲随实际到达的字节增长，n 只决定读取多少，不决定预先分配多少。
// 流提前结束返回 io.ErrUnexpectedEOF。长度上限由调用方在读取前校验。
func (r *Reader) ReadBody(n int64) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("p2pci: negative body length %d", n)
	}
	var buf bytes.Buffer
	if n <= bodyPrealloc {
		buf.Grow(int(n))
	}
	if _, err := io.CopyN(&buf, r.br, n); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if buf.Len() == 0 {
		return []byte{}, nil
	}
	return buf.Bytes(), nil
}

// ============================================================================
//                              Writer
// ============================================================================

// Writer 缓冲写出 P2P-CI 报文
//
// 写入错误是粘滞的（由 bufio.Writer 保证），只需检查 Flush 的返回值。
type Writer struct {
	bw *bufio.Writer
}

// NewWriter 创建 Writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// Line 写入一行并追加 CRLF
func (w *Writer) Line(s string) {
	_, _ = w.bw.WriteString(s)
	_, _ = w.bw.WriteString("\r\n")
}

// Blank 写入空行
func (w *Writer) Blank() {
	_, _ = w.bw.WriteString("\r\n")
}

// Status 写入状态行
func (w *Writer) Status(code StatusCode) {
	w.Line(StatusLine(code))
}

// Header 写入头部行
func (w *Writer) Header(key, value string) {
	w.Line(key + ": " + value)
}

// Body 写入原始正文
func (w *Writer) Body(b []byte) {
	_, _ = w.bw.Write(b)
}

// Request 写入请求行、头部和结束空行
func (w *Writer) Request(req Request) {
	w.Line(req.Line())
	for _, h := range req.Headers {
		w.Header(h.Key, h.Value)
	}
	w.Blank()
}

// Flush 刷出缓冲数据
func (w *Writer) Flush() error {
	return w.bw.Flush()
}
