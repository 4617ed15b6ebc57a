package content

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MaxTitleLength 扫描时推导出的标题最大字节数
const MaxTitleLength = 128

// Document 一份文档的内容
type Document struct {
	Number  int
	Data    []byte
	ModTime time.Time
}

// DocumentInfo 扫描得到的文档元信息
type DocumentInfo struct {
	Number  int
	Title   string
	Size    int64
	ModTime time.Time
}

// Store 本地文档存储
type Store interface {
	// Open 读取文档，不存在时返回 ErrDocumentNotFound
	Open(num int) (*Document, error)

	// Put 写入（或覆盖）文档
	Put(num int, data []byte) error

	// Scan 列出所有文档，按编号升序
	Scan() ([]DocumentInfo, error)
}

// ============================================================================
//                              DirStore
// ============================================================================

// cached 缓存条目，以文件大小与修改时间校验是否过期
type cached struct {
	size    int64
	modTime time.Time
	data    []byte
}

// DirStore 基于目录的文档存储
//
// 布局为 <dir>/rfc<num>.txt。文件内容缓存在 LRU 中，
// 命中时用文件大小与修改时间判断缓存是否仍然有效。
type DirStore struct {
	dir   string
	cache *lru.Cache[int, cached]

	// 串行化同一进程内的写入
	putMu sync.Mutex
}

var _ Store = (*DirStore)(nil)

// NewDirStore 创建目录存储，目录不存在时自动创建
func NewDirStore(dir string, cacheSize int) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("content: create dir: %w", err)
	}
	cache, err := lru.New[int, cached](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("content: create cache: %w", err)
	}
	return &DirStore{dir: dir, cache: cache}, nil
}

// Dir 返回存储目录
func (s *DirStore) Dir() string {
	return s.dir
}

// Path 返回文档的文件路径
func (s *DirStore) Path(num int) string {
	return filepath.Join(s.dir, fileName(num))
}

// Open 读取文档
func (s *DirStore) Open(num int) (*Document, error) {
	if num < 0 {
		return nil, ErrDocumentNotFound
	}
	path := s.Path(num)
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, ErrDocumentNotFound
	}

	if c, ok := s.cache.Get(num); ok && c.size == fi.Size() && c.modTime.Equal(fi.ModTime()) {
		return &Document{Number: num, Data: c.data, ModTime: c.modTime}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: 路径由编号构造
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	s.cache.Add(num, cached{size: int64(len(data)), modTime: fi.ModTime(), data: data})
	return &Document{Number: num, Data: data, ModTime: fi.ModTime()}, nil
}

// Put 写入文档
//
// 先写临时文件再重命名，读者不会看到写了一半的文件。
func (s *DirStore) Put(num int, data []byte) error {
	if num < 0 {
		return fmt.Errorf("content: invalid document number %d", num)
	}

	s.putMu.Lock()
	defer s.putMu.Unlock()

	tmp, err := os.CreateTemp(s.dir, fileName(num)+".*.tmp")
	if err != nil {
		return fmt.Errorf("content: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("content: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("content: close: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(num)); err != nil {
		return fmt.Errorf("content: rename: %w", err)
	}

	s.cache.Remove(num)
	return nil
}

// Scan 列出目录中的 rfc<num>.txt 文件
//
// 标题取文件第一个非空行（截断到 MaxTitleLength 字节），文件为空时为 "RFC <num>"。
func (s *DirStore) Scan() ([]DocumentInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("content: read dir: %w", err)
	}

	infos := make([]DocumentInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		num, ok := parseFileName(e.Name())
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, DocumentInfo{
			Number:  num,
			Title:   s.title(num),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Number < infos[j].Number })
	return infos, nil
}

// title 推导文档标题
func (s *DirStore) title(num int) string {
	fallback := "RFC " + strconv.Itoa(num)

	f, err := os.Open(s.Path(num))
	if err != nil {
		return fallback
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 64<<10)
	for sc.Scan() {
		line := strings.Join(strings.Fields(sc.Text()), " ")
		if line == "" {
			continue
		}
		return truncate(line, MaxTitleLength)
	}
	return fallback
}

// ============================================================================
//                              辅助函数
// ============================================================================

func fileName(num int) string {
	return "rfc" + strconv.Itoa(num) + ".txt"
}

// parseFileName 解析 rfc<num>.txt
func parseFileName(name string) (int, bool) {
	if !strings.HasPrefix(name, "rfc") || !strings.HasSuffix(name, ".txt") {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, "rfc"), ".txt")
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return 0, false
	}
	num, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return num, true
}

// truncate 截断到 n 字节以内，不切断多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return strings.TrimSpace(s)
}
