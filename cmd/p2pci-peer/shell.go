package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/dep2p/go-p2pci/internal/peer/content"
	"github.com/dep2p/go-p2pci/pkg/protocol/p2pci"
	"github.com/dep2p/go-p2pci/pkg/types"
)

// indexClient 交互命令使用的索引服务器操作
type indexClient interface {
	AddRfc(ctx context.Context, num int, title string) (types.RfcRecord, error)
	LookupRfc(ctx context.Context, num int) ([]types.RfcRecord, error)
	ListAll(ctx context.Context) ([]types.RfcRecord, error)
}

// downloader 从其他节点下载文档
type downloader interface {
	Download(ctx context.Context, peer types.PeerInfo, num int, store content.Store) (*content.Document, error)
}

var (
	okColor     = color.New(color.FgGreen)
	errColor    = color.New(color.FgRed)
	recordColor = color.New(color.FgCyan)
	promptColor = color.New(color.FgHiBlack)
)

// shell 节点交互命令行
type shell struct {
	index   indexClient
	fetcher downloader
	store   content.Store
	self    types.PeerInfo
	timeout time.Duration
	out     io.Writer
}

// run 逐行读取命令直到 exit 或输入结束
func (s *shell) run(ctx context.Context, in io.Reader) {
	sc := bufio.NewScanner(in)
	for {
		promptColor.Fprint(s.out, "p2pci> ")
		if !sc.Scan() {
			fmt.Fprintln(s.out)
			return
		}
		if s.dispatch(ctx, sc.Text()) {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// dispatch 执行一条命令，返回是否退出
func (s *shell) dispatch(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	cmdCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var err error
	switch strings.ToLower(fields[0]) {
	case "add":
		err = s.add(cmdCtx, fields[1:])
	case "lookup":
		err = s.lookup(cmdCtx, fields[1:])
	case "list":
		err = s.list(cmdCtx)
	case "get":
		err = s.get(cmdCtx, fields[1:])
	case "help":
		s.help()
	case "exit", "quit":
		return true
	default:
		errColor.Fprintf(s.out, "未知命令: %s（输入 help 查看帮助）\n", fields[0])
	}
	if err != nil {
		errColor.Fprintf(s.out, "错误: %v\n", err)
	}
	return false
}

func (s *shell) add(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("用法: add <num> <title>")
	}
	num, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	rec, err := s.index.AddRfc(ctx, num, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	okColor.Fprintln(s.out, "已添加:", p2pci.FormatRecord(rec))
	return nil
}

func (s *shell) lookup(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("用法: lookup <num>")
	}
	num, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	records, err := s.index.LookupRfc(ctx, num)
	if err != nil {
		return err
	}
	s.printRecords(records)
	return nil
}

func (s *shell) list(ctx context.Context) error {
	records, err := s.index.ListAll(ctx)
	if err != nil {
		return err
	}
	s.printRecords(records)
	return nil
}

// get 下载文档并在本地通告
//
// 未指定节点时使用 LOOKUP 结果中第一个不是自己的节点。
func (s *shell) get(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("用法: get <num> [host:port]")
	}
	num, err := parseNumber(args[0])
	if err != nil {
		return err
	}

	records, err := s.index.LookupRfc(ctx, num)
	if err != nil {
		return err
	}
	title := "RFC " + strconv.Itoa(num)
	if len(records) > 0 {
		title = records[0].Title
	}

	var target types.PeerInfo
	if len(args) == 2 {
		if target, err = types.ParsePeerInfo(args[1]); err != nil {
			return err
		}
	} else {
		found := false
		for _, rec := range records {
			if rec.Peer() != s.self {
				target, found = rec.Peer(), true
				break
			}
		}
		if !found {
			return fmt.Errorf("没有其他节点持有 RFC %d", num)
		}
	}

	doc, err := s.fetcher.Download(ctx, target, num, s.store)
	if err != nil {
		return fmt.Errorf("从 %s 下载失败: %w", target, err)
	}
	okColor.Fprintf(s.out, "已从 %s 下载 RFC %d（%d 字节）\n", target, num, len(doc.Data))

	if _, err := s.index.AddRfc(ctx, num, title); err != nil {
		return err
	}
	return nil
}

func (s *shell) help() {
	fmt.Fprint(s.out, `命令:
  add <num> <title>        向索引服务器通告文档
  lookup <num>             查询持有文档的节点
  list                     列出全部记录
  get <num> [host:port]    下载文档并通告
  help                     显示帮助
  exit                     退出
`)
}

func (s *shell) printRecords(records []types.RfcRecord) {
	if len(records) == 0 {
		fmt.Fprintln(s.out, "（无记录）")
		return
	}
	for _, rec := range records {
		recordColor.Fprintln(s.out, p2pci.FormatRecord(rec))
	}
}

func parseNumber(s string) (int, error) {
	num, err := strconv.Atoi(s)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("无效的文档编号: %q", s)
	}
	return num, nil
}
