package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-p2pci/internal/peer/content"
	"github.com/dep2p/go-p2pci/pkg/protocol/p2pci"
	"github.com/dep2p/go-p2pci/pkg/types"
)

type fakeIndex struct {
	added   []types.RfcRecord
	records map[int][]types.RfcRecord
}

func (f *fakeIndex) AddRfc(_ context.Context, num int, title string) (types.RfcRecord, error) {
	rec := types.RfcRecord{Number: num, Title: title, Host: "self", Port: 9000}
	f.added = append(f.added, rec)
	return rec, nil
}

func (f *fakeIndex) LookupRfc(_ context.Context, num int) ([]types.RfcRecord, error) {
	return f.records[num], nil
}

func (f *fakeIndex) ListAll(_ context.Context) ([]types.RfcRecord, error) {
	var out []types.RfcRecord
	for _, recs := range f.records {
		out = append(out, recs...)
	}
	return out, nil
}

type fakeDownloader struct {
	peers []types.PeerInfo
	err   error
}

func (f *fakeDownloader) Download(_ context.Context, peer types.PeerInfo, num int, store content.Store) (*content.Document, error) {
	f.peers = append(f.peers, peer)
	if f.err != nil {
		return nil, f.err
	}
	data := []byte("document body")
	if err := store.Put(num, data); err != nil {
		return nil, err
	}
	return &content.Document{Number: num, Data: data}, nil
}

func newTestShell(t *testing.T, idx *fakeIndex, dl *fakeDownloader) (*shell, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true

	store, err := content.NewDirStore(t.TempDir(), 8)
	require.NoError(t, err)

	var out bytes.Buffer
	return &shell{
		index:   idx,
		fetcher: dl,
		store:   store,
		self:    types.PeerInfo{Host: "self", Port: 9000},
		out:     &out,
	}, &out
}

// TestShell_ExitAndEOF 测试退出命令与输入结束
func TestShell_ExitAndEOF(t *testing.T) {
	sh, out := newTestShell(t, &fakeIndex{}, &fakeDownloader{})

	assert.False(t, sh.dispatch(context.Background(), ""))
	assert.False(t, sh.dispatch(context.Background(), "help"))
	assert.Contains(t, out.String(), "get <num> [host:port]")
	assert.True(t, sh.dispatch(context.Background(), "exit"))
	assert.True(t, sh.dispatch(context.Background(), "QUIT"))

	out.Reset()
	sh.run(context.Background(), strings.NewReader("list\n"))
	assert.Contains(t, out.String(), "（无记录）")
}

// TestShell_AddLookupList 测试 add/lookup/list 命令
func TestShell_AddLookupList(t *testing.T) {
	rec := types.RfcRecord{Number: 791, Title: "Internet Protocol", Host: "hostA", Port: 9001}
	idx := &fakeIndex{records: map[int][]types.RfcRecord{791: {rec}}}
	sh, out := newTestShell(t, idx, &fakeDownloader{})
	ctx := context.Background()

	sh.dispatch(ctx, "add 793 Transmission Control Protocol")
	require.Len(t, idx.added, 1)
	assert.Equal(t, "Transmission Control Protocol", idx.added[0].Title)
	assert.Contains(t, out.String(), "RFC 793 Transmission Control Protocol self 9000")

	out.Reset()
	sh.dispatch(ctx, "lookup 791")
	assert.Equal(t, p2pci.FormatRecord(rec)+"\n", out.String())

	out.Reset()
	sh.dispatch(ctx, "list")
	assert.Contains(t, out.String(), p2pci.FormatRecord(rec))
}

// TestShell_Usage 测试参数错误
func TestShell_Usage(t *testing.T) {
	sh, out := newTestShell(t, &fakeIndex{}, &fakeDownloader{})
	ctx := context.Background()

	for _, line := range []string{"add 1", "add x title", "lookup", "lookup -1", "get", "get 1 nohostport", "bogus"} {
		out.Reset()
		assert.False(t, sh.dispatch(ctx, line), line)
		assert.NotEmpty(t, out.String(), line)
	}
}

// TestShell_GetSkipsSelf 测试 get 跳过自身并在下载后通告
func TestShell_GetSkipsSelf(t *testing.T) {
	idx := &fakeIndex{records: map[int][]types.RfcRecord{
		2616: {
			{Number: 2616, Title: "HTTP/1.1", Host: "self", Port: 9000},
			{Number: 2616, Title: "HTTP/1.1", Host: "hostB", Port: 9002},
		},
	}}
	dl := &fakeDownloader{}
	sh, out := newTestShell(t, idx, dl)

	sh.dispatch(context.Background(), "get 2616")
	require.Len(t, dl.peers, 1)
	assert.Equal(t, types.PeerInfo{Host: "hostB", Port: 9002}, dl.peers[0])
	assert.Contains(t, out.String(), "13 字节")

	require.Len(t, idx.added, 1)
	assert.Equal(t, "HTTP/1.1", idx.added[0].Title)

	doc, err := sh.store.Open(2616)
	require.NoError(t, err)
	assert.Equal(t, []byte("document body"), doc.Data)
}

// TestShell_GetExplicitPeer 测试指定节点下载
func TestShell_GetExplicitPeer(t *testing.T) {
	idx := &fakeIndex{}
	dl := &fakeDownloader{}
	sh, _ := newTestShell(t, idx, dl)

	sh.dispatch(context.Background(), "get 42 10.0.0.5:7000")
	require.Len(t, dl.peers, 1)
	assert.Equal(t, types.PeerInfo{Host: "10.0.0.5", Port: 7000}, dl.peers[0])

	require.Len(t, idx.added, 1)
	assert.Equal(t, "RFC 42", idx.added[0].Title)
}

// TestShell_GetNoOtherPeer 测试只有自己持有文档时 get 失败
func TestShell_GetNoOtherPeer(t *testing.T) {
	idx := &fakeIndex{records: map[int][]types.RfcRecord{
		1: {{Number: 1, Title: "t", Host: "self", Port: 9000}},
	}}
	dl := &fakeDownloader{}
	sh, out := newTestShell(t, idx, dl)

	sh.dispatch(context.Background(), "get 1")
	assert.Empty(t, dl.peers)
	assert.Empty(t, idx.added)
	assert.Contains(t, out.String(), "没有其他节点持有 RFC 1")
}

// TestShell_GetDownloadError 测试下载失败时不通告
func TestShell_GetDownloadError(t *testing.T) {
	idx := &fakeIndex{records: map[int][]types.RfcRecord{
		1: {{Number: 1, Title: "t", Host: "hostB", Port: 9002}},
	}}
	dl := &fakeDownloader{err: content.ErrDocumentNotFound}
	sh, out := newTestShell(t, idx, dl)

	sh.dispatch(context.Background(), "get 1")
	assert.Empty(t, idx.added)
	assert.Contains(t, out.String(), "下载失败")
}
