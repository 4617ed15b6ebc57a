package app

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-p2pci/config"
	"github.com/dep2p/go-p2pci/pkg/types"
)

const (
	waitFor = 5 * time.Second
	tick    = 20 * time.Millisecond
)

func serverConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	return cfg
}

func peerConfig(t *testing.T, serverAddr, host string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Peer.ServerAddr = serverAddr
	cfg.Peer.Host = host
	cfg.Peer.Dir = t.TempDir()
	return cfg
}

func startServer(t *testing.T) *ServerRuntime {
	t.Helper()
	rt, err := NewBootstrap(serverConfig(), RoleServer).StartServer(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Stop(context.Background()) })
	return rt
}

func writeDoc(t *testing.T, dir string, num int, content string) {
	t.Helper()
	name := filepath.Join(dir, "rfc"+strconv.Itoa(num)+".txt")
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

// TestBootstrap_RoleMismatch 测试角色不匹配
func TestBootstrap_RoleMismatch(t *testing.T) {
	_, err := NewBootstrap(nil, RolePeer).StartServer(context.Background())
	assert.Error(t, err)

	_, err = NewBootstrap(nil, RoleServer).StartPeer(context.Background())
	assert.Error(t, err)
}

// TestBootstrap_InvalidConfig 测试无效配置
func TestBootstrap_InvalidConfig(t *testing.T) {
	cfg := serverConfig()
	cfg.Server.MaxSessions = -1

	_, err := NewBootstrap(cfg, RoleServer).StartServer(context.Background())
	assert.Error(t, err)
}

// TestBootstrap_Server 测试索引服务器启动与停止
func TestBootstrap_Server(t *testing.T) {
	rt, err := NewBootstrap(serverConfig(), RoleServer, WithDebug(false)).StartServer(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rt.Server)
	require.NotNil(t, rt.Registry)
	assert.NotNil(t, rt.Server.Addr())

	require.NoError(t, rt.Stop(context.Background()))
}

// TestBootstrap_PeerNoServer 测试索引服务器不可达时节点启动失败
func TestBootstrap_PeerNoServer(t *testing.T) {
	cfg := peerConfig(t, "127.0.0.1:1", "127.0.0.1")

	_, err := NewBootstrap(cfg, RolePeer).StartPeer(context.Background())
	assert.Error(t, err)
}

// TestBootstrap_PeerPublishesAndExits 测试节点启动时通告本地文档，停止时 EXIT
func TestBootstrap_PeerPublishesAndExits(t *testing.T) {
	srv := startServer(t)
	addr := srv.Server.Addr().String()

	cfg := peerConfig(t, addr, "127.0.0.1")
	writeDoc(t, cfg.Peer.Dir, 791, "Internet Protocol\n\nbody\n")
	writeDoc(t, cfg.Peer.Dir, 793, "Transmission Control Protocol\n")

	peer, err := NewBootstrap(cfg, RolePeer).StartPeer(context.Background())
	require.NoError(t, err)

	port := peer.Content.Port()
	require.NotZero(t, port)

	records, err := peer.Control.ListAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.RfcRecord{
		{Number: 791, Title: "Internet Protocol", Host: "127.0.0.1", Port: port},
		{Number: 793, Title: "Transmission Control Protocol", Host: "127.0.0.1", Port: port},
	}, records)

	require.NoError(t, peer.Stop(context.Background()))
	assert.Eventually(t, func() bool {
		return srv.Server.SessionCount() == 0
	}, waitFor, tick)
}

// TestEndToEnd 测试两个节点经由索引服务器发现并下载文档
func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)
	addr := srv.Server.Addr().String()

	// 节点 A 持有 RFC 2616
	cfgA := peerConfig(t, addr, "127.0.0.1")
	body := "Hypertext Transfer Protocol -- HTTP/1.1\r\n\r\nline two\nline three\n"
	writeDoc(t, cfgA.Peer.Dir, 2616, body)

	peerA, err := NewBootstrap(cfgA, RolePeer).StartPeer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = peerA.Stop(ctx) })

	// 节点 B 没有任何文档
	cfgB := peerConfig(t, addr, "localhost")
	peerB, err := NewBootstrap(cfgB, RolePeer).StartPeer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = peerB.Stop(ctx) })

	records, err := peerB.Control.LookupRfc(ctx, 2616)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "127.0.0.1", rec.Host)
	assert.Equal(t, peerA.Content.Port(), rec.Port)
	assert.Equal(t, "Hypertext Transfer Protocol -- HTTP/1.1", rec.Title)

	doc, err := peerB.Fetcher.Download(ctx, rec.Peer(), 2616, peerB.Store)
	require.NoError(t, err)
	assert.Equal(t, []byte(body), doc.Data)

	// 下载后 B 同样通告该文档
	_, err = peerB.Control.AddRfc(ctx, 2616, rec.Title)
	require.NoError(t, err)

	records, err = peerA.Control.LookupRfc(ctx, 2616)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	stored, err := peerB.Store.Open(2616)
	require.NoError(t, err)
	assert.Equal(t, []byte(body), stored.Data)

	// A 退出后只剩 B 的记录
	require.NoError(t, peerA.Stop(ctx))
	assert.Eventually(t, func() bool {
		records, err := peerB.Control.LookupRfc(ctx, 2616)
		return err == nil && len(records) == 1 && records[0].Host == "localhost"
	}, waitFor, tick)
}
