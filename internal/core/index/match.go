package index

// AnyPort 端口通配，用于按主机批量移除
const AnyPort = -1

func matchPort(want, got int) bool {
	return want == AnyPort || want == got
}
