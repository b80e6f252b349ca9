package agentbox

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// backendKind 标识沙箱会话使用的传输后端。
type backendKind int

const (
	// backendHTTP 通过沙箱内 envd 守护进程的 HTTP API 执行操作。
	backendHTTP backendKind = iota
	// backendSSH 通过 SSH 直连沙箱执行操作，用于不运行 envd 的实例。
	backendSSH
)

// sshBackendMarker 是沙箱标识中标记 SSH 后端的子串，匹配时忽略大小写。
const sshBackendMarker = "brd"

// backendKindFor 根据沙箱标识判定传输后端。
// 判定只在会话构造时执行一次，之后所有操作走已选定的后端。
func backendKindFor(sandboxID string) backendKind {
	if strings.Contains(strings.ToLower(sandboxID), sshBackendMarker) {
		return backendSSH
	}
	return backendHTTP
}

// SSHEndpoint 是 SSH 后端的连接参数，从服务端下发的连接命令中解析得到。
type SSHEndpoint struct {
	Host     string
	Port     int
	Username string
	Password string

	// ExpireTime 是凭证过期时间，零值表示服务端未下发。
	ExpireTime time.Time
}

// Addr 返回 host:port 形式的连接地址。
func (e SSHEndpoint) Addr() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// 服务端下发的连接命令形如 "ssh -p 2222 user@10.0.0.5"，
// 端口与 user@host 之间允许出现其他选项。
var sshConnectCommandRE = regexp.MustCompile(`ssh\s+-p\s+(\d+).*?\s+([^@\s]+)@([\w.-]+)`)

// parseSSHConnectCommand 从连接命令中解析出 SSH 连接参数。
// 命令不符合约定格式时返回 ParseError，该错误不应重试。
func parseSSHConnectCommand(connectCommand, password string) (SSHEndpoint, error) {
	m := sshConnectCommandRE.FindStringSubmatch(connectCommand)
	if m == nil {
		return SSHEndpoint{}, &ParseError{Input: connectCommand}
	}
	port, err := strconv.Atoi(m[1])
	if err != nil {
		return SSHEndpoint{}, &ParseError{Input: connectCommand}
	}
	return SSHEndpoint{
		Host:     m[3],
		Port:     port,
		Username: m[2],
		Password: password,
	}, nil
}
