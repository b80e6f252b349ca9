package agentbox

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// defaultSSHConnectTimeout 是 SSH 握手的默认超时时间。
const defaultSSHConnectTimeout = 10 * time.Second

// sshSession 持有 SSH 后端的连接参数和底层连接。
// 连接懒建立：构造时只保存凭证，首次操作才拨号握手。
type sshSession struct {
	config *connectionConfig

	mu       sync.Mutex
	endpoint SSHEndpoint
	conn     *ssh.Client
	sftpConn *sftp.Client
}

func newSSHSession(ep SSHEndpoint, cfg *connectionConfig) *sshSession {
	return &sshSession{endpoint: ep, config: cfg}
}

// setEndpoint 替换连接凭证并关闭旧连接，下次操作用新凭证重新拨号。
func (s *sshSession) setEndpoint(ep SSHEndpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoint = ep
	s.closeLocked()
}

// client 返回已建立的 SSH 连接，必要时拨号握手。
// 拨号使用带上下文的 net.Dialer 以支持取消。
func (s *sshSession) client(ctx context.Context) (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn, nil
	}

	ep := s.endpoint
	if !ep.ExpireTime.IsZero() && time.Now().After(ep.ExpireTime) {
		s.config.logger.Warningf("ssh credentials for %s expired at %s", ep.Addr(), ep.ExpireTime)
	}

	sshCfg := &ssh.ClientConfig{
		User: ep.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(ep.Password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         defaultSSHConnectTimeout,
	}
	addr := net.JoinHostPort(ep.Host, fmt.Sprintf("%d", ep.Port))

	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshCfg)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake failed with %s: %w", addr, err)
	}

	s.conn = ssh.NewClient(sshConn, chans, reqs)
	s.config.logger.Debugf("ssh connection established to %s", addr)
	return s.conn, nil
}

// sftp 返回已建立的 SFTP 客户端，复用底层 SSH 连接。
func (s *sshSession) sftp(ctx context.Context) (*sftp.Client, error) {
	conn, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sftpConn != nil {
		return s.sftpConn, nil
	}
	sftpConn, err := sftp.NewClient(conn)
	if err != nil {
		return nil, fmt.Errorf("could not create sftp client: %w", err)
	}
	s.sftpConn = sftpConn
	return sftpConn, nil
}

// Close 关闭底层连接。之后的操作会重新拨号。
func (s *sshSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *sshSession) closeLocked() error {
	if s.sftpConn != nil {
		_ = s.sftpConn.Close()
		s.sftpConn = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// exec 在远端执行命令，带上下文取消支持。
// 返回退出码和累积的 stdout/stderr；非零退出码不视为错误。
func (s *sshSession) exec(ctx context.Context, command string, stdout, stderr writerFunc) (int, error) {
	conn, err := s.client(ctx)
	if err != nil {
		return -1, err
	}

	session, err := conn.NewSession()
	if err != nil {
		return -1, fmt.Errorf("could not create ssh session: %w", err)
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return -1, timeoutOr("run ssh command", ctx.Err())
	case err := <-done:
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				return exitErr.ExitStatus(), nil
			}
			return -1, fmt.Errorf("command execution failed: %w", err)
		}
		return 0, nil
	}
}

// writerFunc 将回调适配为 io.Writer。
type writerFunc func(p []byte)

func (f writerFunc) Write(p []byte) (int, error) {
	if f != nil {
		f(p)
	}
	return len(p), nil
}
