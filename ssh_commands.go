package agentbox

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// sshCommands 是 SSH 后端的命令执行实现。
// 命令通过远端登录 shell 执行；进程级操作（List/SendStdin/Kill/Connect）
// 依赖 envd 进程表，SSH 后端不提供，返回 CapabilityError。
type sshCommands struct {
	ssh *sshSession
}

func newSSHCommands(s *sshSession) *sshCommands {
	return &sshCommands{ssh: s}
}

// Run 在沙箱中执行命令并等待完成。
func (c *sshCommands) Run(ctx context.Context, cmd string, opts ...CommandOption) (*CommandResult, error) {
	handle, err := c.Start(ctx, cmd, opts...)
	if err != nil {
		return nil, err
	}
	return handle.Wait()
}

// Start 在沙箱中后台启动命令。
// SSH 后端不提供远端进程号，句柄的 PID 恒为 0。
func (c *sshCommands) Start(ctx context.Context, cmd string, opts ...CommandOption) (*CommandHandle, error) {
	o := applyCommandOpts(opts)

	cmdCtx := ctx
	var cmdCancel context.CancelFunc
	if o.timeout > 0 {
		cmdCtx, cmdCancel = context.WithTimeout(ctx, o.timeout)
	} else {
		cmdCtx, cmdCancel = context.WithCancel(ctx)
	}

	pidCh := make(chan struct{})
	close(pidCh)

	handle := &CommandHandle{
		cancel:   cmdCancel,
		done:     make(chan struct{}),
		pidCh:    pidCh,
		onStdout: o.onStdout,
		onStderr: o.onStderr,
	}

	go func() {
		defer close(handle.done)
		defer cmdCancel()

		var mu sync.Mutex
		var stdout, stderr []byte

		code, err := c.ssh.exec(cmdCtx, buildShellCommand(cmd, o),
			func(p []byte) {
				mu.Lock()
				stdout = append(stdout, p...)
				mu.Unlock()
				if handle.onStdout != nil {
					handle.onStdout(p)
				}
			},
			func(p []byte) {
				mu.Lock()
				stderr = append(stderr, p...)
				mu.Unlock()
				if handle.onStderr != nil {
					handle.onStderr(p)
				}
			},
		)

		mu.Lock()
		result := &CommandResult{
			ExitCode: code,
			Stdout:   string(stdout),
			Stderr:   string(stderr),
		}
		mu.Unlock()
		if err != nil {
			result.ExitCode = -1
			result.Error = err.Error()
		}
		handle.result = result
	}()

	return handle, nil
}

// Connect 不被 SSH 后端支持。
func (c *sshCommands) Connect(ctx context.Context, pid uint32) (*CommandHandle, error) {
	return nil, &CapabilityError{Message: "process connect is not supported over the ssh backend"}
}

// List 不被 SSH 后端支持。
func (c *sshCommands) List(ctx context.Context) ([]ProcessInfo, error) {
	return nil, &CapabilityError{Message: "process list is not supported over the ssh backend"}
}

// SendStdin 不被 SSH 后端支持。
func (c *sshCommands) SendStdin(ctx context.Context, pid uint32, data []byte) error {
	return &CapabilityError{Message: "stdin is not supported over the ssh backend"}
}

// Kill 不被 SSH 后端支持。
func (c *sshCommands) Kill(ctx context.Context, pid uint32) error {
	return &CapabilityError{Message: "process kill is not supported over the ssh backend"}
}

// buildShellCommand 将命令和选项组装为远端登录 shell 命令行。
// 环境变量按键名排序注入，保证命令行可复现。
func buildShellCommand(cmd string, o *commandOpts) string {
	var sb strings.Builder

	if len(o.envs) > 0 {
		keys := make([]string, 0, len(o.envs))
		for k := range o.envs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "export %s=%s; ", k, shellQuote(o.envs[k]))
		}
	}
	if o.cwd != "" {
		fmt.Fprintf(&sb, "cd %s && ", shellQuote(o.cwd))
	}
	sb.WriteString(cmd)

	return "/bin/bash -l -c " + shellQuote(sb.String())
}

// shellQuote 对字符串做单引号转义。
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
