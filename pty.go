package agentbox

import (
	"context"
	"fmt"
	"net/http"
)

// PtySize PTY 终端大小。
type PtySize struct {
	Cols uint32
	Rows uint32
}

// Pty 提供沙箱 PTY（伪终端）操作，仅 HTTP 后端可用。
type Pty struct {
	sandbox  *Sandbox
	commands *envdCommands
}

// newPty 创建 Pty 实例。
func newPty(s *Sandbox) *Pty {
	return &Pty{sandbox: s, commands: newCommands(s)}
}

// Create 创建一个 PTY 终端会话。
// PTY 输出通过 WithOnPtyData 回调接收；若未设置，回退使用 WithOnStdout 以保持兼容。
func (p *Pty) Create(ctx context.Context, size PtySize, opts ...CommandOption) (*CommandHandle, error) {
	o := applyCommandOpts(opts)
	return p.commands.startPty(ctx, size, o)
}

// Connect 连接到已有的 PTY 会话。
func (p *Pty) Connect(ctx context.Context, pid uint32) (*CommandHandle, error) {
	return p.commands.Connect(ctx, pid)
}

// SendInput 向 PTY 发送输入。
func (p *Pty) SendInput(ctx context.Context, pid uint32, data []byte) error {
	return p.commands.sendInput(ctx, pid, struct {
		Pty []byte `json:"pty"`
	}{Pty: data})
}

// Resize 调整 PTY 终端大小。
func (p *Pty) Resize(ctx context.Context, pid uint32, size PtySize) error {
	path := fmt.Sprintf("/processes/%d", pid)
	body := struct {
		Pty ptyConfig `json:"pty"`
	}{Pty: ptyConfig{Size: ptySizeConfig{Cols: size.Cols, Rows: size.Rows}}}

	resp, err := p.sandbox.envdRequest(ctx, http.MethodPatch, path, nil, body, DefaultUser)
	if err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	defer resp.Body.Close()
	if err := checkEnvdResponse(resp); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	return nil
}

// Kill 终止 PTY 会话。
func (p *Pty) Kill(ctx context.Context, pid uint32) error {
	return p.commands.Kill(ctx, pid)
}
