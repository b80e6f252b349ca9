package agentbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Commands 是沙箱命令执行接口，实现按会话后端路由。
type Commands interface {
	// Run 在沙箱中执行命令并等待完成。
	Run(ctx context.Context, cmd string, opts ...CommandOption) (*CommandResult, error)
	// Start 在沙箱中后台启动命令，返回句柄用于等待完成。
	Start(ctx context.Context, cmd string, opts ...CommandOption) (*CommandHandle, error)
	// Connect 连接到正在运行的进程。
	Connect(ctx context.Context, pid uint32) (*CommandHandle, error)
	// List 列出所有运行中的进程。
	List(ctx context.Context) ([]ProcessInfo, error)
	// SendStdin 向进程发送标准输入。
	SendStdin(ctx context.Context, pid uint32, data []byte) error
	// Kill 终止指定进程。
	Kill(ctx context.Context, pid uint32) error
}

// CommandResult 命令执行结果。
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Error    string
}

// CommandHandle 后台命令句柄。
type CommandHandle struct {
	PID uint32

	killFn func(ctx context.Context, pid uint32) error
	cancel context.CancelFunc
	done   chan struct{}
	pidCh  chan struct{}
	result *CommandResult

	mu        sync.Mutex
	onStdout  func(data []byte)
	onStderr  func(data []byte)
	onPtyData func(data []byte)
}

// Wait 等待命令完成并返回结果。
func (h *CommandHandle) Wait() (*CommandResult, error) {
	<-h.done
	if h.result == nil {
		return nil, fmt.Errorf("command terminated without result")
	}
	return h.result, nil
}

// Kill 终止命令。
func (h *CommandHandle) Kill(ctx context.Context) error {
	if h.killFn != nil {
		return h.killFn(ctx, h.PID)
	}
	h.cancel()
	return nil
}

// WaitPID 等待进程 PID 被分配。
// 当进程流收到 Start 事件后返回 PID；若 ctx 取消则返回错误。
func (h *CommandHandle) WaitPID(ctx context.Context) (uint32, error) {
	select {
	case <-h.pidCh:
		return h.PID, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// ProcessInfo 进程信息。
type ProcessInfo struct {
	PID  uint32
	Tag  *string
	Cmd  string
	Args []string
	Envs map[string]string
	Cwd  *string
}

// CommandOption 命令选项。
type CommandOption func(*commandOpts)

type commandOpts struct {
	envs      map[string]string
	cwd       string
	user      string
	tag       string
	onStdout  func(data []byte)
	onStderr  func(data []byte)
	onPtyData func(data []byte)
	timeout   time.Duration
}

// WithEnvs 设置命令的环境变量。
func WithEnvs(envs map[string]string) CommandOption {
	return func(o *commandOpts) { o.envs = envs }
}

// WithCwd 设置命令的工作目录。
func WithCwd(cwd string) CommandOption {
	return func(o *commandOpts) { o.cwd = cwd }
}

// WithCommandUser 设置执行命令的用户。
func WithCommandUser(user string) CommandOption {
	return func(o *commandOpts) { o.user = user }
}

// WithTag 设置进程标签，用于后续通过标签连接进程。
func WithTag(tag string) CommandOption {
	return func(o *commandOpts) { o.tag = tag }
}

// WithOnStdout 设置 stdout 数据回调。仅用于标准命令的 stdout 输出。
// PTY 会话应使用 WithOnPtyData 接收输出。
func WithOnStdout(fn func(data []byte)) CommandOption {
	return func(o *commandOpts) { o.onStdout = fn }
}

// WithOnStderr 设置 stderr 数据回调。
func WithOnStderr(fn func(data []byte)) CommandOption {
	return func(o *commandOpts) { o.onStderr = fn }
}

// WithOnPtyData 设置 PTY 数据回调。用于接收 PTY 会话的输出数据。
// 若未设置，Pty.Create 会回退使用 WithOnStdout 回调以保持兼容。
func WithOnPtyData(fn func(data []byte)) CommandOption {
	return func(o *commandOpts) { o.onPtyData = fn }
}

// WithTimeout 设置命令超时时间。
func WithTimeout(timeout time.Duration) CommandOption {
	return func(o *commandOpts) { o.timeout = timeout }
}

func applyCommandOpts(opts []CommandOption) *commandOpts {
	o := &commandOpts{user: DefaultUser}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// ---------------------------------------------------------------------------
// envd 进程事件流
// ---------------------------------------------------------------------------

// processEvent 是 envd 进程流的单个 NDJSON 事件。
// data 字段为 base64 编码的字节流，由 json 包透明解码。
type processEvent struct {
	Event *struct {
		Start *struct {
			PID uint32 `json:"pid"`
		} `json:"start,omitempty"`
		Data *struct {
			Stdout []byte `json:"stdout,omitempty"`
			Stderr []byte `json:"stderr,omitempty"`
			Pty    []byte `json:"pty,omitempty"`
		} `json:"data,omitempty"`
		End *struct {
			ExitCode int32   `json:"exitCode"`
			Error    *string `json:"error,omitempty"`
		} `json:"end,omitempty"`
	} `json:"event,omitempty"`
	Keepalive *struct{} `json:"keepalive,omitempty"`
}

// processStartRequest 是启动进程的请求体（Commands 和 Pty 共用）。
type processStartRequest struct {
	Process processConfig `json:"process"`
	Tag     *string       `json:"tag,omitempty"`
	Stdin   bool          `json:"stdin"`
	Pty     *ptyConfig    `json:"pty,omitempty"`
}

type processConfig struct {
	Cmd  string            `json:"cmd"`
	Args []string          `json:"args"`
	Envs map[string]string `json:"envs,omitempty"`
	Cwd  *string           `json:"cwd,omitempty"`
}

type ptyConfig struct {
	Size ptySizeConfig `json:"size"`
}

type ptySizeConfig struct {
	Cols uint32 `json:"cols"`
	Rows uint32 `json:"rows"`
}

// processEventStream 消费进程事件流并驱动句柄（Start 和 Connect 共用）。
func processEventStream(body io.ReadCloser, handle *CommandHandle) {
	defer close(handle.done)
	defer body.Close()

	var stdout, stderr []byte
	var streamErr error

	dec := json.NewDecoder(body)
	for {
		var ev processEvent
		if err := dec.Decode(&ev); err != nil {
			if err != io.EOF {
				streamErr = err
			}
			break
		}
		if ev.Event == nil {
			continue
		}
		switch {
		case ev.Event.Start != nil:
			handle.PID = ev.Event.Start.PID
			close(handle.pidCh)
		case ev.Event.Data != nil:
			if data := ev.Event.Data.Stdout; len(data) > 0 {
				stdout = append(stdout, data...)
				handle.mu.Lock()
				fn := handle.onStdout
				handle.mu.Unlock()
				if fn != nil {
					fn(data)
				}
			}
			if data := ev.Event.Data.Stderr; len(data) > 0 {
				stderr = append(stderr, data...)
				handle.mu.Lock()
				fn := handle.onStderr
				handle.mu.Unlock()
				if fn != nil {
					fn(data)
				}
			}
			if data := ev.Event.Data.Pty; len(data) > 0 {
				handle.mu.Lock()
				fn := handle.onPtyData
				handle.mu.Unlock()
				if fn != nil {
					fn(data)
				}
			}
		case ev.Event.End != nil:
			handle.result = &CommandResult{
				ExitCode: int(ev.Event.End.ExitCode),
				Stdout:   string(stdout),
				Stderr:   string(stderr),
			}
			if ev.Event.End.Error != nil {
				handle.result.Error = *ev.Event.End.Error
			}
		}
	}

	// 流结束但没有收到 End 事件时，构造一个错误结果
	if handle.result == nil {
		errMsg := ""
		if streamErr != nil {
			errMsg = streamErr.Error()
		}
		handle.result = &CommandResult{
			ExitCode: -1,
			Stdout:   string(stdout),
			Stderr:   string(stderr),
			Error:    errMsg,
		}
	}
}

// ---------------------------------------------------------------------------
// envd 实现
// ---------------------------------------------------------------------------

// envdCommands 是 HTTP 后端的命令执行实现，走 envd 进程接口。
type envdCommands struct {
	sandbox *Sandbox
}

func newCommands(s *Sandbox) *envdCommands {
	return &envdCommands{sandbox: s}
}

// Run 在沙箱中执行命令并等待完成。返回执行结果。
// 注意: stdout 和 stderr 在内存中累积，长时间运行或大量输出的命令
// 应使用 Start() + WithOnStdout/WithOnStderr 流式回调处理输出。
func (c *envdCommands) Run(ctx context.Context, cmd string, opts ...CommandOption) (*CommandResult, error) {
	handle, err := c.Start(ctx, cmd, opts...)
	if err != nil {
		return nil, err
	}
	return handle.Wait()
}

// Start 在沙箱中后台启动命令。
// cmd 以 /bin/bash -l -c <cmd> 形式执行，支持 shell 语法（管道、重定向等），
// 会加载登录 shell 环境（/etc/profile 及用户 profile）。
func (c *envdCommands) Start(ctx context.Context, cmd string, opts ...CommandOption) (*CommandHandle, error) {
	o := applyCommandOpts(opts)

	cmdCtx := ctx
	var cmdCancel context.CancelFunc
	if o.timeout > 0 {
		cmdCtx, cmdCancel = context.WithTimeout(ctx, o.timeout)
	} else {
		cmdCtx, cmdCancel = context.WithCancel(ctx)
	}

	startReq := processStartRequest{
		Process: processConfig{
			Cmd:  "/bin/bash",
			Args: []string{"-l", "-c", cmd},
			Envs: o.envs,
		},
	}
	if o.cwd != "" {
		startReq.Process.Cwd = &o.cwd
	}
	if o.tag != "" {
		startReq.Tag = &o.tag
	}

	resp, err := c.sandbox.envdRequest(cmdCtx, http.MethodPost, "/processes", nil, startReq, o.user)
	if err != nil {
		cmdCancel()
		return nil, fmt.Errorf("start command: %w", err)
	}
	if err := checkEnvdResponse(resp); err != nil {
		resp.Body.Close()
		cmdCancel()
		return nil, fmt.Errorf("start command: %w", err)
	}

	handle := &CommandHandle{
		killFn:   c.Kill,
		cancel:   cmdCancel,
		done:     make(chan struct{}),
		pidCh:    make(chan struct{}),
		onStdout: o.onStdout,
		onStderr: o.onStderr,
	}

	go processEventStream(resp.Body, handle)

	return handle, nil
}

// startPty 启动一个 PTY 进程流，供 Pty.Create 使用。
func (c *envdCommands) startPty(ctx context.Context, size PtySize, o *commandOpts) (*CommandHandle, error) {
	ptyCtx, ptyCancel := context.WithCancel(ctx)

	// 合并默认 PTY 环境变量和用户自定义环境变量
	envs := map[string]string{
		"TERM":   "xterm",
		"LANG":   "C.UTF-8",
		"LC_ALL": "C.UTF-8",
	}
	for k, v := range o.envs {
		envs[k] = v
	}

	startReq := processStartRequest{
		Process: processConfig{
			Cmd:  "/bin/bash",
			Args: []string{"-i", "-l"},
			Envs: envs,
		},
		Pty: &ptyConfig{
			Size: ptySizeConfig{Cols: size.Cols, Rows: size.Rows},
		},
	}
	if o.cwd != "" {
		startReq.Process.Cwd = &o.cwd
	}
	if o.tag != "" {
		startReq.Tag = &o.tag
	}

	resp, err := c.sandbox.envdRequest(ptyCtx, http.MethodPost, "/processes", nil, startReq, o.user)
	if err != nil {
		ptyCancel()
		return nil, fmt.Errorf("create pty: %w", err)
	}
	if err := checkEnvdResponse(resp); err != nil {
		resp.Body.Close()
		ptyCancel()
		return nil, fmt.Errorf("create pty: %w", err)
	}

	// 优先使用 onPtyData，回退到 onStdout 以保持兼容
	ptyDataFn := o.onPtyData
	if ptyDataFn == nil {
		ptyDataFn = o.onStdout
	}

	handle := &CommandHandle{
		killFn:    c.Kill,
		cancel:    ptyCancel,
		done:      make(chan struct{}),
		pidCh:     make(chan struct{}),
		onPtyData: ptyDataFn,
	}

	go processEventStream(resp.Body, handle)

	return handle, nil
}

// Connect 连接到正在运行的进程。
func (c *envdCommands) Connect(ctx context.Context, pid uint32) (*CommandHandle, error) {
	connectCtx, connectCancel := context.WithCancel(ctx)

	path := fmt.Sprintf("/processes/%d/connect", pid)
	resp, err := c.sandbox.envdRequest(connectCtx, http.MethodGet, path, nil, nil, DefaultUser)
	if err != nil {
		connectCancel()
		return nil, fmt.Errorf("connect to process: %w", err)
	}
	if err := checkEnvdResponse(resp); err != nil {
		resp.Body.Close()
		connectCancel()
		return nil, fmt.Errorf("connect to process: %w", err)
	}

	pidCh := make(chan struct{})
	close(pidCh) // PID 已知，无需等待

	handle := &CommandHandle{
		PID:    pid,
		killFn: c.Kill,
		cancel: connectCancel,
		done:   make(chan struct{}),
		pidCh:  pidCh,
	}

	go processEventStream(resp.Body, handle)

	return handle, nil
}

// List 列出所有运行中的进程。
func (c *envdCommands) List(ctx context.Context) ([]ProcessInfo, error) {
	resp, err := c.sandbox.envdRequest(ctx, http.MethodGet, "/processes", nil, nil, DefaultUser)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer resp.Body.Close()
	if err := checkEnvdResponse(resp); err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var processes []struct {
		PID    uint32  `json:"pid"`
		Tag    *string `json:"tag,omitempty"`
		Config *struct {
			Cmd  string            `json:"cmd"`
			Args []string          `json:"args"`
			Envs map[string]string `json:"envs,omitempty"`
			Cwd  *string           `json:"cwd,omitempty"`
		} `json:"config,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&processes); err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var infos []ProcessInfo
	for _, p := range processes {
		info := ProcessInfo{PID: p.PID, Tag: p.Tag}
		if p.Config != nil {
			info.Cmd = p.Config.Cmd
			info.Args = p.Config.Args
			info.Envs = p.Config.Envs
			info.Cwd = p.Config.Cwd
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// SendStdin 向进程发送标准输入。
func (c *envdCommands) SendStdin(ctx context.Context, pid uint32, data []byte) error {
	return c.sendInput(ctx, pid, struct {
		Stdin []byte `json:"stdin"`
	}{Stdin: data})
}

// sendInput 向进程输入接口发送数据（stdin 或 pty）。
func (c *envdCommands) sendInput(ctx context.Context, pid uint32, body interface{}) error {
	path := fmt.Sprintf("/processes/%d/input", pid)
	resp, err := c.sandbox.envdRequest(ctx, http.MethodPost, path, nil, body, DefaultUser)
	if err != nil {
		return fmt.Errorf("send input: %w", err)
	}
	defer resp.Body.Close()
	if err := checkEnvdResponse(resp); err != nil {
		return fmt.Errorf("send input: %w", err)
	}
	return nil
}

// Kill 终止指定进程。
func (c *envdCommands) Kill(ctx context.Context, pid uint32) error {
	path := fmt.Sprintf("/processes/%d", pid)
	q := url.Values{}
	q.Set("signal", "SIGKILL")
	resp, err := c.sandbox.envdRequest(ctx, http.MethodDelete, path, q, nil, DefaultUser)
	if err != nil {
		return fmt.Errorf("kill process: %w", err)
	}
	defer resp.Body.Close()
	if err := checkEnvdResponse(resp); err != nil {
		return fmt.Errorf("kill process: %w", err)
	}
	return nil
}
