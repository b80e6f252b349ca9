package agentbox

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/agentbox-cloud/agentbox-go/apis"
)

// defaultTemplate 是未指定模板时使用的模板 ID。
const defaultTemplate = "base"

// debug 模式下使用的本地沙箱 ID。
const debugSandboxID = "debug_sandbox_id"

// debug 模式下 SSH 后端连接的本地地址。
var debugSSHEndpoint = SSHEndpoint{
	Host:     "127.0.0.1",
	Port:     22,
	Username: "user",
	Password: "password",
}

// 指标能力的最低 envd 版本门槛。
var (
	minEnvdVersionMetrics     = semver.MustParse("0.1.5")
	minEnvdVersionDiskMetrics = semver.MustParse("0.2.4")
)

// Sandbox 表示一个沙箱会话。
//
// 会话持有沙箱标识、凭证和传输后端，后端在构造时根据沙箱 ID 判定一次，
// 之后不再切换。同一会话上的操作由内部互斥锁保护本地状态，但不会阻止
// 其他进程对同一沙箱的并发操作在服务端竞争。
type Sandbox struct {
	sandboxID       string
	templateID      string
	clientID        string
	alias           *string
	domain          *string
	envdAccessToken *string
	envdVersion     *semver.Version

	client *Client
	config *connectionConfig

	kind backendKind
	ssh  *sshSession

	// 执行面（懒初始化，按后端路由）
	filesOnce sync.Once
	files     Files

	commandsOnce sync.Once
	commands     Commands

	ptyOnce sync.Once
	pty     *Pty

	mu    sync.Mutex
	state SandboxState
}

// CreateParams 创建沙箱的参数。
type CreateParams struct {
	// TemplateID 模板 ID，为空时使用 "base"。
	TemplateID string

	// Timeout 沙箱存活时间，0 表示使用 DefaultSandboxTimeout。
	// 到期后由服务端执行自动回收，客户端不做本地调度。
	Timeout time.Duration

	// AutoPause 到期后自动暂停而非销毁。
	AutoPause bool

	// Secure 启用安全沙箱（envd 访问需携带访问令牌）。
	Secure bool

	// Metadata 沙箱自定义元数据。
	Metadata Metadata

	// EnvVars 沙箱默认环境变量。
	EnvVars map[string]string
}

func (p CreateParams) toAPI() apis.CreateSandboxJSONRequestBody {
	body := apis.CreateSandboxJSONRequestBody{
		TemplateID: p.TemplateID,
	}
	if body.TemplateID == "" {
		body.TemplateID = defaultTemplate
	}
	timeout := timeoutSeconds(p.Timeout)
	body.Timeout = &timeout
	if p.AutoPause {
		v := true
		body.AutoPause = &v
	}
	if p.Secure {
		v := true
		body.Secure = &v
	}
	if len(p.EnvVars) > 0 {
		envs := apis.EnvVars(p.EnvVars)
		body.EnvVars = &envs
	}
	if len(p.Metadata) > 0 {
		md := apis.SandboxMetadata(p.Metadata)
		body.Metadata = &md
	}
	return body
}

// ConnectParams 连接沙箱的参数。
type ConnectParams struct {
	// Timeout 连接后重置的沙箱存活时间，0 表示使用 DefaultSandboxTimeout。
	Timeout time.Duration
}

// ResumeParams 恢复沙箱的参数。
type ResumeParams struct {
	// Timeout 恢复后的沙箱存活时间，0 表示使用 DefaultSandboxTimeout。
	Timeout time.Duration

	// AutoPause 到期后再次自动暂停。
	AutoPause bool
}

// timeoutSeconds 将存活时间换算为控制面使用的秒数。
func timeoutSeconds(d time.Duration) int32 {
	if d <= 0 {
		d = DefaultSandboxTimeout
	}
	return int32(d.Seconds())
}

// Create 根据指定模板创建一个新的沙箱，返回就绪的会话。
func (c *Client) Create(ctx context.Context, params CreateParams, opts ...CallOption) (*Sandbox, error) {
	o := applyCallOpts(opts)
	if c.config.debug {
		c.config.logger.Debugf("debug mode, using local sandbox %s", debugSandboxID)
		return c.debugSandbox(ctx, o)
	}

	api, err := c.apiFor(o)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := c.callContext(ctx, o)
	defer cancel()

	resp, err := api.CreateSandboxWithResponse(callCtx, params.toAPI())
	if err != nil {
		return nil, timeoutOr("create sandbox", err)
	}
	if resp.JSON201 == nil {
		return nil, newAPIError(resp.StatusCode(), resp.Body)
	}
	return c.newSession(ctx, o, resp.JSON201)
}

// Connect 连接到一个已有的沙箱。
// 沙箱处于暂停状态时服务端会先恢复再返回。SSH 后端的沙箱没有暂停/恢复
// 语义，连接时跳过恢复调用，直接重新获取沙箱信息和新的 SSH 凭证。
func (c *Client) Connect(ctx context.Context, sandboxID string, params ConnectParams, opts ...CallOption) (*Sandbox, error) {
	return c.attach(ctx, sandboxID, params.Timeout, nil, opts)
}

// Resume 恢复一个已暂停的沙箱。
// 与 Connect 的区别仅在于 autoPause 会被转发给控制面；SSH 后端下两者
// 行为完全一致。
func (c *Client) Resume(ctx context.Context, sandboxID string, params ResumeParams, opts ...CallOption) (*Sandbox, error) {
	autoPause := params.AutoPause
	return c.attach(ctx, sandboxID, params.Timeout, &autoPause, opts)
}

// attach 是 Connect 和 Resume 的公共实现，按后端走两条路径。
func (c *Client) attach(ctx context.Context, sandboxID string, timeout time.Duration, autoPause *bool, opts []CallOption) (*Sandbox, error) {
	o := applyCallOpts(opts)
	api, err := c.apiFor(o)
	if err != nil {
		return nil, err
	}

	if backendKindFor(sandboxID) == backendSSH {
		callCtx, cancel := c.callContext(ctx, o)
		defer cancel()

		resp, err := api.GetSandboxWithResponse(callCtx, sandboxID)
		if err != nil {
			return nil, timeoutOr("get sandbox", err)
		}
		if resp.JSON200 == nil {
			return nil, newAPIError(resp.StatusCode(), resp.Body)
		}
		d := resp.JSON200
		return c.newSession(ctx, o, &apis.Sandbox{
			SandboxID:       d.SandboxID,
			TemplateID:      d.TemplateID,
			ClientID:        d.ClientID,
			Alias:           d.Alias,
			EnvdVersion:     d.EnvdVersion,
			EnvdAccessToken: d.EnvdAccessToken,
		})
	}

	callCtx, cancel := c.callContext(ctx, o)
	defer cancel()

	resp, err := api.ResumeSandboxWithResponse(callCtx, sandboxID, apis.ResumeSandboxJSONRequestBody{
		Timeout:   timeoutSeconds(timeout),
		AutoPause: autoPause,
	})
	if err != nil {
		return nil, timeoutOr("resume sandbox", err)
	}
	sb := resp.JSON200
	if sb == nil {
		sb = resp.JSON201
	}
	if sb == nil {
		return nil, newAPIError(resp.StatusCode(), resp.Body)
	}
	return c.newSession(ctx, o, sb)
}

// newSession 从控制面响应构造会话。
// 后端在此处判定一次：SSH 后端的会话在构造期间获取并解析连接凭证，
// 凭证解析失败时不构造任何会话。
func (c *Client) newSession(ctx context.Context, o *callOpts, sb *apis.Sandbox) (*Sandbox, error) {
	cfg := c.config.sessionClone()
	s := &Sandbox{
		sandboxID:  sb.SandboxID,
		templateID: sb.TemplateID,
		clientID:   sb.ClientID,
		alias:      sb.Alias,
		domain:     sb.Domain,
		client:     c,
		config:     cfg,
		kind:       backendKindFor(sb.SandboxID),
		state:      StateCreated,
	}
	if sb.EnvdVersion != nil {
		if v, err := semver.NewVersion(*sb.EnvdVersion); err == nil {
			s.envdVersion = v
		}
	}
	if sb.EnvdAccessToken != nil && *sb.EnvdAccessToken != "" {
		s.envdAccessToken = sb.EnvdAccessToken
		cfg.setAccessToken(*sb.EnvdAccessToken)
	}

	if s.kind == backendSSH {
		ep, err := c.fetchSSHEndpoint(ctx, o, s.sandboxID)
		if err != nil {
			return nil, err
		}
		s.ssh = newSSHSession(ep, cfg)
	}

	s.state = StateRunning
	return s, nil
}

// debugSandbox 返回指向本地服务的固定沙箱会话，不发出网络请求。
func (c *Client) debugSandbox(ctx context.Context, o *callOpts) (*Sandbox, error) {
	return c.newSession(ctx, o, &apis.Sandbox{
		SandboxID:  debugSandboxID,
		TemplateID: defaultTemplate,
	})
}

// fetchSSHEndpoint 从控制面获取 SSH 连接凭证并解析。
func (c *Client) fetchSSHEndpoint(ctx context.Context, o *callOpts, sandboxID string) (SSHEndpoint, error) {
	if c.config.debug {
		return debugSSHEndpoint, nil
	}

	api, err := c.apiFor(o)
	if err != nil {
		return SSHEndpoint{}, err
	}
	callCtx, cancel := c.callContext(ctx, o)
	defer cancel()

	resp, err := api.GetSandboxSSHWithResponse(callCtx, sandboxID)
	if err != nil {
		return SSHEndpoint{}, timeoutOr("get sandbox ssh credentials", err)
	}
	if resp.JSON200 == nil {
		return SSHEndpoint{}, newAPIError(resp.StatusCode(), resp.Body)
	}

	ep, err := parseSSHConnectCommand(resp.JSON200.ConnectCommand, resp.JSON200.AuthPassword)
	if err != nil {
		return SSHEndpoint{}, err
	}
	if resp.JSON200.ExpireTime != nil {
		if t, perr := time.Parse(time.RFC3339, *resp.JSON200.ExpireTime); perr == nil {
			ep.ExpireTime = t
		}
	}
	return ep, nil
}

// ID 返回沙箱 ID。
func (s *Sandbox) ID() string { return s.sandboxID }

// TemplateID 返回沙箱所属的模板 ID。
func (s *Sandbox) TemplateID() string { return s.templateID }

// Alias 返回沙箱的别名。
func (s *Sandbox) Alias() *string { return s.alias }

// State 返回会话当前的本地生命周期状态。
func (s *Sandbox) State() SandboxState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sandbox) setState(st SandboxState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// ensure 校验当前状态允许执行 op，不允许时返回 StateError。
func (s *Sandbox) ensure(op string, allowed ...SandboxState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range allowed {
		if s.state == a {
			return nil
		}
	}
	return &StateError{Op: op, State: s.state}
}

// Kill 终止沙箱。幂等：返回值表示沙箱是否确实存在并被终止，
// 对已终止的沙箱再次调用返回 false 且不报错。终止后会话进入终态，
// 除 Kill 外的操作都会失败。
func (s *Sandbox) Kill(ctx context.Context, opts ...CallOption) (bool, error) {
	if s.State() == StateKilled {
		return false, nil
	}
	found, err := s.client.kill(ctx, s.sandboxID, applyCallOpts(opts))
	if err != nil {
		return false, err
	}
	s.setState(StateKilled)
	s.closeBackend()
	return found, nil
}

// Kill 按 ID 终止沙箱，语义与 Sandbox.Kill 相同。
func (c *Client) Kill(ctx context.Context, sandboxID string, opts ...CallOption) (bool, error) {
	return c.kill(ctx, sandboxID, applyCallOpts(opts))
}

func (c *Client) kill(ctx context.Context, sandboxID string, o *callOpts) (bool, error) {
	api, err := c.apiFor(o)
	if err != nil {
		return false, err
	}
	callCtx, cancel := c.callContext(ctx, o)
	defer cancel()

	resp, err := api.DeleteSandboxWithResponse(callCtx, sandboxID)
	if err != nil {
		return false, timeoutOr("kill sandbox", err)
	}
	switch resp.StatusCode() {
	case http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, newAPIError(resp.StatusCode(), resp.Body)
	}
}

// Pause 暂停沙箱，服务端在快照完成后才返回。
// 仅在运行状态下有效。返回值表示沙箱是否确实由本次调用暂停：
// 沙箱已不存在或已处于暂停状态时返回 false 且不报错。
func (s *Sandbox) Pause(ctx context.Context, opts ...CallOption) (bool, error) {
	if err := s.ensure("pause", StateRunning); err != nil {
		return false, err
	}
	o := applyCallOpts(opts)
	api, err := s.client.apiFor(o)
	if err != nil {
		return false, err
	}
	callCtx, cancel := s.client.callContext(ctx, o)
	defer cancel()

	resp, err := api.PauseSandboxWithResponse(callCtx, s.sandboxID)
	if err != nil {
		return false, timeoutOr("pause sandbox", err)
	}
	switch resp.StatusCode() {
	case http.StatusNoContent:
		s.setState(StatePaused)
		return true, nil
	case http.StatusNotFound:
		return false, nil
	case http.StatusConflict:
		// 服务端已经暂停过了
		s.setState(StatePaused)
		return false, nil
	default:
		return false, newAPIError(resp.StatusCode(), resp.Body)
	}
}

// Resume 恢复当前会话的沙箱并回到运行状态。
// SSH 后端没有恢复语义，仅重新获取连接凭证。
func (s *Sandbox) Resume(ctx context.Context, params ResumeParams, opts ...CallOption) error {
	if err := s.ensure("resume", StatePaused, StateRunning); err != nil {
		return err
	}
	o := applyCallOpts(opts)

	if s.kind == backendSSH {
		ep, err := s.client.fetchSSHEndpoint(ctx, o, s.sandboxID)
		if err != nil {
			return err
		}
		s.ssh.setEndpoint(ep)
		s.setState(StateRunning)
		return nil
	}

	api, err := s.client.apiFor(o)
	if err != nil {
		return err
	}
	callCtx, cancel := s.client.callContext(ctx, o)
	defer cancel()

	autoPause := params.AutoPause
	resp, err := api.ResumeSandboxWithResponse(callCtx, s.sandboxID, apis.ResumeSandboxJSONRequestBody{
		Timeout:   timeoutSeconds(params.Timeout),
		AutoPause: &autoPause,
	})
	if err != nil {
		return timeoutOr("resume sandbox", err)
	}
	sb := resp.JSON200
	if sb == nil {
		sb = resp.JSON201
	}
	if sb == nil {
		return newAPIError(resp.StatusCode(), resp.Body)
	}
	if sb.EnvdAccessToken != nil && *sb.EnvdAccessToken != "" {
		s.config.setAccessToken(*sb.EnvdAccessToken)
	}
	if s.envdVersion == nil && sb.EnvdVersion != nil {
		if v, perr := semver.NewVersion(*sb.EnvdVersion); perr == nil {
			s.envdVersion = v
		}
	}
	s.setState(StateRunning)
	return nil
}

// SetTimeout 更新沙箱超时时间。
// 沙箱将在从现在起经过指定时长后过期，新的截止时间整体替换旧值。
// timeout 必须 >= 1 秒。
func (s *Sandbox) SetTimeout(ctx context.Context, timeout time.Duration, opts ...CallOption) error {
	if err := s.ensure("set timeout", StateCreated, StateRunning, StatePaused); err != nil {
		return err
	}
	if timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", timeout)
	}
	secs := timeout.Seconds()
	if secs > float64(math.MaxInt32) {
		return fmt.Errorf("timeout %v exceeds maximum allowed value", timeout)
	}

	o := applyCallOpts(opts)
	api, err := s.client.apiFor(o)
	if err != nil {
		return err
	}
	callCtx, cancel := s.client.callContext(ctx, o)
	defer cancel()

	resp, err := api.UpdateSandboxTimeoutWithResponse(callCtx, s.sandboxID, apis.UpdateSandboxTimeoutJSONRequestBody{
		Timeout: int32(secs),
	})
	if err != nil {
		return timeoutOr("set sandbox timeout", err)
	}
	if resp.StatusCode() != http.StatusNoContent {
		return newAPIError(resp.StatusCode(), resp.Body)
	}
	return nil
}

// GetInfo 返回沙箱的详细信息，反映服务端的当前状态而非本地缓存。
func (s *Sandbox) GetInfo(ctx context.Context, opts ...CallOption) (*SandboxInfo, error) {
	if err := s.ensure("get info", StateCreated, StateRunning, StatePaused); err != nil {
		return nil, err
	}
	o := applyCallOpts(opts)
	api, err := s.client.apiFor(o)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := s.client.callContext(ctx, o)
	defer cancel()

	resp, err := api.GetSandboxWithResponse(callCtx, s.sandboxID)
	if err != nil {
		return nil, timeoutOr("get sandbox", err)
	}
	if resp.JSON200 == nil {
		return nil, newAPIError(resp.StatusCode(), resp.Body)
	}

	info := sandboxInfoFromAPI(resp.JSON200)

	// 同步本地状态镜像，终态不回退
	s.mu.Lock()
	if s.state != StateKilled {
		s.state = info.State
	}
	s.mu.Unlock()

	if s.envdAccessToken == nil && resp.JSON200.EnvdAccessToken != nil && *resp.JSON200.EnvdAccessToken != "" {
		s.envdAccessToken = resp.JSON200.EnvdAccessToken
		s.config.setAccessToken(*resp.JSON200.EnvdAccessToken)
	}
	if s.envdVersion == nil && resp.JSON200.EnvdVersion != nil {
		if v, perr := semver.NewVersion(*resp.JSON200.EnvdVersion); perr == nil {
			s.envdVersion = v
		}
	}
	return info, nil
}

// GetMetricsParams 指标查询的时间范围，零值表示不限制。
type GetMetricsParams struct {
	Start time.Time
	End   time.Time
}

// GetMetrics 返回沙箱的资源指标序列。
// envd 版本低于 0.1.5 时沙箱不上报指标，本地直接返回 CapabilityError；
// 低于 0.2.4 时磁盘指标不可用，调用仍执行但会通过日志器提示。
func (s *Sandbox) GetMetrics(ctx context.Context, params *GetMetricsParams, opts ...CallOption) ([]Metric, error) {
	if err := s.ensure("get metrics", StateCreated, StateRunning, StatePaused); err != nil {
		return nil, err
	}
	if s.envdVersion != nil && s.envdVersion.LessThan(minEnvdVersionMetrics) {
		return nil, &CapabilityError{
			Message: fmt.Sprintf("sandbox metrics requires envd version >= %s, sandbox has %s", minEnvdVersionMetrics, s.envdVersion),
		}
	}
	if s.envdVersion != nil && s.envdVersion.LessThan(minEnvdVersionDiskMetrics) {
		s.config.logger.Warningf("envd version %s does not report disk metrics, envd >= %s is required", s.envdVersion, minEnvdVersionDiskMetrics)
	}

	o := applyCallOpts(opts)
	api, err := s.client.apiFor(o)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := s.client.callContext(ctx, o)
	defer cancel()

	apiParams := &apis.GetSandboxMetricsParams{}
	if params != nil {
		if !params.Start.IsZero() {
			start := params.Start.Unix()
			apiParams.Start = &start
		}
		if !params.End.IsZero() {
			end := params.End.Unix()
			apiParams.End = &end
		}
	}
	resp, err := api.GetSandboxMetricsWithResponse(callCtx, s.sandboxID, apiParams)
	if err != nil {
		return nil, timeoutOr("get sandbox metrics", err)
	}
	if resp.JSON200 == nil {
		return nil, newAPIError(resp.StatusCode(), resp.Body)
	}
	return metricsFromAPI(*resp.JSON200), nil
}

// IsRunning 检查沙箱是否处于运行状态。
// HTTP 后端通过 envd 健康探针判断，502 视为未运行而非错误；
// SSH 后端没有探针，会话存在即报告 true（并非真实的存活检查）。
func (s *Sandbox) IsRunning(ctx context.Context, opts ...CallOption) (bool, error) {
	if s.State() == StateKilled {
		return false, nil
	}
	if s.kind == backendSSH {
		return true, nil
	}
	running, err := s.envdHealthCheck(ctx, applyCallOpts(opts))
	if err != nil {
		return false, err
	}
	if running {
		s.mu.Lock()
		if s.state == StateCreated {
			s.state = StateRunning
		}
		s.mu.Unlock()
	}
	return running, nil
}

// GetInstanceNo 返回沙箱所在实例的编号。
func (s *Sandbox) GetInstanceNo(ctx context.Context, opts ...CallOption) (string, error) {
	if err := s.ensure("get instance no", StateCreated, StateRunning, StatePaused); err != nil {
		return "", err
	}
	o := applyCallOpts(opts)
	api, err := s.client.apiFor(o)
	if err != nil {
		return "", err
	}
	callCtx, cancel := s.client.callContext(ctx, o)
	defer cancel()

	resp, err := api.GetInstanceNoWithResponse(callCtx, s.sandboxID)
	if err != nil {
		return "", timeoutOr("get instance no", err)
	}
	if resp.JSON200 == nil {
		return "", newAPIError(resp.StatusCode(), resp.Body)
	}
	return resp.JSON200.InstanceNo, nil
}

// GetInstanceAuthInfo 返回沙箱实例的临时鉴权信息。
// validTime 为有效期，0 表示使用服务端默认值（1 小时）。
func (s *Sandbox) GetInstanceAuthInfo(ctx context.Context, validTime time.Duration, opts ...CallOption) (*InstanceAuthInfo, error) {
	if err := s.ensure("get instance auth info", StateCreated, StateRunning, StatePaused); err != nil {
		return nil, err
	}
	o := applyCallOpts(opts)
	api, err := s.client.apiFor(o)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := s.client.callContext(ctx, o)
	defer cancel()

	params := &apis.GetInstanceAuthInfoParams{}
	if validTime > 0 {
		secs := int32(validTime.Seconds())
		params.ValidTime = &secs
	}
	resp, err := api.GetInstanceAuthInfoWithResponse(callCtx, s.sandboxID, params)
	if err != nil {
		return nil, timeoutOr("get instance auth info", err)
	}
	if resp.JSON200 == nil {
		return nil, newAPIError(resp.StatusCode(), resp.Body)
	}
	return &InstanceAuthInfo{
		InstanceNo: resp.JSON200.InstanceNo,
		AuthKey:    resp.JSON200.AuthKey,
		ExpiredAt:  resp.JSON200.ExpiredAt,
	}, nil
}

// WaitForReady 轮询 GetInfo 直到沙箱状态变为 running 或上下文被取消。
// 默认轮询间隔为 1 秒，可通过 WithPollInterval 等选项自定义。
func (s *Sandbox) WaitForReady(ctx context.Context, opts ...PollOption) (*SandboxInfo, error) {
	o := defaultPollOpts(time.Second)
	for _, fn := range opts {
		fn(o)
	}

	return pollLoop(ctx, o, func() (bool, *SandboxInfo, error) {
		info, err := s.GetInfo(ctx)
		if err != nil {
			return false, nil, fmt.Errorf("get sandbox %s: %w", s.sandboxID, err)
		}
		if info.State == StateRunning {
			return true, info, nil
		}
		return false, nil, nil
	})
}

// CreateAndWait 创建沙箱并等待其就绪。
func (c *Client) CreateAndWait(ctx context.Context, params CreateParams, opts ...PollOption) (*Sandbox, *SandboxInfo, error) {
	sb, err := c.Create(ctx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("create sandbox: %w", err)
	}
	info, err := sb.WaitForReady(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}
	return sb, info, nil
}

// Files 返回文件操作接口，按会话后端自动路由。
func (s *Sandbox) Files() Files {
	s.filesOnce.Do(func() {
		if s.kind == backendSSH {
			s.files = newSSHFilesystem(s.ssh)
		} else {
			s.files = newFilesystem(s)
		}
	})
	return s.files
}

// Commands 返回命令执行接口，按会话后端自动路由。
func (s *Sandbox) Commands() Commands {
	s.commandsOnce.Do(func() {
		if s.kind == backendSSH {
			s.commands = newSSHCommands(s.ssh)
		} else {
			s.commands = newCommands(s)
		}
	})
	return s.commands
}

// Pty 返回 PTY 终端操作接口。仅 HTTP 后端支持。
func (s *Sandbox) Pty() (*Pty, error) {
	if s.kind == backendSSH {
		return nil, &CapabilityError{Message: "pty is not supported over the ssh backend"}
	}
	s.ptyOnce.Do(func() {
		s.pty = newPty(s)
	})
	return s.pty, nil
}

// ADBShell 返回 adb shell 执行接口。仅 SSH 后端支持。
func (s *Sandbox) ADBShell() (*ADBShell, error) {
	if s.kind != backendSSH {
		return nil, &CapabilityError{Message: "adb shell is only available on ssh backed sandboxes"}
	}
	return newADBShell(s.ssh), nil
}

// closeBackend 释放后端持有的连接。
func (s *Sandbox) closeBackend() {
	if s.ssh != nil {
		_ = s.ssh.Close()
	}
}
