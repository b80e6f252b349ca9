package agentbox

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/agentbox-cloud/agentbox-go/apis"
	"github.com/agentbox-cloud/agentbox-go/internal/log"
)

// mockAPI 实现 apis.ClientWithResponsesInterface 用于测试。
// 每个方法字段可按测试设置；未设置的方法会 panic。
type mockAPI struct {
	healthCheckFn          func(ctx context.Context, editors ...apis.RequestEditorFn) (*apis.HealthCheckResponse, error)
	createSandboxFn        func(ctx context.Context, body apis.CreateSandboxJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.CreateSandboxResponse, error)
	getSandboxFn           func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetSandboxResponse, error)
	listSandboxesFn        func(ctx context.Context, params *apis.ListSandboxesParams, editors ...apis.RequestEditorFn) (*apis.ListSandboxesResponse, error)
	deleteSandboxFn        func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.DeleteSandboxResponse, error)
	pauseSandboxFn         func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.PauseSandboxResponse, error)
	resumeSandboxFn        func(ctx context.Context, sandboxID apis.SandboxID, body apis.ResumeSandboxJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.ResumeSandboxResponse, error)
	updateSandboxTimeoutFn func(ctx context.Context, sandboxID apis.SandboxID, body apis.UpdateSandboxTimeoutJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.UpdateSandboxTimeoutResponse, error)
	getSandboxMetricsFn    func(ctx context.Context, sandboxID apis.SandboxID, params *apis.GetSandboxMetricsParams, editors ...apis.RequestEditorFn) (*apis.GetSandboxMetricsResponse, error)
	getSandboxSSHFn        func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetSandboxSSHResponse, error)
	getInstanceNoFn        func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetInstanceNoResponse, error)
	getInstanceAuthInfoFn  func(ctx context.Context, sandboxID apis.SandboxID, params *apis.GetInstanceAuthInfoParams, editors ...apis.RequestEditorFn) (*apis.GetInstanceAuthInfoResponse, error)
}

func (m *mockAPI) HealthCheckWithResponse(ctx context.Context, editors ...apis.RequestEditorFn) (*apis.HealthCheckResponse, error) {
	return m.healthCheckFn(ctx, editors...)
}

func (m *mockAPI) CreateSandboxWithResponse(ctx context.Context, body apis.CreateSandboxJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.CreateSandboxResponse, error) {
	return m.createSandboxFn(ctx, body, editors...)
}

func (m *mockAPI) GetSandboxWithResponse(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetSandboxResponse, error) {
	return m.getSandboxFn(ctx, sandboxID, editors...)
}

func (m *mockAPI) ListSandboxesWithResponse(ctx context.Context, params *apis.ListSandboxesParams, editors ...apis.RequestEditorFn) (*apis.ListSandboxesResponse, error) {
	return m.listSandboxesFn(ctx, params, editors...)
}

func (m *mockAPI) DeleteSandboxWithResponse(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.DeleteSandboxResponse, error) {
	return m.deleteSandboxFn(ctx, sandboxID, editors...)
}

func (m *mockAPI) PauseSandboxWithResponse(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.PauseSandboxResponse, error) {
	return m.pauseSandboxFn(ctx, sandboxID, editors...)
}

func (m *mockAPI) ResumeSandboxWithResponse(ctx context.Context, sandboxID apis.SandboxID, body apis.ResumeSandboxJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.ResumeSandboxResponse, error) {
	return m.resumeSandboxFn(ctx, sandboxID, body, editors...)
}

func (m *mockAPI) UpdateSandboxTimeoutWithResponse(ctx context.Context, sandboxID apis.SandboxID, body apis.UpdateSandboxTimeoutJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.UpdateSandboxTimeoutResponse, error) {
	return m.updateSandboxTimeoutFn(ctx, sandboxID, body, editors...)
}

func (m *mockAPI) GetSandboxMetricsWithResponse(ctx context.Context, sandboxID apis.SandboxID, params *apis.GetSandboxMetricsParams, editors ...apis.RequestEditorFn) (*apis.GetSandboxMetricsResponse, error) {
	return m.getSandboxMetricsFn(ctx, sandboxID, params, editors...)
}

func (m *mockAPI) GetSandboxSSHWithResponse(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetSandboxSSHResponse, error) {
	return m.getSandboxSSHFn(ctx, sandboxID, editors...)
}

func (m *mockAPI) GetInstanceNoWithResponse(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetInstanceNoResponse, error) {
	return m.getInstanceNoFn(ctx, sandboxID, editors...)
}

func (m *mockAPI) GetInstanceAuthInfoWithResponse(ctx context.Context, sandboxID apis.SandboxID, params *apis.GetInstanceAuthInfoParams, editors ...apis.RequestEditorFn) (*apis.GetInstanceAuthInfoResponse, error) {
	return m.getInstanceAuthInfoFn(ctx, sandboxID, params, editors...)
}

func httpResponse(statusCode int) *http.Response {
	return &http.Response{StatusCode: statusCode}
}

// recordLogger 记录 Warningf 输出，用于校验非致命提示。
type recordLogger struct {
	log.Logger
	warnings []string
}

func newRecordLogger() *recordLogger {
	return &recordLogger{Logger: log.Noop}
}

func (l *recordLogger) Warningf(format string, args ...interface{}) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

// ============================================================
// 测试用例
// ============================================================

func newTestClient(t *testing.T, api apis.ClientWithResponsesInterface) *Client {
	t.Helper()
	cfg, err := resolveConfig(&Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	return &Client{config: cfg, api: api}
}

func newTestSandbox(c *Client, id string) *Sandbox {
	return &Sandbox{
		sandboxID: id,
		client:    c,
		config:    c.config.sessionClone(),
		kind:      backendKindFor(id),
		state:     StateRunning,
	}
}

// --- 创建 ---

func TestCreate(t *testing.T) {
	var gotBody apis.CreateSandboxJSONRequestBody
	mock := &mockAPI{
		createSandboxFn: func(ctx context.Context, body apis.CreateSandboxJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.CreateSandboxResponse, error) {
			gotBody = body
			return &apis.CreateSandboxResponse{
				JSON201:      &apis.Sandbox{SandboxID: "sb-123", TemplateID: "tmpl-1", ClientID: "client-1"},
				HTTPResponse: httpResponse(201),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	sb, err := c.Create(context.Background(), CreateParams{TemplateID: "tmpl-1", Timeout: 2 * time.Minute})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sb.ID() != "sb-123" {
		t.Errorf("expected sandbox ID 'sb-123', got %q", sb.ID())
	}
	if sb.TemplateID() != "tmpl-1" {
		t.Errorf("expected template ID 'tmpl-1', got %q", sb.TemplateID())
	}
	if sb.State() != StateRunning {
		t.Errorf("expected running state, got %q", sb.State())
	}
	if gotBody.Timeout == nil || *gotBody.Timeout != 120 {
		t.Errorf("expected timeout 120s in request, got %v", gotBody.Timeout)
	}
}

func TestCreateDefaults(t *testing.T) {
	mock := &mockAPI{
		createSandboxFn: func(ctx context.Context, body apis.CreateSandboxJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.CreateSandboxResponse, error) {
			if body.TemplateID != defaultTemplate {
				t.Errorf("expected default template %q, got %q", defaultTemplate, body.TemplateID)
			}
			if body.Timeout == nil || *body.Timeout != 300 {
				t.Errorf("expected default timeout 300s, got %v", body.Timeout)
			}
			return &apis.CreateSandboxResponse{
				JSON201:      &apis.Sandbox{SandboxID: "sb-1", TemplateID: defaultTemplate},
				HTTPResponse: httpResponse(201),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	if _, err := c.Create(context.Background(), CreateParams{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateError(t *testing.T) {
	mock := &mockAPI{
		createSandboxFn: func(ctx context.Context, body apis.CreateSandboxJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.CreateSandboxResponse, error) {
			return &apis.CreateSandboxResponse{
				Body:         []byte(`{"code":"QUOTA_EXCEEDED","message":"too many sandboxes"}`),
				HTTPResponse: httpResponse(429),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	_, err := c.Create(context.Background(), CreateParams{TemplateID: "tmpl-1"})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 429 {
		t.Errorf("expected status 429, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "too many sandboxes" {
		t.Errorf("expected parsed message, got %q", apiErr.Message)
	}
}

func TestCreateSecureInjectsAccessToken(t *testing.T) {
	token := "secret-token"
	mock := &mockAPI{
		createSandboxFn: func(ctx context.Context, body apis.CreateSandboxJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.CreateSandboxResponse, error) {
			return &apis.CreateSandboxResponse{
				JSON201:      &apis.Sandbox{SandboxID: "sb-1", TemplateID: "base", EnvdAccessToken: &token},
				HTTPResponse: httpResponse(201),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	sb, err := c.Create(context.Background(), CreateParams{Secure: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sb.config.sandboxHeaders().Get(accessTokenHeader); got != token {
		t.Errorf("expected access token header %q, got %q", token, got)
	}
	// 客户端级头集合不受会话令牌影响
	if got := c.config.sandboxHeaders().Get(accessTokenHeader); got != "" {
		t.Errorf("expected no token on client config, got %q", got)
	}
}

func TestCreateDebugMode(t *testing.T) {
	cfg, err := resolveConfig(&Config{Debug: true})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	c := &Client{config: cfg, api: &mockAPI{}} // 任何 API 调用都会 panic
	sb, err := c.Create(context.Background(), CreateParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sb.ID() != debugSandboxID {
		t.Errorf("expected debug sandbox ID, got %q", sb.ID())
	}
}

// --- 连接与恢复 ---

func TestConnectResumesHTTPBacked(t *testing.T) {
	var gotBody apis.ResumeSandboxJSONRequestBody
	mock := &mockAPI{
		resumeSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, body apis.ResumeSandboxJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.ResumeSandboxResponse, error) {
			gotBody = body
			return &apis.ResumeSandboxResponse{
				JSON200:      &apis.Sandbox{SandboxID: sandboxID, TemplateID: "base"},
				HTTPResponse: httpResponse(200),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	sb, err := c.Connect(context.Background(), "sb-42", ConnectParams{Timeout: time.Minute})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sb.ID() != "sb-42" {
		t.Errorf("expected sandbox ID 'sb-42', got %q", sb.ID())
	}
	if gotBody.Timeout != 60 {
		t.Errorf("expected timeout 60s in request, got %d", gotBody.Timeout)
	}
	if gotBody.AutoPause != nil {
		t.Error("connect must not forward autoPause")
	}
}

func TestConnectSSHBackedSkipsResume(t *testing.T) {
	mock := &mockAPI{
		resumeSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, body apis.ResumeSandboxJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.ResumeSandboxResponse, error) {
			t.Error("resume must not be called for ssh backed sandboxes")
			return nil, nil
		},
		getSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetSandboxResponse, error) {
			return &apis.GetSandboxResponse{
				JSON200:      &apis.SandboxDetail{SandboxID: sandboxID, TemplateID: "android", State: apis.Running},
				HTTPResponse: httpResponse(200),
			}, nil
		},
		getSandboxSSHFn: func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetSandboxSSHResponse, error) {
			return &apis.GetSandboxSSHResponse{
				JSON200: &apis.SandboxSSHInfo{
					ConnectCommand: "ssh -p 2222 root@10.0.0.5",
					AuthPassword:   "pw",
				},
				HTTPResponse: httpResponse(200),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	sb, err := c.Connect(context.Background(), "sb-BRD-7", ConnectParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sb.kind != backendSSH {
		t.Fatal("expected ssh backend")
	}
	ep := sb.ssh.endpoint
	if ep.Host != "10.0.0.5" || ep.Port != 2222 || ep.Username != "root" || ep.Password != "pw" {
		t.Errorf("unexpected ssh endpoint: %+v", ep)
	}
}

func TestConnectSSHBackedParseFailure(t *testing.T) {
	mock := &mockAPI{
		getSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetSandboxResponse, error) {
			return &apis.GetSandboxResponse{
				JSON200:      &apis.SandboxDetail{SandboxID: sandboxID, TemplateID: "android", State: apis.Running},
				HTTPResponse: httpResponse(200),
			}, nil
		},
		getSandboxSSHFn: func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetSandboxSSHResponse, error) {
			return &apis.GetSandboxSSHResponse{
				JSON200:      &apis.SandboxSSHInfo{ConnectCommand: "ssh broken command", AuthPassword: "pw"},
				HTTPResponse: httpResponse(200),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	sb, err := c.Connect(context.Background(), "sb-brd-7", ConnectParams{})
	if sb != nil {
		t.Error("no session must be constructed on parse failure")
	}
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("expected ParseError, got %T: %v", err, err)
	}
}

func TestResumeForwardsAutoPause(t *testing.T) {
	mock := &mockAPI{
		resumeSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, body apis.ResumeSandboxJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.ResumeSandboxResponse, error) {
			if body.AutoPause == nil || !*body.AutoPause {
				t.Error("expected autoPause=true forwarded")
			}
			return &apis.ResumeSandboxResponse{
				JSON201:      &apis.Sandbox{SandboxID: sandboxID, TemplateID: "base"},
				HTTPResponse: httpResponse(201),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	sb, err := c.Resume(context.Background(), "sb-9", ResumeParams{AutoPause: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sb.State() != StateRunning {
		t.Errorf("expected running state, got %q", sb.State())
	}
}

// --- 终止 ---

func TestKillIdempotent(t *testing.T) {
	calls := 0
	mock := &mockAPI{
		deleteSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.DeleteSandboxResponse, error) {
			calls++
			return &apis.DeleteSandboxResponse{HTTPResponse: httpResponse(204)}, nil
		},
	}
	c := newTestClient(t, mock)
	sb := newTestSandbox(c, "sb-1")

	found, err := sb.Kill(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Error("first kill must report true")
	}

	found, err = sb.Kill(context.Background())
	if err != nil {
		t.Fatalf("second kill must not error: %v", err)
	}
	if found {
		t.Error("second kill must report false")
	}
	if calls != 1 {
		t.Errorf("expected 1 network call, got %d", calls)
	}
	if sb.State() != StateKilled {
		t.Errorf("expected killed state, got %q", sb.State())
	}
}

func TestClientKillNotFound(t *testing.T) {
	mock := &mockAPI{
		deleteSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.DeleteSandboxResponse, error) {
			return &apis.DeleteSandboxResponse{HTTPResponse: httpResponse(404)}, nil
		},
	}
	c := newTestClient(t, mock)
	found, err := c.Kill(context.Background(), "sb-gone")
	if err != nil {
		t.Fatalf("kill on missing sandbox must not error: %v", err)
	}
	if found {
		t.Error("expected false for missing sandbox")
	}
}

func TestKilledIsTerminal(t *testing.T) {
	c := newTestClient(t, &mockAPI{})
	sb := newTestSandbox(c, "sb-1")
	sb.setState(StateKilled)

	if _, err := sb.GetInfo(context.Background()); err == nil {
		t.Fatal("expected state error after kill")
	} else if _, ok := err.(*StateError); !ok {
		t.Fatalf("expected StateError, got %T", err)
	}
	if _, err := sb.Pause(context.Background()); err == nil {
		t.Fatal("expected state error after kill")
	}
	if err := sb.Resume(context.Background(), ResumeParams{}); err == nil {
		t.Fatal("expected state error after kill")
	}
}

// --- 暂停与恢复 ---

func TestPause(t *testing.T) {
	mock := &mockAPI{
		pauseSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.PauseSandboxResponse, error) {
			return &apis.PauseSandboxResponse{HTTPResponse: httpResponse(204)}, nil
		},
	}
	c := newTestClient(t, mock)
	sb := newTestSandbox(c, "sb-1")

	paused, err := sb.Pause(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !paused {
		t.Error("expected pause to report true")
	}
	if sb.State() != StatePaused {
		t.Errorf("expected paused state, got %q", sb.State())
	}
}

func TestPauseNotFoundIsBenign(t *testing.T) {
	mock := &mockAPI{
		pauseSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.PauseSandboxResponse, error) {
			return &apis.PauseSandboxResponse{HTTPResponse: httpResponse(404)}, nil
		},
	}
	c := newTestClient(t, mock)
	sb := newTestSandbox(c, "sb-1")

	paused, err := sb.Pause(context.Background())
	if err != nil {
		t.Fatalf("pause on missing sandbox must not error: %v", err)
	}
	if paused {
		t.Error("expected false for missing sandbox")
	}
}

func TestPauseInvalidFromPaused(t *testing.T) {
	c := newTestClient(t, &mockAPI{})
	sb := newTestSandbox(c, "sb-1")
	sb.setState(StatePaused)

	_, err := sb.Pause(context.Background())
	if _, ok := err.(*StateError); !ok {
		t.Fatalf("expected StateError, got %T: %v", err, err)
	}
}

func TestPauseResumeGetInfoRoundtrip(t *testing.T) {
	endAt := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second)
	mock := &mockAPI{
		pauseSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.PauseSandboxResponse, error) {
			return &apis.PauseSandboxResponse{HTTPResponse: httpResponse(204)}, nil
		},
		resumeSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, body apis.ResumeSandboxJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.ResumeSandboxResponse, error) {
			return &apis.ResumeSandboxResponse{
				JSON200:      &apis.Sandbox{SandboxID: sandboxID, TemplateID: "base"},
				HTTPResponse: httpResponse(200),
			}, nil
		},
		getSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetSandboxResponse, error) {
			return &apis.GetSandboxResponse{
				JSON200: &apis.SandboxDetail{
					SandboxID:  sandboxID,
					TemplateID: "base",
					ClientID:   "client-1",
					State:      apis.Running,
					EndAt:      endAt,
				},
				HTTPResponse: httpResponse(200),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	sb := newTestSandbox(c, "sb-1")
	sb.templateID = "base"

	if _, err := sb.Pause(context.Background()); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := sb.Resume(context.Background(), ResumeParams{Timeout: 10 * time.Minute}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if sb.State() != StateRunning {
		t.Fatalf("expected running after resume, got %q", sb.State())
	}

	info, err := sb.GetInfo(context.Background())
	if err != nil {
		t.Fatalf("get info: %v", err)
	}
	if info.SandboxID != "sb-1-client-1" {
		t.Errorf("expected composite ID 'sb-1-client-1', got %q", info.SandboxID)
	}
	if info.TemplateID != "base" {
		t.Errorf("template ID changed across pause/resume: %q", info.TemplateID)
	}
	if !info.EndAt.Equal(endAt) {
		t.Errorf("expected endAt %v, got %v", endAt, info.EndAt)
	}
}

// --- 超时 ---

func TestSetTimeoutReplacesDeadline(t *testing.T) {
	var timeouts []int32
	mock := &mockAPI{
		updateSandboxTimeoutFn: func(ctx context.Context, sandboxID apis.SandboxID, body apis.UpdateSandboxTimeoutJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.UpdateSandboxTimeoutResponse, error) {
			timeouts = append(timeouts, body.Timeout)
			return &apis.UpdateSandboxTimeoutResponse{HTTPResponse: httpResponse(204)}, nil
		},
	}
	c := newTestClient(t, mock)
	sb := newTestSandbox(c, "sb-1")

	if err := sb.SetTimeout(context.Background(), 60*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sb.SetTimeout(context.Background(), 120*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(timeouts) != 2 || timeouts[0] != 60 || timeouts[1] != 120 {
		t.Errorf("expected [60 120], got %v", timeouts)
	}
}

func TestSetTimeoutTooShort(t *testing.T) {
	c := newTestClient(t, &mockAPI{})
	sb := newTestSandbox(c, "sb-1")
	if err := sb.SetTimeout(context.Background(), 500*time.Millisecond); err == nil {
		t.Fatal("expected validation error")
	}
}

// --- 指标与版本门控 ---

func TestGetMetricsVersionGate(t *testing.T) {
	calls := 0
	metricsMock := func() *mockAPI {
		return &mockAPI{
			getSandboxMetricsFn: func(ctx context.Context, sandboxID apis.SandboxID, params *apis.GetSandboxMetricsParams, editors ...apis.RequestEditorFn) (*apis.GetSandboxMetricsResponse, error) {
				calls++
				return &apis.GetSandboxMetricsResponse{
					JSON200:      &[]apis.SandboxMetric{{CPUCount: 2, CPUUsedPct: 12.5}},
					HTTPResponse: httpResponse(200),
				}, nil
			},
		}
	}

	// < 0.1.5: 本地 CapabilityError，不发出网络请求
	c := newTestClient(t, metricsMock())
	sb := newTestSandbox(c, "sb-1")
	sb.envdVersion = semver.MustParse("0.1.0")
	_, err := sb.GetMetrics(context.Background(), nil)
	if _, ok := err.(*CapabilityError); !ok {
		t.Fatalf("expected CapabilityError, got %T: %v", err, err)
	}
	if calls != 0 {
		t.Errorf("expected no network call, got %d", calls)
	}

	// < 0.2.4: 调用执行，但记录磁盘指标告警
	logger := newRecordLogger()
	c = newTestClient(t, metricsMock())
	sb = newTestSandbox(c, "sb-1")
	sb.config.logger = logger
	sb.envdVersion = semver.MustParse("0.2.0")
	metrics, err := sb.GetMetrics(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(metrics) != 1 {
		t.Errorf("expected 1 sample, got %d", len(metrics))
	}
	if len(logger.warnings) != 1 {
		t.Errorf("expected 1 disk metrics warning, got %v", logger.warnings)
	}

	// >= 0.2.4: 完整支持，无告警
	logger = newRecordLogger()
	c = newTestClient(t, metricsMock())
	sb = newTestSandbox(c, "sb-1")
	sb.config.logger = logger
	sb.envdVersion = semver.MustParse("0.3.0")
	if _, err := sb.GetMetrics(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logger.warnings) != 0 {
		t.Errorf("expected no warnings, got %v", logger.warnings)
	}
}

func TestGetMetricsTimeRange(t *testing.T) {
	start := time.Unix(1700000000, 0)
	end := time.Unix(1700003600, 0)
	mock := &mockAPI{
		getSandboxMetricsFn: func(ctx context.Context, sandboxID apis.SandboxID, params *apis.GetSandboxMetricsParams, editors ...apis.RequestEditorFn) (*apis.GetSandboxMetricsResponse, error) {
			if params.Start == nil || *params.Start != start.Unix() {
				t.Errorf("expected start %d, got %v", start.Unix(), params.Start)
			}
			if params.End == nil || *params.End != end.Unix() {
				t.Errorf("expected end %d, got %v", end.Unix(), params.End)
			}
			return &apis.GetSandboxMetricsResponse{
				JSON200:      &[]apis.SandboxMetric{},
				HTTPResponse: httpResponse(200),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	sb := newTestSandbox(c, "sb-1")
	if _, err := sb.GetMetrics(context.Background(), &GetMetricsParams{Start: start, End: end}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- IsRunning ---

func TestIsRunningSSHBackedAlwaysTrue(t *testing.T) {
	c := newTestClient(t, &mockAPI{})
	sb := newTestSandbox(c, "sb-brd-1")

	running, err := sb.IsRunning(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !running {
		t.Error("ssh backed session must always report running")
	}
}

func TestIsRunningAfterKill(t *testing.T) {
	c := newTestClient(t, &mockAPI{})
	sb := newTestSandbox(c, "sb-brd-1")
	sb.setState(StateKilled)

	running, err := sb.IsRunning(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if running {
		t.Error("killed session must report not running")
	}
}

// --- 列表 ---

func TestList(t *testing.T) {
	mock := &mockAPI{
		listSandboxesFn: func(ctx context.Context, params *apis.ListSandboxesParams, editors ...apis.RequestEditorFn) (*apis.ListSandboxesResponse, error) {
			if params == nil || params.Metadata == nil || *params.Metadata != "app=prod" {
				t.Errorf("expected metadata filter 'app=prod', got %v", params)
			}
			if params.State == nil || len(*params.State) != 1 || (*params.State)[0] != apis.Running {
				t.Errorf("expected state filter [running], got %v", params.State)
			}
			return &apis.ListSandboxesResponse{
				JSON200: &[]apis.ListedSandbox{
					{SandboxID: "sb-1", ClientID: "c1", TemplateID: "base", State: apis.Running},
					{SandboxID: "sb-2", ClientID: "c2", TemplateID: "base", State: apis.Paused},
				},
				HTTPResponse: httpResponse(200),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	items, err := c.List(context.Background(), &ListParams{
		Metadata: Metadata{"app": "prod"},
		States:   []SandboxState{StateRunning},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 sandboxes, got %d", len(items))
	}
	if items[0].SandboxID != "sb-1-c1" {
		t.Errorf("expected composite ID 'sb-1-c1', got %q", items[0].SandboxID)
	}
	if items[1].State != StatePaused {
		t.Errorf("expected paused state, got %q", items[1].State)
	}
}

// --- 实例信息 ---

func TestGetInstanceNo(t *testing.T) {
	mock := &mockAPI{
		getInstanceNoFn: func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetInstanceNoResponse, error) {
			return &apis.GetInstanceNoResponse{
				JSON200:      &apis.InstanceNoInfo{InstanceNo: "inst-7"},
				HTTPResponse: httpResponse(200),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	sb := newTestSandbox(c, "sb-1")
	no, err := sb.GetInstanceNo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if no != "inst-7" {
		t.Errorf("expected 'inst-7', got %q", no)
	}
}

func TestGetInstanceAuthInfo(t *testing.T) {
	expiredAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	mock := &mockAPI{
		getInstanceAuthInfoFn: func(ctx context.Context, sandboxID apis.SandboxID, params *apis.GetInstanceAuthInfoParams, editors ...apis.RequestEditorFn) (*apis.GetInstanceAuthInfoResponse, error) {
			if params.ValidTime == nil || *params.ValidTime != 1800 {
				t.Errorf("expected validTime 1800, got %v", params.ValidTime)
			}
			return &apis.GetInstanceAuthInfoResponse{
				JSON200:      &apis.InstanceAuthInfo{InstanceNo: "inst-7", AuthKey: "key", ExpiredAt: expiredAt},
				HTTPResponse: httpResponse(200),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	sb := newTestSandbox(c, "sb-1")
	info, err := sb.GetInstanceAuthInfo(context.Background(), 30*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.AuthKey != "key" || !info.ExpiredAt.Equal(expiredAt) {
		t.Errorf("unexpected auth info: %+v", info)
	}
}

// --- 等待就绪 ---

func TestWaitForReadyPolling(t *testing.T) {
	calls := 0
	mock := &mockAPI{
		getSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetSandboxResponse, error) {
			calls++
			state := apis.Paused
			if calls >= 3 {
				state = apis.Running
			}
			return &apis.GetSandboxResponse{
				JSON200:      &apis.SandboxDetail{SandboxID: sandboxID, TemplateID: "base", State: state},
				HTTPResponse: httpResponse(200),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	sb := newTestSandbox(c, "sb-1")

	info, err := sb.WaitForReady(context.Background(), WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.State != StateRunning {
		t.Errorf("expected running, got %q", info.State)
	}
	if calls != 3 {
		t.Errorf("expected 3 polls, got %d", calls)
	}
}

func TestWaitForReadyCancelled(t *testing.T) {
	mock := &mockAPI{
		getSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetSandboxResponse, error) {
			return &apis.GetSandboxResponse{
				JSON200:      &apis.SandboxDetail{SandboxID: sandboxID, TemplateID: "base", State: apis.Paused},
				HTTPResponse: httpResponse(200),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	sb := newTestSandbox(c, "sb-1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := sb.WaitForReady(ctx, WithPollInterval(5*time.Millisecond))
	if err == nil {
		t.Fatal("expected context error")
	}
}

// --- 执行面路由 ---

func TestSurfaceRouting(t *testing.T) {
	c := newTestClient(t, &mockAPI{})

	httpSb := newTestSandbox(c, "sb-1")
	if _, ok := httpSb.Files().(*envdFilesystem); !ok {
		t.Errorf("expected envd filesystem, got %T", httpSb.Files())
	}
	if _, ok := httpSb.Commands().(*envdCommands); !ok {
		t.Errorf("expected envd commands, got %T", httpSb.Commands())
	}
	if _, err := httpSb.Pty(); err != nil {
		t.Errorf("pty must be available on http backend: %v", err)
	}
	if _, err := httpSb.ADBShell(); err == nil {
		t.Error("adb shell must not be available on http backend")
	}

	sshSb := newTestSandbox(c, "sb-brd-1")
	sshSb.ssh = newSSHSession(SSHEndpoint{Host: "10.0.0.5", Port: 22, Username: "u", Password: "p"}, sshSb.config)
	if _, ok := sshSb.Files().(*sshFilesystem); !ok {
		t.Errorf("expected ssh filesystem, got %T", sshSb.Files())
	}
	if _, ok := sshSb.Commands().(*sshCommands); !ok {
		t.Errorf("expected ssh commands, got %T", sshSb.Commands())
	}
	if _, err := sshSb.Pty(); err == nil {
		t.Error("pty must not be available on ssh backend")
	}
	if _, err := sshSb.ADBShell(); err != nil {
		t.Errorf("adb shell must be available on ssh backend: %v", err)
	}
}

// --- 客户端 ---

func TestNewClientMissingAPIKey(t *testing.T) {
	t.Setenv(envAPIKey, "")
	_, err := NewClient(&Config{})
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}
}

func TestHealthCheck(t *testing.T) {
	mock := &mockAPI{
		healthCheckFn: func(ctx context.Context, editors ...apis.RequestEditorFn) (*apis.HealthCheckResponse, error) {
			return &apis.HealthCheckResponse{HTTPResponse: httpResponse(200)}, nil
		},
	}
	c := newTestClient(t, mock)
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateAndWait(t *testing.T) {
	mock := &mockAPI{
		createSandboxFn: func(ctx context.Context, body apis.CreateSandboxJSONRequestBody, editors ...apis.RequestEditorFn) (*apis.CreateSandboxResponse, error) {
			return &apis.CreateSandboxResponse{
				JSON201:      &apis.Sandbox{SandboxID: "sb-1", TemplateID: "base"},
				HTTPResponse: httpResponse(201),
			}, nil
		},
		getSandboxFn: func(ctx context.Context, sandboxID apis.SandboxID, editors ...apis.RequestEditorFn) (*apis.GetSandboxResponse, error) {
			return &apis.GetSandboxResponse{
				JSON200:      &apis.SandboxDetail{SandboxID: sandboxID, TemplateID: "base", State: apis.Running},
				HTTPResponse: httpResponse(200),
			}, nil
		},
	}
	c := newTestClient(t, mock)
	sb, info, err := c.CreateAndWait(context.Background(), CreateParams{}, WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sb.ID() != "sb-1" || info.State != StateRunning {
		t.Errorf("unexpected result: %v %v", sb.ID(), info.State)
	}
}
