package agentbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func streamBody(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n")))
}

func TestProcessEventStream(t *testing.T) {
	var stdoutData, stderrData []byte
	handle := &CommandHandle{
		done:     make(chan struct{}),
		pidCh:    make(chan struct{}),
		onStdout: func(data []byte) { stdoutData = append(stdoutData, data...) },
		onStderr: func(data []byte) { stderrData = append(stderrData, data...) },
	}

	// "hello" / "oops" 的 base64
	go processEventStream(streamBody(
		`{"event":{"start":{"pid":42}}}`,
		`{"keepalive":{}}`,
		`{"event":{"data":{"stdout":"aGVsbG8="}}}`,
		`{"event":{"data":{"stderr":"b29wcw=="}}}`,
		`{"event":{"end":{"exitCode":0}}}`,
	), handle)

	pid, err := handle.WaitPID(context.Background())
	if err != nil {
		t.Fatalf("wait pid: %v", err)
	}
	if pid != 42 {
		t.Errorf("expected pid 42, got %d", pid)
	}

	result, err := handle.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if result.Stdout != "hello" {
		t.Errorf("expected stdout 'hello', got %q", result.Stdout)
	}
	if result.Stderr != "oops" {
		t.Errorf("expected stderr 'oops', got %q", result.Stderr)
	}
	if string(stdoutData) != "hello" || string(stderrData) != "oops" {
		t.Errorf("callbacks got %q / %q", stdoutData, stderrData)
	}
}

func TestProcessEventStreamFailure(t *testing.T) {
	handle := &CommandHandle{
		done:  make(chan struct{}),
		pidCh: make(chan struct{}),
	}
	errMsg := "command not found"
	go processEventStream(streamBody(
		`{"event":{"start":{"pid":7}}}`,
		`{"event":{"end":{"exitCode":127,"error":"`+errMsg+`"}}}`,
	), handle)

	result, err := handle.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if result.ExitCode != 127 {
		t.Errorf("expected exit code 127, got %d", result.ExitCode)
	}
	if result.Error != errMsg {
		t.Errorf("expected error %q, got %q", errMsg, result.Error)
	}
}

func TestProcessEventStreamTruncated(t *testing.T) {
	// 流在收到 End 事件前中断，结果为 -1
	handle := &CommandHandle{
		done:  make(chan struct{}),
		pidCh: make(chan struct{}),
	}
	go processEventStream(streamBody(
		`{"event":{"start":{"pid":7}}}`,
		`{"event":{"data":{"stdout":"aGVsbG8="}}}`,
	), handle)

	result, err := handle.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if result.ExitCode != -1 {
		t.Errorf("expected exit code -1, got %d", result.ExitCode)
	}
	if result.Stdout != "hello" {
		t.Errorf("partial stdout must be preserved, got %q", result.Stdout)
	}
}

func TestCommandsRun(t *testing.T) {
	sb := newEnvdTestSandbox(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost || req.URL.Path != "/processes" {
			t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		var startReq processStartRequest
		if err := json.NewDecoder(req.Body).Decode(&startReq); err != nil {
			t.Fatalf("decode start request: %v", err)
		}
		if startReq.Process.Cmd != "/bin/bash" {
			t.Errorf("expected /bin/bash, got %q", startReq.Process.Cmd)
		}
		if len(startReq.Process.Args) != 3 || startReq.Process.Args[2] != "echo hello" {
			t.Errorf("unexpected args: %v", startReq.Process.Args)
		}
		if startReq.Process.Envs["MY_VAR"] != "value" {
			t.Errorf("unexpected envs: %v", startReq.Process.Envs)
		}
		if startReq.Process.Cwd == nil || *startReq.Process.Cwd != "/tmp" {
			t.Errorf("unexpected cwd: %v", startReq.Process.Cwd)
		}
		return envdResponse(200, strings.Join([]string{
			`{"event":{"start":{"pid":11}}}`,
			`{"event":{"data":{"stdout":"aGVsbG8="}}}`,
			`{"event":{"end":{"exitCode":0}}}`,
		}, "\n")), nil
	}))

	result, err := sb.Commands().Run(context.Background(), "echo hello",
		WithEnvs(map[string]string{"MY_VAR": "value"}),
		WithCwd("/tmp"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 || result.Stdout != "hello" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestCommandsStartError(t *testing.T) {
	sb := newEnvdTestSandbox(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return envdResponse(400, `{"code":400,"message":"invalid command"}`), nil
	}))
	_, err := sb.Commands().Start(context.Background(), "")
	if err == nil {
		t.Fatal("expected error")
	}
	var envdErr *EnvdError
	if !errors.As(err, &envdErr) {
		t.Fatalf("expected wrapped EnvdError, got %T: %v", err, err)
	}
	if envdErr.Message != "invalid command" {
		t.Errorf("unexpected message: %q", envdErr.Message)
	}
}

func TestCommandsKill(t *testing.T) {
	var gotQuery string
	sb := newEnvdTestSandbox(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodDelete || req.URL.Path != "/processes/11" {
			t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		gotQuery = req.URL.RawQuery
		return envdResponse(204, ""), nil
	}))
	if err := sb.Commands().Kill(context.Background(), 11); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "signal=SIGKILL" {
		t.Errorf("unexpected query: %q", gotQuery)
	}
}

func TestCommandsSendStdin(t *testing.T) {
	sb := newEnvdTestSandbox(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/processes/11/input" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		var body struct {
			Stdin []byte `json:"stdin"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if string(body.Stdin) != "input data" {
			t.Errorf("unexpected stdin: %q", body.Stdin)
		}
		return envdResponse(200, ""), nil
	}))
	if err := sb.Commands().SendStdin(context.Background(), 11, []byte("input data")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSSHCommandsCapabilities(t *testing.T) {
	c := newSSHCommands(newSSHSession(SSHEndpoint{Host: "h", Port: 22}, noopTestConfig(t)))
	ctx := context.Background()

	if _, err := c.Connect(ctx, 1); !isCapabilityError(err) {
		t.Errorf("connect: expected CapabilityError, got %v", err)
	}
	if _, err := c.List(ctx); !isCapabilityError(err) {
		t.Errorf("list: expected CapabilityError, got %v", err)
	}
	if err := c.SendStdin(ctx, 1, nil); !isCapabilityError(err) {
		t.Errorf("send stdin: expected CapabilityError, got %v", err)
	}
	if err := c.Kill(ctx, 1); !isCapabilityError(err) {
		t.Errorf("kill: expected CapabilityError, got %v", err)
	}
}

func TestCommandTimeoutOption(t *testing.T) {
	// envd 流在超时后被取消，句柄以 -1 结束
	sb := newEnvdTestSandbox(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		pr, pw := io.Pipe()
		go func() {
			pw.Write([]byte(`{"event":{"start":{"pid":5}}}` + "\n"))
			<-req.Context().Done()
			pw.CloseWithError(req.Context().Err())
		}()
		return &http.Response{StatusCode: 200, Body: pr, Header: http.Header{}}, nil
	}))

	result, err := sb.Commands().Run(context.Background(), "sleep 60", WithTimeout(30*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != -1 {
		t.Errorf("expected exit code -1 after timeout, got %d", result.ExitCode)
	}
}

func noopTestConfig(t *testing.T) *connectionConfig {
	t.Helper()
	cfg, err := resolveConfig(&Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	return cfg
}

func isCapabilityError(err error) bool {
	var capErr *CapabilityError
	return errors.As(err, &capErr)
}
