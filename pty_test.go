package agentbox

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestPtyCreate(t *testing.T) {
	sb := newEnvdTestSandbox(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		var startReq processStartRequest
		if err := json.NewDecoder(req.Body).Decode(&startReq); err != nil {
			t.Fatalf("decode start request: %v", err)
		}
		if startReq.Pty == nil || startReq.Pty.Size.Cols != 80 || startReq.Pty.Size.Rows != 24 {
			t.Errorf("unexpected pty config: %+v", startReq.Pty)
		}
		// 交互式登录 shell
		if len(startReq.Process.Args) != 2 || startReq.Process.Args[0] != "-i" {
			t.Errorf("unexpected args: %v", startReq.Process.Args)
		}
		if startReq.Process.Envs["TERM"] != "xterm" {
			t.Errorf("unexpected envs: %v", startReq.Process.Envs)
		}
		return envdResponse(200, strings.Join([]string{
			`{"event":{"start":{"pid":9}}}`,
			`{"event":{"data":{"pty":"aGVsbG8="}}}`,
			`{"event":{"end":{"exitCode":0}}}`,
		}, "\n")), nil
	}))

	var ptyData []byte
	pty, err := sb.Pty()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	handle, err := pty.Create(context.Background(), PtySize{Cols: 80, Rows: 24},
		WithOnPtyData(func(data []byte) { ptyData = append(ptyData, data...) }),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pid, err := handle.WaitPID(context.Background())
	if err != nil {
		t.Fatalf("wait pid: %v", err)
	}
	if pid != 9 {
		t.Errorf("expected pid 9, got %d", pid)
	}
	if _, err := handle.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if string(ptyData) != "hello" {
		t.Errorf("expected pty data 'hello', got %q", ptyData)
	}
}

func TestPtySendInput(t *testing.T) {
	sb := newEnvdTestSandbox(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/processes/9/input" {
			t.Errorf("unexpected path %q", req.URL.Path)
		}
		var body struct {
			Pty []byte `json:"pty"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if string(body.Pty) != "ls\n" {
			t.Errorf("unexpected pty input: %q", body.Pty)
		}
		return envdResponse(200, ""), nil
	}))

	pty, err := sb.Pty()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pty.SendInput(context.Background(), 9, []byte("ls\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPtyResize(t *testing.T) {
	sb := newEnvdTestSandbox(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPatch || req.URL.Path != "/processes/9" {
			t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		var body struct {
			Pty ptyConfig `json:"pty"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Pty.Size.Cols != 120 || body.Pty.Size.Rows != 40 {
			t.Errorf("unexpected size: %+v", body.Pty.Size)
		}
		return envdResponse(204, ""), nil
	}))

	pty, err := sb.Pty()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pty.Resize(context.Background(), 9, PtySize{Cols: 120, Rows: 40}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
