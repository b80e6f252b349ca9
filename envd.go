package agentbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// envdPort 是 envd 守护进程的默认端口。
const envdPort = 49983

// DefaultUser 是沙箱命令执行和文件操作的默认用户名。
const DefaultUser = "user"

// envd 健康检查路由。
const envdHealthRoute = "/health"

// GetHost 返回访问沙箱指定端口的外部域名。
// 格式: {port}-{sandboxID}.{domain}；debug 模式下指向本地端口。
func (s *Sandbox) GetHost(port int) string {
	if s.config.debug {
		return fmt.Sprintf("localhost:%d", port)
	}
	domain := s.config.domain
	if s.domain != nil && *s.domain != "" {
		domain = *s.domain
	}
	return fmt.Sprintf("%d-%s.%s", port, s.sandboxID, domain)
}

// envdURL 返回 envd 守护进程的基础 URL。
func (s *Sandbox) envdURL() string {
	if s.config.debug {
		return "http://" + s.GetHost(envdPort)
	}
	return "https://" + s.GetHost(envdPort)
}

// envdHTTPClient 返回访问 envd 的 HTTP 客户端，与控制面共享连接池。
func (s *Sandbox) envdHTTPClient() *http.Client {
	return s.config.clientFor(nil)
}

// envdRequest 向 envd 发出一个请求。
// 请求携带会话头集合（含访问令牌）和指定用户的 Basic 认证头。
func (s *Sandbox) envdRequest(ctx context.Context, method, path string, query url.Values, body interface{}, user string) (*http.Response, error) {
	u := s.envdURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range s.config.sandboxHeaders() {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	for k, vs := range envdAuthHeader(user) {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	return s.envdHTTPClient().Do(req)
}

// checkEnvdResponse 将非 2xx 的 envd 响应解码为 EnvdError。
// 守护进程的 code 和 message 原样透传。
func checkEnvdResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		code := payload.Code
		if code == 0 {
			code = resp.StatusCode
		}
		return &EnvdError{Code: code, Message: payload.Message}
	}
	return &EnvdError{Code: resp.StatusCode, Message: string(body)}
}

// envdHealthCheck 对 envd 执行健康探测。
// 502 表示沙箱未运行，是预期的稳态而非故障，降级为 false；
// 探测超时翻译为 TimeoutError；其余非 2xx 解码为 EnvdError 上抛。
func (s *Sandbox) envdHealthCheck(ctx context.Context, o *callOpts) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, s.config.requestTimeoutFor(o))
	defer cancel()

	resp, err := s.envdRequest(probeCtx, http.MethodGet, envdHealthRoute, nil, nil, DefaultUser)
	if err != nil {
		return false, timeoutOr("sandbox health check", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadGateway {
		return false, nil
	}
	if err := checkEnvdResponse(resp); err != nil {
		return false, err
	}
	return true, nil
}

// envdAuthHeader 返回 envd 认证头。
// 认证格式为 Basic base64(username:)。
func envdAuthHeader(user string) http.Header {
	h := http.Header{}
	cred := base64.StdEncoding.EncodeToString([]byte(user + ":"))
	h.Set("Authorization", "Basic "+cred)
	return h
}

// FileURLOption 文件 URL 选项。
type FileURLOption func(*fileURLOpts)

type fileURLOpts struct {
	user                string
	signatureExpiration int
}

// WithFileUser 设置文件操作的用户。
func WithFileUser(user string) FileURLOption {
	return func(o *fileURLOpts) { o.user = user }
}

// WithSignatureExpiration 设置签名过期时间（秒）。
func WithSignatureExpiration(seconds int) FileURLOption {
	return func(o *fileURLOpts) { o.signatureExpiration = seconds }
}

// fileSignature 计算文件操作签名。
// 算法: "v1_" + SHA256(path + ":" + operation + ":" + username + ":" + accessToken + ":" + expiration)
//
// 注意: 此签名算法由后端服务定义，SDK 端需与服务端保持一致，不可单独修改。
func fileSignature(path, operation, username, accessToken string, expiration int) string {
	raw := fmt.Sprintf("%s:%s:%s:%s:%d", path, operation, username, accessToken, expiration)
	hash := sha256.Sum256([]byte(raw))
	return "v1_" + fmt.Sprintf("%x", hash)
}

// DownloadURL 返回从沙箱下载文件的 URL。
func (s *Sandbox) DownloadURL(path string, opts ...FileURLOption) string {
	return s.fileURL(path, "read", opts...)
}

// UploadURL 返回向沙箱上传文件的 URL（POST multipart/form-data）。
func (s *Sandbox) UploadURL(path string, opts ...FileURLOption) string {
	return s.fileURL(path, "write", opts...)
}

// fileURL 构造带签名的 envd 文件操作 URL。
func (s *Sandbox) fileURL(path, operation string, opts ...FileURLOption) string {
	o := &fileURLOpts{user: DefaultUser}
	for _, fn := range opts {
		fn(o)
	}

	q := url.Values{}
	q.Set("path", path)
	q.Set("username", o.user)

	if s.envdAccessToken != nil && *s.envdAccessToken != "" {
		exp := o.signatureExpiration
		if exp == 0 {
			exp = 300
		}
		sig := fileSignature(path, operation, o.user, *s.envdAccessToken, exp)
		q.Set("signature", sig)
		q.Set("signature_expiration", strconv.Itoa(exp))
	}

	return s.envdURL() + "/files?" + q.Encode()
}

// batchUploadURL 返回批量上传文件的 URL。
// 与 UploadURL 不同，不设置 path 查询参数，文件路径由 multipart part filename 提供。
func (s *Sandbox) batchUploadURL(user string) string {
	q := url.Values{}
	q.Set("username", user)
	return s.envdURL() + "/files?" + q.Encode()
}
