package agentbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ConfigError 表示配置缺失或非法，在发出任何网络请求之前返回。
type ConfigError struct {
	Message string
}

// Error 实现 error 接口。
func (e *ConfigError) Error() string {
	return "config error: " + e.Message
}

// TimeoutError 表示单次请求超过了请求超时时间。
// 与普通网络错误严格区分，调用方可据此决定是否重试。
type TimeoutError struct {
	Op string
	// Err 是底层超时错误，通常为 context.DeadlineExceeded。
	Err error
}

// Error 实现 error 接口。
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out during %s: you can pass a custom request timeout via the config", e.Op)
}

// Unwrap 返回底层错误。
func (e *TimeoutError) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, context.DeadlineExceeded) 对 TimeoutError 成立。
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// APIError 表示控制面 API 返回的非预期 HTTP 响应。
type APIError struct {
	StatusCode int
	Body       []byte

	// Code 是从响应 body 中解析出的错误码（如果有）。
	Code string
	// Message 是从响应 body 中解析出的错误消息（如果有）。
	Message string
}

// Error 实现 error 接口。
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status %d, body: %s", e.StatusCode, string(e.Body))
}

// newAPIError 创建 APIError 并尝试从 JSON body 中解析结构化字段。
func newAPIError(statusCode int, body []byte) *APIError {
	e := &APIError{StatusCode: statusCode, Body: body}
	e.Code, e.Message = parseAPIErrorBody(body)
	return e
}

// parseAPIErrorBody 尝试从 JSON body 中解析 code 和 message 字段。
func parseAPIErrorBody(body []byte) (code, message string) {
	if len(body) == 0 {
		return "", ""
	}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Code, parsed.Message
	}
	return "", ""
}

// EnvdError 表示 envd 守护进程返回的结构化错误。
// code 和 message 原样透传，不做二次加工。
type EnvdError struct {
	Code    int
	Message string
}

// Error 实现 error 接口。
func (e *EnvdError) Error() string {
	return fmt.Sprintf("envd error: status %d: %s", e.Code, e.Message)
}

// ParseError 表示服务端下发的 SSH 连接命令不符合约定格式。
// 这是协议不匹配而非瞬时故障，不应重试。
type ParseError struct {
	Input string
}

// Error 实现 error 接口。
func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse ssh connection details from connect command %q", e.Input)
}

// CapabilityError 表示当前沙箱的 envd 版本不支持所请求的操作。
// 该错误在本地产生，不发出网络请求。
type CapabilityError struct {
	Message string
}

// Error 实现 error 接口。
func (e *CapabilityError) Error() string {
	return "capability error: " + e.Message
}

// StateError 表示操作与沙箱当前生命周期状态不兼容。
type StateError struct {
	Op    string
	State SandboxState
}

// Error 实现 error 接口。
func (e *StateError) Error() string {
	return fmt.Sprintf("invalid operation %s: sandbox is %s", e.Op, e.State)
}

// IsNotFound 判断错误是否为"沙箱不存在"。
// kill/pause 等操作可据此将"已经不在了"视为良性结果。
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// IsTimeout 判断错误是否为请求超时。
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// timeoutOr 将 context 超时翻译为 TimeoutError，其余错误原样返回。
func timeoutOr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: context.DeadlineExceeded}
	}
	return err
}
