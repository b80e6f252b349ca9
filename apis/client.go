package apis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/oapi-codegen/runtime"
)

// RequestEditorFn 在请求发出前对其进行修改（注入请求头等）。
type RequestEditorFn func(ctx context.Context, req *http.Request) error

// HttpRequestDoer 抽象底层 HTTP 客户端。
type HttpRequestDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client 是控制面 API 的底层客户端。
type Client struct {
	// Server API 服务地址，以 / 结尾。
	Server string

	// Client 执行请求的 HTTP 客户端。
	Client HttpRequestDoer

	// RequestEditors 应用于每个请求的编辑器链。
	RequestEditors []RequestEditorFn
}

// ClientOption 配置 Client 的选项。
type ClientOption func(*Client) error

// NewClient 创建控制面 API 客户端。
func NewClient(server string, opts ...ClientOption) (*Client, error) {
	c := Client{Server: server}
	for _, o := range opts {
		if err := o(&c); err != nil {
			return nil, err
		}
	}
	if !strings.HasSuffix(c.Server, "/") {
		c.Server += "/"
	}
	if c.Client == nil {
		c.Client = &http.Client{}
	}
	return &c, nil
}

// WithHTTPClient 设置自定义 HTTP 客户端。
func WithHTTPClient(doer HttpRequestDoer) ClientOption {
	return func(c *Client) error {
		c.Client = doer
		return nil
	}
}

// WithRequestEditorFn 追加一个请求编辑器。
func WithRequestEditorFn(fn RequestEditorFn) ClientOption {
	return func(c *Client) error {
		c.RequestEditors = append(c.RequestEditors, fn)
		return nil
	}
}

func (c *Client) applyEditors(ctx context.Context, req *http.Request, additional []RequestEditorFn) error {
	for _, fn := range c.RequestEditors {
		if err := fn(ctx, req); err != nil {
			return err
		}
	}
	for _, fn := range additional {
		if err := fn(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, relPath string, query url.Values, body interface{}, editors []RequestEditorFn) (*http.Response, error) {
	serverURL, err := url.Parse(c.Server)
	if err != nil {
		return nil, err
	}
	opURL, err := serverURL.Parse(strings.TrimPrefix(relPath, "/"))
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		opURL.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, opURL.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.applyEditors(ctx, req, editors); err != nil {
		return nil, err
	}
	return c.Client.Do(req)
}

// sandboxPath 构造包含沙箱 ID 的路径段。
func sandboxPath(sandboxID SandboxID, suffix string) (string, error) {
	seg, err := runtime.StyleParamWithLocation("simple", false, "sandboxID", runtime.ParamLocationPath, sandboxID)
	if err != nil {
		return "", fmt.Errorf("style sandboxID: %w", err)
	}
	return "sandboxes/" + seg + suffix, nil
}

func styleQuery(q url.Values, name string, value interface{}) error {
	s, err := runtime.StyleParamWithLocation("form", true, name, runtime.ParamLocationQuery, value)
	if err != nil {
		return fmt.Errorf("style %s: %w", name, err)
	}
	parsed, err := url.ParseQuery(s)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	for k, vs := range parsed {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// 响应类型
// ---------------------------------------------------------------------------

// HealthCheckResponse 健康检查响应。
type HealthCheckResponse struct {
	Body         []byte
	HTTPResponse *http.Response
}

// CreateSandboxResponse 创建沙箱响应。
type CreateSandboxResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON201      *Sandbox
}

// GetSandboxResponse 查询沙箱详情响应。
type GetSandboxResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON200      *SandboxDetail
}

// ListSandboxesResponse 列出沙箱响应。
type ListSandboxesResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON200      *[]ListedSandbox
}

// DeleteSandboxResponse 终止沙箱响应。
type DeleteSandboxResponse struct {
	Body         []byte
	HTTPResponse *http.Response
}

// PauseSandboxResponse 暂停沙箱响应。
type PauseSandboxResponse struct {
	Body         []byte
	HTTPResponse *http.Response
}

// ResumeSandboxResponse 恢复（或连接）沙箱响应。
type ResumeSandboxResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON200      *Sandbox
	JSON201      *Sandbox
}

// UpdateSandboxTimeoutResponse 更新超时时间响应。
type UpdateSandboxTimeoutResponse struct {
	Body         []byte
	HTTPResponse *http.Response
}

// GetSandboxMetricsResponse 查询沙箱指标响应。
type GetSandboxMetricsResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON200      *[]SandboxMetric
}

// GetSandboxSSHResponse 查询 SSH 凭证响应。
type GetSandboxSSHResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON200      *SandboxSSHInfo
}

// GetInstanceNoResponse 查询实例编号响应。
type GetInstanceNoResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON200      *InstanceNoInfo
}

// GetInstanceAuthInfoResponse 查询实例鉴权信息响应。
type GetInstanceAuthInfoResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON200      *InstanceAuthInfo
}

// StatusCode 返回 HTTP 状态码，无响应时返回 0。
func (r HealthCheckResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// StatusCode 返回 HTTP 状态码，无响应时返回 0。
func (r CreateSandboxResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// StatusCode 返回 HTTP 状态码，无响应时返回 0。
func (r GetSandboxResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// StatusCode 返回 HTTP 状态码，无响应时返回 0。
func (r ListSandboxesResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// StatusCode 返回 HTTP 状态码，无响应时返回 0。
func (r DeleteSandboxResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// StatusCode 返回 HTTP 状态码，无响应时返回 0。
func (r PauseSandboxResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// StatusCode 返回 HTTP 状态码，无响应时返回 0。
func (r ResumeSandboxResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// StatusCode 返回 HTTP 状态码，无响应时返回 0。
func (r UpdateSandboxTimeoutResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// StatusCode 返回 HTTP 状态码，无响应时返回 0。
func (r GetSandboxMetricsResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// StatusCode 返回 HTTP 状态码，无响应时返回 0。
func (r GetSandboxSSHResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// StatusCode 返回 HTTP 状态码，无响应时返回 0。
func (r GetInstanceNoResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// StatusCode 返回 HTTP 状态码，无响应时返回 0。
func (r GetInstanceAuthInfoResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// ---------------------------------------------------------------------------
// ClientWithResponses
// ---------------------------------------------------------------------------

// ClientWithResponsesInterface 是带响应解析的控制面客户端接口。
// 上层代码依赖该接口以便在测试中替换实现。
type ClientWithResponsesInterface interface {
	HealthCheckWithResponse(ctx context.Context, reqEditors ...RequestEditorFn) (*HealthCheckResponse, error)
	CreateSandboxWithResponse(ctx context.Context, body CreateSandboxJSONRequestBody, reqEditors ...RequestEditorFn) (*CreateSandboxResponse, error)
	GetSandboxWithResponse(ctx context.Context, sandboxID SandboxID, reqEditors ...RequestEditorFn) (*GetSandboxResponse, error)
	ListSandboxesWithResponse(ctx context.Context, params *ListSandboxesParams, reqEditors ...RequestEditorFn) (*ListSandboxesResponse, error)
	DeleteSandboxWithResponse(ctx context.Context, sandboxID SandboxID, reqEditors ...RequestEditorFn) (*DeleteSandboxResponse, error)
	PauseSandboxWithResponse(ctx context.Context, sandboxID SandboxID, reqEditors ...RequestEditorFn) (*PauseSandboxResponse, error)
	ResumeSandboxWithResponse(ctx context.Context, sandboxID SandboxID, body ResumeSandboxJSONRequestBody, reqEditors ...RequestEditorFn) (*ResumeSandboxResponse, error)
	UpdateSandboxTimeoutWithResponse(ctx context.Context, sandboxID SandboxID, body UpdateSandboxTimeoutJSONRequestBody, reqEditors ...RequestEditorFn) (*UpdateSandboxTimeoutResponse, error)
	GetSandboxMetricsWithResponse(ctx context.Context, sandboxID SandboxID, params *GetSandboxMetricsParams, reqEditors ...RequestEditorFn) (*GetSandboxMetricsResponse, error)
	GetSandboxSSHWithResponse(ctx context.Context, sandboxID SandboxID, reqEditors ...RequestEditorFn) (*GetSandboxSSHResponse, error)
	GetInstanceNoWithResponse(ctx context.Context, sandboxID SandboxID, reqEditors ...RequestEditorFn) (*GetInstanceNoResponse, error)
	GetInstanceAuthInfoWithResponse(ctx context.Context, sandboxID SandboxID, params *GetInstanceAuthInfoParams, reqEditors ...RequestEditorFn) (*GetInstanceAuthInfoResponse, error)
}

// ClientWithResponses 在 Client 之上解析响应体。
type ClientWithResponses struct {
	client *Client
}

// NewClientWithResponses 创建带响应解析的控制面客户端。
func NewClientWithResponses(server string, opts ...ClientOption) (*ClientWithResponses, error) {
	c, err := NewClient(server, opts...)
	if err != nil {
		return nil, err
	}
	return &ClientWithResponses{client: c}, nil
}

func readBody(rsp *http.Response) ([]byte, error) {
	defer rsp.Body.Close()
	return io.ReadAll(rsp.Body)
}

func isJSON(rsp *http.Response) bool {
	return strings.Contains(rsp.Header.Get("Content-Type"), "json")
}

// HealthCheckWithResponse 执行健康检查。
func (c *ClientWithResponses) HealthCheckWithResponse(ctx context.Context, reqEditors ...RequestEditorFn) (*HealthCheckResponse, error) {
	rsp, err := c.client.doRequest(ctx, http.MethodGet, "health", nil, nil, reqEditors)
	if err != nil {
		return nil, err
	}
	body, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	return &HealthCheckResponse{Body: body, HTTPResponse: rsp}, nil
}

// CreateSandboxWithResponse 创建沙箱。
func (c *ClientWithResponses) CreateSandboxWithResponse(ctx context.Context, body CreateSandboxJSONRequestBody, reqEditors ...RequestEditorFn) (*CreateSandboxResponse, error) {
	rsp, err := c.client.doRequest(ctx, http.MethodPost, "sandboxes", nil, body, reqEditors)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	response := &CreateSandboxResponse{Body: raw, HTTPResponse: rsp}
	if rsp.StatusCode == http.StatusCreated && isJSON(rsp) {
		var dest Sandbox
		if err := json.Unmarshal(raw, &dest); err != nil {
			return nil, err
		}
		response.JSON201 = &dest
	}
	return response, nil
}

// GetSandboxWithResponse 查询沙箱详情。
func (c *ClientWithResponses) GetSandboxWithResponse(ctx context.Context, sandboxID SandboxID, reqEditors ...RequestEditorFn) (*GetSandboxResponse, error) {
	p, err := sandboxPath(sandboxID, "")
	if err != nil {
		return nil, err
	}
	rsp, err := c.client.doRequest(ctx, http.MethodGet, p, nil, nil, reqEditors)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	response := &GetSandboxResponse{Body: raw, HTTPResponse: rsp}
	if rsp.StatusCode == http.StatusOK && isJSON(rsp) {
		var dest SandboxDetail
		if err := json.Unmarshal(raw, &dest); err != nil {
			return nil, err
		}
		response.JSON200 = &dest
	}
	return response, nil
}

// ListSandboxesWithResponse 列出沙箱。
func (c *ClientWithResponses) ListSandboxesWithResponse(ctx context.Context, params *ListSandboxesParams, reqEditors ...RequestEditorFn) (*ListSandboxesResponse, error) {
	query := url.Values{}
	if params != nil {
		if params.Metadata != nil {
			if err := styleQuery(query, "metadata", *params.Metadata); err != nil {
				return nil, err
			}
		}
		if params.State != nil {
			if err := styleQuery(query, "state", *params.State); err != nil {
				return nil, err
			}
		}
	}
	rsp, err := c.client.doRequest(ctx, http.MethodGet, "sandboxes", query, nil, reqEditors)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	response := &ListSandboxesResponse{Body: raw, HTTPResponse: rsp}
	if rsp.StatusCode == http.StatusOK && isJSON(rsp) {
		var dest []ListedSandbox
		if err := json.Unmarshal(raw, &dest); err != nil {
			return nil, err
		}
		response.JSON200 = &dest
	}
	return response, nil
}

// DeleteSandboxWithResponse 终止沙箱。
func (c *ClientWithResponses) DeleteSandboxWithResponse(ctx context.Context, sandboxID SandboxID, reqEditors ...RequestEditorFn) (*DeleteSandboxResponse, error) {
	p, err := sandboxPath(sandboxID, "")
	if err != nil {
		return nil, err
	}
	rsp, err := c.client.doRequest(ctx, http.MethodDelete, p, nil, nil, reqEditors)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	return &DeleteSandboxResponse{Body: raw, HTTPResponse: rsp}, nil
}

// PauseSandboxWithResponse 暂停沙箱。服务端在快照完成后才返回。
func (c *ClientWithResponses) PauseSandboxWithResponse(ctx context.Context, sandboxID SandboxID, reqEditors ...RequestEditorFn) (*PauseSandboxResponse, error) {
	p, err := sandboxPath(sandboxID, "/pause")
	if err != nil {
		return nil, err
	}
	rsp, err := c.client.doRequest(ctx, http.MethodPost, p, nil, nil, reqEditors)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	return &PauseSandboxResponse{Body: raw, HTTPResponse: rsp}, nil
}

// ResumeSandboxWithResponse 恢复（或连接）沙箱。
func (c *ClientWithResponses) ResumeSandboxWithResponse(ctx context.Context, sandboxID SandboxID, body ResumeSandboxJSONRequestBody, reqEditors ...RequestEditorFn) (*ResumeSandboxResponse, error) {
	p, err := sandboxPath(sandboxID, "/resume")
	if err != nil {
		return nil, err
	}
	rsp, err := c.client.doRequest(ctx, http.MethodPost, p, nil, body, reqEditors)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	response := &ResumeSandboxResponse{Body: raw, HTTPResponse: rsp}
	if isJSON(rsp) {
		switch rsp.StatusCode {
		case http.StatusOK:
			var dest Sandbox
			if err := json.Unmarshal(raw, &dest); err != nil {
				return nil, err
			}
			response.JSON200 = &dest
		case http.StatusCreated:
			var dest Sandbox
			if err := json.Unmarshal(raw, &dest); err != nil {
				return nil, err
			}
			response.JSON201 = &dest
		}
	}
	return response, nil
}

// UpdateSandboxTimeoutWithResponse 更新沙箱超时时间。
func (c *ClientWithResponses) UpdateSandboxTimeoutWithResponse(ctx context.Context, sandboxID SandboxID, body UpdateSandboxTimeoutJSONRequestBody, reqEditors ...RequestEditorFn) (*UpdateSandboxTimeoutResponse, error) {
	p, err := sandboxPath(sandboxID, "/timeout")
	if err != nil {
		return nil, err
	}
	rsp, err := c.client.doRequest(ctx, http.MethodPost, p, nil, body, reqEditors)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	return &UpdateSandboxTimeoutResponse{Body: raw, HTTPResponse: rsp}, nil
}

// GetSandboxMetricsWithResponse 查询沙箱资源指标。
func (c *ClientWithResponses) GetSandboxMetricsWithResponse(ctx context.Context, sandboxID SandboxID, params *GetSandboxMetricsParams, reqEditors ...RequestEditorFn) (*GetSandboxMetricsResponse, error) {
	p, err := sandboxPath(sandboxID, "/metrics")
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	if params != nil {
		if params.Start != nil {
			if err := styleQuery(query, "start", *params.Start); err != nil {
				return nil, err
			}
		}
		if params.End != nil {
			if err := styleQuery(query, "end", *params.End); err != nil {
				return nil, err
			}
		}
	}
	rsp, err := c.client.doRequest(ctx, http.MethodGet, p, query, nil, reqEditors)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	response := &GetSandboxMetricsResponse{Body: raw, HTTPResponse: rsp}
	if rsp.StatusCode == http.StatusOK && isJSON(rsp) {
		var dest []SandboxMetric
		if err := json.Unmarshal(raw, &dest); err != nil {
			return nil, err
		}
		response.JSON200 = &dest
	}
	return response, nil
}

// GetSandboxSSHWithResponse 查询 SSH 接入凭证。
func (c *ClientWithResponses) GetSandboxSSHWithResponse(ctx context.Context, sandboxID SandboxID, reqEditors ...RequestEditorFn) (*GetSandboxSSHResponse, error) {
	p, err := sandboxPath(sandboxID, "/ssh")
	if err != nil {
		return nil, err
	}
	rsp, err := c.client.doRequest(ctx, http.MethodGet, p, nil, nil, reqEditors)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	response := &GetSandboxSSHResponse{Body: raw, HTTPResponse: rsp}
	if rsp.StatusCode == http.StatusOK && isJSON(rsp) {
		var dest SandboxSSHInfo
		if err := json.Unmarshal(raw, &dest); err != nil {
			return nil, err
		}
		response.JSON200 = &dest
	}
	return response, nil
}

// GetInstanceNoWithResponse 查询沙箱实例编号。
func (c *ClientWithResponses) GetInstanceNoWithResponse(ctx context.Context, sandboxID SandboxID, reqEditors ...RequestEditorFn) (*GetInstanceNoResponse, error) {
	p, err := sandboxPath(sandboxID, "/instance-no")
	if err != nil {
		return nil, err
	}
	rsp, err := c.client.doRequest(ctx, http.MethodGet, p, nil, nil, reqEditors)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	response := &GetInstanceNoResponse{Body: raw, HTTPResponse: rsp}
	if rsp.StatusCode == http.StatusOK && isJSON(rsp) {
		var dest InstanceNoInfo
		if err := json.Unmarshal(raw, &dest); err != nil {
			return nil, err
		}
		response.JSON200 = &dest
	}
	return response, nil
}

// GetInstanceAuthInfoWithResponse 查询沙箱实例鉴权信息。
func (c *ClientWithResponses) GetInstanceAuthInfoWithResponse(ctx context.Context, sandboxID SandboxID, params *GetInstanceAuthInfoParams, reqEditors ...RequestEditorFn) (*GetInstanceAuthInfoResponse, error) {
	p, err := sandboxPath(sandboxID, "/auth-info")
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	if params != nil && params.ValidTime != nil {
		if err := styleQuery(query, "validTime", *params.ValidTime); err != nil {
			return nil, err
		}
	}
	rsp, err := c.client.doRequest(ctx, http.MethodGet, p, query, nil, reqEditors)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(rsp)
	if err != nil {
		return nil, err
	}
	response := &GetInstanceAuthInfoResponse{Body: raw, HTTPResponse: rsp}
	if rsp.StatusCode == http.StatusOK && isJSON(rsp) {
		var dest InstanceAuthInfo
		if err := json.Unmarshal(raw, &dest); err != nil {
			return nil, err
		}
		response.JSON200 = &dest
	}
	return response, nil
}
