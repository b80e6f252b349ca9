package agentbox

import (
	"context"
	"net/http"
	"net/url"

	"github.com/agentbox-cloud/agentbox-go/apis"
)

// Client 是 Agentbox 沙箱 SDK 的高级客户端。
//
// 一个进程内可以创建多个 Client；所有 Client 共享同一个出站连接池。
// Client 本身无状态，沙箱会话状态由 [Sandbox] 持有。
type Client struct {
	config *connectionConfig
	api    apis.ClientWithResponsesInterface
}

// NewClient 创建一个新的沙箱客户端。
// 配置缺失（如 API key）时立即返回 ConfigError，不发出网络请求。
func NewClient(config *Config) (*Client, error) {
	cfg, err := resolveConfig(config)
	if err != nil {
		return nil, err
	}

	c := &Client{config: cfg}
	api, err := c.newAPIClient(nil)
	if err != nil {
		return nil, err
	}
	c.api = api
	return c, nil
}

// newAPIClient 构造控制面客户端，proxy 非空时使用指定代理。
func (c *Client) newAPIClient(proxy *url.URL) (apis.ClientWithResponsesInterface, error) {
	opts := []apis.ClientOption{
		apis.WithHTTPClient(c.config.clientFor(proxy)),
		apis.WithRequestEditorFn(c.headerEditor()),
	}
	return apis.NewClientWithResponses(c.config.apiEndpoint, opts...)
}

// headerEditor 返回注入认证与客户端元信息头的请求编辑器。
func (c *Client) headerEditor() apis.RequestEditorFn {
	return func(ctx context.Context, req *http.Request) error {
		if c.config.apiKey != "" {
			req.Header.Set("X-API-Key", c.config.apiKey)
		}
		for k, vs := range defaultHeaders() {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}
		return nil
	}
}

// apiFor 返回本次调用使用的控制面客户端。
// 仅在单次调用覆盖代理时才构造新客户端，否则复用默认实例。
func (c *Client) apiFor(o *callOpts) (apis.ClientWithResponsesInterface, error) {
	if o == nil || o.proxy == nil {
		return c.api, nil
	}
	c.config.logger.Debugf("using per-call proxy %s", proxyAddr(o.proxy))
	return c.newAPIClient(o.proxy)
}

// callContext 为单次控制面调用施加请求超时。
func (c *Client) callContext(ctx context.Context, o *callOpts) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.config.requestTimeoutFor(o))
}

// HealthCheck 对控制面 API 执行健康检查。
func (c *Client) HealthCheck(ctx context.Context, opts ...CallOption) error {
	o := applyCallOpts(opts)
	api, err := c.apiFor(o)
	if err != nil {
		return err
	}
	callCtx, cancel := c.callContext(ctx, o)
	defer cancel()

	resp, err := api.HealthCheckWithResponse(callCtx)
	if err != nil {
		return timeoutOr("health check", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return newAPIError(resp.StatusCode(), resp.Body)
	}
	return nil
}

// List 列出当前账号下的沙箱，可按元数据和状态过滤。
func (c *Client) List(ctx context.Context, params *ListParams, opts ...CallOption) ([]ListedSandbox, error) {
	o := applyCallOpts(opts)
	api, err := c.apiFor(o)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := c.callContext(ctx, o)
	defer cancel()

	resp, err := api.ListSandboxesWithResponse(callCtx, params.toAPI())
	if err != nil {
		return nil, timeoutOr("list sandboxes", err)
	}
	if resp.JSON200 == nil {
		return nil, newAPIError(resp.StatusCode(), resp.Body)
	}
	return listedSandboxesFromAPI(*resp.JSON200), nil
}
