package agentbox

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/agentbox-cloud/agentbox-go/internal/log"
	logruslog "github.com/agentbox-cloud/agentbox-go/internal/log/logrus"
)

// DefaultDomain 是沙箱服务的默认域名后缀。
const DefaultDomain = "agentbox.cloud"

// DefaultRequestTimeout 是单次 API 请求的默认超时时间。
const DefaultRequestTimeout = 30 * time.Second

// DefaultSandboxTimeout 是沙箱的默认存活时间。
const DefaultSandboxTimeout = 300 * time.Second

// Version 是 SDK 的版本号。
const Version = "1.0.0"

// accessTokenHeader 是携带 envd 访问令牌的请求头。
const accessTokenHeader = "X-Access-Token"

// debug 模式下控制面 API 的本地地址。
const debugAPIEndpoint = "http://localhost:3000"

// 环境变量名。
const (
	envAPIKey = "AGENTBOX_API_KEY"
	envDomain = "AGENTBOX_DOMAIN"
	envDebug  = "AGENTBOX_DEBUG"
)

// Config 是 SDK 客户端的配置。
type Config struct {
	// APIKey 用于控制面身份认证（可选，默认取 AGENTBOX_API_KEY 环境变量）。
	APIKey string

	// Domain 沙箱服务域名后缀（可选，默认取 AGENTBOX_DOMAIN 环境变量，
	// 其次为 DefaultDomain）。控制面地址与沙箱访问 URL 均由此派生。
	Domain string

	// APIEndpoint 控制面 API 地址（可选，默认由 Domain 派生）。
	APIEndpoint string

	// Debug 调试模式：控制面指向本地服务，并记录每个请求的收发日志
	// （可选，默认取 AGENTBOX_DEBUG 环境变量）。
	Debug bool

	// Proxy 出站请求使用的代理（可选）。
	Proxy *url.URL

	// RequestTimeout 单次 API 请求的默认超时（可选，默认 DefaultRequestTimeout）。
	RequestTimeout time.Duration

	// Logger 日志器（可选，默认丢弃所有输出）。
	Logger log.Logger

	// HTTPClient 自定义 HTTP 客户端（可选）。设置后 Proxy 不再生效。
	HTTPClient *http.Client
}

// connectionConfig 是单个会话共享的已解析连接配置。
// 除 setAccessToken 在凭证获取时的一次性注入外，所有字段只读。
type connectionConfig struct {
	apiKey         string
	domain         string
	apiEndpoint    string
	debug          bool
	proxy          *url.URL
	requestTimeout time.Duration
	logger         log.Logger
	httpClient     *http.Client

	mu       sync.Mutex
	headers  http.Header
	tokenSet bool
}

// resolveConfig 补全默认值并校验配置。配置错误在任何网络请求之前返回。
func resolveConfig(c *Config) (*connectionConfig, error) {
	if c == nil {
		c = &Config{}
	}

	apiKey := c.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(envAPIKey)
	}
	domain := c.Domain
	if domain == "" {
		domain = os.Getenv(envDomain)
	}
	if domain == "" {
		domain = DefaultDomain
	}
	debug := c.Debug
	if !debug && os.Getenv(envDebug) == "true" {
		debug = true
	}
	if apiKey == "" && !debug {
		return nil, &ConfigError{
			Message: "API key is required, set the " + envAPIKey + " environment variable or pass it via Config.APIKey",
		}
	}

	endpoint := c.APIEndpoint
	if endpoint == "" {
		if debug {
			endpoint = debugAPIEndpoint
		} else {
			endpoint = "https://api." + domain
		}
	}

	timeout := c.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	// debug 模式下未注入日志器时默认输出到 stderr
	logger := c.Logger
	if logger == nil {
		if debug {
			l := logrus.New()
			l.SetLevel(logrus.DebugLevel)
			logger = logruslog.NewLogrus(logrus.NewEntry(l))
		} else {
			logger = log.Noop
		}
	}

	cfg := &connectionConfig{
		apiKey:         apiKey,
		domain:         domain,
		apiEndpoint:    endpoint,
		debug:          debug,
		proxy:          c.Proxy,
		requestTimeout: timeout,
		logger:         logger,
		httpClient:     c.HTTPClient,
		headers:        defaultHeaders(),
	}
	return cfg, nil
}

// sessionClone 返回一份持有独立请求头集合的配置副本。
// 每个沙箱会话使用自己的副本，访问令牌注入互不影响。
func (c *connectionConfig) sessionClone() *connectionConfig {
	return &connectionConfig{
		apiKey:         c.apiKey,
		domain:         c.domain,
		apiEndpoint:    c.apiEndpoint,
		debug:          c.debug,
		proxy:          c.proxy,
		requestTimeout: c.requestTimeout,
		logger:         c.logger,
		httpClient:     c.httpClient,
		headers:        defaultHeaders(),
	}
}

// defaultHeaders 返回每个控制面请求携带的客户端元信息头。
func defaultHeaders() http.Header {
	h := http.Header{}
	h.Set("lang", "go")
	h.Set("lang_version", runtime.Version())
	h.Set("machine", runtime.GOARCH)
	h.Set("os", runtime.GOOS)
	h.Set("package_version", Version)
	h.Set("publisher", "agentbox")
	h.Set("sdk_runtime", "go")
	return h
}

// setAccessToken 将 envd 访问令牌注入请求头集合。
// 每个会话仅在凭证获取时注入一次，之后的所有 HTTP 请求都携带该令牌。
func (c *connectionConfig) setAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokenSet {
		return
	}
	c.headers.Set(accessTokenHeader, token)
	c.tokenSet = true
}

// sandboxHeaders 返回当前会话的请求头副本。
func (c *connectionConfig) sandboxHeaders() http.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := http.Header{}
	for k, vs := range c.headers {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	return h
}

// ---------------------------------------------------------------------------
// 出站连接池
// ---------------------------------------------------------------------------

// sharedTransport 是进程内所有会话共享的 keep-alive 连接池。
// 上限（20 总连接 / 10 keep-alive / 20s 空闲）是对远端的保护，
// 超出上限的请求会排队等待而不是失败。
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxConnsPerHost:     20,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     20 * time.Second,
}

// clientFor 返回使用指定代理的 HTTP 客户端。
// proxy 为 nil 时使用配置级代理；两者皆空时共享默认连接池。
func (c *connectionConfig) clientFor(proxy *url.URL) *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	if proxy == nil {
		proxy = c.proxy
	}

	var rt http.RoundTripper = sharedTransport
	if proxy != nil {
		t := sharedTransport.Clone()
		t.Proxy = http.ProxyURL(proxy)
		rt = t
	}
	if c.debug {
		rt = &loggingTransport{base: rt, logger: c.logger}
	}
	return &http.Client{Transport: rt}
}

// loggingTransport 在调试模式下记录每个请求的收发日志。
type loggingTransport struct {
	base   http.RoundTripper
	logger log.Logger
}

// RoundTrip 实现 http.RoundTripper。
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqID := uuid.NewString()[:8]
	t.logger.Debugf("[%s] request: %s %s://%s%s", reqID, req.Method, req.URL.Scheme, req.URL.Host, req.URL.Path)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Debugf("[%s] request failed: %v", reqID, err)
		return nil, err
	}
	t.logger.Debugf("[%s] response: %d %s", reqID, resp.StatusCode, req.URL.Path)
	return resp, nil
}

// ---------------------------------------------------------------------------
// 单次调用选项
// ---------------------------------------------------------------------------

// CallOption 配置单次 API 调用的选项。
type CallOption func(*callOpts)

type callOpts struct {
	requestTimeout time.Duration
	proxy          *url.URL
}

// WithRequestTimeout 覆盖本次调用的请求超时时间。
func WithRequestTimeout(d time.Duration) CallOption {
	return func(o *callOpts) { o.requestTimeout = d }
}

// WithProxy 覆盖本次调用使用的代理。
func WithProxy(u *url.URL) CallOption {
	return func(o *callOpts) { o.proxy = u }
}

func applyCallOpts(opts []CallOption) *callOpts {
	o := &callOpts{}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// requestTimeoutFor 返回本次调用生效的请求超时时间。
func (c *connectionConfig) requestTimeoutFor(o *callOpts) time.Duration {
	if o != nil && o.requestTimeout > 0 {
		return o.requestTimeout
	}
	return c.requestTimeout
}

// proxyAddr 返回代理地址字符串，仅用于日志。
func proxyAddr(u *url.URL) string {
	if u == nil {
		return ""
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}
