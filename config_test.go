package agentbox

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigDefaults(t *testing.T) {
	t.Setenv(envAPIKey, "")
	t.Setenv(envDomain, "")
	t.Setenv(envDebug, "")

	cfg, err := resolveConfig(&Config{APIKey: "key"})
	require.NoError(t, err)
	assert.Equal(t, DefaultDomain, cfg.domain)
	assert.Equal(t, "https://api."+DefaultDomain, cfg.apiEndpoint)
	assert.Equal(t, DefaultRequestTimeout, cfg.requestTimeout)
	assert.False(t, cfg.debug)
}

func TestResolveConfigMissingAPIKey(t *testing.T) {
	t.Setenv(envAPIKey, "")
	_, err := resolveConfig(&Config{})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestResolveConfigFromEnv(t *testing.T) {
	t.Setenv(envAPIKey, "env-key")
	t.Setenv(envDomain, "custom.example.com")

	cfg, err := resolveConfig(&Config{})
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.apiKey)
	assert.Equal(t, "custom.example.com", cfg.domain)
	assert.Equal(t, "https://api.custom.example.com", cfg.apiEndpoint)
}

func TestResolveConfigDebugMode(t *testing.T) {
	t.Setenv(envAPIKey, "")

	// debug 模式不要求 API key，控制面指向本地
	cfg, err := resolveConfig(&Config{Debug: true})
	require.NoError(t, err)
	assert.Equal(t, debugAPIEndpoint, cfg.apiEndpoint)

	t.Setenv(envDebug, "true")
	cfg, err = resolveConfig(&Config{})
	require.NoError(t, err)
	assert.True(t, cfg.debug)
}

func TestResolveConfigExplicitEndpoint(t *testing.T) {
	cfg, err := resolveConfig(&Config{APIKey: "key", APIEndpoint: "https://internal.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://internal.example.com", cfg.apiEndpoint)
}

func TestSetAccessTokenOnce(t *testing.T) {
	cfg, err := resolveConfig(&Config{APIKey: "key"})
	require.NoError(t, err)

	cfg.setAccessToken("first")
	cfg.setAccessToken("second")
	assert.Equal(t, "first", cfg.sandboxHeaders().Get(accessTokenHeader))
}

func TestSessionCloneIsolation(t *testing.T) {
	cfg, err := resolveConfig(&Config{APIKey: "key"})
	require.NoError(t, err)

	a := cfg.sessionClone()
	b := cfg.sessionClone()
	a.setAccessToken("token-a")

	assert.Equal(t, "token-a", a.sandboxHeaders().Get(accessTokenHeader))
	assert.Empty(t, b.sandboxHeaders().Get(accessTokenHeader))
	assert.Empty(t, cfg.sandboxHeaders().Get(accessTokenHeader))
}

func TestSandboxHeadersCopy(t *testing.T) {
	cfg, err := resolveConfig(&Config{APIKey: "key"})
	require.NoError(t, err)

	h := cfg.sandboxHeaders()
	h.Set("X-Custom", "v")
	assert.Empty(t, cfg.sandboxHeaders().Get("X-Custom"), "returned headers must be a copy")
	assert.Equal(t, "go", cfg.sandboxHeaders().Get("lang"))
}

func TestRequestTimeoutFor(t *testing.T) {
	cfg, err := resolveConfig(&Config{APIKey: "key", RequestTimeout: 10 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.requestTimeoutFor(nil))
	assert.Equal(t, 10*time.Second, cfg.requestTimeoutFor(&callOpts{}))
	assert.Equal(t, time.Second, cfg.requestTimeoutFor(&callOpts{requestTimeout: time.Second}))
}

func TestClientForProxy(t *testing.T) {
	cfg, err := resolveConfig(&Config{APIKey: "key"})
	require.NoError(t, err)

	// 无代理时共享默认连接池
	c := cfg.clientFor(nil)
	assert.Same(t, sharedTransport, c.Transport)

	// 指定代理时克隆连接池
	proxy, _ := url.Parse("http://proxy.example.com:8080")
	c = cfg.clientFor(proxy)
	assert.NotSame(t, sharedTransport, c.Transport)
}

func TestApplyCallOpts(t *testing.T) {
	proxy, _ := url.Parse("http://proxy.example.com:8080")
	o := applyCallOpts([]CallOption{
		WithRequestTimeout(5 * time.Second),
		WithProxy(proxy),
	})
	assert.Equal(t, 5*time.Second, o.requestTimeout)
	assert.Same(t, proxy, o.proxy)
}
