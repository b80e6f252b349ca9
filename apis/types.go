// Package apis 实现 Agentbox 控制面 API 的 HTTP 客户端。
//
// 客户端按生成式客户端的惯例手工维护：每个操作提供 XxxWithResponse 方法，
// 返回带有 JSON200/JSON201 等已解析字段的响应结构，调用方通过判断这些字段
// 是否为 nil 来区分成功与失败。
package apis

import "time"

// SandboxID 沙箱 ID。
type SandboxID = string

// SandboxState 沙箱状态。
type SandboxState string

// 沙箱状态常量。
const (
	Running SandboxState = "running"
	Paused  SandboxState = "paused"
)

// SandboxMetadata 沙箱自定义元数据。
type SandboxMetadata map[string]string

// EnvVars 沙箱环境变量。
type EnvVars map[string]string

// Sandbox 是创建/连接/恢复操作返回的沙箱描述。
type Sandbox struct {
	SandboxID       string  `json:"sandboxID"`
	TemplateID      string  `json:"templateID"`
	ClientID        string  `json:"clientID"`
	Alias           *string `json:"alias,omitempty"`
	Domain          *string `json:"domain,omitempty"`
	EnvdVersion     *string `json:"envdVersion,omitempty"`
	EnvdAccessToken *string `json:"envdAccessToken,omitempty"`
}

// SandboxDetail 沙箱详细信息（get-info 返回）。
type SandboxDetail struct {
	SandboxID       string           `json:"sandboxID"`
	TemplateID      string           `json:"templateID"`
	ClientID        string           `json:"clientID"`
	Alias           *string          `json:"alias,omitempty"`
	State           SandboxState     `json:"state"`
	CPUCount        int32            `json:"cpuCount"`
	MemoryMB        int32            `json:"memoryMB"`
	EnvdVersion     *string          `json:"envdVersion,omitempty"`
	EnvdAccessToken *string          `json:"envdAccessToken,omitempty"`
	StartedAt       time.Time        `json:"startedAt"`
	EndAt           time.Time        `json:"endAt"`
	Metadata        *SandboxMetadata `json:"metadata,omitempty"`
}

// ListedSandbox 沙箱列表中的条目。
type ListedSandbox struct {
	SandboxID   string           `json:"sandboxID"`
	TemplateID  string           `json:"templateID"`
	ClientID    string           `json:"clientID"`
	Alias       *string          `json:"alias,omitempty"`
	State       SandboxState     `json:"state"`
	CPUCount    int32            `json:"cpuCount"`
	MemoryMB    int32            `json:"memoryMB"`
	StartedAt   time.Time        `json:"startedAt"`
	EndAt       time.Time        `json:"endAt"`
	Metadata    *SandboxMetadata `json:"metadata,omitempty"`
	EnvdVersion *string          `json:"envdVersion,omitempty"`
}

// SandboxMetric 单个时间点的沙箱资源指标。
type SandboxMetric struct {
	Timestamp     time.Time `json:"timestamp"`
	TimestampUnix int64     `json:"timestampUnix"`
	CPUCount      int32     `json:"cpuCount"`
	CPUUsedPct    float32   `json:"cpuUsedPct"`
	MemTotal      int64     `json:"memTotal"`
	MemUsed       int64     `json:"memUsed"`
	DiskTotal     int64     `json:"diskTotal"`
	DiskUsed      int64     `json:"diskUsed"`
}

// SandboxSSHInfo SSH 接入凭证（SSH/ADB 型沙箱）。
// ConnectCommand 为服务端下发的完整 ssh 命令行，客户端从中解析出
// host/port/username；AuthPassword 为对应的登录口令。
type SandboxSSHInfo struct {
	ConnectCommand string  `json:"connectCommand"`
	AuthPassword   string  `json:"authPassword"`
	ExpireTime     *string `json:"expireTime,omitempty"`
}

// InstanceAuthInfo 沙箱实例的临时鉴权信息。
type InstanceAuthInfo struct {
	InstanceNo string    `json:"instanceNo"`
	AuthKey    string    `json:"authKey"`
	ExpiredAt  time.Time `json:"expiredAt"`
}

// InstanceNoInfo 沙箱实例编号。
type InstanceNoInfo struct {
	InstanceNo string `json:"instanceNo"`
}

// CreateSandboxJSONRequestBody 创建沙箱的请求体。
type CreateSandboxJSONRequestBody struct {
	TemplateID string           `json:"templateID"`
	Timeout    *int32           `json:"timeout,omitempty"`
	AutoPause  *bool            `json:"autoPause,omitempty"`
	Secure     *bool            `json:"secure,omitempty"`
	EnvVars    *EnvVars         `json:"envVars,omitempty"`
	Metadata   *SandboxMetadata `json:"metadata,omitempty"`
}

// ResumeSandboxJSONRequestBody 恢复（或连接）沙箱的请求体。
// 对运行中的沙箱该操作等价于连接；对已暂停的沙箱服务端会先恢复再返回。
type ResumeSandboxJSONRequestBody struct {
	Timeout   int32 `json:"timeout"`
	AutoPause *bool `json:"autoPause,omitempty"`
}

// UpdateSandboxTimeoutJSONRequestBody 更新沙箱超时时间的请求体。
// 新的截止时间整体替换旧值，不做叠加。
type UpdateSandboxTimeoutJSONRequestBody struct {
	Timeout int32 `json:"timeout"`
}

// ListSandboxesParams 列出沙箱的查询参数。
type ListSandboxesParams struct {
	// Metadata 元数据过滤查询（如 "user=abc&app=prod"）。
	Metadata *string

	// State 按一个或多个状态过滤。
	State *[]SandboxState
}

// GetSandboxMetricsParams 获取沙箱指标的查询参数（Unix 秒）。
type GetSandboxMetricsParams struct {
	Start *int64
	End   *int64
}

// GetInstanceAuthInfoParams 获取实例鉴权信息的查询参数。
type GetInstanceAuthInfoParams struct {
	// ValidTime 鉴权信息有效期（秒），默认 3600。
	ValidTime *int32
}
