package agentbox

import (
	"net/url"
	"time"

	"github.com/agentbox-cloud/agentbox-go/apis"
)

// Metadata 沙箱自定义元数据。
type Metadata = map[string]string

// SandboxInfo 是沙箱的详细信息。
type SandboxInfo struct {
	// SandboxID 是完整沙箱 ID（含 client ID 后缀）。
	SandboxID string

	// TemplateID 创建沙箱使用的模板 ID。
	TemplateID string

	// Name 模板别名。
	Name string

	// State 沙箱当前状态（来自服务端，不是本地会话状态）。
	State SandboxState

	// CPUCount vCPU 数量。
	CPUCount int32

	// MemoryMB 内存大小（MB）。
	MemoryMB int32

	// Metadata 沙箱自定义元数据。
	Metadata Metadata

	// StartedAt 沙箱启动时间。
	StartedAt time.Time

	// EndAt 沙箱到期时间。
	EndAt time.Time

	// EnvdVersion 沙箱内 envd 的版本。
	EnvdVersion string

	// EnvdAccessToken 安全沙箱的访问令牌（如果有）。
	EnvdAccessToken *string
}

// ListedSandbox 是沙箱列表中的一项。
type ListedSandbox struct {
	SandboxID   string
	TemplateID  string
	Name        string
	State       SandboxState
	CPUCount    int32
	MemoryMB    int32
	Metadata    Metadata
	StartedAt   time.Time
	EndAt       time.Time
	EnvdVersion string
}

// Metric 是单个时间点的沙箱资源指标。
type Metric struct {
	// Timestamp 采样时间。
	Timestamp time.Time
	// CPUCount vCPU 数量。
	CPUCount int32
	// CPUUsedPct CPU 使用率（百分比）。
	CPUUsedPct float32
	// MemTotal 内存总量（字节）。
	MemTotal int64
	// MemUsed 内存用量（字节）。
	MemUsed int64
	// DiskTotal 磁盘总量（字节）。低版本 envd 不上报，见 GetMetrics。
	DiskTotal int64
	// DiskUsed 磁盘用量（字节）。
	DiskUsed int64
}

// InstanceAuthInfo 是沙箱实例的临时鉴权信息。
type InstanceAuthInfo struct {
	InstanceNo string
	AuthKey    string
	ExpiredAt  time.Time
}

// ListParams 是列出沙箱的过滤条件。
type ListParams struct {
	// Metadata 按元数据键值对过滤，全部匹配才返回。
	Metadata Metadata

	// States 按状态过滤，为空时不过滤。
	States []SandboxState
}

func (p *ListParams) toAPI() *apis.ListSandboxesParams {
	if p == nil {
		return nil
	}
	params := &apis.ListSandboxesParams{}
	if len(p.Metadata) > 0 {
		q := url.Values{}
		for k, v := range p.Metadata {
			q.Set(k, v)
		}
		encoded := q.Encode()
		params.Metadata = &encoded
	}
	if len(p.States) > 0 {
		states := make([]apis.SandboxState, 0, len(p.States))
		for _, s := range p.States {
			switch s {
			case StatePaused:
				states = append(states, apis.Paused)
			default:
				states = append(states, apis.Running)
			}
		}
		params.State = &states
	}
	return params
}

// compositeID 拼出含 client ID 后缀的完整沙箱 ID。
func compositeID(sandboxID, clientID string) string {
	if clientID == "" {
		return sandboxID
	}
	return sandboxID + "-" + clientID
}

func sandboxInfoFromAPI(d *apis.SandboxDetail) *SandboxInfo {
	info := &SandboxInfo{
		SandboxID:       compositeID(d.SandboxID, d.ClientID),
		TemplateID:      d.TemplateID,
		State:           stateFromAPI(d.State),
		CPUCount:        d.CPUCount,
		MemoryMB:        d.MemoryMB,
		StartedAt:       d.StartedAt,
		EndAt:           d.EndAt,
		EnvdAccessToken: d.EnvdAccessToken,
	}
	if d.Alias != nil {
		info.Name = *d.Alias
	}
	if d.EnvdVersion != nil {
		info.EnvdVersion = *d.EnvdVersion
	}
	if d.Metadata != nil {
		info.Metadata = Metadata(*d.Metadata)
	}
	return info
}

func listedSandboxesFromAPI(items []apis.ListedSandbox) []ListedSandbox {
	out := make([]ListedSandbox, 0, len(items))
	for _, it := range items {
		s := ListedSandbox{
			SandboxID:  compositeID(it.SandboxID, it.ClientID),
			TemplateID: it.TemplateID,
			State:      stateFromAPI(it.State),
			CPUCount:   it.CPUCount,
			MemoryMB:   it.MemoryMB,
			StartedAt:  it.StartedAt,
			EndAt:      it.EndAt,
		}
		if it.Alias != nil {
			s.Name = *it.Alias
		}
		if it.EnvdVersion != nil {
			s.EnvdVersion = *it.EnvdVersion
		}
		if it.Metadata != nil {
			s.Metadata = Metadata(*it.Metadata)
		}
		out = append(out, s)
	}
	return out
}

func metricsFromAPI(items []apis.SandboxMetric) []Metric {
	out := make([]Metric, 0, len(items))
	for _, it := range items {
		ts := it.Timestamp
		if ts.IsZero() && it.TimestampUnix != 0 {
			ts = time.Unix(it.TimestampUnix, 0)
		}
		out = append(out, Metric{
			Timestamp:  ts,
			CPUCount:   it.CPUCount,
			CPUUsedPct: it.CPUUsedPct,
			MemTotal:   it.MemTotal,
			MemUsed:    it.MemUsed,
			DiskTotal:  it.DiskTotal,
			DiskUsed:   it.DiskUsed,
		})
	}
	return out
}
