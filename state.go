package agentbox

import "github.com/agentbox-cloud/agentbox-go/apis"

// SandboxState 是沙箱会话的生命周期状态。
//
// 状态迁移：
//
//	created --> running --> paused --> running
//	                \          \
//	                 +----------+--> killed
//
// killed 为终态，之后的任何操作返回 StateError。
type SandboxState string

// 沙箱生命周期状态常量。
const (
	StateCreated SandboxState = "created"
	StateRunning SandboxState = "running"
	StatePaused  SandboxState = "paused"
	StateKilled  SandboxState = "killed"
)

// stateFromAPI 将控制面状态映射为会话状态。
func stateFromAPI(s apis.SandboxState) SandboxState {
	switch s {
	case apis.Paused:
		return StatePaused
	default:
		return StateRunning
	}
}
