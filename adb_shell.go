package agentbox

import (
	"context"
	"fmt"
	"strings"
)

// ADBShell 提供 adb shell 命令执行能力，仅 SSH 后端可用。
// adb 命令在沙箱宿主上通过 SSH 传输执行，目标设备由宿主上的
// adb server 管理。
type ADBShell struct {
	ssh    *sshSession
	serial string
}

func newADBShell(s *sshSession) *ADBShell {
	return &ADBShell{ssh: s}
}

// WithSerial 返回绑定到指定设备序列号的 ADBShell。
// 未绑定时 adb 使用默认设备。
func (a *ADBShell) WithSerial(serial string) *ADBShell {
	return &ADBShell{ssh: a.ssh, serial: serial}
}

// Connect 让宿主上的 adb server 连接到指定设备地址（host:port）。
func (a *ADBShell) Connect(ctx context.Context, addr string) error {
	result, err := a.runADB(ctx, "connect "+shellQuote(addr))
	if err != nil {
		return err
	}
	// adb connect 失败时退出码仍为 0，需检查输出
	out := strings.TrimSpace(result.Stdout)
	if result.ExitCode != 0 || strings.Contains(out, "failed") || strings.Contains(out, "cannot") {
		return fmt.Errorf("adb connect %s: %s", addr, out)
	}
	return nil
}

// Devices 返回宿主上 adb server 已连接的设备序列号列表。
func (a *ADBShell) Devices(ctx context.Context) ([]string, error) {
	result, err := a.runADB(ctx, "devices")
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("adb devices: %s", result.Stderr)
	}
	return parseADBDevices(result.Stdout), nil
}

// Run 在设备上执行 adb shell 命令并等待完成。
func (a *ADBShell) Run(ctx context.Context, cmd string, opts ...CommandOption) (*CommandResult, error) {
	return a.runADB(ctx, a.deviceArgs()+"shell "+shellQuote(cmd), opts...)
}

// runADB 在宿主上执行一条 adb 命令。
func (a *ADBShell) runADB(ctx context.Context, args string, opts ...CommandOption) (*CommandResult, error) {
	commands := newSSHCommands(a.ssh)
	return commands.Run(ctx, "adb "+args, opts...)
}

func (a *ADBShell) deviceArgs() string {
	if a.serial == "" {
		return ""
	}
	return "-s " + shellQuote(a.serial) + " "
}

// parseADBDevices 解析 adb devices 的输出。
func parseADBDevices(out string) []string {
	var devices []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "device" {
			devices = append(devices, fields[0])
		}
	}
	return devices
}
