// Package agentbox 提供 Agentbox 沙箱服务的 Go SDK，用于管理安全隔离的云端沙箱环境。
//
// 沙箱是为 AI Agent 场景设计的隔离执行环境。SDK 负责沙箱的完整生命周期
// （创建、连接、暂停、恢复、终止，以及服务端超时自动回收），并把文件系统、
// 命令执行和终端操作透明地路由到两种传输后端之一:
//
//   - HTTP 后端: 沙箱内运行 envd 守护进程，通过 HTTP API 提供进程管理、
//     文件系统操作和 PTY 终端服务
//   - SSH 后端: 不运行 envd 的实例（如云端 Android 设备）通过 SSH 直连，
//     文件操作走 SFTP，另提供 adb shell 执行能力
//
// 后端在会话构造时根据沙箱 ID 判定一次，调用方无需感知差异。
//
// # 快速开始
//
// 创建客户端并启动沙箱:
//
//	c, err := agentbox.NewClient(&agentbox.Config{
//	    APIKey: os.Getenv("AGENTBOX_API_KEY"),
//	})
//
//	sb, err := c.Create(ctx, agentbox.CreateParams{
//	    TemplateID: "base",
//	    Timeout:    2 * time.Minute,
//	})
//
//	defer sb.Kill(ctx)
//
// # 沙箱生命周期
//
// Client 提供沙箱的创建、连接和列表操作:
//
//   - [Client.Create] / [Client.CreateAndWait]: 创建沙箱（后者会轮询等待就绪）
//   - [Client.Connect]: 连接到已有沙箱，已暂停的沙箱由服务端自动恢复
//   - [Client.Resume]: 恢复已暂停的沙箱，可设置到期后再次自动暂停
//   - [Client.List]: 列出沙箱，支持按状态和元数据过滤
//
// Sandbox 会话提供生命周期管理:
//
//   - [Sandbox.Kill]: 终止沙箱（幂等，终态）
//   - [Sandbox.Pause]: 暂停沙箱（保留文件系统和内存状态）
//   - [Sandbox.Resume]: 恢复当前会话的沙箱
//   - [Sandbox.SetTimeout]: 更新超时时间（整体替换旧的截止时间）
//   - [Sandbox.GetInfo] / [Sandbox.IsRunning]: 查询沙箱状态
//   - [Sandbox.GetMetrics]: 获取 CPU、内存、磁盘等资源指标
//   - [Sandbox.WaitForReady]: 轮询等待沙箱进入 running 状态
//
// # 命令执行与文件操作
//
// 通过 [Sandbox.Commands] 在沙箱内执行终端命令:
//
//	result, err := sb.Commands().Run(ctx, "echo hello",
//	    agentbox.WithEnvs(map[string]string{"MY_VAR": "value"}),
//	    agentbox.WithCwd("/tmp"),
//	    agentbox.WithTimeout(5*time.Second),
//	)
//
// 通过 [Sandbox.Files] 读写沙箱文件:
//
//	info, err := sb.Files().Write(ctx, "/tmp/hello.txt", []byte("hi"))
//	data, err := sb.Files().Read(ctx, "/tmp/hello.txt")
//
// SSH 后端的沙箱额外提供 [Sandbox.ADBShell]；HTTP 后端额外提供
// [Sandbox.Pty] 终端会话。
package agentbox
