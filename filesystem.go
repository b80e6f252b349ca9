package agentbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// FileType 文件类型。
type FileType string

const (
	// FileTypeFile 表示普通文件。
	FileTypeFile FileType = "file"
	// FileTypeDirectory 表示目录。
	FileTypeDirectory FileType = "dir"
)

// EntryInfo 文件或目录的元信息。
type EntryInfo struct {
	Name          string
	Type          FileType
	Path          string
	Size          int64
	Mode          uint32
	Permissions   string
	Owner         string
	Group         string
	ModifiedTime  time.Time
	SymlinkTarget *string
}

// EventType 文件系统事件类型。
type EventType string

const (
	// EventCreate 文件或目录被创建。
	EventCreate EventType = "create"
	// EventWrite 文件被写入。
	EventWrite EventType = "write"
	// EventRemove 文件或目录被删除。
	EventRemove EventType = "remove"
	// EventRename 文件或目录被重命名。
	EventRename EventType = "rename"
	// EventChmod 文件或目录权限被修改。
	EventChmod EventType = "chmod"
)

// FilesystemEvent 文件系统事件。
type FilesystemEvent struct {
	Name string
	Type EventType
}

// FilesystemOption 文件系统操作选项。
type FilesystemOption func(*filesystemOpts)

type filesystemOpts struct {
	user string
}

// WithUser 设置文件系统操作的用户身份。
func WithUser(user string) FilesystemOption {
	return func(o *filesystemOpts) { o.user = user }
}

func applyFilesystemOpts(opts []FilesystemOption) *filesystemOpts {
	o := &filesystemOpts{user: DefaultUser}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// ListOption 列目录选项。
type ListOption func(*listOpts)

type listOpts struct {
	filesystemOpts
	depth uint32
}

// WithDepth 设置列目录的递归深度，默认为 1。
func WithDepth(depth uint32) ListOption {
	return func(o *listOpts) { o.depth = depth }
}

// WithListUser 设置列目录操作的用户身份。
func WithListUser(user string) ListOption {
	return func(o *listOpts) { o.user = user }
}

func applyListOpts(opts []ListOption) *listOpts {
	o := &listOpts{
		filesystemOpts: filesystemOpts{user: DefaultUser},
		depth:          1,
	}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// WatchOption 目录监听选项。
type WatchOption func(*watchOpts)

type watchOpts struct {
	filesystemOpts
	recursive bool
}

// WithRecursive 设置是否递归监听子目录。
func WithRecursive(recursive bool) WatchOption {
	return func(o *watchOpts) { o.recursive = recursive }
}

// WithWatchUser 设置监听操作的用户身份。
func WithWatchUser(user string) WatchOption {
	return func(o *watchOpts) { o.user = user }
}

func applyWatchOpts(opts []WatchOption) *watchOpts {
	o := &watchOpts{
		filesystemOpts: filesystemOpts{user: DefaultUser},
	}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// WatchHandle 目录监听句柄。
type WatchHandle struct {
	events chan FilesystemEvent
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Events 返回文件系统事件通道。
func (w *WatchHandle) Events() <-chan FilesystemEvent {
	return w.events
}

// Err 返回监听过程中发生的错误。应在 Events 通道关闭后调用。
func (w *WatchHandle) Err() error {
	return w.err
}

// Stop 停止监听。
func (w *WatchHandle) Stop() {
	w.cancel()
	<-w.done
}

// Files 是沙箱文件操作接口，实现按会话后端路由。
type Files interface {
	// Read 读取指定路径的文件内容。
	Read(ctx context.Context, path string, opts ...FilesystemOption) ([]byte, error)
	// Write 写入文件内容。如果文件已存在则覆盖，自动创建父目录。
	Write(ctx context.Context, path string, data []byte, opts ...FilesystemOption) (*EntryInfo, error)
	// List 列出目录内容。
	List(ctx context.Context, path string, opts ...ListOption) ([]EntryInfo, error)
	// Exists 检查文件或目录是否存在。
	Exists(ctx context.Context, path string, opts ...FilesystemOption) (bool, error)
	// GetInfo 返回文件或目录的元信息。
	GetInfo(ctx context.Context, path string, opts ...FilesystemOption) (*EntryInfo, error)
	// MakeDir 创建目录（包含父目录）。
	MakeDir(ctx context.Context, path string, opts ...FilesystemOption) (*EntryInfo, error)
	// Remove 删除文件或目录。
	Remove(ctx context.Context, path string, opts ...FilesystemOption) error
	// Rename 重命名或移动文件/目录。
	Rename(ctx context.Context, oldPath, newPath string, opts ...FilesystemOption) (*EntryInfo, error)
	// WriteFiles 批量写入多个文件。
	WriteFiles(ctx context.Context, files []WriteEntry, opts ...FilesystemOption) error
	// WatchDir 监听目录变更。SSH 后端不支持。
	WatchDir(ctx context.Context, path string, opts ...WatchOption) (*WatchHandle, error)
}

// WriteEntry 批量写入的单个文件。
type WriteEntry struct {
	// Path 沙箱内的目标路径。
	Path string
	// Data 文件内容。
	Data []byte
}

// isEntryNotFound 判断文件操作错误是否为"不存在"。
func isEntryNotFound(err error) bool {
	var envdErr *EnvdError
	if errors.As(err, &envdErr) {
		return envdErr.Code == http.StatusNotFound
	}
	return errors.Is(err, fs.ErrNotExist)
}

// ---------------------------------------------------------------------------
// envd 实现
// ---------------------------------------------------------------------------

// entryPayload 是 envd 文件系统接口的条目 JSON 形态。
type entryPayload struct {
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	Path          string  `json:"path"`
	Size          int64   `json:"size"`
	Mode          uint32  `json:"mode"`
	Permissions   string  `json:"permissions"`
	Owner         string  `json:"owner"`
	Group         string  `json:"group"`
	ModifiedTime  *string `json:"modifiedTime,omitempty"`
	SymlinkTarget *string `json:"symlinkTarget,omitempty"`
}

func (e *entryPayload) toEntryInfo() *EntryInfo {
	if e == nil {
		return nil
	}
	info := &EntryInfo{
		Name:        e.Name,
		Path:        e.Path,
		Size:        e.Size,
		Mode:        e.Mode,
		Permissions: e.Permissions,
		Owner:       e.Owner,
		Group:       e.Group,
	}
	switch e.Type {
	case "dir", "directory":
		info.Type = FileTypeDirectory
	default:
		info.Type = FileTypeFile
	}
	if e.ModifiedTime != nil {
		if t, err := time.Parse(time.RFC3339, *e.ModifiedTime); err == nil {
			info.ModifiedTime = t
		}
	}
	if e.SymlinkTarget != nil {
		t := *e.SymlinkTarget
		info.SymlinkTarget = &t
	}
	return info
}

// envdFilesystem 是 HTTP 后端的文件操作实现，走 envd 文件接口。
type envdFilesystem struct {
	sandbox *Sandbox
}

func newFilesystem(s *Sandbox) *envdFilesystem {
	return &envdFilesystem{sandbox: s}
}

// Read 通过 envd HTTP API 下载文件。
func (f *envdFilesystem) Read(ctx context.Context, path string, opts ...FilesystemOption) ([]byte, error) {
	o := applyFilesystemOpts(opts)
	downloadURL := f.sandbox.DownloadURL(path, WithFileUser(o.user))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range f.sandbox.config.sandboxHeaders() {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := f.sandbox.envdHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if err := checkEnvdResponse(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// Write 通过 envd HTTP API 上传文件（multipart 流式写入）。
func (f *envdFilesystem) Write(ctx context.Context, path string, data []byte, opts ...FilesystemOption) (*EntryInfo, error) {
	o := applyFilesystemOpts(opts)
	uploadURL := f.sandbox.UploadURL(path, WithFileUser(o.user))

	pr, pw := io.Pipe()
	writer := newMultipartWriter(pw)

	go func() {
		if err := writer.writeFile("file", path, data); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := writer.close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, pr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.contentType())
	for k, vs := range f.sandbox.config.sandboxHeaders() {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := f.sandbox.envdHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()

	if err := checkEnvdResponse(resp); err != nil {
		return nil, err
	}

	// 上传成功后通过 Stat 获取文件信息
	return f.GetInfo(ctx, path, opts...)
}

// WriteFiles 批量写入多个文件。
// 单次 multipart 请求上传全部文件，part filename 携带完整路径。
func (f *envdFilesystem) WriteFiles(ctx context.Context, files []WriteEntry, opts ...FilesystemOption) error {
	if len(files) == 0 {
		return nil
	}
	o := applyFilesystemOpts(opts)
	uploadURL := f.sandbox.batchUploadURL(o.user)

	pr, pw := io.Pipe()
	writer := newMultipartWriter(pw)

	go func() {
		for _, file := range files {
			if err := writer.writeFileFullPath("file", file.Path, file.Data); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		if err := writer.close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, pr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.contentType())
	for k, vs := range f.sandbox.config.sandboxHeaders() {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := f.sandbox.envdHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("upload files: %w", err)
	}
	defer resp.Body.Close()

	return checkEnvdResponse(resp)
}

// List 列出目录内容。
func (f *envdFilesystem) List(ctx context.Context, path string, opts ...ListOption) ([]EntryInfo, error) {
	o := applyListOpts(opts)
	q := url.Values{}
	q.Set("path", path)
	q.Set("depth", strconv.FormatUint(uint64(o.depth), 10))

	resp, err := f.sandbox.envdRequest(ctx, http.MethodGet, "/filesystem/list", q, nil, o.user)
	if err != nil {
		return nil, fmt.Errorf("list dir: %w", err)
	}
	defer resp.Body.Close()
	if err := checkEnvdResponse(resp); err != nil {
		return nil, fmt.Errorf("list dir: %w", err)
	}

	var payload struct {
		Entries []entryPayload `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("list dir: %w", err)
	}
	entries := make([]EntryInfo, 0, len(payload.Entries))
	for i := range payload.Entries {
		entries = append(entries, *payload.Entries[i].toEntryInfo())
	}
	return entries, nil
}

// Exists 检查文件或目录是否存在。
func (f *envdFilesystem) Exists(ctx context.Context, path string, opts ...FilesystemOption) (bool, error) {
	_, err := f.GetInfo(ctx, path, opts...)
	if err != nil {
		if isEntryNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetInfo 返回文件或目录的元信息。
func (f *envdFilesystem) GetInfo(ctx context.Context, path string, opts ...FilesystemOption) (*EntryInfo, error) {
	o := applyFilesystemOpts(opts)
	q := url.Values{}
	q.Set("path", path)

	resp, err := f.sandbox.envdRequest(ctx, http.MethodGet, "/filesystem/stat", q, nil, o.user)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	defer resp.Body.Close()
	if err := checkEnvdResponse(resp); err != nil {
		return nil, err
	}
	return decodeEntry(resp.Body)
}

// MakeDir 创建目录（包含父目录）。
func (f *envdFilesystem) MakeDir(ctx context.Context, path string, opts ...FilesystemOption) (*EntryInfo, error) {
	o := applyFilesystemOpts(opts)
	body := struct {
		Path string `json:"path"`
	}{Path: path}

	resp, err := f.sandbox.envdRequest(ctx, http.MethodPost, "/filesystem/mkdir", nil, body, o.user)
	if err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	defer resp.Body.Close()
	if err := checkEnvdResponse(resp); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return decodeEntry(resp.Body)
}

// Remove 删除文件或目录。
func (f *envdFilesystem) Remove(ctx context.Context, path string, opts ...FilesystemOption) error {
	o := applyFilesystemOpts(opts)
	body := struct {
		Path string `json:"path"`
	}{Path: path}

	resp, err := f.sandbox.envdRequest(ctx, http.MethodPost, "/filesystem/remove", nil, body, o.user)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	defer resp.Body.Close()
	if err := checkEnvdResponse(resp); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// Rename 重命名或移动文件/目录。
func (f *envdFilesystem) Rename(ctx context.Context, oldPath, newPath string, opts ...FilesystemOption) (*EntryInfo, error) {
	o := applyFilesystemOpts(opts)
	body := struct {
		Source      string `json:"source"`
		Destination string `json:"destination"`
	}{Source: oldPath, Destination: newPath}

	resp, err := f.sandbox.envdRequest(ctx, http.MethodPost, "/filesystem/move", nil, body, o.user)
	if err != nil {
		return nil, fmt.Errorf("move: %w", err)
	}
	defer resp.Body.Close()
	if err := checkEnvdResponse(resp); err != nil {
		return nil, fmt.Errorf("move: %w", err)
	}
	return decodeEntry(resp.Body)
}

// WatchDir 监听目录变更。返回 WatchHandle 用于接收事件和停止监听。
func (f *envdFilesystem) WatchDir(ctx context.Context, path string, opts ...WatchOption) (*WatchHandle, error) {
	o := applyWatchOpts(opts)

	watchCtx, cancel := context.WithCancel(ctx)
	q := url.Values{}
	q.Set("path", path)
	if o.recursive {
		q.Set("recursive", "true")
	}

	resp, err := f.sandbox.envdRequest(watchCtx, http.MethodGet, "/filesystem/watch", q, nil, o.user)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	if err := checkEnvdResponse(resp); err != nil {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("watch dir: %w", err)
	}

	w := &WatchHandle{
		events: make(chan FilesystemEvent, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		defer close(w.events)
		defer resp.Body.Close()

		dec := json.NewDecoder(resp.Body)
		for {
			var msg struct {
				Filesystem *struct {
					Name string `json:"name"`
					Type string `json:"type"`
				} `json:"filesystem,omitempty"`
			}
			if err := dec.Decode(&msg); err != nil {
				if err != io.EOF && watchCtx.Err() == nil {
					w.err = err
				}
				return
			}
			if msg.Filesystem == nil {
				continue
			}
			ev := FilesystemEvent{
				Name: msg.Filesystem.Name,
				Type: EventType(msg.Filesystem.Type),
			}
			select {
			case w.events <- ev:
			case <-watchCtx.Done():
				return
			}
		}
	}()

	return w, nil
}

// decodeEntry 解析 envd 返回的单个条目响应。
func decodeEntry(r io.Reader) (*EntryInfo, error) {
	var payload struct {
		Entry *entryPayload `json:"entry"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	if payload.Entry == nil {
		return nil, fmt.Errorf("entry missing in response")
	}
	return payload.Entry.toEntryInfo(), nil
}
