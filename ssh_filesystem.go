package agentbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"

	"github.com/pkg/sftp"
)

// sshFilesystem 是 SSH 后端的文件操作实现，基于 SFTP 子系统。
// 操作以 SSH 登录用户的身份执行，WithUser 选项不生效。
type sshFilesystem struct {
	ssh *sshSession
}

func newSSHFilesystem(s *sshSession) *sshFilesystem {
	return &sshFilesystem{ssh: s}
}

// Read 读取指定路径的文件内容。
func (f *sshFilesystem) Read(ctx context.Context, filePath string, opts ...FilesystemOption) ([]byte, error) {
	client, err := f.ssh.sftp(ctx)
	if err != nil {
		return nil, err
	}
	file, err := client.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer file.Close()
	return io.ReadAll(file)
}

// Write 写入文件内容。如果文件已存在则覆盖，自动创建父目录。
func (f *sshFilesystem) Write(ctx context.Context, filePath string, data []byte, opts ...FilesystemOption) (*EntryInfo, error) {
	client, err := f.ssh.sftp(ctx)
	if err != nil {
		return nil, err
	}
	if dir := path.Dir(filePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	file, err := client.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filePath, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return nil, fmt.Errorf("write %s: %w", filePath, err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", filePath, err)
	}
	return f.GetInfo(ctx, filePath, opts...)
}

// WriteFiles 批量写入多个文件。
func (f *sshFilesystem) WriteFiles(ctx context.Context, files []WriteEntry, opts ...FilesystemOption) error {
	for _, file := range files {
		if _, err := f.Write(ctx, file.Path, file.Data, opts...); err != nil {
			return err
		}
	}
	return nil
}

// List 列出目录内容，按 WithDepth 指定的深度递归。
func (f *sshFilesystem) List(ctx context.Context, dirPath string, opts ...ListOption) ([]EntryInfo, error) {
	o := applyListOpts(opts)
	client, err := f.ssh.sftp(ctx)
	if err != nil {
		return nil, err
	}
	var entries []EntryInfo
	if err := f.listDir(client, dirPath, o.depth, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (f *sshFilesystem) listDir(client *sftp.Client, dirPath string, depth uint32, entries *[]EntryInfo) error {
	if depth == 0 {
		return nil
	}
	infos, err := client.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("list %s: %w", dirPath, err)
	}
	for _, info := range infos {
		entryPath := path.Join(dirPath, info.Name())
		*entries = append(*entries, *entryInfoFromStat(entryPath, info))
		if info.IsDir() {
			if err := f.listDir(client, entryPath, depth-1, entries); err != nil {
				return err
			}
		}
	}
	return nil
}

// Exists 检查文件或目录是否存在。
func (f *sshFilesystem) Exists(ctx context.Context, filePath string, opts ...FilesystemOption) (bool, error) {
	_, err := f.GetInfo(ctx, filePath, opts...)
	if err != nil {
		if isEntryNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetInfo 返回文件或目录的元信息。
func (f *sshFilesystem) GetInfo(ctx context.Context, filePath string, opts ...FilesystemOption) (*EntryInfo, error) {
	client, err := f.ssh.sftp(ctx)
	if err != nil {
		return nil, err
	}
	info, err := client.Lstat(filePath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", filePath, err)
	}
	entry := entryInfoFromStat(filePath, info)
	if info.Mode()&os.ModeSymlink != 0 {
		if target, lerr := client.ReadLink(filePath); lerr == nil {
			entry.SymlinkTarget = &target
		}
	}
	return entry, nil
}

// MakeDir 创建目录（包含父目录）。
func (f *sshFilesystem) MakeDir(ctx context.Context, dirPath string, opts ...FilesystemOption) (*EntryInfo, error) {
	client, err := f.ssh.sftp(ctx)
	if err != nil {
		return nil, err
	}
	if err := client.MkdirAll(dirPath); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dirPath, err)
	}
	return f.GetInfo(ctx, dirPath, opts...)
}

// Remove 删除文件或目录（目录递归删除）。
func (f *sshFilesystem) Remove(ctx context.Context, filePath string, opts ...FilesystemOption) error {
	client, err := f.ssh.sftp(ctx)
	if err != nil {
		return err
	}
	info, err := client.Lstat(filePath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", filePath, err)
	}
	if info.IsDir() {
		if err := client.RemoveAll(filePath); err != nil {
			return fmt.Errorf("remove %s: %w", filePath, err)
		}
		return nil
	}
	if err := client.Remove(filePath); err != nil {
		return fmt.Errorf("remove %s: %w", filePath, err)
	}
	return nil
}

// Rename 重命名或移动文件/目录。
func (f *sshFilesystem) Rename(ctx context.Context, oldPath, newPath string, opts ...FilesystemOption) (*EntryInfo, error) {
	client, err := f.ssh.sftp(ctx)
	if err != nil {
		return nil, err
	}
	if err := client.PosixRename(oldPath, newPath); err != nil {
		return nil, fmt.Errorf("rename %s: %w", oldPath, err)
	}
	return f.GetInfo(ctx, newPath, opts...)
}

// WatchDir 不被 SSH 后端支持。
func (f *sshFilesystem) WatchDir(ctx context.Context, dirPath string, opts ...WatchOption) (*WatchHandle, error) {
	return nil, &CapabilityError{Message: "directory watch is not supported over the ssh backend"}
}

// entryInfoFromStat 将 SFTP 文件信息转换为 EntryInfo。
func entryInfoFromStat(entryPath string, info os.FileInfo) *EntryInfo {
	entry := &EntryInfo{
		Name:         info.Name(),
		Path:         entryPath,
		Size:         info.Size(),
		Mode:         uint32(info.Mode()),
		Permissions:  info.Mode().String(),
		ModifiedTime: info.ModTime(),
		Type:         FileTypeFile,
	}
	if info.IsDir() {
		entry.Type = FileTypeDirectory
	}
	if stat, ok := info.Sys().(*sftp.FileStat); ok {
		entry.Owner = strconv.FormatUint(uint64(stat.UID), 10)
		entry.Group = strconv.FormatUint(uint64(stat.GID), 10)
	}
	return entry
}
