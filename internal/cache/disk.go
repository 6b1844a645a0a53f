package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound 表示磁盘缓存条目不存在。
var ErrNotFound = errors.New("cache entry not found")

// diskStore 负责缓存根目录下 file-per-resource 的读写。
// 写入通过临时文件 + rename 保证原子性，失败时清理临时文件。
type diskStore struct {
	root string
}

func newDiskStore(root string) (*diskStore, error) {
	if root == "" {
		return nil, errors.New("cache path required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache path: %w", err)
	}
	return &diskStore{root: abs}, nil
}

func (s *diskStore) path(key string) string {
	return filepath.Join(s.root, key)
}

// stat 返回条目的文件信息；不存在返回 ErrNotFound。
func (s *diskStore) stat(key string) (fs.FileInfo, error) {
	info, err := os.Stat(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}
	return info, nil
}

// write 将 body 流式写入条目文件，不做整体缓冲。ctx 取消会中断拷贝。
func (s *diskStore) write(ctx context.Context, key string, body io.Reader) (int64, error) {
	filePath := s.path(key)

	tempFile, err := os.CreateTemp(s.root, ".cache-*")
	if err != nil {
		return 0, err
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return written, err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return written, err
	}

	now := time.Now()
	if err := os.Chtimes(filePath, now, now); err != nil {
		return written, err
	}
	return written, nil
}

// remove 删除条目文件；不存在不视为错误。
func (s *diskStore) remove(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// entries 返回缓存根目录一层深度内的所有条目文件名。
func (s *diskStore) entries() ([]string, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(dirEntries))
	for _, entry := range dirEntries {
		// 跳过子目录与写入中的临时文件。
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
