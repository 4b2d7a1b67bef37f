package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store 在本地磁盘保存照片与签名图片等证据文件。
// 按内容哈希寻址：同一文件重复上传只落盘一次，引用天然去重。
type Store struct {
	Root string
}

// SavedBlob 是一次落盘结果。Ref 形如 "<kind>/<sha256 前两位>/<sha256>.<ext>"，
// 相对 Root 存储，可直接作为答案或签名上的引用字段。
type SavedBlob struct {
	Ref    string
	SHA256 string
	Size   int64
}

func NewStore(root string) *Store {
	return &Store{Root: root}
}

// Save 将 r 的内容写入证据目录并返回引用。
// kind 用于分类（photo/signature），ext 是不带点的扩展名。
// 先写临时文件再按哈希改名，中断不会留下半写的可寻址文件。
func (s *Store) Save(kind, ext string, r io.Reader) (*SavedBlob, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return nil, errors.New("blob kind is required")
	}
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		ext = "bin"
	}

	if err := os.MkdirAll(filepath.Join(s.Root, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("prepare blob tmp dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.Root, "tmp"), "upload-*")
	if err != nil {
		return nil, fmt.Errorf("create blob temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	closeErr := tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("write blob temp file: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close blob temp file: %w", closeErr)
	}
	if size == 0 {
		return nil, errors.New("blob content is empty")
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	ref := filepath.ToSlash(filepath.Join(kind, sum[:2], sum+"."+ext))
	finalPath := filepath.Join(s.Root, filepath.FromSlash(ref))

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return nil, fmt.Errorf("prepare blob dir: %w", err)
	}
	if _, err := os.Stat(finalPath); err == nil {
		// 内容已存在，复用原文件。
		return &SavedBlob{Ref: ref, SHA256: sum, Size: size}, nil
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	return &SavedBlob{Ref: ref, SHA256: sum, Size: size}, nil
}

// Open 按引用打开已保存的文件。引用不得越出证据根目录。
func (s *Store) Open(ref string) (*os.File, error) {
	path, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", ref, err)
	}
	return f, nil
}

// Resolve 将引用转换为磁盘绝对路径，并拦截目录穿越。
func (s *Store) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("blob ref is empty")
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob ref: %s", ref)
	}
	return filepath.Join(s.Root, clean), nil
}

// Exists 判断引用对应的文件是否存在。
func (s *Store) Exists(ref string) bool {
	path, err := s.Resolve(ref)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
