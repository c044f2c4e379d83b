package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/bestmoney-nz/bmcompare/internal/infra/fsx"
)

// Store 提供 <path>/cache/ 下的渲染结果缓存读写。
//
// 约束：
// - 只读模式（ReadOnly=true）：只允许读
// - 写入模式（ReadOnly=false）：允许写
type Store struct {
	Root     string // <path>（站点根目录）
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// PageKey 标识一次渲染：源页面 + 规范化查询串 + 源文件版本。
// 源文件的 mtime/size 任一变化都会得到新 key，旧条目自然失效。
type PageKey struct {
	Page    string // 对外 URL 路径
	Query   string // 规范化的筛选查询串（不含 '?'）
	ModUnix int64
	Size    int64
}

func (k PageKey) valid() error {
	if strings.TrimSpace(k.Page) == "" {
		return fmt.Errorf("page 不能为空")
	}
	return nil
}

// Hash 返回 key 的稳定摘要（16 位十六进制）。
func (k PageKey) Hash() string {
	d := xxhash.New()
	_, _ = d.WriteString(k.Page)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(k.Query)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.FormatInt(k.ModUnix, 10))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.FormatInt(k.Size, 10))
	return fmt.Sprintf("%016x", d.Sum64())
}

// PagePath 返回渲染缓存的绝对路径。
func (s Store) PagePath(k PageKey) (string, error) {
	if err := k.valid(); err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "cache", "pages", k.Hash()+".html"), nil
}

// ReadPage 读取渲染缓存；不存在时 ok=false 且 err=nil。
func (s Store) ReadPage(k PageKey) ([]byte, bool, error) {
	path, err := s.PagePath(k)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// WritePage 原子写入渲染缓存。
func (s Store) WritePage(k PageKey, html []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	if err := k.valid(); err != nil {
		return err
	}
	dir := filepath.Join(s.Root, "cache", "pages")
	return fsx.WriteFileAtomicReplace(dir, k.Hash()+".html", html)
}

// WriteReport 原子写入 <path>/cache/<name>（审计报告等）。
func (s Store) WriteReport(name string, b []byte) (string, error) {
	if s.ReadOnly {
		return "", ErrReadOnly
	}
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("非法文件名：%q", name)
	}
	dir := filepath.Join(s.Root, "cache")
	if err := fsx.WriteFileAtomicReplace(dir, name, b); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
