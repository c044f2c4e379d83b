package scan

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bestmoney-nz/bmcompare/internal/domain"
)

// CacheDirName 是站点根目录下的缓存目录，扫描时永久排除。
const CacheDirName = "cache"

// ScanPages 扫描 root 下的 HTML 页面，并应用目录排除规则。
//
// 规则（硬约束）：
// - 永久排除：<root>/cache/ 与以 "." 开头的目录
// - excludeDirs：来自配置文件，均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）
//
// 注意：扫描阶段只做 stat（DirEntry.Info），不读文件内容。
func ScanPages(root string, excludeDirs []string) ([]domain.PageFile, error) {
	root = filepath.Clean(root)
	excluded := buildExcluded(root, excludeDirs)

	files := make([]domain.PageFile, 0, 64)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if isExcluded(p, excluded) || (d.IsDir() && p != root && strings.HasPrefix(d.Name(), ".")) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsPageExt(filepath.Ext(d.Name())) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		files = append(files, domain.PageFile{
			AbsPath: p,
			RelPath: rel,
			URLPath: URLPath(rel),
			Size:    info.Size(),
			ModUnix: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// IsPageExt 判断扩展名是否是 HTML 页面（大小写不敏感）。
func IsPageExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".html", ".htm":
		return true
	default:
		return false
	}
}

// URLPath 把相对路径映射为对外 URL 路径；index.html 映射为其所在目录。
func URLPath(rel string) string {
	p := "/" + filepath.ToSlash(rel)
	dir, base := path.Split(p)
	if strings.EqualFold(base, "index.html") || strings.EqualFold(base, "index.htm") {
		return dir
	}
	return p
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, 1+len(excludeDirs))
	excluded = append(excluded, filepath.Clean(filepath.Join(root, CacheDirName)))

	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	sort.Strings(excluded)
	return excluded
}

func isExcluded(p string, excluded []string) bool {
	p = filepath.Clean(p)
	for _, base := range excluded {
		if isUnder(p, base) {
			return true
		}
	}
	return false
}

func isUnder(p, base string) bool {
	if p == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(p, base+sep)
}
