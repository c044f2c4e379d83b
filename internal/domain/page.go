package domain

// PageFile 是站点目录中的一个 HTML 页面。
type PageFile struct {
	AbsPath string
	RelPath string // 相对站点根目录（OS 分隔符）
	// URLPath 是页面对外的路径："a/index.html" -> "/a/"，"a/b.html" -> "/a/b.html"。
	URLPath string
	Size    int64
	ModUnix int64
}
