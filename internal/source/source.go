// Package source 读取待处理的页面：本地 HTML 文件或 http(s) URL。
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bestmoney-nz/bmcompare/internal/domain"
)

// MaxPageBytes 是单个页面允许的最大字节数。
const MaxPageBytes = 8 << 20

// Page 是读取到的页面源。
type Page struct {
	Body []byte

	// URL 是远端页面的最终 URL（跟随重定向后）；本地文件为空。
	URL string
	// Path 是本地文件路径；远端页面为空。
	Path    string
	ModTime time.Time
	Size    int64
}

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// Error 带上读取阶段，便于上层映射 error_code。
type Error struct {
	Ref  string
	Code string // domain.ErrCodeReadFailed / domain.ErrCodeFetchFailed
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "source error"
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Ref, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode 返回 err 对应的 error_code；不是 *Error 时返回 read_failed。
func ErrorCode(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Code != "" {
		return se.Code
	}
	return domain.ErrCodeReadFailed
}

// IsRemote 判断 ref 是否是 http(s) URL。
func IsRemote(ref string) bool {
	ref = strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Load 读取 ref 指向的页面。远端页面用 c 抓取（c 为 nil 时使用 http.DefaultClient）。
func Load(ctx context.Context, ref string, c *http.Client) (Page, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Page{}, &Error{Ref: ref, Code: domain.ErrCodeReadFailed, Err: errors.New("页面路径为空")}
	}
	if IsRemote(ref) {
		p, err := fetch(ctx, c, ref)
		if err != nil {
			return Page{}, &Error{Ref: ref, Code: domain.ErrCodeFetchFailed, Err: err}
		}
		return p, nil
	}
	p, err := ReadFile(ref)
	if err != nil {
		return Page{}, &Error{Ref: ref, Code: domain.ErrCodeReadFailed, Err: err}
	}
	return p, nil
}

// ReadFile 读取本地页面文件。
func ReadFile(path string) (Page, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Page{}, err
	}
	if st.IsDir() {
		return Page{}, fmt.Errorf("%s 是目录", path)
	}
	if st.Size() > MaxPageBytes {
		return Page{}, fmt.Errorf("页面过大：%d 字节", st.Size())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Page{}, err
	}
	return Page{Body: b, Path: path, ModTime: st.ModTime(), Size: int64(len(b))}, nil
}

func fetch(ctx context.Context, c *http.Client, u string) (Page, error) {
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := c.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, &HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, MaxPageBytes+1))
	if err != nil {
		return Page{}, err
	}
	if len(b) > MaxPageBytes {
		return Page{}, fmt.Errorf("页面过大：超过 %d 字节", MaxPageBytes)
	}

	final := u
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	p := Page{Body: b, URL: final, Size: int64(len(b))}
	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		p.ModTime = lm
	}
	return p, nil
}
