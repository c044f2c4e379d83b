package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileName 是配置文件名。
const FileName = "bmcompare.json"

const (
	// ErrCodeNotFound 表示未指定 path 运行但 cwd 下没有 bmcompare.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示未指定 path 运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	DefaultListen          = ":8080"
	DefaultConcurrency     = 4
	DefaultEventsPerMinute = 60
	DefaultRedisStream     = "bmcompare:events"
)

// DefaultDevHosts 是 dev_hosts 的默认值。
var DefaultDevHosts = []string{"localhost", "127.0.0.1"}

// CLIArgs 只包含 CLI 暴露的入口（path/listen/write），并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --write=false 必须能覆盖 config.write=true。
type CLIArgs struct {
	Path string

	Listen    string
	ListenSet bool

	Write    bool
	WriteSet bool
}

// FileConfig 对应 bmcompare.json 的解析结构。
type FileConfig struct {
	Path            string           `json:"path"`
	Listen          string           `json:"listen"`
	Write           *bool            `json:"write"`
	Concurrency     int              `json:"concurrency"`
	Proxy           *ProxyConfig     `json:"proxy"`
	ExcludeDirs     []string         `json:"exclude_dirs"`
	Log             *LogConfig       `json:"log"`
	Analytics       *AnalyticsConfig `json:"analytics"`
	DevHosts        []string         `json:"dev_hosts"`
	PageCache       *bool            `json:"page_cache"`
	EventsPerMinute *int             `json:"events_per_minute"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type AnalyticsConfig struct {
	Sink        string `json:"sink"`
	RedisAddr   string `json:"redis_addr"`
	RedisStream string `json:"redis_stream"`
	Endpoint    string `json:"endpoint"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path   string
	Listen string
	Write  bool

	Concurrency int
	ProxyURL    string
	ExcludeDirs []string

	LogLevel  string
	LogFormat string

	Analytics AnalyticsConfig
	DevHosts  []string

	PageCache       bool
	EventsPerMinute int
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按约定发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/bmcompare.json（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/bmcompare.json（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：
// - path：CLI path > config path
// - listen：CLI --listen > config > 默认 :8080
// - write：CLI --write/--write=false > config > 默认 false
// - 其他字段：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath := filepath.Join(absPath, FileName)

		fc, _, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(absPath, cli, fc, cfgPath)
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	return merge(absCleanFrom(cwdAbs, fc.Path), cli, fc, cfgPath)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	// listen：CLI > config > 默认
	listen := DefaultListen
	if cli.ListenSet {
		listen = strings.TrimSpace(cli.Listen)
	} else if strings.TrimSpace(fc.Listen) != "" {
		listen = strings.TrimSpace(fc.Listen)
	}
	if _, _, err := net.SplitHostPort(listen); err != nil {
		return EffectiveConfig{}, invalid("listen 无效：%q", listen)
	}

	// write：CLI > config > 默认 false
	write := false
	if cli.WriteSet {
		write = cli.Write
	} else if fc.Write != nil {
		write = *fc.Write
	}

	concurrency := fc.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 32 {
		concurrency = 32
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("proxy.url 无效：%w", err)}
		}
	}

	var lc LogConfig
	if fc.Log != nil {
		lc.Level = strings.ToLower(strings.TrimSpace(fc.Log.Level))
		lc.Format = strings.ToLower(strings.TrimSpace(fc.Log.Format))
	}
	switch lc.Level {
	case "":
		lc.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return EffectiveConfig{}, invalid("log.level 只能是 debug/info/warn/error，实际是 %q", lc.Level)
	}
	switch lc.Format {
	case "":
		lc.Format = "console"
	case "console", "json":
	default:
		return EffectiveConfig{}, invalid("log.format 只能是 console/json，实际是 %q", lc.Format)
	}

	ac, err := normalizeAnalytics(fc.Analytics)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	devHosts := DefaultDevHosts
	if fc.DevHosts != nil {
		devHosts = make([]string, 0, len(fc.DevHosts))
		for _, h := range fc.DevHosts {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				devHosts = append(devHosts, h)
			}
		}
	}

	pageCache := true
	if fc.PageCache != nil {
		pageCache = *fc.PageCache
	}

	// 缺省为 60；显式 0 表示不限流。
	epm := DefaultEventsPerMinute
	if fc.EventsPerMinute != nil {
		epm = *fc.EventsPerMinute
	}
	if epm < 0 {
		return EffectiveConfig{}, invalid("events_per_minute 不能为负数：%d", epm)
	}

	return EffectiveConfig{
		Path:            absPath,
		Listen:          listen,
		Write:           write,
		Concurrency:     concurrency,
		ProxyURL:        proxyURL,
		ExcludeDirs:     append([]string(nil), fc.ExcludeDirs...),
		LogLevel:        lc.Level,
		LogFormat:       lc.Format,
		Analytics:       ac,
		DevHosts:        append([]string(nil), devHosts...),
		PageCache:       pageCache,
		EventsPerMinute: epm,
	}, nil
}

func normalizeAnalytics(in *AnalyticsConfig) (AnalyticsConfig, error) {
	var ac AnalyticsConfig
	if in != nil {
		ac = AnalyticsConfig{
			Sink:        strings.ToLower(strings.TrimSpace(in.Sink)),
			RedisAddr:   strings.TrimSpace(in.RedisAddr),
			RedisStream: strings.TrimSpace(in.RedisStream),
			Endpoint:    strings.TrimSpace(in.Endpoint),
		}
	}
	if ac.Sink == "" {
		ac.Sink = "none"
	}
	switch ac.Sink {
	case "none", "log":
	case "redis":
		if ac.RedisAddr == "" {
			return ac, fmt.Errorf("analytics.sink=redis 但 analytics.redis_addr 为空")
		}
		if ac.RedisStream == "" {
			ac.RedisStream = DefaultRedisStream
		}
	case "http":
		u, err := url.Parse(ac.Endpoint)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return ac, fmt.Errorf("analytics.endpoint 必须是 http/https URL：%q", ac.Endpoint)
		}
	default:
		return ac, fmt.Errorf("analytics.sink 只能是 none/log/redis/http，实际是 %q", ac.Sink)
	}
	return ac, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
