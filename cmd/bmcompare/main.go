package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bestmoney-nz/bmcompare/internal/analytics"
	"github.com/bestmoney-nz/bmcompare/internal/app/audit"
	"github.com/bestmoney-nz/bmcompare/internal/app/page"
	"github.com/bestmoney-nz/bmcompare/internal/config"
	"github.com/bestmoney-nz/bmcompare/internal/domain"
	"github.com/bestmoney-nz/bmcompare/internal/infra/cache"
	"github.com/bestmoney-nz/bmcompare/internal/infra/httpx"
	"github.com/bestmoney-nz/bmcompare/internal/infra/logx"
	"github.com/bestmoney-nz/bmcompare/internal/infra/metrics"
	"github.com/bestmoney-nz/bmcompare/internal/scan"
	"github.com/bestmoney-nz/bmcompare/internal/server"
	"github.com/bestmoney-nz/bmcompare/internal/source"
)

const auditReportName = "audit.json"

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	var code int
	switch args[0] {
	case "filter":
		code = filterCmd(args[1:])
	case "audit":
		code = auditCmd(args[1:])
	case "serve":
		code = serveCmd(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		code = 2
	}
	if code != 0 {
		os.Exit(code)
	}
}

// ---- filter ----

type filterArgs struct {
	Ref     string
	Query   string
	HTML    bool
	Events  bool
	Proxy   string
	Verbose bool
}

func parseFilterArgs(args []string) (filterArgs, error) {
	fa := filterArgs{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--query" || a == "--proxy":
			if i+1 >= len(args) {
				return filterArgs{}, fmt.Errorf("%s 需要一个值", a)
			}
			i++
			if a == "--query" {
				fa.Query = args[i]
			} else {
				fa.Proxy = args[i]
			}
		case strings.HasPrefix(a, "--query="):
			fa.Query = strings.TrimPrefix(a, "--query=")
		case strings.HasPrefix(a, "--proxy="):
			fa.Proxy = strings.TrimPrefix(a, "--proxy=")
		case a == "--html":
			fa.HTML = true
		case a == "--events":
			fa.Events = true
		case a == "-v" || a == "--verbose":
			fa.Verbose = true
		case strings.HasPrefix(a, "-"):
			return filterArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if fa.Ref != "" {
				return filterArgs{}, fmt.Errorf("重复的页面：%q 与 %q", fa.Ref, a)
			}
			fa.Ref = a
		}
	}
	if fa.Ref == "" {
		return filterArgs{}, errors.New("缺少页面（文件路径或 http(s) URL）")
	}
	if fa.HTML && fa.Events {
		return filterArgs{}, errors.New("--html 与 --events 不能同时使用")
	}
	fa.Query = strings.TrimPrefix(strings.TrimSpace(fa.Query), "?")
	return fa, nil
}

// filterOutput 是 filter 命令的 JSON 输出。
type filterOutput struct {
	page.Result
	Events []domain.Event `json:"events,omitempty"`
}

func filterCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printFilterUsage()
			return 0
		}
	}
	fa, err := parseFilterArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printFilterUsage()
		return 2
	}

	level := "warn"
	if fa.Verbose {
		level = "debug"
	}
	log := logx.Must(level, "console")
	defer func() { _ = log.Sync() }()

	// 当前目录下的 bmcompare.json 可选：提供 proxy.url 与 dev_hosts 的默认值。
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	eff, err := config.LoadEffective(cwd, config.CLIArgs{Path: cwd})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var client *http.Client
	if source.IsRemote(fa.Ref) {
		client, err = httpx.NewPageClient(filterProxy(fa, eff))
		if err != nil {
			fmt.Fprintf(os.Stderr, "初始化 HTTP 客户端失败：%v\n", err)
			return 1
		}
	}
	src, err := source.Load(ctx, fa.Ref, client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %v\n", fa.Ref, source.ErrorCode(err), err)
		return 1
	}

	var sink *analytics.MemorySink
	opts := page.Options{
		URL:     pageURL(src, fa.Query),
		Render:  fa.HTML,
		Context: ctx,
		Logger:  log,
	}
	if fa.Events {
		sink = &analytics.MemorySink{}
		opts.Track = true
		opts.Sink = sink
		opts.DevHosts = eff.DevHosts
	}

	res, err := page.Mount(src.Body, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %v\n", fa.Ref, domain.ErrCodeParseFailed, err)
		return 1
	}

	if fa.HTML {
		if _, err := os.Stdout.Write(res.HTML); err != nil {
			return 1
		}
		return 0
	}

	out := filterOutput{Result: res}
	if sink != nil {
		out.Events = sink.Events()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
	if !res.Mounted {
		fmt.Fprintln(os.Stderr, "提示：页面缺少筛选表单或卡片，筛选未启用")
	}
	return 0
}

// filterProxy：--proxy > config proxy.url > 不使用代理。
func filterProxy(fa filterArgs, eff config.EffectiveConfig) string {
	if p := strings.TrimSpace(fa.Proxy); p != "" {
		return p
	}
	return eff.ProxyURL
}

// pageURL 返回挂载页面用的地址：远程页面沿用最终 URL，本地文件映射为站点路径。
func pageURL(p source.Page, query string) string {
	if p.URL != "" {
		if u, err := url.Parse(p.URL); err == nil {
			u.RawQuery = query
			u.Fragment = ""
			return u.String()
		}
	}
	path := scan.URLPath(filepath.Base(p.Path))
	if query == "" {
		return path
	}
	return path + "?" + query
}

// ---- audit ----

type auditArgs struct {
	Path     string
	Write    bool
	WriteSet bool
}

func parseAuditArgs(args []string) (auditArgs, error) {
	aa := auditArgs{}
	for _, a := range args {
		switch {
		case a == "--write":
			aa.Write = true
			aa.WriteSet = true
		case strings.HasPrefix(a, "--write="):
			v, err := parseBool("--write", strings.TrimPrefix(a, "--write="))
			if err != nil {
				return auditArgs{}, err
			}
			aa.Write = v
			aa.WriteSet = true
		case strings.HasPrefix(a, "-"):
			return auditArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if aa.Path != "" {
				return auditArgs{}, fmt.Errorf("重复的 path：%q 与 %q", aa.Path, a)
			}
			aa.Path = a
		}
	}
	return aa, nil
}

func auditCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printAuditUsage()
			return 0
		}
	}
	aa, err := parseAuditArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printAuditUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Path:     aa.Path,
		Write:    aa.Write,
		WriteSet: aa.WriteSet,
	})
	if err != nil {
		emitReport(reportForConfigError(cwdAbs, err))
		return 1
	}

	log, err := logx.New(eff.LogLevel, eff.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败：%v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progressW, interactive := pickProgressWriter()
	var obs audit.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	ar := audit.ExecuteWithObserver(ctx, eff, log, obs)

	// write：必须写入 <path>/cache/audit.json；只读模式禁止落盘。
	if eff.Write {
		if err := writeReportFile(eff.Path, ar); err != nil {
			fmt.Fprintf(os.Stderr, "写入 %s 失败：%v\n", auditReportName, err)
			emitReport(ar)
			return 1
		}
	}

	emitReport(ar)
	if interactive {
		emitLocations(progressW, eff)
	}
	if ar.Summary.Failed == 0 {
		return 0
	}
	return 1
}

func emitReport(ar domain.AuditReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, summaryLine(ar))
		if ar.Summary.Failed > 0 {
			for _, it := range ar.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := it.Page
				if key == "" {
					key = ar.Path
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 AuditReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(ar)
	fmt.Fprintln(os.Stderr, summaryLine(ar))
}

func summaryLine(ar domain.AuditReport) string {
	return fmt.Sprintf("完成：filterable=%d inert=%d failed=%d empty_buckets=%d",
		ar.Summary.Filterable, ar.Summary.Inert, ar.Summary.Failed, ar.Summary.EmptyBuckets,
	)
}

func reportForConfigError(cwdAbs string, err error) domain.AuditReport {
	now := time.Now().UTC()
	ar := domain.AuditReport{
		Path:       cwdAbs,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.PageResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	ar.Finalize()
	return ar
}

func writeReportFile(root string, ar domain.AuditReport) error {
	b, err := json.MarshalIndent(ar, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = cache.New(root, false).WriteReport(auditReportName, b)
	return err
}

// ---- serve ----

type serveArgs struct {
	Path      string
	Listen    string
	ListenSet bool
}

func parseServeArgs(args []string) (serveArgs, error) {
	sa := serveArgs{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--listen":
			if i+1 >= len(args) {
				return serveArgs{}, errors.New("--listen 需要一个值")
			}
			i++
			sa.Listen = args[i]
			sa.ListenSet = true
		case strings.HasPrefix(a, "--listen="):
			sa.Listen = strings.TrimPrefix(a, "--listen=")
			sa.ListenSet = true
		case strings.HasPrefix(a, "-"):
			return serveArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if sa.Path != "" {
				return serveArgs{}, fmt.Errorf("重复的 path：%q 与 %q", sa.Path, a)
			}
			sa.Path = a
		}
	}
	if sa.ListenSet && strings.TrimSpace(sa.Listen) == "" {
		return serveArgs{}, errors.New("--listen 不能为空")
	}
	return sa, nil
}

func serveCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printServeUsage()
			return 0
		}
	}
	sa, err := parseServeArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printServeUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Path:      sa.Path,
		Listen:    sa.Listen,
		ListenSet: sa.ListenSet,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	log, err := logx.New(eff.LogLevel, eff.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败：%v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	if err := serve(eff, log); err != nil {
		log.Error("serve failed", zap.Error(err))
		return 1
	}
	return 0
}

func serve(eff config.EffectiveConfig, log *zap.Logger) error {
	sink, closeSink, err := analytics.OpenSink(analytics.SinkConfig{
		Kind:        eff.Analytics.Sink,
		RedisAddr:   eff.Analytics.RedisAddr,
		RedisStream: eff.Analytics.RedisStream,
		Endpoint:    eff.Analytics.Endpoint,
	}, log)
	if err != nil {
		return fmt.Errorf("open analytics sink: %w", err)
	}
	defer func() {
		if err := closeSink(); err != nil {
			log.Warn("close analytics sink", zap.Error(err))
		}
	}()

	opts := server.Options{
		Root:            eff.Path,
		Sink:            sink,
		Metrics:         metrics.New(),
		Logger:          log,
		DevHosts:        eff.DevHosts,
		EventsPerMinute: eff.EventsPerMinute,
	}
	if eff.PageCache {
		store := cache.New(eff.Path, false)
		opts.Cache = &store
	}
	srv := server.New(opts)
	defer srv.Close()

	hs := &http.Server{
		Addr:         eff.Listen,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("serving site",
			zap.String("listen", eff.Listen),
			zap.String("path", eff.Path),
			zap.String("analytics_sink", eff.Analytics.Sink),
			zap.Bool("page_cache", eff.PageCache),
		)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		return err
	case <-quit:
		log.Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}

// ---- shared ----

func parseBool(flag, v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", flag, v)
	}
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  bmcompare filter <file|url> [--query q] [--html] [--events]
  bmcompare audit [path] [--write[=true|false]]
  bmcompare serve [path] [--listen addr]

命令：
  filter  对单个页面应用筛选并输出结果
  audit   审计站点内所有可筛选页面的每个选项（默认只读）
  serve   提供站点服务：按查询串在服务端应用筛选，并接收分析事件

使用 "bmcompare <命令> --help" 查看详细说明。
`)
}

func printFilterUsage() {
	fmt.Fprint(os.Stdout, `用法：
  bmcompare filter <file|url> [--query q] [--html] [--events]

参数：
  --query    筛选查询串，例如 "credit=good&amount=10000-25000"
  --html     输出筛选后的 HTML（默认输出 JSON 结果）
  --events   挂载事件上报，并在 JSON 中附带产生的事件
  --proxy    抓取远程页面时使用的代理（未指定则读当前目录 bmcompare.json 的 proxy.url）
  -v         输出调试日志（stderr）
  -h, --help 显示帮助
`)
}

func printAuditUsage() {
	fmt.Fprint(os.Stdout, `用法：
  bmcompare audit [path] [--write[=true|false]]

参数：
  --write     写入渲染缓存与 cache/audit.json（默认只读）；支持 --write=false 覆盖配置中的 write=true
  -h, --help  显示帮助
`)
}

func printServeUsage() {
	fmt.Fprint(os.Stdout, `用法：
  bmcompare serve [path] [--listen addr]

参数：
  --listen    监听地址（未指定则读配置文件；最终默认 :8080）
  -h, --help  显示帮助
`)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if eff.Write {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Path, scan.CacheDirName, auditReportName))
		fmt.Fprintf(w, "pages: %s\n", filepath.Join(eff.Path, scan.CacheDirName, "pages"))
	}
}
