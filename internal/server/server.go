// Package server 提供站点的 HTTP 服务：按请求查询串在服务端应用筛选后返回页面，
// 接收分析事件，并暴露健康检查与指标。
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bestmoney-nz/bmcompare/internal/analytics"
	"github.com/bestmoney-nz/bmcompare/internal/app/page"
	"github.com/bestmoney-nz/bmcompare/internal/dom"
	"github.com/bestmoney-nz/bmcompare/internal/domain"
	"github.com/bestmoney-nz/bmcompare/internal/engine"
	"github.com/bestmoney-nz/bmcompare/internal/infra/cache"
	"github.com/bestmoney-nz/bmcompare/internal/infra/metrics"
	"github.com/bestmoney-nz/bmcompare/internal/scan"
	"github.com/bestmoney-nz/bmcompare/internal/source"
)

const maxEventBytes = 16 << 10

// Options 是 Server 的依赖。
type Options struct {
	Root string
	// Cache 为 nil 时不使用渲染缓存。
	Cache *cache.Store
	// Sink 为 nil 时接收的事件被丢弃（仍返回 202）。
	Sink    analytics.Sink
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	// DevHosts 为 nil 时使用 analytics.DefaultDevHosts；按请求 Host 判断。
	DevHosts []string

	EventsPerMinute int
	Now             func() time.Time
	NewID           func() string
}

// Server 是站点 HTTP 服务。
type Server struct {
	root    string
	store   *cache.Store
	sink    analytics.Sink
	metrics *metrics.Metrics
	log     *zap.Logger
	limiter *RateLimiter
	devHost []string
	now     func() time.Time
	newID   func() string

	files http.Handler
}

func New(opts Options) *Server {
	s := &Server{
		root:    filepath.Clean(opts.Root),
		store:   opts.Cache,
		sink:    opts.Sink,
		metrics: opts.Metrics,
		log:     opts.Logger,
		limiter: NewRateLimiter(opts.EventsPerMinute, time.Minute),
		devHost: opts.DevHosts,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	s.files = http.FileServer(http.Dir(s.root))
	return s
}

// Close 停止后台任务。
func (s *Server) Close() { s.limiter.Stop() }

// Handler 返回完整的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.Handle("/events", RateLimitMiddleware(s.limiter, func() {
		s.metrics.EventsRejected.WithLabelValues("rate_limited").Inc()
	}, http.HandlerFunc(s.handleEvents)))
	mux.HandleFunc("/", s.handlePage)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

type eventRequest struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
}

type eventResponse struct {
	ID string `json:"id"`
}

func knownEvent(name string) bool {
	switch name {
	case domain.EventPageView, domain.EventCTAClick, domain.EventFilterUsed:
		return true
	}
	return false
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in eventRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err := dec.Decode(&in); err != nil {
		s.metrics.EventsRejected.WithLabelValues("invalid_body").Inc()
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !knownEvent(in.Name) {
		s.metrics.EventsRejected.WithLabelValues("unknown_event").Inc()
		http.Error(w, "unknown event", http.StatusBadRequest)
		return
	}
	if in.Attributes == nil {
		in.Attributes = map[string]string{}
	}

	ev := s.reporter(r).Emit(in.Name, in.Attributes)
	s.metrics.EventsReported.WithLabelValues(ev.Name).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(eventResponse{ID: ev.ID})
}

// reporter 为一次请求构造事件上报器；页面所在主机即请求的 Host。
func (s *Server) reporter(r *http.Request) *analytics.Reporter {
	var loc dom.Location
	if l, err := dom.NewLocation("http://" + r.Host + "/"); err == nil {
		loc = l
	}
	return analytics.NewReporter(s.sink, loc, analytics.Options{
		Context:  r.Context(),
		DevHosts: s.devHost,
		Logger:   s.log,
		Now:      s.now,
		NewID:    s.newID,
	})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	urlPath := path.Clean("/" + r.URL.Path)
	if isHiddenPath(urlPath) {
		http.NotFound(w, r)
		return
	}

	file, ok := s.pageFile(urlPath, strings.HasSuffix(r.URL.Path, "/"))
	if !ok {
		s.files.ServeHTTP(w, r)
		return
	}

	started := time.Now()
	src, err := source.ReadFile(file)
	if err != nil {
		s.log.Error("read page", zap.String("file", file), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	query := page.CanonicalQuery(r.URL.RawQuery)
	if query == "" {
		s.metrics.PageRenders.WithLabelValues("bypass").Inc()
		s.writeHTML(w, r, "bypass", src.ModTime, src.Body)
		return
	}

	key := cache.PageKey{Page: scan.URLPath(mustRel(s.root, file)), Query: query, ModUnix: src.ModTime.Unix(), Size: src.Size}
	if s.store != nil {
		if b, hit, err := s.store.ReadPage(key); err == nil && hit {
			s.metrics.PageRenders.WithLabelValues("hit").Inc()
			s.writeHTML(w, r, "hit", src.ModTime, b)
			return
		}
	}

	res, err := page.Mount(src.Body, page.Options{
		URL:      urlPath + "?" + query,
		Referrer: r.Referer(),
		Render:   true,
		Context:  r.Context(),
		Logger:   s.log,
		OnApply: func(er engine.Result) {
			s.metrics.ObserveSelection(er.Selection, er.Count)
		},
	})
	if err != nil {
		s.log.Error("render page", zap.String("file", file), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	s.metrics.RenderDuration.Observe(time.Since(started).Seconds())
	s.metrics.PageRenders.WithLabelValues("miss").Inc()

	if s.store != nil {
		if err := s.store.WritePage(key, res.HTML); err != nil && !errors.Is(err, cache.ErrReadOnly) {
			s.log.Warn("write page cache", zap.String("page", key.Page), zap.Error(err))
		}
	}
	s.writeHTML(w, r, "miss", src.ModTime, res.HTML)
}

func (s *Server) writeHTML(w http.ResponseWriter, r *http.Request, cacheState string, mod time.Time, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Bmcompare-Cache", cacheState)
	http.ServeContent(w, r, "", mod, bytes.NewReader(body))
}

// pageFile 把 URL 路径映射为站点内的 HTML 文件；不是页面时 ok=false。
func (s *Server) pageFile(urlPath string, dir bool) (string, bool) {
	rel := filepath.FromSlash(strings.TrimPrefix(urlPath, "/"))
	p := filepath.Join(s.root, rel)

	st, err := os.Stat(p)
	if err == nil && st.IsDir() {
		if !dir && urlPath != "/" {
			// 交给 FileServer 做 "/a" -> "/a/" 的重定向。
			return "", false
		}
		p = filepath.Join(p, "index.html")
		st, err = os.Stat(p)
	}
	if err != nil || st.IsDir() || !scan.IsPageExt(filepath.Ext(p)) {
		return "", false
	}
	return p, true
}

// isHiddenPath 屏蔽缓存目录与隐藏文件。
func isHiddenPath(urlPath string) bool {
	if urlPath == "/"+scan.CacheDirName || strings.HasPrefix(urlPath, "/"+scan.CacheDirName+"/") {
		return true
	}
	for _, seg := range strings.Split(urlPath, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func mustRel(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.Base(p)
	}
	return rel
}
