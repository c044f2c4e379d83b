package server

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	clientIdleThreshold = 1 * time.Hour
	cleanupInterval     = 30 * time.Minute
)

type clientWindow struct {
	tokens      int
	windowStart time.Time
}

// RateLimiter 是按客户端 IP 的固定窗口限流：每个窗口最多 capacity 次。
type RateLimiter struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	clients  map[string]*clientWindow
	now      func() time.Time

	stopOnce    sync.Once
	stopCleanup chan struct{}
}

// NewRateLimiter 创建限流器并启动后台清理；用完需调用 Stop。
func NewRateLimiter(capacity int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		capacity:    capacity,
		window:      window,
		clients:     make(map[string]*clientWindow),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (r *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCleanup:
			return
		}
	}
}

func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for ip, c := range r.clients {
		if now.Sub(c.windowStart) > clientIdleThreshold {
			delete(r.clients, ip)
		}
	}
}

func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stopCleanup) })
}

// Allow 消耗 ip 在当前窗口的一次配额；capacity<=0 表示不限流。
func (r *RateLimiter) Allow(ip string) bool {
	if r.capacity <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	c, ok := r.clients[ip]
	if !ok {
		r.clients[ip] = &clientWindow{tokens: r.capacity - 1, windowStart: now}
		return true
	}
	if now.Sub(c.windowStart) >= r.window {
		c.tokens = r.capacity
		c.windowStart = now
	}
	if c.tokens <= 0 {
		return false
	}
	c.tokens--
	return true
}

// RateLimitMiddleware 对超出配额的请求返回 429；onReject 可为 nil。
func RateLimitMiddleware(limiter *RateLimiter, onReject func(), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !limiter.Allow(ip) {
			if onReject != nil {
				onReject()
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(limiter.window)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds 向上取整到秒，至少 1 秒。
func retryAfterSeconds(window time.Duration) int {
	sec := int((window + time.Second - 1) / time.Second)
	return max(1, sec)
}
