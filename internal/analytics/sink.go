package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bestmoney-nz/bmcompare/internal/domain"
)

// Sink 名称（配置 analytics.sink 的取值）。
const (
	SinkNone  = "none"
	SinkLog   = "log"
	SinkRedis = "redis"
	SinkHTTP  = "http"
)

// DefaultStream 是 RedisSink 默认写入的 stream。
const DefaultStream = "bmcompare:events"

// LogSink 把事件写成一条结构化日志。
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Send(_ context.Context, ev domain.Event) error {
	l := s.Logger
	if l == nil {
		return nil
	}
	l.Info("analytics event",
		zap.String("id", ev.ID),
		zap.String("event", ev.Name),
		zap.Any("attributes", ev.Attributes),
		zap.Time("at", ev.At),
	)
	return nil
}

// RedisSink 把事件 XADD 到一个 Redis stream。
//
// 每条 entry 的字段：id、name、at（RFC3339Nano）、attributes（JSON）。
type RedisSink struct {
	Client redis.Cmdable
	Stream string
	// MaxLen>0 时按近似长度裁剪 stream。
	MaxLen int64
}

func (s RedisSink) Send(ctx context.Context, ev domain.Event) error {
	attrs, err := json.Marshal(ev.Attributes)
	if err != nil {
		return err
	}
	stream := s.Stream
	if stream == "" {
		stream = DefaultStream
	}
	args := &redis.XAddArgs{
		Stream: stream,
		Values: []any{
			"id", ev.ID,
			"name", ev.Name,
			"at", ev.At.Format(time.RFC3339Nano),
			"attributes", string(attrs),
		},
	}
	if s.MaxLen > 0 {
		args.MaxLen = s.MaxLen
		args.Approx = true
	}
	if err := s.Client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}

// HTTPSink 把事件以 JSON POST 到收集端。
type HTTPSink struct {
	Client   *http.Client
	Endpoint string
}

func (s HTTPSink) Send(ctx context.Context, ev domain.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	c := s.Client
	if c == nil {
		c = http.DefaultClient
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collector %s: status %d", s.Endpoint, resp.StatusCode)
	}
	return nil
}

// MemorySink 在内存中保存事件（测试与 filter 命令的 --events 输出使用）。
type MemorySink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *MemorySink) Send(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

// Events 返回已接收事件的副本。
func (s *MemorySink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

// Fanout 依次发送到多个 sink，返回第一个错误（其余 sink 仍会收到事件）。
type Fanout []Sink

func (f Fanout) Send(ctx context.Context, ev domain.Event) error {
	var first error
	for _, s := range f {
		if err := s.Send(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
