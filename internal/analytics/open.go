package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bestmoney-nz/bmcompare/internal/infra/httpx"
)

// SinkConfig 描述要打开的 sink。
type SinkConfig struct {
	Kind        string
	RedisAddr   string
	RedisStream string
	Endpoint    string
}

// OpenSink 按配置构造 sink。Kind 为空或 "none" 时返回 nil sink（上报被跳过）。
// 返回的 close 函数总是非 nil。
func OpenSink(cfg SinkConfig, log *zap.Logger) (Sink, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", SinkNone:
		return nil, noop, nil
	case SinkLog:
		if log == nil {
			log = zap.NewNop()
		}
		return LogSink{Logger: log.Named("events")}, noop, nil
	case SinkRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, noop, errors.New("analytics.redis_addr 为空")
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
		})
		return RedisSink{Client: rdb, Stream: cfg.RedisStream, MaxLen: 100000}, rdb.Close, nil
	case SinkHTTP:
		if strings.TrimSpace(cfg.Endpoint) == "" {
			return nil, noop, errors.New("analytics.endpoint 为空")
		}
		return HTTPSink{Client: httpx.NewSinkClient(), Endpoint: cfg.Endpoint}, noop, nil
	default:
		return nil, noop, fmt.Errorf("未知的 analytics.sink：%q", cfg.Kind)
	}
}
