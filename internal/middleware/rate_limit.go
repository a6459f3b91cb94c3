package middleware

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weibaohui/minutesagent/backend/internal/pkg/metrics"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"
)

const (
	limiterIdleTTL    = 10 * time.Minute // 超过该时长未访问的令牌桶会被清理
	limiterSweepEvery = time.Minute
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64 // UnixNano
}

// limiterStore 按客户端 IP 保存令牌桶，空闲的令牌桶在访问时顺带清理
type limiterStore struct {
	limiters   sync.Map // map[string]*limiterEntry
	rps        float64
	burst      int
	idleTTL    time.Duration
	sweepEvery time.Duration
	lastSweep  atomic.Int64
	now        func() time.Time
}

func newLimiterStore(rps float64, burst int) *limiterStore {
	s := &limiterStore{
		rps:        rps,
		burst:      burst,
		idleTTL:    limiterIdleTTL,
		sweepEvery: limiterSweepEvery,
		now:        time.Now,
	}
	s.lastSweep.Store(s.now().UnixNano())
	return s
}

func (s *limiterStore) get(key string) *rate.Limiter {
	now := s.now().UnixNano()
	s.maybeSweep(now)

	v, ok := s.limiters.Load(key)
	if !ok {
		v, _ = s.limiters.LoadOrStore(key, &limiterEntry{lim: rate.NewLimiter(rate.Limit(s.rps), s.burst)})
	}
	e := v.(*limiterEntry)
	e.lastSeen.Store(now)
	return e.lim
}

// maybeSweep 距上次清理超过 sweepEvery 时删除空闲令牌桶，同一时刻只有一个请求执行清理
func (s *limiterStore) maybeSweep(now int64) {
	last := s.lastSweep.Load()
	if now-last < int64(s.sweepEvery) || !s.lastSweep.CompareAndSwap(last, now) {
		return
	}
	s.sweep(now)
}

func (s *limiterStore) sweep(now int64) {
	removed := 0
	s.limiters.Range(func(k, v any) bool {
		if now-v.(*limiterEntry).lastSeen.Load() > int64(s.idleTTL) && s.limiters.CompareAndDelete(k, v) {
			removed++
		}
		return true
	})
	if removed > 0 {
		klog.V(6).Infof("[RateLimit] 清理空闲令牌桶: removed=%d", removed)
	}
}

// RateLimit 按客户端 IP 的令牌桶限流；rps <= 0 时不限流
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	store := newLimiterStore(rps, burst)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}

		if !store.get(ip).Allow() {
			klog.V(6).Infof("[RateLimit] 请求被限流: ip=%s, path=%s", ip, c.Request.URL.Path)
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
