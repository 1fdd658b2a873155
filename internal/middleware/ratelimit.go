package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/librarian/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralPerMinute   int           // API全般の上限（req/min/読者）
	RecommendPerMinute int           // 推薦生成の上限（req/min/読者）
	CleanupInterval    time.Duration // 使われていないリミッターを掃除する間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralPerMinute:   120,
		RecommendPerMinute: 10,
		CleanupInterval:    5 * time.Minute,
	}
}

// perMinute はreq/minをrate.Limitとバーストに変換する。0以下は無制限。
func perMinute(n int) (rate.Limit, int) {
	if n <= 0 {
		return rate.Inf, 0
	}
	return rate.Limit(float64(n) / 60.0), n
}

type readerLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は読者ごとのトークンバケットの集合。
type limiterSet struct {
	name  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*readerLimiter
}

func newLimiterSet(name string, perMin int) *limiterSet {
	limit, burst := perMinute(perMin)
	return &limiterSet{
		name:     name,
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*readerLimiter),
	}
}

func (s *limiterSet) allow(readerID string, now time.Time) bool {
	s.mu.Lock()
	rl, ok := s.limiters[readerID]
	if !ok {
		rl = &readerLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[readerID] = rl
	}
	rl.lastAccess = now
	s.mu.Unlock()

	return rl.limiter.AllowN(now, 1)
}

func (s *limiterSet) evictIdle(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rl := range s.limiters {
		if now.Sub(rl.lastAccess) > ttl {
			delete(s.limiters, id)
		}
	}
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimiter は読者ごとのレート制限を管理する。
// 推薦生成はモデル呼び出しを伴うため、API全般とは別に厳しい上限を持つ。
type RateLimiter struct {
	config    RateLimiterConfig
	general   *limiterSet
	recommend *limiterSet
	logger    *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成し、バックグラウンドの掃除を開始する。
// 使い終わったらStopを呼ぶこと。
func NewRateLimiter(config RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultRateLimiterConfig().CleanupInterval
	}
	rl := &RateLimiter{
		config:    config,
		general:   newLimiterSet("general", config.GeneralPerMinute),
		recommend: newLimiterSet("recommendation", config.RecommendPerMinute),
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はバックグラウンドの掃除を停止し、終了を待つ。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
	<-rl.doneCh
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general)
}

// RecommendationMiddleware は推薦生成のレート制限ミドルウェアを返す。
// API全般の制限とは独立に数える。
func (rl *RateLimiter) RecommendationMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.recommend)
}

func (rl *RateLimiter) middleware(set *limiterSet) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			readerID, err := ReaderIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !set.allow(readerID, time.Now()) {
				rl.logger.Warn("rate limit exceeded",
					slog.String("reader_id", readerID),
					slog.String("limit_type", set.name),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(set.limit)))
				WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は管理中のAPI全般リミッター数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int { return rl.general.len() }

// RecommendLimiterCount は管理中の推薦生成リミッター数を返す。
func (rl *RateLimiter) RecommendLimiterCount() int { return rl.recommend.len() }

func (rl *RateLimiter) cleanupLoop() {
	defer close(rl.doneCh)

	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			rl.cleanup(now)
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからCleanupIntervalの2倍を超えたリミッターを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.evictIdle(now, ttl)
	rl.recommend.evictIdle(now, ttl)
}

// retryAfterSeconds は1トークンが補充されるまでの秒数。最低1秒。
func retryAfterSeconds(limit rate.Limit) int {
	if limit == rate.Inf || limit <= 0 {
		return 1
	}
	sec := int(math.Ceil(1.0 / float64(limit)))
	if sec < 1 {
		sec = 1
	}
	return sec
}
