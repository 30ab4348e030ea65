package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/championcart/backend/internal/common"
)

// NewRedisStore builds a ulule limiter store on the shared Redis client.
func NewRedisStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "ratelimit:global", MaxRetry: 3})
}

// Global returns a fixed-window per-IP limiter applied to every route. rate
// uses the "<limit>-<period>" format, e.g. "600-M".
func Global(store limiter.Store, rate string) (func(http.Handler) http.Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse global rate %q: %w", rate, err)
	}
	mw := stdlib.NewMiddleware(limiter.New(store, parsed),
		stdlib.WithKeyGetter(func(r *http.Request) string { return common.ClientIP(r) }),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", strconv.FormatInt(int64(parsed.Period.Seconds()), 10))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
		}),
	)
	return mw.Handler, nil
}
