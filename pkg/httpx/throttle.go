package httpx

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/maidrobe/pkg/slogx"
	"golang.org/x/time/rate"
)

// Budget is a token bucket shared by every caller of one route.
type Budget struct {
	PerSecond float64
	Burst     int
}

var (
	// ProbeBudget covers /readyz; each request pings the device store.
	ProbeBudget = Budget{PerSecond: 2, Burst: 10}

	// ScrapeBudget covers /metrics; collection walks every registered series.
	ScrapeBudget = Budget{PerSecond: 1, Burst: 5}

	// StatusBudget covers routes answered from memory.
	StatusBudget = Budget{PerSecond: 20, Burst: 50}
)

// Throttle admits requests to route while its budget has tokens. The status
// server listens on the device itself, so there is nothing per-client to
// key on; the bucket protects what the handler touches.
func Throttle(route string, budget Budget) Middleware {
	bucket := rate.NewLimiter(rate.Limit(budget.PerSecond), budget.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			res := bucket.ReserveN(now, 1)
			wait := res.DelayFrom(now)
			if res.OK() && wait == 0 {
				next.ServeHTTP(w, r)
				return
			}
			res.CancelAt(now)

			retryAfter := 1
			if res.OK() {
				retryAfter = max(int(math.Ceil(wait.Seconds())), 1)
			}

			slogx.FromContext(r.Context()).Warn("route throttled",
				"route", route,
				"retry_after", retryAfter,
			)

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "throttled",
				"route": route,
			})
		})
	}
}
