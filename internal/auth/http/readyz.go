package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/service"
	"github.com/aussiebroadwan/maidrobe/internal/auth/store"
	"github.com/aussiebroadwan/maidrobe/pkg/httpx"
)

// ReadyzHandler reports whether the device store answers. Backend
// reachability is reported too but only informs: the core keeps working
// offline, so it never makes the probe fail.
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	conn service.Connectivity,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"store": "ok"}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks["store"] = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if conn != nil {
			checks["backend"] = "online"
			if !conn.Online() {
				checks["backend"] = "offline"
			}
		}

		response := StatusResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		}
		httpx.WriteJSON(w, statusCode, response)
	}
}
