package http

import "net/http"

// HealthHandler reports liveness, and readiness when a probe is given.
func HealthHandler(readiness func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if readiness != nil && !readiness() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
