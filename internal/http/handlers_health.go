package httpx

import (
	"net/http"
)

// healthHandler reports liveness and the number of live browser sessions.
func healthHandler(sessions func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			return
		}
		body := map[string]any{"status": "ok"}
		if sessions != nil {
			body["sessions"] = sessions()
		}
		WriteJSON(w, http.StatusOK, body)
	}
}
