package middleware

import (
	"net/http"
	"os"
)

// TaskAuthMiddleware guards the event and scheduler routes. Only the
// message event source and the scheduled trigger call them, both
// configured with the shared secret.
func TaskAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Task-Secret") != os.Getenv("TASK_SECRET") {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
