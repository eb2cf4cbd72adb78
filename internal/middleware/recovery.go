// In: internal/middleware/recovery.go

package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/iyunix/go-designdesk/internal/logger"
)

func RecoverPanic(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic in handler", "panic", err, "path", r.URL.Path, "stack", string(debug.Stack()))
					w.Header().Set("Connection", "close")
					WriteError(w, http.StatusInternalServerError, CodeInternal, "Something went wrong on our end.")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
