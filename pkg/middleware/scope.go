package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/opencurate/curation-engine/pkg/database"
)

// DatabaseScope returns middleware that acquires a pooled connection for
// the duration of the request and places it on the context as the query
// scope. Write paths open their own transactions through TxRunner and
// override the scope; read paths use the request connection directly.
func DatabaseScope(db *database.DB, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, err := db.Acquire(r.Context())
			if err != nil {
				if logger != nil {
					logger.Error("Failed to acquire database connection", zap.Error(err))
				}
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			defer scope.Close()

			ctx := database.SetScope(r.Context(), scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
