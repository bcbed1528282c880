package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"aegis/pkg/platform/httputil"
	"aegis/pkg/requestcontext"
)

// HeaderServiceToken authenticates platform services that write to the ledger.
const HeaderServiceToken = "X-Service-Token"

// RequireServiceToken admits callers presenting the shared service token.
// An empty expected token rejects everything.
func RequireServiceToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderServiceToken)
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "service token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
					Error:            "unauthorized",
					ErrorDescription: "service token required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
