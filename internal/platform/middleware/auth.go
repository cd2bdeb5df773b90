package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/httputil"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

// TokenValidator verifies an access token and yields the calling party.
type TokenValidator interface {
	ValidateToken(tokenString string) (id.PartyID, error)
}

// RequireAuth authenticates every request from its bearer token and binds
// the resulting party as the request actor. Services downstream read it via
// requestcontext.Actor.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					slog.String("request_id", requestcontext.RequestID(ctx)))
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			party, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					slog.Any("error", err),
					slog.String("request_id", requestcontext.RequestID(ctx)))
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, party)))
		})
	}
}
