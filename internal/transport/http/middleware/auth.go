package httpmw

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/roomchat/internal/domain"
	"github.com/cwrk-planet/roomchat/internal/transport/http/httputil"
)

type ctxKey string

const ctxKeyUserID ctxKey = "user_id"

type Authenticator interface {
	Verify(ctx context.Context, token string) (domain.UserID, error)
}

// AuthMiddleware требует Bearer-токен и кладёт user id в контекст.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := httputil.BearerToken(r)
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}
			user, err := auth.Verify(r.Context(), token)
			if err != nil {
				slog.Debug("http auth failed", "path", r.URL.Path, "err", err)
				httputil.Error(w, http.StatusUnauthorized, "unauthenticated", "invalid access token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), user)))
		})
	}
}

func WithUserID(ctx context.Context, user domain.UserID) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, user)
}

func UserIDFromCtx(ctx context.Context) domain.UserID {
	if v, ok := ctx.Value(ctxKeyUserID).(domain.UserID); ok {
		return v
	}
	return ""
}
