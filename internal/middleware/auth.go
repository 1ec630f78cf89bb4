package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zhouzirui/safechat/backend/internal/service/auth"
	"github.com/zhouzirui/safechat/backend/pkg/utils"
)

// TokenVerifier 校验访问令牌。
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

type identityKey struct{}

// RequireAuth 要求 Authorization: Bearer <token>，通过后把身份放进请求上下文。
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if len(header) <= 7 || !strings.EqualFold(header[:7], "bearer ") {
				utils.RespondError(w, http.StatusUnauthorized, "authorization header is required")
				return
			}

			identity, err := verifier.Verify(strings.TrimSpace(header[7:]))
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// WithIdentity 返回携带 identity 的上下文。
func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom 取出 RequireAuth 放入的身份。
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(auth.Identity)
	return identity, ok
}
