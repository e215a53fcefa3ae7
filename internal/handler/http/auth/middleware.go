// Package auth guards the provider admin endpoints with HS256 JWT bearer
// tokens carrying a role claim.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"survey-offers/internal/handler/http/requestid"
	"survey-offers/internal/handler/http/respond"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxSubject ctxKey = "subject"

// Claims are the token claims the admin surface understands.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireRole returns middleware that admits only requests bearing a valid
// token signed with secret whose role claim equals role.
func RequireRole(secret []byte, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := slog.With(
				slog.String("request_id", requestid.FromContext(r.Context())),
				slog.String("path", r.URL.Path))

			claims, err := validateJWT(r.Header.Get("Authorization"), secret)
			if err != nil {
				recordAuth("unauthorized", time.Since(start).Seconds())
				logger.Warn("admin authentication failed", slog.Any("error", err))
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				respond.SafeError(w, http.StatusUnauthorized, fmt.Errorf("unauthorized: %w", err))
				return
			}
			if claims.Role != role {
				recordAuth("forbidden", time.Since(start).Seconds())
				logger.Warn("admin role required",
					slog.String("subject", claims.Subject),
					slog.String("role", claims.Role))
				respond.SafeError(w, http.StatusForbidden, errors.New("forbidden: admin role required"))
				return
			}

			recordAuth("success", time.Since(start).Seconds())
			ctx := context.WithValue(r.Context(), ctxSubject, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxSubject).(string)
	return s
}

func validateJWT(authz string, secret []byte) (*Claims, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return nil, errors.New("missing bearer token")
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authz, prefix))

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errors.New("token expired")
	case err != nil || !tok.Valid:
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("invalid sub claim")
	}
	return claims, nil
}
