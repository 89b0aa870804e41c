package middleware

import (
	"errors"
	"net"
	"net/http"

	"mindmap/pkg/auth"
	pkgerrors "mindmap/pkg/errors"

	"go.uber.org/zap"
)

// AuthConfig configures the authentication middleware
type AuthConfig struct {
	Validator *auth.JWTValidator
	Limiter   *auth.TokenBucketLimiter
	Errors    *pkgerrors.ErrorHandler
	Logger    *zap.Logger

	// TrustGateway accepts the identity headers set by the Lambda adapter
	// after API Gateway's JWT authorizer has run.
	TrustGateway bool
}

// Authenticate rejects requests without a valid bearer credential
func Authenticate(cfg AuthConfig) func(next http.Handler) http.Handler {
	return authenticate(cfg, true)
}

// OptionalAuthenticate validates a credential when one is presented and
// lets anonymous requests through otherwise
func OptionalAuthenticate(cfg AuthConfig) func(next http.Handler) http.Handler {
	return authenticate(cfg, false)
}

func authenticate(cfg AuthConfig, required bool) func(next http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)

			if cfg.Limiter != nil && !cfg.Limiter.Allow(clientIP) {
				cfg.Errors.Handle(w, r, pkgerrors.NewRateLimitError(cfg.Limiter.Burst(), "minute"))
				return
			}

			if cfg.TrustGateway && r.Header.Get("X-API-Gateway-Authorized") == "true" {
				userID := r.Header.Get("X-User-ID")
				if userID == "" {
					cfg.Errors.Handle(w, r, pkgerrors.NewUnauthorizedError("Missing user context from API Gateway"))
					return
				}
				user := &auth.UserContext{
					UserID: userID,
					Name:   r.Header.Get("X-User-Name"),
					Email:  r.Header.Get("X-User-Email"),
				}
				next.ServeHTTP(w, r.WithContext(auth.SetUserInContext(r.Context(), user)))
				return
			}

			token := auth.ExtractToken(r)
			if token == "" {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				cfg.Errors.Handle(w, r, pkgerrors.NewUnauthorizedError("Missing authentication token"))
				return
			}

			claims, err := cfg.Validator.ValidateToken(token)
			if err != nil {
				logger.Warn("Invalid token",
					zap.Error(err),
					zap.String("ip", clientIP),
					zap.String("path", r.URL.Path),
				)
				cfg.Errors.Handle(w, r, pkgerrors.NewUnauthorizedError(tokenErrorMessage(err)))
				return
			}

			logger.Debug("Request authenticated",
				zap.String("user_id", claims.UserID),
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
			)

			ctx := auth.SetUserInContext(r.Context(), auth.UserFromClaims(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "Invalid token signature"
	default:
		return "Invalid token"
	}
}

// getClientIP returns the peer address. Forwarding headers are honored only
// when chi's RealIP has already rewritten RemoteAddr from them.
func getClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
