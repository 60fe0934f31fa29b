package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"plant-store/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserRoleKey contextKey = "user_role"
)

// TokenValidator validates bearer access tokens
type TokenValidator interface {
	ValidateToken(tokenString string) (*service.Claims, error)
}

var errMissingToken = errors.New("missing authorization header")

// AuthMiddleware requires a valid bearer token and puts the caller's id and
// role on the request context.
func AuthMiddleware(validator TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return authenticate(validator, logger, false)
}

// OptionalAuth lets anonymous requests through but still rejects a token
// that is present and invalid.
func OptionalAuth(validator TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return authenticate(validator, logger, true)
}

func authenticate(validator TokenValidator, logger *zap.Logger, optional bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := claimsFromRequest(r, validator)
			if errors.Is(err, errMissingToken) && optional {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				logger.Debug("Authentication failed", zap.Error(err), zap.String("path", r.URL.Path))
				switch {
				case errors.Is(err, errMissingToken):
					RespondWithError(w, http.StatusUnauthorized, "missing authorization header")
				case errors.Is(err, service.ErrTokenExpired):
					RespondWithError(w, http.StatusUnauthorized, "token expired")
				default:
					RespondWithError(w, http.StatusUnauthorized, "invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, UserRoleKey, claims.Role)

			logger.Debug("User authenticated",
				zap.String("user_id", claims.UserID.String()),
				zap.String("role", claims.Role),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func claimsFromRequest(r *http.Request, validator TokenValidator) (*service.Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errMissingToken
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, service.ErrInvalidToken
	}

	claims, err := validator.ValidateToken(strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	if claims.UserID == uuid.Nil || claims.Role == "" {
		return nil, service.ErrInvalidToken
	}
	return claims, nil
}

// GetUserID extracts the authenticated user's id from the request context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// GetUserRole extracts the authenticated user's role from the request context
func GetUserRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(UserRoleKey).(string)
	return role, ok
}

// GetRequester returns the authenticated caller, or nil for a guest
func GetRequester(ctx context.Context) *service.Requester {
	userID, ok := GetUserID(ctx)
	if !ok {
		return nil
	}
	role, _ := GetUserRole(ctx)
	return &service.Requester{UserID: userID, Role: role}
}
