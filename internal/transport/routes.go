package transport

import (
	"errors"
	"net/http"

	"plant-store/internal/middleware"

	"go.uber.org/zap"
)

// RouteMiddleware is the set of per-route middleware handlers mount. A nil
// RateLimit disables rate limiting.
type RouteMiddleware struct {
	Auth         func(http.Handler) http.Handler
	OptionalAuth func(http.Handler) http.Handler
	Admin        func(http.Handler) http.Handler
	RateLimit    func(http.Handler) http.Handler
}

func (m RouteMiddleware) rateLimit() func(http.Handler) http.Handler {
	if m.RateLimit == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return m.RateLimit
}

// decodeRequest decodes and validates a JSON body, writing the 400 response
// itself when that fails.
func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}, logger *zap.Logger) bool {
	err := middleware.DecodeAndValidate(r, v)
	if err == nil {
		return true
	}

	logger.Debug("Request validation failed", zap.String("path", r.URL.Path), zap.Error(err))
	if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
		middleware.RespondWithValidationErrors(w, validationErrors)
		return false
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}

	middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
	return false
}
