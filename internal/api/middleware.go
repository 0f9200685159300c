package api

import (
	"context"
	"net/http"
	"strings"

	"bloom.ai/plant-dashboard/internal/auth"
)

type contextKey string

const deviceIDKey contextKey = "deviceID"

func (h *APIHandler) DeviceAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		deviceID, err := auth.ValidateDeviceToken(h.JWTSecret, tokenString)
		if err != nil {
			h.log.Debug().Err(err).Msg("Rejected device token")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), deviceIDKey, deviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func deviceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(deviceIDKey).(string)
	return id
}
