package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cobranca-service/internal/service"
)

// SessionCookie carries the token issued by /login for browser clients
const SessionCookie = "session"

// TokenParser resolves a bearer token to a user id
type TokenParser interface {
	ParseToken(token string) (int64, error)
}

// AuthMiddleware rejects requests without a valid token and stores the user id
// in the request context. The Authorization header wins over the cookie.
func AuthMiddleware(tokens TokenParser, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				writeUnauthorized(w, "authentication required")
				return
			}

			userID, err := tokens.ParseToken(token)
			if err != nil {
				log.WithField("request_id", RequestIDFromContext(r.Context())).Debugf("Rejected token: %v", err)
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithUserID(r.Context(), userID)))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
