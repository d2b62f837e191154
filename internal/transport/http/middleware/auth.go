package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"tuweeter/internal/httputil"
	"tuweeter/internal/logging"
	"tuweeter/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserIDKey is the context key for the authenticated user's ID
	UserIDKey contextKey = "user_id"
)

var (
	errMissingToken  = errors.New("missing authentication token")
	errInvalidClaims = errors.New("invalid token claims")
)

// ParseUserID validates an HS256 token and returns its user_id claim.
func ParseUserID(secret, tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return 0, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, errInvalidClaims
	}
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok || userIDFloat <= 0 {
		return 0, errInvalidClaims
	}
	return int64(userIDFloat), nil
}

// tokenFromRequest checks the Authorization header, then the access_token
// cookie, then the token query parameter used by browser websocket clients.
func tokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

func authenticate(secret string, r *http.Request) (int64, error) {
	tokenString := tokenFromRequest(r)
	if tokenString == "" {
		return 0, errMissingToken
	}
	return ParseUserID(secret, tokenString)
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errMissingToken):
		httputil.WriteUnauthorized(w, "Missing authentication token")
	case errors.Is(err, jwt.ErrTokenExpired):
		httputil.WriteUnauthorizedWithCode(w, model.CodeTokenExpired, "Access token has expired")
	default:
		httputil.WriteUnauthorizedWithCode(w, model.CodeTokenInvalid, "Invalid authentication token")
	}
}

// AuthMiddleware rejects requests without a valid token.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := authenticate(jwtSecret, r)
			if err != nil {
				writeAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuthMiddleware lets anonymous requests through. A token that is
// present but invalid is still rejected so clients notice an expired session.
func OptionalAuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := authenticate(jwtSecret, r)
			switch {
			case errors.Is(err, errMissingToken):
				next.ServeHTTP(w, r)
			case err != nil:
				writeAuthError(w, err)
			default:
				next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
			}
		})
	}
}

func withUserID(ctx context.Context, userID int64) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	logger := logging.Ctx(ctx).With().Int64(logging.FieldUserID, userID).Logger()
	return logging.WithLogger(ctx, logger)
}

// GetUserIDFromContext extracts the user ID from the request context
// Returns the user ID and true if found, or 0 and false if not found
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}
