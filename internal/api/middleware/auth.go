package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/reviewreplai/reviewrepl/internal/api/response"
)

// Auth verifies bearer tokens issued by the identity provider. Tokens
// must be HS256, unexpired and carry the caller's user id in sub.
type Auth struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuth creates a new Auth middleware. An empty audience disables the
// aud check.
func NewAuth(secret, audience string) *Auth {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &Auth{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

// Authenticate validates the Bearer token and sets user_id in the request
// context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header")
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := a.parser.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
			return a.secret, nil
		})
		if err != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid or expired token")
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Token subject is not a user id")
			return
		}

		next.ServeHTTP(w, r.WithContext(SetUserID(r.Context(), userID)))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
