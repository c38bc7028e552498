package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainErrors "github.com/davidleathers/deepguard-backend/internal/domain/errors"
)

// AuthConfig configures bearer-token authentication
type AuthConfig struct {
	// Secret is the HMAC key; an empty secret disables authentication
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// AuthMiddleware validates HMAC-signed JWT bearer tokens
type AuthMiddleware struct {
	config AuthConfig
	errors *ErrorHandler
	parser *jwt.Parser
	public map[string]bool
}

func NewAuthMiddleware(config AuthConfig, errorHandler *ErrorHandler, publicPaths ...string) *AuthMiddleware {
	if config.Leeway == 0 {
		config.Leeway = 30 * time.Second
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(config.Leeway),
		jwt.WithExpirationRequired(),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}

	public := make(map[string]bool, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = true
	}

	return &AuthMiddleware{
		config: config,
		errors: errorHandler,
		parser: jwt.NewParser(opts...),
		public: public,
	}
}

// Enabled reports whether a secret is configured
func (a *AuthMiddleware) Enabled() bool {
	return len(a.config.Secret) > 0
}

// Middleware rejects requests without a valid token, except on public paths
func (a *AuthMiddleware) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if !a.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.public[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, err := a.extractToken(r)
			if err != nil {
				a.unauthorized(w, r, err)
				return
			}

			claims := &jwt.RegisteredClaims{}
			if _, err := a.parser.ParseWithClaims(tokenString, claims, a.keyFunc); err != nil {
				a.unauthorized(w, r, domainErrors.NewUnauthorizedError("invalid or expired token").WithCause(err))
				return
			}

			ctx := context.WithValue(r.Context(), contextKeySubject, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *AuthMiddleware) keyFunc(*jwt.Token) (interface{}, error) {
	return a.config.Secret, nil
}

// extractToken reads the Authorization header. WebSocket clients cannot set
// headers, so the alert stream also accepts an access_token query parameter.
func (a *AuthMiddleware) extractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", domainErrors.NewUnauthorizedError("invalid authorization format")
		}
		return strings.TrimSpace(token), nil
	}

	if r.URL.Path == alertsPath {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, nil
		}
	}
	return "", domainErrors.NewUnauthorizedError("authorization required")
}

func (a *AuthMiddleware) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="deepguard"`)
	a.errors.HandleError(w, r, err)
}
