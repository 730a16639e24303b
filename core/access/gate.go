package access

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/profilegate/core"
	"github.com/relabs-tech/profilegate/core/errs"
	"github.com/relabs-tech/profilegate/core/logger"
)

// DefaultAllowList are the paths which can be requested without access token
var DefaultAllowList = []string{
	"/api/user/login",
	"/api/user/refresh",
	"/docs",
	"/openapi.json",
	"/api/health",
}

// Gate resolves the identity of every request before it is dispatched
type Gate struct {
	verifier  *Verifier
	allowList map[string]bool
}

// NewGate returns a gate which verifies tokens with verifier. Requests to the paths
// in allowList pass without token. A nil allowList means DefaultAllowList.
func NewGate(verifier *Verifier, allowList []string) *Gate {
	if allowList == nil {
		allowList = DefaultAllowList
	}
	g := &Gate{verifier: verifier, allowList: make(map[string]bool, len(allowList))}
	for _, path := range allowList {
		g.allowList[path] = true
	}
	return g
}

// IsAllowListed returns true if path can be requested without token
func (g *Gate) IsAllowListed(path string) bool {
	return g.allowList[path]
}

// BearerToken extracts the token from an Authorization header value. The "Bearer"
// scheme is matched case insensitive. Returns the empty string if there is no token.
func BearerToken(authorization string) string {
	authorization = strings.TrimSpace(authorization)
	if len(authorization) < 7 || !strings.EqualFold(authorization[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(authorization[7:])
}

// Resolve decides whether a request to path with the given Authorization header may
// pass. For allow-listed paths it returns a nil identity and no error. Otherwise the
// token must be present, not expired and valid. Without signing secret no token can
// be verified, which is a configuration error.
func (g *Gate) Resolve(path, authorization string) (*Identity, error) {
	if g.IsAllowListed(path) {
		return nil, nil
	}
	token := BearerToken(authorization)
	if token == "" {
		return nil, errs.Auth("not authenticated", nil)
	}
	if err := g.verifier.Configured(); err != nil {
		return nil, err
	}
	if g.verifier.IsExpired(token) {
		return nil, errs.Auth("token expired", nil)
	}
	claims, err := g.verifier.Decode(token)
	if err != nil {
		return nil, err
	}
	return &Identity{Subject: claims.Subject, Metadata: claims.UserMetadata}, nil
}

// Middleware returns a middleware which rejects unauthenticated requests with 401
// before they reach any handler. Accepted requests carry their identity and an
// identity tagged logger in the context.
func (g *Gate) Middleware() mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				h.ServeHTTP(w, r) // CORS preflight carries no token
				return
			}
			rlog := logger.FromContext(r.Context())
			identity, err := g.Resolve(r.URL.Path, r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, errs.ErrAuth) {
					rlog.Infof("request to %s rejected: %s", r.URL.Path, err.Error())
					core.WriteResponse(w, core.Failure(http.StatusUnauthorized, err.Error()))
					return
				}
				rlog.WithError(err).Errorf("cannot verify token for %s", r.URL.Path)
				core.WriteResponse(w, core.Failure(http.StatusInternalServerError, "internal server error"))
				return
			}
			if identity == nil {
				h.ServeHTTP(w, r)
				return
			}
			ctx := ContextWithIdentity(r.Context(), identity)
			ctx, _ = logger.ContextWithLoggerIdentity(ctx, identity.Subject)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
