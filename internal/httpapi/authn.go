package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"medgrid.org/internal/access"
	"medgrid.org/internal/authn"
)

const (
	authHeader     = "Authorization"
	bearer         = "Bearer "
	facilityHeader = "X-Facility-ID"
)

var publicPaths = []string{
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := authn.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, authn.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := authn.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenant resolves the caller's TenantContext for this request. The optional
// X-Facility-ID header selects the active facility; a hint outside the
// caller's permitted set is rejected, never silently narrowed.
func (a *API) tenant(r *http.Request) (access.TenantContext, error) {
	principal, ok := authn.PrincipalFromContext(r.Context())
	if !ok {
		return access.TenantContext{}, access.ErrForbidden
	}
	hint := strings.TrimSpace(r.Header.Get(facilityHeader))
	return a.resolver.Resolve(r.Context(), principal, hint)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
