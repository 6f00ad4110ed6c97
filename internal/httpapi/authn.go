package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"payvault.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth authenticates a bearer token into the request context when one is
// present. Requests without a token pass through anonymously; role checks
// happen at the route (RequireRole) or handler (requireEmployer) level.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		header := strings.TrimSpace(r.Header.Get(authHeader))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(header)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, codeUnauthorized, err.Error())
			return
		}
		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "invalid token")
			return
		}

		ctx := auth.ContextWithUser(r.Context(), claims.Subject, claims.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole gates a handler on an authenticated user carrying the role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.UserIDFromContext(r.Context()); !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="payvault"`)
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "authentication required")
				return
			}
			if !auth.HasRole(r.Context(), role) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="payvault", error="insufficient_scope"`)
				writeError(w, r, http.StatusForbidden, codeForbidden, role+" role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireEmployer is the in-handler variant for routes where only some
// methods are gated.
func (a *API) requireEmployer(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := auth.UserIDFromContext(r.Context()); !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="payvault"`)
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "authentication required")
		return false
	}
	if !auth.IsEmployer(r.Context()) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="payvault", error="insufficient_scope"`)
		writeError(w, r, http.StatusForbidden, codeForbidden, "employer role required")
		return false
	}
	return true
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
