package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ScopeCompute is required on every compute route.
const ScopeCompute = "compute:public"

type claimsKey struct{}

// ClaimsFromContext returns the validated claims set by Middleware.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(Claims)
	return c, ok
}

// Middleware guards routes with bearer token validation plus required
// scopes. Missing or invalid tokens yield 401, missing scopes 403.
func Middleware(verifier TokenVerifier, requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				unauthorized(w, requiredScopes, "Not authenticated")
				return
			}

			claims, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				unauthorized(w, requiredScopes, "Could not validate credentials")
				return
			}

			for _, scope := range requiredScopes {
				if !claims.HasScope(scope) {
					writeJSONError(w, http.StatusForbidden, "Insufficient scope")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func unauthorized(w http.ResponseWriter, scopes []string, detail string) {
	value := "Bearer"
	if len(scopes) > 0 {
		value = fmt.Sprintf(`Bearer scope=%q`, strings.Join(scopes, " "))
	}
	w.Header().Set("WWW-Authenticate", value)
	writeJSONError(w, http.StatusUnauthorized, detail)
}

func writeJSONError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
