package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/nta-library/library-service/internal/app/auth"
)

type ctxKey int

const ctxClaimsKey ctxKey = iota

// publicPaths are reachable without a bearer token.
var publicPaths = map[string]bool{
	"/healthz":       true,
	"/metrics":       true,
	"/auth/login":    true,
	"/auth/register": true,
}

// WrapWithAuth verifies the bearer token and injects the claims into the
// request context.
func WrapWithAuth(next http.Handler, tokens *auth.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		claims, err := tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFrom returns the verified claims for the request, nil on public paths.
func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(ctxClaimsKey).(*auth.Claims)
	return claims
}

// isStaff reports whether the request carries a librarian or admin token.
func isStaff(r *http.Request) bool {
	claims := claimsFrom(r)
	return claims != nil && (claims.Role == "librarian" || claims.Role == "admin")
}

// isAdmin reports whether the request carries an admin token.
func isAdmin(r *http.Request) bool {
	claims := claimsFrom(r)
	return claims != nil && claims.Role == "admin"
}

// WrapWithAudit records each mutating request in the audit log after it
// completes. Compose it inside the auth middleware so entries carry the
// caller's claims.
func WrapWithAudit(next http.Handler, audit *AuditLog) http.Handler {
	if audit == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}

		rec := &auditRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry := AuditEntry{
			Time:       timeNow(),
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		}
		if claims := claimsFrom(r); claims != nil {
			entry.User = claims.Username
			entry.Role = claims.Role
		}
		audit.add(entry)
	})
}

type auditRecorder struct {
	http.ResponseWriter
	status int
}

func (r *auditRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// WrapWithCORS allows browser clients from any origin.
func WrapWithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
