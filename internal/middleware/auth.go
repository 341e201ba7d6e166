// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminAuth protects the admin API with a single bearer token whose bcrypt
// hash is configured. An empty hash disables the admin API entirely.
func AdminAuth(tokenHash string) func(http.Handler) http.Handler {
	hash := []byte(tokenHash)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(hash) == 0 {
				writeJSONError(w, http.StatusServiceUnavailable, map[string]any{
					"error": "Admin API is not configured",
				})
				return
			}

			token, ok := bearerToken(r)
			if !ok || bcrypt.CompareHashAndPassword(hash, []byte(token)) != nil {
				slog.Warn("admin auth failed", "remote", remoteHost(r.RemoteAddr), "path", r.URL.Path)
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				writeJSONError(w, http.StatusUnauthorized, map[string]any{
					"error": "Unauthorized",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CronAuth guards the scheduled newsletter trigger. The caller presents the
// shared secret as a bearer token or in X-Cron-Secret. An empty secret lets
// every request through, which is only accepted outside production.
func CronAuth(secret string) func(http.Handler) http.Handler {
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(want) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get("X-Cron-Secret")
			if got == "" {
				got, _ = bearerToken(r)
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				slog.Warn("cron auth failed", "remote", remoteHost(r.RemoteAddr))
				writeJSONError(w, http.StatusUnauthorized, map[string]any{
					"success": false,
					"error":   "Unauthorized",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeJSONError(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
