package middleware

import (
	"crypto/subtle"
	"net/http"
	"tle_zone_contest/internal/common"
)

const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookSecret guards grader callbacks with a shared secret. An empty secret
// disables the check for local setups.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" {
				got := r.Header.Get(WebhookSecretHeader)
				if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
					common.RespondWithError(w, http.StatusUnauthorized, "Invalid webhook secret")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
