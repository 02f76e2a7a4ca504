// Package auth gates the API behind static service keys.
//
// Keys are configured at process start (RISKLINE_API_KEYS); there is no
// key issuance or rotation endpoint. Callers send either an
// 'Authorization: Bearer rk_...' header or 'X-API-Key'. Comparison is
// constant-time.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKeyAPIKey is the gin context key set on authenticated requests.
const ContextKeyAPIKey = "apiKey"

// Keyring holds the hashed set of accepted API keys.
type Keyring struct {
	hashes [][32]byte
}

// NewKeyring hashes the configured raw keys. Empty entries are dropped;
// an empty keyring rejects everything.
func NewKeyring(rawKeys []string) *Keyring {
	k := &Keyring{}
	for _, raw := range rawKeys {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		k.hashes = append(k.hashes, sha256.Sum256([]byte(raw)))
	}
	return k
}

// Empty reports whether no keys are configured.
func (k *Keyring) Empty() bool {
	return len(k.hashes) == 0
}

// Match reports whether the presented key is in the ring. Every stored
// hash is compared so timing does not reveal which key matched.
func (k *Keyring) Match(raw string) bool {
	h := sha256.Sum256([]byte(raw))
	matched := 0
	for i := range k.hashes {
		matched |= subtle.ConstantTimeCompare(k.hashes[i][:], h[:])
	}
	return matched == 1
}

// RequireKey rejects requests that do not present a configured key.
func RequireKey(ring *Keyring) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractKey(c)
		if raw == "" || ring.Empty() || !ring.Match(raw) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required. Include 'Authorization: Bearer rk_...' header.",
			})
			return
		}
		c.Set(ContextKeyAPIKey, raw)
		c.Next()
	}
}

func extractKey(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return strings.TrimSpace(c.GetHeader("X-API-Key"))
}

// IsAuthenticated checks if the request passed the key middleware.
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ContextKeyAPIKey)
	return exists
}
