package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newProtectedRouter(keys ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", RequireKey(NewKeyring(keys)), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func get(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireKey(t *testing.T) {
	r := newProtectedRouter("rk_live_abc123")

	cases := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"no header", nil, http.StatusUnauthorized},
		{"bearer valid", map[string]string{"Authorization": "Bearer rk_live_abc123"}, http.StatusOK},
		{"bearer wrong", map[string]string{"Authorization": "Bearer rk_live_nope"}, http.StatusUnauthorized},
		{"raw authorization", map[string]string{"Authorization": "rk_live_abc123"}, http.StatusOK},
		{"x-api-key valid", map[string]string{"X-API-Key": "rk_live_abc123"}, http.StatusOK},
		{"x-api-key wrong", map[string]string{"X-API-Key": "bogus"}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		if w := get(r, tc.headers); w.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, w.Code)
		}
	}
}

func TestRequireKey_MultipleKeys(t *testing.T) {
	r := newProtectedRouter("rk_one", "rk_two")

	if w := get(r, map[string]string{"X-API-Key": "rk_two"}); w.Code != http.StatusOK {
		t.Errorf("Second key must be accepted, got %d", w.Code)
	}
}

func TestRequireKey_EmptyKeyring(t *testing.T) {
	r := newProtectedRouter()

	if w := get(r, map[string]string{"X-API-Key": ""}); w.Code != http.StatusUnauthorized {
		t.Errorf("Empty keyring must reject, got %d", w.Code)
	}
	if w := get(r, map[string]string{"X-API-Key": "anything"}); w.Code != http.StatusUnauthorized {
		t.Errorf("Empty keyring must reject all keys, got %d", w.Code)
	}
}

func TestKeyring_DropsBlankEntries(t *testing.T) {
	ring := NewKeyring([]string{"", "  ", "rk_real"})
	if ring.Empty() {
		t.Fatal("Keyring with one real key must not be empty")
	}
	if ring.Match("") {
		t.Error("Blank key must never match")
	}
	if !ring.Match("rk_real") {
		t.Error("Configured key must match")
	}
}
