package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const secret = "test-secret-that-is-at-least-32-bytes"

func newIssuer(t *testing.T, ttl time.Duration) *TokenIssuer {
	t.Helper()
	iss, err := NewTokenIssuer(secret, "leadhooks", ttl)
	if err != nil {
		t.Fatal(err)
	}
	return iss
}

func TestNewTokenIssuer_rejectsShortSecret(t *testing.T) {
	if _, err := NewTokenIssuer("short", "leadhooks", time.Hour); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestIssueAndVerify(t *testing.T) {
	iss := newIssuer(t, time.Hour)
	org := uuid.New()

	tok, err := iss.Issue(org, RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := iss.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("role: got %q", claims.Role)
	}
	got, err := claims.Org()
	if err != nil || got != org {
		t.Errorf("org: got %v (%v), want %v", got, err, org)
	}
}

func TestVerify_rejections(t *testing.T) {
	iss := newIssuer(t, time.Hour)
	org := uuid.New()

	otherKey, _ := NewTokenIssuer(strings.Repeat("z", 32), "leadhooks", time.Hour)
	wrongKey, _ := otherKey.Issue(org, RoleAdmin)

	otherIssuer, _ := NewTokenIssuer(secret, "someone-else", time.Hour)
	wrongIss, _ := otherIssuer.Issue(org, RoleAdmin)

	expiredIssuer := newIssuer(t, -time.Minute)
	expired, _ := expiredIssuer.Issue(org, RoleAdmin)

	badRole, _ := iss.Issue(org, "superuser")

	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "leadhooks", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		OrgID:            org.String(),
		Role:             RoleAdmin,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	badOrg, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "leadhooks", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		OrgID:            "acme",
		Role:             RoleAdmin,
	}).SignedString([]byte(secret))

	for name, tok := range map[string]string{
		"wrong key":    wrongKey,
		"wrong issuer": wrongIss,
		"expired":      expired,
		"unknown role": badRole,
		"alg none":     noneAlg,
		"bad org":      badOrg,
		"garbage":      "not.a.token",
	} {
		if _, err := iss.Verify(tok); err == nil {
			t.Errorf("%s: expected verification failure", name)
		}
	}
}

func TestRequireToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := newIssuer(t, time.Hour)
	org := uuid.New()

	r := gin.New()
	r.GET("/admin", RequireToken(iss, RoleAdmin), func(c *gin.Context) {
		claims := ClaimsFromCtx(c)
		if claims == nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, claims.OrgID)
	})
	r.GET("/any", RequireToken(iss), func(c *gin.Context) { c.Status(http.StatusOK) })

	adminTok, _ := iss.Issue(org, RoleAdmin)
	serviceTok, _ := iss.Issue(org, RoleService)

	cases := []struct {
		path, header string
		want         int
	}{
		{"/admin", "", http.StatusUnauthorized},
		{"/admin", "Basic abc", http.StatusUnauthorized},
		{"/admin", "Bearer nope", http.StatusUnauthorized},
		{"/admin", "Bearer " + serviceTok, http.StatusForbidden},
		{"/admin", "Bearer " + adminTok, http.StatusOK},
		{"/any", "Bearer " + serviceTok, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("%s %q: got %d, want %d", tc.path, tc.header, w.Code, tc.want)
		}
		if tc.want == http.StatusOK && tc.path == "/admin" && w.Body.String() != org.String() {
			t.Errorf("claims not propagated: %q", w.Body.String())
		}
	}
}
