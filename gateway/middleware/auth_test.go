package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-secret"

func subjectEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ := SubjectFromRequest(r)
		_, _ = w.Write([]byte(subject))
	})
}

func TestAuthenticatorInjectsSubject(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "lendingd", Audience: "lend-api"}, nil)
	token, err := IssueToken(testSecret, "lend1caller", "lendingd", "lend-api", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/loans/borrow", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	auth.Middleware()(subjectEcho()).ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if res.Body.String() != "lend1caller" {
		t.Fatalf("expected subject in context, got %q", res.Body.String())
	}
}

func TestAuthenticatorRejects(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "lendingd"}, nil)
	good, _ := IssueToken(testSecret, "lend1caller", "lendingd", "", time.Minute)
	wrongIssuer, _ := IssueToken(testSecret, "lend1caller", "someone-else", "", time.Minute)
	wrongKey, _ := IssueToken("other-secret", "lend1caller", "lendingd", "", time.Minute)
	expired, _ := IssueToken(testSecret, "lend1caller", "lendingd", "", -time.Hour)
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "lendingd",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(testSecret))

	cases := map[string]string{
		"missing":       "",
		"wrong scheme":  "Basic " + good,
		"wrong issuer":  "Bearer " + wrongIssuer,
		"wrong key":     "Bearer " + wrongKey,
		"expired":       "Bearer " + expired,
		"no subject":    "Bearer " + noSubject,
		"garbage token": "Bearer not-a-jwt",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/loans/repay", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			res := httptest.NewRecorder()
			auth.Middleware()(subjectEcho()).ServeHTTP(res, req)
			if res.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", res.Code)
			}
		})
	}
}

func TestAuthenticatorScopes(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret}, nil)
	token, _ := IssueToken(testSecret, "lend1caller", "", "", time.Minute, "lending:read")
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/interest-rate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	auth.Middleware("lending:admin")(subjectEcho()).ServeHTTP(res, req)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing scope, got %d", res.Code)
	}
}

func TestAuthenticatorDisabledPassesThrough(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	res := httptest.NewRecorder()
	auth.Middleware()(subjectEcho()).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	if res.Code != http.StatusOK || res.Body.Len() != 0 {
		t.Fatalf("expected anonymous pass-through, got %d %q", res.Code, res.Body.String())
	}
}
