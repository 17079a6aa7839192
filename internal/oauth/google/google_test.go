package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/afp-labs/mailgrant/internal/oauth"
)

func fakeIDToken(t *testing.T, email string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	claims, err := json.Marshal(map[string]any{"email": email, "email_verified": true})
	if err != nil {
		t.Fatal(err)
	}
	payload := base64.RawURLEncoding.EncodeToString(claims)
	return header + "." + payload + ".sig"
}

func newTestClient(tokenURL string) *Client {
	return New(Config{
		ClientID:      "cid",
		ClientSecret:  "csecret",
		RedirectURL:   "https://app.example.com/v1/connect/gmail/callback",
		Scopes:        []string{"openid", "email", "https://www.googleapis.com/auth/gmail.readonly"},
		TokenEndpoint: tokenURL,
		Timeout:       2 * time.Second,
	})
}

func TestAuthCodeURL(t *testing.T) {
	c := newTestClient("")
	raw := c.AuthCodeURL("state-123")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	q := u.Query()
	for k, want := range map[string]string{
		"response_type": "code",
		"client_id":     "cid",
		"state":         "state-123",
		"access_type":   "offline",
		"prompt":        "consent",
	} {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if !strings.Contains(q.Get("scope"), "gmail.readonly") {
		t.Errorf("scope missing gmail.readonly: %q", q.Get("scope"))
	}
}

func TestExchange(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotForm = r.PostForm
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"id_token":      fakeIDToken(t, "User@Example.COM"),
			"expires_in":    3600,
			"token_type":    "Bearer",
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	tok, err := c.Exchange(context.Background(), "code-abc")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if gotForm.Get("grant_type") != "authorization_code" || gotForm.Get("code") != "code-abc" {
		t.Errorf("unexpected form: %v", gotForm)
	}
	if tok.AccessToken != "at-1" || tok.RefreshToken != "rt-1" {
		t.Errorf("unexpected tokens: %+v", tok)
	}
	if tok.Email != "user@example.com" {
		t.Errorf("email = %q, want lowercased identity", tok.Email)
	}
	if until := time.Until(tok.ExpiresAt); until < 59*time.Minute || until > 61*time.Minute {
		t.Errorf("ExpiresAt not ~1h out: %v", tok.ExpiresAt)
	}
}

func TestExchangeProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Code was already redeemed.",
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Exchange(context.Background(), "used-code")
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *oauth.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *oauth.ProviderError, got %T: %v", err, err)
	}
	if pe.Code != "invalid_grant" {
		t.Errorf("code = %q", pe.Code)
	}
	if !oauth.IsInvalidGrant(err) {
		t.Error("IsInvalidGrant should report true")
	}
	if !errors.Is(err, oauth.ErrExchange) {
		t.Error("provider errors should unwrap to ErrExchange")
	}
}

func TestRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "rt-1" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-2",
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	tok, err := c.Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tok.AccessToken != "at-2" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
	if tok.RefreshToken != "" {
		t.Errorf("refresh response should not carry a new refresh token, got %q", tok.RefreshToken)
	}
}

func TestRefreshTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Refresh(ctx, "rt-1")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, oauth.ErrExchange) {
		t.Errorf("timeout should wrap ErrExchange, got %v", err)
	}
	if oauth.IsInvalidGrant(err) {
		t.Error("a timeout must never look like invalid_grant")
	}
}
