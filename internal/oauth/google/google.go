// Package google implements the Gmail OAuth provider against Google's
// OAuth 2.0 endpoints.
package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/afp-labs/mailgrant/internal/oauth"
)

const (
	defaultAuthEndpoint  = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenEndpoint = "https://oauth2.googleapis.com/token"
)

// Config for the Gmail provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// AuthEndpoint/TokenEndpoint override the Google URLs. Tests only.
	AuthEndpoint  string
	TokenEndpoint string

	// Timeout bounds every provider call. A timeout surfaces as
	// oauth.ErrExchange like any other provider failure.
	Timeout time.Duration
}

// Client implements oauth.Provider for Gmail.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.AuthEndpoint == "" {
		cfg.AuthEndpoint = defaultAuthEndpoint
	}
	if cfg.TokenEndpoint == "" {
		cfg.TokenEndpoint = defaultTokenEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Name() string { return "gmail" }

func (c *Client) Scopes() []string { return c.cfg.Scopes }

// AuthCodeURL builds the authorization URL. access_type=offline plus
// prompt=consent forces Google to issue a refresh token even when the user
// already granted these scopes.
func (c *Client) AuthCodeURL(state string) string {
	u, _ := url.Parse(c.cfg.AuthEndpoint)
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURL)
	q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	q.Set("state", state)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	u.RawQuery = q.Encode()
	return u.String()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// Exchange swaps an authorization code for tokens and the mailbox identity.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("redirect_uri", c.cfg.RedirectURL)

	tr, err := c.tokenCall(ctx, form)
	if err != nil {
		return nil, err
	}

	email, err := emailFromIDToken(tr.IDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrExchange, err)
	}

	return &oauth.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second),
		Email:        email,
	}, nil
}

// Refresh mints a new access token. Google does not rotate the refresh
// token here; the response carries no identity.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	tr, err := c.tokenCall(ctx, form)
	if err != nil {
		return nil, err
	}

	return &oauth.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

func (c *Client) tokenCall(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrExchange, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		// Includes client timeouts and context deadline.
		return nil, fmt.Errorf("%w: %v", oauth.ErrExchange, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var body struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, &oauth.ProviderError{
			StatusCode:  resp.StatusCode,
			Code:        body.Error,
			Description: body.ErrorDescription,
		}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: decode token response: %v", oauth.ErrExchange, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access_token in response", oauth.ErrExchange)
	}
	return &tr, nil
}

// emailFromIDToken extracts the email claim. The id_token arrives directly
// from Google's token endpoint over TLS in the same response as the access
// token, so signature verification adds nothing here.
func emailFromIDToken(idToken string) (string, error) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("bad id_token format")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode id_token payload: %v", err)
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("parse id_token claims: %v", err)
	}
	if claims.Email == "" {
		return "", fmt.Errorf("id_token missing email claim")
	}
	return strings.ToLower(claims.Email), nil
}
