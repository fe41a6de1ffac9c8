package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAuthEndpoint  = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenEndpoint = "https://oauth2.googleapis.com/token"
	defaultScope         = "openid email profile"
)

// GoogleConfig carries the OAuth client registration.
type GoogleConfig struct {
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	AuthEndpoint  string
	TokenEndpoint string
}

// Google performs the authorization-code exchange against Google's token
// endpoint and reads the identity out of the returned ID token. Signature
// verification of the ID token is delegated to the provider: the token is
// received first-hand over the TLS exchange channel, so its claims are
// decoded without a local key check.
type Google struct {
	cfg    GoogleConfig
	client *http.Client
}

// NewGoogle builds a provider, filling in the default Google endpoints.
func NewGoogle(cfg GoogleConfig) *Google {
	if cfg.AuthEndpoint == "" {
		cfg.AuthEndpoint = defaultAuthEndpoint
	}
	if cfg.TokenEndpoint == "" {
		cfg.TokenEndpoint = defaultTokenEndpoint
	}
	return &Google{cfg: cfg, client: http.DefaultClient}
}

// AuthURL returns the provider page the browser is sent to.
func (g *Google) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", g.cfg.ClientID)
	q.Set("redirect_uri", g.cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", defaultScope)
	q.Set("access_type", "offline")
	if state != "" {
		q.Set("state", state)
	}
	return g.cfg.AuthEndpoint + "?" + q.Encode()
}

// Exchange swaps the authorization code for tokens and extracts the asserted
// identity from the ID token claims.
func (g *Google) Exchange(ctx context.Context, code string) (Identity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Identity{}, fmt.Errorf("%w: empty code", ErrExchangeFailed)
	}

	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", g.cfg.ClientID)
	form.Set("client_secret", g.cfg.ClientSecret)
	form.Set("redirect_uri", g.cfg.RedirectURI)
	form.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("%w: provider returned %d", ErrExchangeFailed, resp.StatusCode)
	}

	var body struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Identity{}, fmt.Errorf("%w: decode response: %v", ErrExchangeFailed, err)
	}
	if body.IDToken == "" {
		return Identity{}, fmt.Errorf("%w: no id_token in response", ErrExchangeFailed)
	}
	return identityFromIDToken(body.IDToken)
}

func identityFromIDToken(raw string) (Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Identity{}, fmt.Errorf("%w: parse id_token: %v", ErrExchangeFailed, err)
	}
	email, _ := claims["email"].(string)
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return Identity{}, fmt.Errorf("%w: id_token carries no email", ErrExchangeFailed)
	}
	name, _ := claims["name"].(string)
	return Identity{Email: email, Name: strings.TrimSpace(name)}, nil
}
