// Package federation resolves externally issued credentials to verified
// identity tuples. The engines only see the Verifier interface; provider
// specifics stay here.
package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2"
)

// ErrInvalidCredential means the credential could not be resolved by any
// supported method.
var ErrInvalidCredential = errors.New("invalid federated credential")

// Identity is the verified tuple a provider vouches for.
type Identity struct {
	ProviderID string
	Email      string
	Firstname  string
	Lastname   string
}

// Verifier exchanges an externally issued credential for a verified identity.
type Verifier interface {
	Resolve(ctx context.Context, credential string) (*Identity, error)
}

type Config struct {
	ClientID string
}

// ConfigFromEnv reads the OAuth client id from env vars.
func ConfigFromEnv() Config {
	return Config{ClientID: os.Getenv("GOOGLE_CLIENT_ID")}
}

// GoogleVerifier accepts either a Google ID token or an access token.
// ID tokens are checked against the tokeninfo endpoint (audience must match
// our client id); anything else falls back to the userinfo endpoint with the
// credential used as a bearer token.
type GoogleVerifier struct {
	clientID string

	// overridable in tests
	TokenInfoURL string
	UserInfoURL  string
	HTTPClient   *http.Client
}

func NewGoogleVerifier(cfg Config) *GoogleVerifier {
	return &GoogleVerifier{
		clientID:     cfg.ClientID,
		TokenInfoURL: "https://oauth2.googleapis.com/tokeninfo",
		UserInfoURL:  "https://www.googleapis.com/oauth2/v3/userinfo",
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

type googleClaims struct {
	Sub        string `json:"sub"`
	Aud        string `json:"aud"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

func (c googleClaims) identity() *Identity {
	return &Identity{
		ProviderID: c.Sub,
		Email:      c.Email,
		Firstname:  c.GivenName,
		Lastname:   c.FamilyName,
	}
}

func (g *GoogleVerifier) Resolve(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrInvalidCredential
	}
	if id, err := g.resolveIDToken(ctx, credential); err == nil {
		return id, nil
	}
	if id, err := g.resolveAccessToken(ctx, credential); err == nil {
		return id, nil
	}
	return nil, ErrInvalidCredential
}

func (g *GoogleVerifier) resolveIDToken(ctx context.Context, credential string) (*Identity, error) {
	u := g.TokenInfoURL + "?id_token=" + url.QueryEscape(credential)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tokeninfo status: %s", resp.Status)
	}
	var claims googleClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decode tokeninfo: %w", err)
	}
	if claims.Aud != g.clientID || claims.Sub == "" {
		return nil, ErrInvalidCredential
	}
	return claims.identity(), nil
}

func (g *GoogleVerifier) resolveAccessToken(ctx context.Context, credential string) (*Identity, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential})
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.HTTPClient)
	client := oauth2.NewClient(ctx, src)

	resp, err := client.Get(g.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("user info request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info status: %s", resp.Status)
	}
	var claims googleClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	if claims.Sub == "" {
		return nil, ErrInvalidCredential
	}
	return claims.identity(), nil
}
