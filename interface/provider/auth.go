package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lterlife/acolite-ingester/service/log"
)

const (
	copernicusAuthURL  = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"
	copernicusClientID = "cdse-public"
)

// Token is a bearer/refresh token pair issued by the CDSE identity endpoint.
// IssuedAt is set locally on reception; Expired() derives the expiry from it
// so that callers never do their own wall-clock arithmetic.
type Token struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresIn        int       `json:"expires_in"`
	RefreshExpiresIn int       `json:"refresh_expires_in"`
	IssuedAt         time.Time `json:"issued_at"`
}

// Expired returns whether the access token is past its lifetime
func (t *Token) Expired() bool {
	return time.Now().After(t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second))
}

// Authenticator obtains and refreshes CDSE bearer tokens
type Authenticator struct {
	user  string
	pword string

	// AuthURL defaults to the CDSE identity endpoint
	AuthURL string
	// TokenFile, if set, receives a JSON dump of every token response
	TokenFile string
}

// NewAuthenticator creates an Authenticator for the given CDSE account
func NewAuthenticator(user, pword string) *Authenticator {
	return &Authenticator{user: user, pword: pword, AuthURL: copernicusAuthURL}
}

// Authenticate issues a password grant
func (a *Authenticator) Authenticate(ctx context.Context) (*Token, error) {
	token, err := a.postGrant(ctx, url.Values{
		"client_id":  {copernicusClientID},
		"username":   {a.user},
		"password":   {a.pword},
		"grant_type": {"password"}})
	if err != nil {
		return nil, fmt.Errorf("Authenticate.%w", err)
	}
	return token, nil
}

// Refresh issues a refresh-token grant
func (a *Authenticator) Refresh(ctx context.Context, token *Token) (*Token, error) {
	log.Logger(ctx).Debug("refreshing access token")
	refreshed, err := a.postGrant(ctx, url.Values{
		"client_id":     {copernicusClientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {token.RefreshToken}})
	if err != nil {
		return nil, fmt.Errorf("Refresh.%w", err)
	}
	return refreshed, nil
}

// EnsureValid returns token unchanged while it is still valid, a refreshed
// token otherwise.
func (a *Authenticator) EnsureValid(ctx context.Context, token *Token) (*Token, error) {
	if token == nil {
		return a.Authenticate(ctx)
	}
	if !token.Expired() {
		return token, nil
	}
	return a.Refresh(ctx, token)
}

func (a *Authenticator) postGrant(ctx context.Context, data url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", a.AuthURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("NewRequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("PostForm: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ReadAll: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("token creation failed, response from the server was: %s %s", resp.Status, body)
	}

	token := &Token{}
	if err := json.Unmarshal(body, token); err != nil {
		return nil, fmt.Errorf("Unmarshal: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token not found in %s", body)
	}
	token.IssuedAt = time.Now()

	if a.TokenFile != "" {
		if err := SaveToken(a.TokenFile, token); err != nil {
			log.Logger(ctx).Sugar().Warnf("persist token: %v", err)
		}
	}
	return token, nil
}

// SaveToken persists the token as JSON
func SaveToken(path string, token *Token) error {
	body, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("SaveToken.Marshal: %w", err)
	}
	if err := os.WriteFile(path, body, 0600); err != nil {
		return fmt.Errorf("SaveToken: %w", err)
	}
	return nil
}

// LoadToken reads a token persisted by SaveToken
func LoadToken(path string) (*Token, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadToken: %w", err)
	}
	token := &Token{}
	if err := json.Unmarshal(body, token); err != nil {
		return nil, fmt.Errorf("LoadToken.Unmarshal: %w", err)
	}
	return token, nil
}
