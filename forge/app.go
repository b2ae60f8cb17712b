package forge

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// appJWTLifetime is the lifetime of the app-level JWT used to mint
// installation tokens. GitHub caps it at 10 minutes.
const appJWTLifetime = 9 * time.Minute

// AppConfig identifies a GitHub App installation.
type AppConfig struct {
	AppID          int64
	InstallationID int64
	PrivateKey     []byte // PEM-encoded RSA key
	BaseURL        string // GitHub Enterprise, empty for github.com
}

// AppTokenSource mints short-lived installation tokens for a GitHub App.
// It implements oauth2.TokenSource and refreshes tokens before expiry, so
// it can back a long-running provider without re-authentication.
type AppTokenSource struct {
	cfg AppConfig
	key *rsa.PrivateKey

	mu    sync.Mutex
	token *oauth2.Token
}

// NewAppTokenSource parses the private key and returns a token source.
func NewAppTokenSource(cfg AppConfig) (*AppTokenSource, error) {
	if cfg.AppID == 0 || cfg.InstallationID == 0 {
		return nil, fmt.Errorf("app ID and installation ID are required")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("parse app private key: %w", err)
	}
	return &AppTokenSource{cfg: cfg, key: key}, nil
}

// Token returns a valid installation token, minting a new one when the
// cached token is missing or about to expire.
func (s *AppTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil && time.Until(s.token.Expiry) > time.Minute {
		return s.token, nil
	}

	token, err := s.mint(context.Background())
	if err != nil {
		return nil, err
	}
	s.token = token
	return token, nil
}

func (s *AppTokenSource) mint(ctx context.Context) (*oauth2.Token, error) {
	appJWT, err := s.signAppJWT()
	if err != nil {
		return nil, err
	}

	client := github.NewClient(&http.Client{
		Transport: &bearerTransport{token: appJWT},
	})
	if s.cfg.BaseURL != "" {
		client, err = client.WithEnterpriseURLs(s.cfg.BaseURL, s.cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("set base URL: %w", err)
		}
	}

	inst, _, err := client.Apps.CreateInstallationToken(ctx, s.cfg.InstallationID, nil)
	if err != nil {
		return nil, fmt.Errorf("create installation token: %w", err)
	}

	return &oauth2.Token{
		AccessToken: inst.GetToken(),
		Expiry:      inst.GetExpiresAt().Time,
	}, nil
}

// signAppJWT produces the RS256-signed app JWT GitHub expects.
func (s *AppTokenSource) signAppJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    fmt.Sprintf("%d", s.cfg.AppID),
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTLifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign app JWT: %w", err)
	}
	return signed, nil
}

// NewGitHubApp creates a GitHub provider authenticated as an App
// installation, refreshing its token automatically.
func NewGitHubApp(cfg AppConfig, owner, repo string) (*GitHub, error) {
	ts, err := NewAppTokenSource(cfg)
	if err != nil {
		return nil, err
	}

	tc := oauth2.NewClient(context.Background(), ts)
	provider := &GitHub{
		client: github.NewClient(tc),
		owner:  owner,
		repo:   repo,
	}
	if cfg.BaseURL != "" {
		return provider.WithBaseURL(cfg.BaseURL)
	}
	return provider, nil
}

type bearerTransport struct {
	token string
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return http.DefaultTransport.RoundTrip(clone)
}
