// Package forgegh implements forge.Client against GitHub, using go-github
// for the typed REST surface and the teacher's internal/github/auth.go
// JWT + installation-token exchange for GitHub App authentication.
package forgegh

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gh "github.com/google/go-github/v66/github"
)

// AppAuth holds GitHub App credentials and caches installation tokens per
// repository, refreshing a token once it is within refreshSkew of expiry.
type AppAuth struct {
	AppID      string
	PrivateKey string

	mu     sync.Mutex
	tokens map[string]*installationToken
	client *gh.Client
}

type installationToken struct {
	token     string
	expiresAt time.Time
}

const refreshSkew = 2 * time.Minute

// NewAppAuth constructs an AppAuth that exchanges JWTs for installation
// tokens through baseClient (typically an unauthenticated gh.Client, or one
// pointed at a GitHub Enterprise base URL).
func NewAppAuth(appID, privateKey string, baseClient *gh.Client) *AppAuth {
	if baseClient == nil {
		baseClient = gh.NewClient(nil)
	}
	return &AppAuth{AppID: appID, PrivateKey: privateKey, tokens: map[string]*installationToken{}, client: baseClient}
}

// Token returns a valid installation access token scoped to repo
// ("owner/name"), fetching or refreshing it as needed.
func (a *AppAuth) Token(ctx context.Context, repo string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cached, ok := a.tokens[repo]; ok && time.Until(cached.expiresAt) > refreshSkew {
		return cached.token, nil
	}

	jwtToken, err := a.generateJWT()
	if err != nil {
		return "", fmt.Errorf("forgegh: generate app jwt: %w", err)
	}

	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	appClient := a.client.WithAuthToken(jwtToken)
	installation, _, err := appClient.Apps.FindRepositoryInstallation(ctx, owner, name)
	if err != nil {
		return "", fmt.Errorf("forgegh: find installation for %s: %w", repo, err)
	}

	it, _, err := appClient.Apps.CreateInstallationToken(ctx, installation.GetID(), nil)
	if err != nil {
		return "", fmt.Errorf("forgegh: create installation token for %s: %w", repo, err)
	}

	a.tokens[repo] = &installationToken{token: it.GetToken(), expiresAt: it.GetExpiresAt()}
	return it.GetToken(), nil
}

// ClientFor returns a gh.Client authenticated with repo's installation
// token.
func (a *AppAuth) ClientFor(ctx context.Context, repo string) (*gh.Client, error) {
	token, err := a.Token(ctx, repo)
	if err != nil {
		return nil, err
	}
	return a.client.WithAuthToken(token), nil
}

func (a *AppAuth) generateJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(a.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	appID, err := strconv.ParseInt(a.AppID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid app id: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    strconv.FormatInt(appID, 10),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(key)
}

func splitRepo(repo string) (owner, name string, err error) {
	for i := 0; i < len(repo); i++ {
		if repo[i] == '/' {
			return repo[:i], repo[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("forgegh: invalid repo %q, want owner/name", repo)
}
