// Package ghapp turns a stored GitHub App installation id into a
// short-lived, scoped API client. The installation is probed for
// existence before any token is minted so a revoked installation
// surfaces as a clear "reconnect GitHub" error instead of a write
// failure deep in the commit pipeline.
package ghapp

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/staticsnack/server/internal/snackerr"
)

// appJWTLifetime is GitHub's maximum App JWT validity.
const appJWTLifetime = 10 * time.Minute

type Resolver struct {
	appID int64
	key   *rsa.PrivateKey
	hc    *http.Client // optional; for tests
	now   func() time.Time
}

// NewResolver builds a resolver for the given App id and private key.
// The key is injected, never read from the environment here.
func NewResolver(appID int64, key *rsa.PrivateKey) *Resolver {
	return &Resolver{appID: appID, key: key, now: time.Now}
}

// NewResolverWithHTTPClient returns a resolver that uses the given
// http.Client for API calls (e.g. in tests).
func NewResolverWithHTTPClient(appID int64, key *rsa.PrivateKey, hc *http.Client) *Resolver {
	return &Resolver{appID: appID, key: key, hc: hc, now: time.Now}
}

// Resolve verifies the installation still exists, mints an
// installation token and returns a client scoped to it. Stateless per
// call; tokens are not cached.
func (r *Resolver) Resolve(ctx context.Context, installationID int64) (*github.Client, error) {
	appJWT, err := r.signAppJWT()
	if err != nil {
		return nil, fmt.Errorf("sign app jwt: %w", err)
	}
	appClient := github.NewClient(r.hc).WithAuthToken(appJWT)

	// Existence probe: mandatory before any write path.
	if _, _, err := appClient.Apps.GetInstallation(ctx, installationID); err != nil {
		if isNotFound(err) {
			return nil, snackerr.Wrap(snackerr.KindInstallationNotFound,
				"GitHub App installation not found; reconnect GitHub", err)
		}
		return nil, fmt.Errorf("probe installation %d: %w", installationID, err)
	}

	token, _, err := appClient.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, snackerr.Wrap(snackerr.KindInstallationNotFound,
				"GitHub App installation not found; reconnect GitHub", err)
		}
		return nil, fmt.Errorf("create installation token: %w", err)
	}

	if r.hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.hc)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.GetToken()})
	return github.NewClient(oauth2.NewClient(ctx, ts)), nil
}

func (r *Resolver) signAppJWT() (string, error) {
	now := r.now()
	claims := jwt.RegisteredClaims{
		// Backdated to absorb clock skew between us and GitHub.
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTLifetime)),
		Issuer:    strconv.FormatInt(r.appID, 10),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(r.key)
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}
