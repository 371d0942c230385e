package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"skydeck/internal/cloud"
	"skydeck/internal/metrics"
	"skydeck/internal/models"
	"skydeck/internal/store"

	"golang.org/x/oauth2"
)

// Refresher keeps stored provider tokens usable. It serializes
// refreshes per (user, provider) pair so concurrent requests never
// race the token endpoint with the same refresh token.
type Refresher struct {
	accounts *store.AccountStore
	google   *oauth2.Config
	dropbox  *oauth2.Config

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func NewRefresher(accounts *store.AccountStore, google, dropbox *oauth2.Config) *Refresher {
	return &Refresher{
		accounts: accounts,
		google:   google,
		dropbox:  dropbox,
		keys:     make(map[string]*sync.Mutex),
	}
}

func (r *Refresher) keyLock(userID, provider string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := userID + ":" + provider
	lock, ok := r.keys[key]
	if !ok {
		lock = &sync.Mutex{}
		r.keys[key] = lock
	}
	return lock
}

func (r *Refresher) configFor(provider string) *oauth2.Config {
	if provider == string(cloud.ProviderDropbox) {
		return r.dropbox
	}
	return r.google
}

// needsRefresh reports whether the stored access token is expired or
// has no known expiry. A small skew keeps tokens from dying mid-call.
func needsRefresh(account *models.CloudAccount) bool {
	if account.ExpiresAt == nil {
		return true
	}
	return account.ExpiresAt.Before(time.Now().Add(time.Minute))
}

// EnsureFresh refreshes the account's access token when it is expired
// or about to expire, persisting and mutating the account in place.
// A failed refresh is logged and swallowed so the request proceeds and
// the provider call fails with its own error.
func (r *Refresher) EnsureFresh(ctx context.Context, account *models.CloudAccount) {
	if !needsRefresh(account) {
		return
	}

	lock := r.keyLock(account.UserID, account.Provider)
	lock.Lock()
	defer lock.Unlock()

	// Another request may have refreshed while we waited for the lock.
	current, err := r.accounts.Get(account.UserID, account.Provider)
	if err == nil {
		*account = *current
		if !needsRefresh(account) {
			return
		}
	}

	if account.RefreshToken == "" {
		slog.Warn("no refresh token stored, proceeding with stale access token",
			"userID", account.UserID, "provider", account.Provider)
		return
	}

	token, err := r.refresh(ctx, account)
	if err != nil {
		slog.Warn("token refresh failed, proceeding with stored token",
			"userID", account.UserID, "provider", account.Provider, "error", err)
		return
	}

	r.persist(account, token)
}

func (r *Refresher) refresh(ctx context.Context, account *models.CloudAccount) (*oauth2.Token, error) {
	cfg := r.configFor(account.Provider)
	seed := &oauth2.Token{
		RefreshToken: account.RefreshToken,
		Expiry:       time.Now().Add(-time.Hour),
	}
	token, err := cfg.TokenSource(ctx, seed).Token()
	metrics.ObserveTokenRefresh(account.Provider, err)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh %s token: %w", account.Provider, err)
	}
	return token, nil
}

func (r *Refresher) persist(account *models.CloudAccount, token *oauth2.Token) {
	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		expiresAt = &expiry
	}
	if err := r.accounts.UpdateTokens(account.UserID, account.Provider, token.AccessToken, token.RefreshToken, expiresAt); err != nil {
		slog.Warn("failed to persist refreshed token",
			"userID", account.UserID, "provider", account.Provider, "error", err)
	}
	account.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		account.RefreshToken = token.RefreshToken
	}
	account.ExpiresAt = expiresAt
}

// TokenSource wraps the stored credentials in an oauth2.TokenSource
// that persists any rotation the underlying source performs.
func (r *Refresher) TokenSource(ctx context.Context, account *models.CloudAccount) oauth2.TokenSource {
	cfg := r.configFor(account.Provider)
	seed := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
	}
	if account.ExpiresAt != nil {
		seed.Expiry = *account.ExpiresAt
	}
	return &persistingSource{
		refresher: r,
		account:   account,
		inner:     cfg.TokenSource(ctx, seed),
		last:      account.AccessToken,
	}
}

// persistingSource observes tokens handed out by the wrapped source
// and writes rotations back to the account store.
type persistingSource struct {
	refresher *Refresher
	account   *models.CloudAccount
	inner     oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	token, err := p.inner.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	rotated := token.AccessToken != p.last
	if rotated {
		p.last = token.AccessToken
	}
	p.mu.Unlock()
	if rotated {
		p.refresher.persist(p.account, token)
	}
	return token, nil
}
