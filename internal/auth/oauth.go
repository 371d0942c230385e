package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"skydeck/internal/config"
	"skydeck/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// DropboxEndpoint is the Dropbox OAuth2 endpoint. x/oauth2 ships no
// preset for it.
var DropboxEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.dropbox.com/oauth2/authorize",
	TokenURL: "https://api.dropboxapi.com/oauth2/token",
}

// GoogleOAuthConfig builds the Drive-scoped OAuth2 config from env.
func GoogleOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     config.GoogleClientID,
		ClientSecret: config.GoogleClientSecret,
		RedirectURL:  config.GoogleRedirectURI,
		Scopes:       config.GoogleScopes,
		Endpoint:     google.Endpoint,
	}
}

// DropboxOAuthConfig builds the Dropbox OAuth2 config from env.
func DropboxOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     config.DropboxClientID,
		ClientSecret: config.DropboxClientSecret,
		RedirectURL:  config.DropboxRedirectURI,
		Scopes:       strings.Split(config.DropboxScopes, " "),
		Endpoint:     DropboxEndpoint,
	}
}

// GoogleAuthURL returns the consent URL. Offline access plus forced
// approval so Google issues a refresh token on every connect.
func GoogleAuthURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// DropboxAuthURL returns the consent URL. token_access_type=offline
// makes Dropbox issue a refresh token alongside the short-lived
// access token.
func DropboxAuthURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("token_access_type", "offline"))
}

// ExchangeCode trades an authorization code for tokens.
func ExchangeCode(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

// UserProfile identifies the account behind a freshly issued token.
type UserProfile struct {
	Email      string
	Name       string
	Picture    string
	GivenName  string
	FamilyName string
}

// GoogleUserInfo fetches the profile of the token's owner.
func GoogleUserInfo(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token) (*UserProfile, error) {
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch google userinfo: %w", err)
	}
	return &UserProfile{
		Email:      info.Email,
		Name:       info.Name,
		Picture:    info.Picture,
		GivenName:  info.GivenName,
		FamilyName: info.FamilyName,
	}, nil
}

// GoogleUserInfoDetailed fetches the profile using tokens already
// stored on a linked account.
func GoogleUserInfoDetailed(ctx context.Context, cfg *oauth2.Config, account *models.CloudAccount) (*UserProfile, error) {
	token := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
	}
	if account.ExpiresAt != nil {
		token.Expiry = *account.ExpiresAt
	}
	return GoogleUserInfo(ctx, cfg, token)
}

// DropboxUserInfo fetches the profile of the token's owner through the
// users/get_current_account endpoint.
func DropboxUserInfo(ctx context.Context, client *http.Client, accessToken string) (*UserProfile, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.dropboxapi.com/2/users/get_current_account", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build account info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dropbox account info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dropbox account info returned status %d", resp.StatusCode)
	}

	var account struct {
		Email string `json:"email"`
		Name  struct {
			DisplayName string `json:"display_name"`
		} `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("failed to decode dropbox account info: %w", err)
	}
	return &UserProfile{Email: account.Email, Name: account.Name.DisplayName}, nil
}
