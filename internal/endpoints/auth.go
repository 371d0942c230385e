package endpoints

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"skydeck/internal/auth"
	"skydeck/internal/cloud"
	"skydeck/internal/config"
	"skydeck/internal/store"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
)

// AuthDeps bundles what the OAuth handlers need.
type AuthDeps struct {
	Users     *store.UserStore
	Accounts  *store.AccountStore
	Refresher *auth.Refresher
	Google    *oauth2.Config
	Dropbox   *oauth2.Config
}

// HandleGoogleAuth returns the Google consent URL.
func HandleGoogleAuth(deps AuthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Google.ClientID == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur OAuth Google"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "authUrl": auth.GoogleAuthURL(deps.Google, "")})
	}
}

// HandleDropboxAuth returns the Dropbox consent URL.
func HandleDropboxAuth(deps AuthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Dropbox.ClientID == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur OAuth Dropbox"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "authUrl": auth.DropboxAuthURL(deps.Dropbox, "")})
	}
}

func redirectError(c *gin.Context, reason string) {
	c.Redirect(http.StatusFound, fmt.Sprintf("%s?error=%s", config.FrontendURL, reason))
}

// HandleGoogleCallback exchanges the authorization code, links the
// Google Drive account and redirects back to the frontend.
func HandleGoogleCallback(deps AuthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("error") != "" {
			redirectError(c, "auth_failed")
			return
		}
		code := c.Query("code")
		if code == "" {
			redirectError(c, "no_code")
			return
		}

		ctx := c.Request.Context()
		token, err := auth.ExchangeCode(ctx, deps.Google, code)
		if err != nil {
			slog.Error("google code exchange failed", "error", err)
			redirectError(c, "google_token_exchange_failed")
			return
		}

		profile, err := auth.GoogleUserInfo(ctx, deps.Google, token)
		if err != nil {
			slog.Error("google userinfo fetch failed", "error", err)
			redirectError(c, "google_token_exchange_failed")
			return
		}

		user, err := deps.Users.LookupOrCreate(profile.Email, profile.Name)
		if err != nil {
			slog.Error("user lookup failed", "error", err)
			redirectError(c, "google_token_exchange_failed")
			return
		}

		expiresAt := tokenExpiry(token)
		if _, err := deps.Accounts.Upsert(user.ID, string(cloud.ProviderGoogleDrive), token.AccessToken, token.RefreshToken, profile.Email, &expiresAt); err != nil {
			slog.Error("cloud account upsert failed", "provider", "google_drive", "error", err)
			redirectError(c, "google_token_exchange_failed")
			return
		}

		c.Redirect(http.StatusFound, fmt.Sprintf("%s?auth=success&userId=%s", config.FrontendURL, user.ID))
	}
}

// HandleDropboxCallback exchanges the authorization code, links the
// Dropbox account and redirects back to the frontend.
func HandleDropboxCallback(deps AuthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("error") != "" {
			redirectError(c, "auth_failed")
			return
		}
		code := c.Query("code")
		if code == "" {
			redirectError(c, "no_code")
			return
		}

		ctx := c.Request.Context()
		token, err := auth.ExchangeCode(ctx, deps.Dropbox, code)
		if err != nil {
			slog.Error("dropbox code exchange failed", "error", err)
			redirectError(c, "dropbox_token_exchange_failed")
			return
		}

		profile, err := auth.DropboxUserInfo(ctx, nil, token.AccessToken)
		if err != nil {
			slog.Error("dropbox account info fetch failed", "error", err)
			redirectError(c, "dropbox_token_exchange_failed")
			return
		}

		user, err := deps.Users.LookupOrCreate(profile.Email, profile.Name)
		if err != nil {
			slog.Error("user lookup failed", "error", err)
			redirectError(c, "dropbox_token_exchange_failed")
			return
		}

		expiresAt := tokenExpiry(token)
		if _, err := deps.Accounts.Upsert(user.ID, string(cloud.ProviderDropbox), token.AccessToken, token.RefreshToken, profile.Email, &expiresAt); err != nil {
			slog.Error("cloud account upsert failed", "provider", "dropbox", "error", err)
			redirectError(c, "dropbox_token_exchange_failed")
			return
		}

		c.Redirect(http.StatusFound, fmt.Sprintf("%s?auth=success&userId=%s", config.FrontendURL, user.ID))
	}
}

// tokenExpiry defaults to one hour when the provider omitted one.
func tokenExpiry(token *oauth2.Token) time.Time {
	if !token.Expiry.IsZero() {
		return token.Expiry
	}
	return time.Now().Add(time.Hour)
}

// HandleAuthStatus reports which providers a user has connected.
func HandleAuthStatus(deps AuthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := deps.Users.FindByID(c.Param("userId"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Utilisateur non trouvé"})
			return
		}

		services := gin.H{
			string(cloud.ProviderGoogleDrive): false,
			string(cloud.ProviderDropbox):     false,
		}
		for _, account := range user.CloudAccounts {
			services[account.Provider] = true
		}

		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"user":              gin.H{"id": user.ID, "email": user.Email, "name": user.Name},
			"connectedServices": services,
		})
	}
}

// HandleUserInfo refreshes the user's profile from their Google
// account.
func HandleUserInfo(deps AuthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := deps.Users.FindByID(c.Param("userId"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Utilisateur non trouvé"})
			return
		}

		account, err := deps.Accounts.Get(user.ID, string(cloud.ProviderGoogleDrive))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "Aucun compte Google Drive connecté",
				"user":    gin.H{"name": user.Name, "email": user.Email},
			})
			return
		}

		ctx := c.Request.Context()
		deps.Refresher.EnsureFresh(ctx, account)

		profile, err := auth.GoogleUserInfoDetailed(ctx, deps.Google, account)
		if err != nil {
			slog.Error("user info fetch failed", "userID", user.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "Erreur lors de la récupération des informations utilisateur",
			})
			return
		}

		name := profile.Name
		if name == "" {
			name = user.Name
		}
		email := profile.Email
		if email == "" {
			email = user.Email
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"user": gin.H{
				"id":         user.ID,
				"name":       name,
				"email":      email,
				"picture":    profile.Picture,
				"givenName":  profile.GivenName,
				"familyName": profile.FamilyName,
			},
		})
	}
}

// HandleDisconnect unlinks one provider from the user.
func HandleDisconnect(deps AuthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		provider := c.Param("provider")
		if !cloud.IsValidProvider(provider) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Provider invalide"})
			return
		}

		if err := deps.Accounts.Delete(userID, provider); err != nil {
			if err == store.ErrNotFound {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Aucun compte trouvé pour ce service"})
				return
			}
			slog.Error("disconnect failed", "userID", userID, "provider", provider, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur lors de la déconnexion"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("%s déconnecté avec succès", provider)})
	}
}
