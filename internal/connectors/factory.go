package connectors

import (
	"context"
	"fmt"

	"skydeck/internal/auth"
	"skydeck/internal/cloud"
	"skydeck/internal/cloud/dropbox"
	"skydeck/internal/cloud/googledrive"
	"skydeck/internal/models"
)

// Factory builds a connector for a stored cloud account.
type Factory struct {
	refresher *auth.Refresher
}

func NewFactory(refresher *auth.Refresher) *Factory {
	return &Factory{refresher: refresher}
}

// ForAccount returns the connector matching the account's provider.
// Google connectors get a persisting token source so rotations survive
// the request; Dropbox uses the stored access token directly since the
// refresher keeps it fresh up front.
func (f *Factory) ForAccount(ctx context.Context, account *models.CloudAccount) (cloud.Connector, error) {
	switch cloud.Provider(account.Provider) {
	case cloud.ProviderGoogleDrive:
		return googledrive.New(ctx, f.refresher.TokenSource(ctx, account))
	case cloud.ProviderDropbox:
		return dropbox.New(account.AccessToken), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", account.Provider)
	}
}
