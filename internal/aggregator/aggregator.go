// Package aggregator fans one logical file operation out to every
// connected cloud account and collects tagged per-provider results.
package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"skydeck/internal/cloud"
	"skydeck/internal/config"
	"skydeck/internal/metrics"
	"skydeck/internal/models"
)

// ConnectorFactory builds a connector for a stored account.
type ConnectorFactory interface {
	ForAccount(ctx context.Context, account *models.CloudAccount) (cloud.Connector, error)
}

// ProviderResult is one provider's share of an aggregate call. Err is
// non-nil when that provider failed; the other results stand on their
// own.
type ProviderResult struct {
	Provider cloud.Provider         `json:"provider"`
	Files    []cloud.NormalizedFile `json:"files"`
	Err      error                  `json:"-"`
}

// Aggregator runs file operations across all of a user's accounts.
// Each provider call is bounded by callTimeout so one hanging provider
// cannot stall the whole aggregate response.
type Aggregator struct {
	factory     ConnectorFactory
	callTimeout time.Duration
}

func New(factory ConnectorFactory) *Aggregator {
	return &Aggregator{factory: factory, callTimeout: config.ProviderCallTimeout}
}

// ListFiles lists the given folder across every account concurrently.
// Results come back in the same order as accounts; one provider
// failing never hides another provider's files.
func (a *Aggregator) ListFiles(ctx context.Context, accounts []models.CloudAccount, folderRef string) []ProviderResult {
	return a.fanOut(ctx, accounts, "list", func(callCtx context.Context, conn cloud.Connector) (*cloud.FileList, error) {
		return conn.ListFiles(callCtx, folderRef)
	})
}

// Search queries every account concurrently.
func (a *Aggregator) Search(ctx context.Context, accounts []models.CloudAccount, query string) []ProviderResult {
	return a.fanOut(ctx, accounts, "search", func(callCtx context.Context, conn cloud.Connector) (*cloud.FileList, error) {
		return conn.Search(callCtx, query)
	})
}

func (a *Aggregator) fanOut(ctx context.Context, accounts []models.CloudAccount, op string, call func(context.Context, cloud.Connector) (*cloud.FileList, error)) []ProviderResult {
	results := make([]ProviderResult, len(accounts))

	var wg sync.WaitGroup
	for i := range accounts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			account := &accounts[i]
			results[i].Provider = cloud.Provider(account.Provider)
			results[i].Files = []cloud.NormalizedFile{}

			conn, err := a.factory.ForAccount(ctx, account)
			if err != nil {
				results[i].Err = err
				return
			}

			callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
			defer cancel()

			list, err := call(callCtx, conn)
			metrics.ObserveProviderCall(account.Provider, op, err)
			if err != nil {
				slog.Warn("provider call failed during aggregation",
					"provider", account.Provider, "userID", account.UserID, "error", err)
				results[i].Err = err
				return
			}
			results[i].Files = list.Files
		}(i)
	}
	wg.Wait()

	return results
}

// Flatten merges successful per-provider results into one slice,
// preserving provider order.
func Flatten(results []ProviderResult) []cloud.NormalizedFile {
	files := []cloud.NormalizedFile{}
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		files = append(files, res.Files...)
	}
	return files
}

// Errors collects the providers that failed, keyed by provider name.
func Errors(results []ProviderResult) map[string]string {
	failed := map[string]string{}
	for _, res := range results {
		if res.Err != nil {
			failed[string(res.Provider)] = res.Err.Error()
		}
	}
	return failed
}
