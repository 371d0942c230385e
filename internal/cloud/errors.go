package cloud

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
)

var (
	// ErrUnsupportedOperation is returned when a connector does not
	// implement an operation for its provider.
	ErrUnsupportedOperation = errors.New("operation not supported by provider")

	// ErrExpiredAccessToken marks a wire failure caused by an expired
	// or revoked access token, retryable after a refresh.
	ErrExpiredAccessToken = errors.New("access token expired")

	// ErrNotFound is returned when the provider reports the file does
	// not exist.
	ErrNotFound = errors.New("file not found")
)

// ProviderError wraps a provider wire failure. Callers may rely on
// Provider, Op and Message; everything else is raw passthrough.
type ProviderError struct {
	Provider   Provider
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapGoogleError converts a Drive API failure into a ProviderError,
// classifying 401s and 404s.
func WrapGoogleError(op string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		wrapped := err
		switch gErr.Code {
		case 401:
			wrapped = ErrExpiredAccessToken
		case 404:
			wrapped = ErrNotFound
		}
		return &ProviderError{
			Provider:   ProviderGoogleDrive,
			Op:         op,
			StatusCode: gErr.Code,
			Message:    gErr.Message,
			Err:        wrapped,
		}
	}
	return &ProviderError{
		Provider: ProviderGoogleDrive,
		Op:       op,
		Message:  err.Error(),
		Err:      err,
	}
}

// NewDropboxError builds a ProviderError from a Dropbox error summary,
// distinguishing the expired_access_token tag from generic failures.
func NewDropboxError(op string, statusCode int, summary string) error {
	wrapped := error(nil)
	switch {
	case strings.Contains(summary, "expired_access_token"):
		wrapped = ErrExpiredAccessToken
	case strings.Contains(summary, "not_found"):
		wrapped = ErrNotFound
	}
	return &ProviderError{
		Provider:   ProviderDropbox,
		Op:         op,
		StatusCode: statusCode,
		Message:    summary,
		Err:        wrapped,
	}
}

// IsAuthExpired reports whether err stems from an expired or revoked
// access token.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrExpiredAccessToken)
}
