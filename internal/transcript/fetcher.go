// Package transcript fetches meeting logs and reads participants out of them.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/meeting-summary-bot/internal/models"
	"github.com/rs/zerolog"
)

// ErrBadStatus is wrapped by FetchError when the server answered with a non-2xx status.
var ErrBadStatus = errors.New("unexpected HTTP status")

// FetchError is returned when a meeting log could not be retrieved.
// Its message is meant to be shown to the room as is.
type FetchError struct {
	URL     string
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	return e.Message
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher downloads meeting logs over HTTP
type Fetcher struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewFetcher creates a new fetcher. A nil httpClient means http.DefaultClient.
func NewFetcher(httpClient *http.Client, logger zerolog.Logger) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{
		httpClient: httpClient,
		logger:     logger.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch retrieves the meeting log at url with a single GET request
func (f *Fetcher) Fetch(ctx context.Context, url string) (*models.Transcript, error) {
	f.logger.Debug().Str("url", url).Msg("Fetching meeting log")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, f.unexpected(url, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, f.unexpected(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
		f.logger.Error().
			Err(err).
			Str("url", url).
			Int("status", resp.StatusCode).
			Msg("Failed to fetch meeting log")
		return nil, &FetchError{
			URL:     url,
			Message: fmt.Sprintf("❌ Failed to fetch meeting log: %s", resp.Status),
			Err:     err,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, f.unexpected(url, err)
	}

	f.logger.Debug().
		Str("url", url).
		Int("length", len(body)).
		Msg("Successfully fetched meeting log")

	return &models.Transcript{URL: url, Text: string(body)}, nil
}

func (f *Fetcher) unexpected(url string, err error) *FetchError {
	f.logger.Error().
		Err(err).
		Str("url", url).
		Msg("Unexpected error fetching meeting log")
	return &FetchError{
		URL:     url,
		Message: fmt.Sprintf("❌ Error processing meeting log: %v", err),
		Err:     err,
	}
}
