package source

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// WebRepository is a struct that implements the Repository interface for
// entries kept by a preferences server (see package server).
type WebRepository struct {
	Name       string        // Name of the storage area
	URL        *url.URL      // Base URL of the preferences server
	APIKey     string        // Optional API key for X-API-KEY header authentication
	HTTPClient *http.Client  // Optional client; http.DefaultClient when nil
	client     *resty.Client // Lazily built resty client
	clientOnce sync.Once
}

// NewWebRepository creates a WebRepository for the server at rawURL.
func NewWebRepository(rawURL, apiKey string) (*WebRepository, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing preferences server url")
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.Newf("preferences server url %q must be absolute", rawURL)
	}
	return &WebRepository{URL: parsed, APIKey: apiKey}, nil
}

func (w *WebRepository) GetName() string {
	return w.Name
}

func (w *WebRepository) GetType() string {
	return "web"
}

func (w *WebRepository) httpClient() *resty.Client {
	w.clientOnce.Do(func() {
		base := w.HTTPClient
		if base == nil {
			base = http.DefaultClient
		}
		c := resty.NewWithClient(base).
			SetBaseURL(w.URL.String()).
			SetHeader("User-Agent", "fieldview")
		if w.APIKey != "" {
			c.SetHeader("X-API-KEY", w.APIKey)
		}
		w.client = c
	})
	return w.client
}

// Read fetches the entry from the server.
func (w *WebRepository) Read(ctx context.Context, entry string) ([]byte, error) {
	if err := checkEntry(entry); err != nil {
		return nil, err
	}
	resp, err := w.httpClient().R().
		SetContext(ctx).
		SetHeader("Accept", "application/yaml").
		Get("/entries/" + entry)
	if err != nil {
		logrus.WithField("repository", w.Name).Debug("error doing request")
		return nil, errors.Wrapf(err, "reading entry %q", entry)
	}
	if resp.IsError() {
		return nil, handleError(resp, entry)
	}
	return resp.Body(), nil
}

// Write stores the entry on the server.
func (w *WebRepository) Write(ctx context.Context, entry string, data []byte) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	resp, err := w.httpClient().R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/yaml").
		SetBody(data).
		Put("/entries/" + entry)
	if err != nil {
		logrus.WithField("repository", w.Name).Debug("error doing request")
		return errors.Wrapf(err, "writing entry %q", entry)
	}
	if resp.IsError() {
		return handleError(resp, entry)
	}
	return nil
}

// Delete removes the entry on the server. A missing entry is not an error.
func (w *WebRepository) Delete(ctx context.Context, entry string) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	resp, err := w.httpClient().R().
		SetContext(ctx).
		Delete("/entries/" + entry)
	if err != nil {
		return errors.Wrapf(err, "deleting entry %q", entry)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if resp.IsError() {
		return handleError(resp, entry)
	}
	return nil
}

func handleError(resp *resty.Response, entry string) error {
	switch resp.StatusCode() {
	case http.StatusNotFound:
		return notFound(entry)
	case http.StatusUnauthorized:
		return errors.Wrapf(ErrUnauthorized, "entry %q", entry)
	}
	return errors.Newf("preferences server returned %s for entry %q", resp.Status(), entry)
}
