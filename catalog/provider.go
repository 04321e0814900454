package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/signalsfoundry/orbitdeck/internal/logging"
	"github.com/signalsfoundry/orbitdeck/model"
)

// Provider fetches the raw entries for a single catalog category.
//
// Implementations fail with errors wrapping ErrNetwork for transport-level
// problems. Individual malformed records are skipped, not surfaced as errors.
type Provider interface {
	FetchCategory(ctx context.Context, category model.Category) ([]model.CatalogEntry, error)
}

//
// ---------- HTTP provider ----------
//

// HTTPProvider fetches per-category TLE feeds from a CelesTrak-style GP
// endpoint (one group per category). Transient failures are retried with
// exponential backoff before an ErrNetwork is surfaced.
type HTTPProvider struct {
	baseURL    string
	client     *http.Client
	log        logging.Logger
	maxRetries int
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) { p.client = c }
}

// WithHTTPLogger sets the provider logger.
func WithHTTPLogger(log logging.Logger) HTTPOption {
	return func(p *HTTPProvider) { p.log = log }
}

// WithMaxRetries bounds how many times a failed fetch is retried.
func WithMaxRetries(n int) HTTPOption {
	return func(p *HTTPProvider) { p.maxRetries = n }
}

// NewHTTPProvider builds a provider against the given base URL. The category
// is passed as the GROUP query parameter, matching the public GP API shape.
func NewHTTPProvider(baseURL string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        logging.Noop(),
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchCategory downloads and parses one category feed.
func (p *HTTPProvider) FetchCategory(ctx context.Context, category model.Category) ([]model.CatalogEntry, error) {
	if category == "" {
		return nil, fmt.Errorf("%w: empty category", ErrUnknownCategory)
	}

	feedURL, err := p.feedURL(category)
	if err != nil {
		return nil, err
	}

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = 500 * time.Millisecond
	boff.MaxInterval = 10 * time.Second

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			wait := boff.NextBackOff()
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
			case <-time.After(wait):
			}
		}

		entries, skipped, err := p.fetchOnce(ctx, category, feedURL)
		if err != nil {
			lastErr = err
			p.log.Warn(ctx, "category fetch attempt failed",
				logging.String("category", string(category)),
				logging.Int("attempt", attempt),
				logging.String("error", err.Error()),
			)
			continue
		}
		if skipped > 0 {
			p.log.Warn(ctx, "skipped malformed catalog records",
				logging.String("category", string(category)),
				logging.Int("skipped", skipped),
			)
		}
		return entries, nil
	}
	return nil, lastErr
}

func (p *HTTPProvider) fetchOnce(ctx context.Context, category model.Category, feedURL string) ([]model.CatalogEntry, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("%w: %s returned status %d", ErrNetwork, category, resp.StatusCode)
	}

	entries, skipped, err := ParseTLE(resp.Body, category)
	if err != nil {
		return nil, skipped, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return entries, skipped, nil
}

func (p *HTTPProvider) feedURL(category model.Category) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: bad base URL %q", ErrNetwork, p.baseURL)
	}
	q := u.Query()
	q.Set("GROUP", string(category))
	q.Set("FORMAT", "tle")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

//
// ---------- File provider ----------
//

// FileProvider serves categories from local TLE files, one file per category
// named <category>.tle under the root directory. Used by the offline sim
// binary and tests.
type FileProvider struct {
	root string
}

// NewFileProvider builds a provider over the given directory.
func NewFileProvider(root string) *FileProvider {
	return &FileProvider{root: root}
}

// FetchCategory reads and parses <root>/<category>.tle.
func (p *FileProvider) FetchCategory(ctx context.Context, category model.Category) ([]model.CatalogEntry, error) {
	if category == "" {
		return nil, fmt.Errorf("%w: empty category", ErrUnknownCategory)
	}

	path := filepath.Join(p.root, string(category)+".tle")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer f.Close()

	entries, _, err := ParseTLE(f, category)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return entries, nil
}
