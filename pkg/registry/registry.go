// Package registry imports projection metadata from an external EPSG
// registry (spatialreference.org by default).
//
// The bounds come from scraping the registry's HTML reference page, which
// breaks whenever the site changes its markup. Callers depend on the
// BoundsSource and Proj4Source interfaces so the scraping strategy can be
// replaced without touching them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-projections/pkg/models"
	"github.com/ekaya-inc/ekaya-projections/pkg/retry"
)

// maxBodyBytes caps how much of a registry response is read.
const maxBodyBytes = 2 << 20

// Registry imports bounds and proj4 parameters for an SRID.
type Registry interface {
	Import(ctx context.Context, srid int) (*models.ImportResult, error)
}

// BoundsSource yields the bounding box for an SRID.
type BoundsSource interface {
	FetchBounds(ctx context.Context, srid int) (models.Extent, error)
}

// Proj4Source yields the PROJ.4 parameter text for an SRID.
type Proj4Source interface {
	FetchProj4(ctx context.Context, srid int) (string, error)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the registry root without a trailing slash.
	BaseURL string
	// Timeout bounds each request. Zero means no client timeout.
	Timeout time.Duration
	// MaxRetries is how many times a transient failure is retried.
	MaxRetries int
	// UserAgent is sent with every request.
	UserAgent string
}

// MaxImportDuration is the longest one Import can take: two fetches, each
// attempted MaxRetries+1 times with a capped backoff between attempts.
// ok is false when Timeout is zero and an import has no upper bound.
func (cfg Config) MaxImportDuration() (d time.Duration, ok bool) {
	if cfg.Timeout <= 0 {
		return 0, false
	}
	rc := retry.DefaultConfig()
	attempts := time.Duration(max(cfg.MaxRetries, 0) + 1)
	backoff := rc.MaxDelay + time.Duration(float64(rc.MaxDelay)*rc.JitterFactor)
	perFetch := attempts*cfg.Timeout + (attempts-1)*backoff
	return 2 * perFetch, true
}

// Client talks to a spatialreference.org style registry.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	retryCfg   *retry.Config
	logger     *zap.Logger
}

var (
	_ BoundsSource = (*Client)(nil)
	_ Proj4Source  = (*Client)(nil)
)

// NewClient creates a registry client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.MaxRetries

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retryCfg:   retryCfg,
		logger:     logger,
	}
}

// PageURL is the HTML reference page for srid.
func (c *Client) PageURL(srid int) string {
	return fmt.Sprintf("%s/ref/epsg/%d/", c.baseURL, srid)
}

// Proj4URL is the plain-text proj4 document for srid.
func (c *Client) Proj4URL(srid int) string {
	return fmt.Sprintf("%s/ref/epsg/%d/proj4/", c.baseURL, srid)
}

// FetchBounds downloads the reference page and extracts the bounds.
func (c *Client) FetchBounds(ctx context.Context, srid int) (models.Extent, error) {
	body, err := c.get(ctx, c.PageURL(srid))
	if err != nil {
		return models.Extent{}, fetchError(srid, err)
	}

	bounds, err := ParseBounds(strings.NewReader(body))
	if err != nil {
		return models.Extent{}, parseError(srid, err)
	}
	return bounds, nil
}

// FetchProj4 downloads the proj4 document. Surrounding whitespace is trimmed.
func (c *Client) FetchProj4(ctx context.Context, srid int) (string, error) {
	body, err := c.get(ctx, c.Proj4URL(srid))
	if err != nil {
		return "", fetchError(srid, err)
	}
	return strings.TrimSpace(body), nil
}

func (c *Client) get(ctx context.Context, url string) (string, error) {
	var body string
	err := retry.DoIfRetryable(ctx, c.retryCfg, func() error {
		var err error
		body, err = c.getOnce(ctx, url)
		if err != nil {
			c.logger.Debug("Registry request failed",
				zap.String("url", url),
				zap.Error(err))
		}
		return err
	})
	return body, err
}

func (c *Client) getOnce(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &retry.StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read registry response: %w", err)
	}
	return string(data), nil
}

// Importer combines a bounds source and a proj4 source. The proj4 document
// is only requested once the bounds were extracted.
type Importer struct {
	bounds BoundsSource
	proj4  Proj4Source
	logger *zap.Logger
}

var _ Registry = (*Importer)(nil)

// NewImporter creates an Importer. A *Client serves as both sources.
func NewImporter(bounds BoundsSource, proj4 Proj4Source, logger *zap.Logger) *Importer {
	return &Importer{bounds: bounds, proj4: proj4, logger: logger}
}

// Import fetches bounds, then proj4, for srid.
// Errors wrap ErrFetchFailed or ErrParseFailed.
func (i *Importer) Import(ctx context.Context, srid int) (*models.ImportResult, error) {
	bounds, err := i.bounds.FetchBounds(ctx, srid)
	if err != nil {
		return nil, ensureTagged(srid, err)
	}

	proj4, err := i.proj4.FetchProj4(ctx, srid)
	if err != nil {
		return nil, ensureTagged(srid, err)
	}

	i.logger.Debug("Imported projection from registry",
		zap.Int("srid", srid),
		zap.Strings("bounds", bounds[:]))

	return &models.ImportResult{SRID: srid, Bounds: bounds, Proj4: proj4}, nil
}

// ensureTagged treats untagged source errors as fetch failures.
func ensureTagged(srid int, err error) error {
	var ie *ImportError
	if errors.As(err, &ie) {
		return err
	}
	return fetchError(srid, err)
}
