package onionoo

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
)

// maxBodySize bounds the details document. A full running-relay response is
// around 20MB; anything far beyond that is not a directory answer.
const maxBodySize = 128 << 20

// Client talks to an Onionoo instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	// cacheDir, when set, receives a copy of every raw response so that a
	// snapshot can be traced back to exactly what the directory returned.
	cacheDir string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client, typically one from tor.Session.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock sets the clock used for the capture time.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithCacheDir stores raw responses under dir.
func WithCacheDir(dir string) Option {
	return func(c *Client) {
		c.cacheDir = dir
	}
}

// NewClient returns a client for the Onionoo instance at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// detailsURL builds the details request. limit <= 0 requests every relay.
func (c *Client) detailsURL(limit int) string {
	q := url.Values{}
	q.Set("running", "true")
	q.Set("fields", strings.Join(detailFields, ","))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.baseURL + "/details?" + q.Encode()
}

// FetchSnapshot downloads the running relays and builds a snapshot captured
// at the current time.
//
// Relays without a usable OR address or with unparsable timestamps are
// skipped with a warning. Relays are ordered by fingerprint so that the
// snapshot digest does not depend on the directory's response order.
func (c *Client) FetchSnapshot(ctx context.Context, limit int) (*model.TopologySnapshot, error) {
	body, err := c.fetch(ctx, c.detailsURL(limit))
	if err != nil {
		return nil, err
	}
	captured := c.now().UTC()
	c.cacheRaw(body, captured)

	doc, err := decodeDetails(body)
	if err != nil {
		return nil, err
	}

	relays := make([]model.Relay, 0, len(doc.Relays))
	skipped := 0
	for _, rd := range doc.Relays {
		r, unknown, err := rd.toRelay()
		if err != nil {
			skipped++
			c.logger.Warn("skipping relay", "fingerprint", rd.Fingerprint, "error", err)
			continue
		}
		if len(unknown) > 0 {
			c.logger.Debug("ignoring unknown relay flags", "fingerprint", r.Fingerprint, "flags", unknown)
		}
		relays = append(relays, r)
	}
	slices.SortFunc(relays, func(a, b model.Relay) int {
		return cmp.Compare(a.Fingerprint, b.Fingerprint)
	})

	snap := model.NewTopologySnapshot(captured, relays)
	c.logger.Info("fetched relay directory",
		"snapshot_id", snap.ID,
		"relays", snap.TotalRelays,
		"guards", snap.GuardCount,
		"exits", snap.ExitCount,
		"skipped", skipped,
		"relays_published", doc.RelaysPublished)
	return snap, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch relay directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read relay directory: %w", err)
	}
	return body, nil
}

// cacheRaw writes the raw response next to earlier ones. Failures are logged
// and do not fail the fetch.
func (c *Client) cacheRaw(body []byte, captured time.Time) {
	if c.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(c.cacheDir, 0o700); err != nil {
		c.logger.Warn("failed to create directory cache", "dir", c.cacheDir, "error", err)
		return
	}
	path := filepath.Join(c.cacheDir, "onionoo_details_"+captured.Format("20060102_150405")+".json")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		c.logger.Warn("failed to cache directory response", "path", path, "error", err)
		return
	}
	c.logger.Debug("cached directory response", "path", path)
}
