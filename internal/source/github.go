package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultAPIBase = "https://api.github.com"
	DefaultRepo    = "grafana/agent"

	ComponentsPath = "docs/sources/flow/reference/components"
	SharedPath     = "docs/sources/shared/flow/reference/components"

	defaultConcurrency = 8
	defaultRetries     = 3
	defaultTimeout     = 30 * time.Second
	retryBackoff       = 250 * time.Millisecond
)

// GitHub fetches reference pages through the GitHub contents API at the git
// ref named by the schema version.
type GitHub struct {
	client      *http.Client
	apiBase     string
	repo        string
	concurrency int
	maxRetries  int
	logger      *zap.Logger
}

// GitHubOption customizes a GitHub source.
type GitHubOption func(*GitHub)

// WithHTTPClient sets the client used for API and raw content requests.
func WithHTTPClient(client *http.Client) GitHubOption {
	return func(g *GitHub) { g.client = client }
}

// WithAPIBase points the source at another API host, e.g. a test server.
func WithAPIBase(base string) GitHubOption {
	return func(g *GitHub) { g.apiBase = strings.TrimSuffix(base, "/") }
}

// WithRepo sets the "owner/name" repository the pages are read from.
func WithRepo(repo string) GitHubOption {
	return func(g *GitHub) { g.repo = repo }
}

// WithConcurrency bounds the number of pages fetched at once. Values below
// one are ignored.
func WithConcurrency(n int) GitHubOption {
	return func(g *GitHub) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithRetries sets how many times a failed request is retried. Negative
// values are ignored.
func WithRetries(n int) GitHubOption {
	return func(g *GitHub) {
		if n >= 0 {
			g.maxRetries = n
		}
	}
}

// NewGitHub creates a GitHub source.
func NewGitHub(logger *zap.Logger, opts ...GitHubOption) *GitHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &GitHub{
		client:      &http.Client{Timeout: defaultTimeout},
		apiBase:     DefaultAPIBase,
		repo:        DefaultRepo,
		concurrency: defaultConcurrency,
		maxRetries:  defaultRetries,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ID returns "github:<repo>", followed by the API base when it is not the
// public one.
func (g *GitHub) ID() string {
	if g.apiBase == DefaultAPIBase {
		return "github:" + g.repo
	}
	return "github:" + g.repo + "@" + g.apiBase
}

// contentEntry is one item of a contents API directory listing.
type contentEntry struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	DownloadURL string `json:"download_url"`
}

// Fetch lists and downloads the component and shared pages for version.
// Failing to list the component directory is an error; failing to list the
// shared directory or to download single pages only drops those pages.
func (g *GitHub) Fetch(ctx context.Context, version string) (*Bundle, error) {
	components, err := g.fetchDir(ctx, ComponentsPath, version)
	if err != nil {
		return nil, err
	}

	shared, err := g.fetchDir(ctx, SharedPath, version)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.logger.Warn("Shared definitions unavailable", zap.String("version", version), zap.Error(err))
	}

	g.logger.Info("Fetched reference pages",
		zap.String("version", version),
		zap.Int("components", len(components)),
		zap.Int("shared", len(shared)))

	return &Bundle{
		Version:    version,
		Shared:     shared,
		Components: components,
	}, nil
}

func (g *GitHub) listingURL(dir, version string) string {
	return fmt.Sprintf("%s/repos/%s/contents/%s?ref=%s", g.apiBase, g.repo, dir, url.QueryEscape(version))
}

func (g *GitHub) fetchDir(ctx context.Context, dir, version string) ([]Document, error) {
	listing, err := g.get(ctx, g.listingURL(dir, version))
	if err != nil {
		return nil, fmt.Errorf("source: listing %s@%s: %w", dir, version, err)
	}

	var entries []contentEntry
	if err := json.Unmarshal(listing, &entries); err != nil {
		return nil, fmt.Errorf("source: decoding listing %s@%s: %w", dir, version, err)
	}

	var pages []contentEntry
	for _, entry := range entries {
		if entry.Type == "file" && entry.DownloadURL != "" && isComponentPage(entry.Name) {
			pages = append(pages, entry)
		}
	}

	results := make([]*Document, len(pages))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.concurrency)

	for i, page := range pages {
		i, page := i, page
		group.Go(func() error {
			data, err := g.get(groupCtx, page.DownloadURL)
			if err != nil {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				g.logger.Warn("Skipping page", zap.String("page", page.Name), zap.Error(err))
				return nil
			}
			results[i] = &Document{Name: documentName(page.Name), Text: string(data)}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(results))
	for _, doc := range results {
		if doc != nil {
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

// get fetches target, retrying transport errors and 5xx responses.
func (g *GitHub) get(ctx context.Context, target string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}

		data, retry, err := g.getOnce(ctx, target)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (g *GitHub) getOnce(ctx context.Context, target string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, fmt.Errorf("HTTP %d from %s: %w", resp.StatusCode, target, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode >= http.StatusInternalServerError,
			fmt.Errorf("HTTP %d from %s", resp.StatusCode, target)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return data, false, nil
}
