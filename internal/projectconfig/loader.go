package projectconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultEndpoint serves tenant configs at {endpoint}/{project}.
const DefaultEndpoint = "https://api.cardinal.so/config"

// ErrStaleProject is returned when a response arrives for a project that is
// no longer current. The response is discarded.
var ErrStaleProject = errors.New("project changed while loading config")

// ResolveProject returns the tenant identifier for a navigation query: the
// first non-empty of "project" and "host", cut at the first '.', with a
// leading "dev-" removed.
func ResolveProject(q url.Values) string {
	raw := q.Get("project")
	if raw == "" {
		raw = q.Get("host")
	}
	if raw == "" {
		return ""
	}
	id, _, _ := strings.Cut(raw, ".")
	return strings.TrimPrefix(id, "dev-")
}

// Loader holds the current tenant config and replaces it on navigation.
type Loader struct {
	endpoint string
	http     *http.Client
	log      zerolog.Logger
	onChange func(Config)

	mu      sync.Mutex
	project string
	config  Config
}

// LoaderOption configures Loader.
type LoaderOption func(*Loader)

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) LoaderOption {
	return func(l *Loader) {
		l.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) {
		l.http = c
	}
}

// WithLogger sets the loader logger.
func WithLogger(log zerolog.Logger) LoaderOption {
	return func(l *Loader) {
		l.log = log
	}
}

// WithOnChange registers a callback run after each accepted config.
func WithOnChange(fn func(Config)) LoaderOption {
	return func(l *Loader) {
		l.onChange = fn
	}
}

// NewLoader creates a loader holding Default().
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		endpoint: DefaultEndpoint,
		http:     &http.Client{Timeout: 15 * time.Second},
		log:      zerolog.Nop(),
		config:   Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Navigate resolves the project for q and, when it differs from the current
// one, fetches its config. Failures are logged and leave the previous config
// in place. An empty project issues no request.
func (l *Loader) Navigate(ctx context.Context, q url.Values) error {
	project := ResolveProject(q)

	l.mu.Lock()
	if project == l.project {
		l.mu.Unlock()
		return nil
	}
	l.project = project
	l.mu.Unlock()

	if project == "" {
		return nil
	}

	l.log.Info().Str("project", project).Msg("loading project config")
	start := time.Now()

	cfg, err := l.fetch(ctx, project)
	if err != nil {
		l.log.Warn().Err(err).Str("project", project).Msg("error fetching project config")
		return err
	}

	l.mu.Lock()
	if l.project != project {
		current := l.project
		l.mu.Unlock()
		l.log.Debug().Str("project", project).Str("current", current).Msg("discarding stale project config")
		return fmt.Errorf("%w: %s", ErrStaleProject, project)
	}
	l.config = cfg
	l.mu.Unlock()

	l.log.Info().Str("project", project).Dur("took", time.Since(start)).Msg("project config loaded")
	if l.onChange != nil {
		l.onChange(cfg.Clone())
	}
	return nil
}

// remoteConfig is the response body of the config endpoint.
type remoteConfig struct {
	LogoImage   string            `json:"logoImage"`
	Colors      Colors            `json:"colors"`
	Filters     []FilterRule      `json:"filters"`
	ProjectName string            `json:"projectName"`
	RentalCard  RentalCardOptions `json:"rentalCard"`
}

func (l *Loader) fetch(ctx context.Context, project string) (Config, error) {
	endpoint := l.endpoint + "/" + url.PathEscape(project)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Config{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return Config{}, fmt.Errorf("config request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Config{}, fmt.Errorf("config request: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rc remoteConfig
	if err := json.NewDecoder(resp.Body).Decode(&rc); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg := Config{
		LogoImage:    rc.LogoImage,
		Colors:       rc.Colors,
		Filters:      rc.Filters,
		ProjectName:  rc.ProjectName,
		RentalCard:   rc.RentalCard,
		ConfigLoaded: true,
	}
	if cfg.Filters == nil {
		cfg.Filters = []FilterRule{}
	}
	return cfg, nil
}

// Project returns the currently resolved project identifier.
func (l *Loader) Project() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.project
}

// Config returns a copy of the current config.
func (l *Loader) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config.Clone()
}

// Filters returns a copy of the current filter rules.
func (l *Loader) Filters() []FilterRule {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]FilterRule{}, l.config.Filters...)
}
