// Package app wires the report generation server together.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context ends, and Shutdown tears
// everything down in order. Reconfigure applies the hot-reloadable part of a
// changed configuration file.
//
// For testing, inject doubles via functional options (WithHistory,
// WithTemplates, WithHTTPClient). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/eduardocaminha/reporter-sub000/internal/api"
	"github.com/eduardocaminha/reporter-sub000/internal/catalog"
	"github.com/eduardocaminha/reporter-sub000/internal/config"
	"github.com/eduardocaminha/reporter-sub000/internal/health"
	"github.com/eduardocaminha/reporter-sub000/internal/history"
	"github.com/eduardocaminha/reporter-sub000/internal/history/memory"
	"github.com/eduardocaminha/reporter-sub000/internal/history/mysql"
	"github.com/eduardocaminha/reporter-sub000/internal/history/postgres"
	"github.com/eduardocaminha/reporter-sub000/internal/observe"
	"github.com/eduardocaminha/reporter-sub000/internal/report"
	"github.com/eduardocaminha/reporter-sub000/internal/resilience"
	"github.com/eduardocaminha/reporter-sub000/internal/selector"
	"github.com/eduardocaminha/reporter-sub000/internal/tools"
	"github.com/eduardocaminha/reporter-sub000/internal/tools/search"
	"github.com/eduardocaminha/reporter-sub000/internal/tooluse"
	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
)

// Version is reported in telemetry. Set at build time with -ldflags.
var Version = "dev"

// Providers holds the model providers. A nil LLM leaves the server running
// with generation answering 503. A nil Selector reuses LLM.
type Providers struct {
	LLM      llm.Provider
	Selector llm.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	logLevel   *slog.LevelVar
	httpClient *http.Client
	retry      *resilience.Retry
	metrics    *observe.Metrics
	promHTTP   http.Handler

	history   history.Store
	toolHost  *tools.Host
	selector  *selector.Selector
	resolver  *tooluse.Resolver
	templates atomic.Pointer[catalog.Cache]
	generator atomic.Pointer[report.Generator]

	server *http.Server

	// closers are called in order during Shutdown.
	mu      sync.Mutex
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistory injects a history store instead of opening one from config.
func WithHistory(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithTemplates injects a template cache instead of reading templates.dir.
func WithTemplates(c *catalog.Cache) Option {
	return func(a *App) { a.templates.Store(c) }
}

// WithHTTPClient sets the client used by the reference search tool.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.httpClient = c }
}

// WithLogLevel lets Reconfigure change the level of the process logger.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// New creates an App by wiring all subsystems together. The providers come
// from main.go (built via the config registry).
//
// Telemetry is set up first; the history store, the template catalog and
// the lookup tools are then initialised concurrently.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}

	if err := a.initObserve(ctx); err != nil {
		return nil, fmt.Errorf("app: observe: %w", err)
	}
	a.retry = a.retryPolicy(cfg.Retry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.initHistory(gctx) })
	g.Go(func() error { return a.initTemplates(gctx) })
	g.Go(func() error { return a.initTools(gctx) })
	if err := g.Wait(); err != nil {
		_ = a.closeAll(context.Background())
		return nil, err
	}

	a.initPipeline()
	gen, err := a.buildGenerator(cfg)
	if err != nil {
		_ = a.closeAll(context.Background())
		return nil, err
	}
	a.generator.Store(gen)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	return a, nil
}

func (a *App) addCloser(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// initObserve installs the OpenTelemetry providers and the Prometheus
// endpoint when metrics are enabled.
func (a *App) initObserve(ctx context.Context) error {
	if !a.cfg.Observe.Metrics {
		return nil
	}
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    a.cfg.Observe.ServiceName,
		ServiceVersion: Version,
	})
	if err != nil {
		return err
	}
	a.addCloser(func() error { return shutdown(context.Background()) })

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	a.promHTTP = promhttp.Handler()
	return nil
}

func (a *App) retryPolicy(rc config.RetryConfig) *resilience.Retry {
	return &resilience.Retry{
		MaxRetries: rc.MaxRetries,
		BaseDelay:  rc.BaseDelay,
		MaxDelay:   rc.MaxDelay,
		OnRetry: func(_, status int, _ time.Duration) {
			a.metrics.RecordRetry(context.Background(), status)
		},
	}
}

// initHistory opens the configured history store unless one was injected.
func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil {
		return nil
	}
	var (
		store history.Store
		err   error
	)
	switch a.cfg.History.Driver {
	case config.HistoryPostgres:
		store, err = postgres.NewStore(ctx, a.cfg.History.DSN)
	case config.HistoryMySQL:
		store, err = mysql.Open(ctx, a.cfg.History.DSN)
	default:
		store = memory.New()
	}
	if err != nil {
		return fmt.Errorf("app: open %s history: %w", a.cfg.History.Driver, err)
	}
	a.history = store
	a.addCloser(store.Close)
	slog.Info("history store ready", "driver", a.cfg.History.Driver)
	return nil
}

// initTemplates creates the catalog cache and warms it. A broken template
// tree does not stop the server: readiness reports it and every generation
// ends with an error event until the tree is fixed and reloaded.
func (a *App) initTemplates(ctx context.Context) error {
	cache := a.templates.Load()
	if cache == nil {
		cache = catalog.NewDirCache(a.cfg.Templates.Dir)
		a.templates.Store(cache)
	}
	cat, err := cache.Get(ctx)
	if err != nil {
		slog.Warn("templates not loaded", "dir", a.cfg.Templates.Dir, "err", err)
		return nil
	}
	slog.Info("templates loaded", "masks", len(cat.Masks), "findings", len(cat.Findings))
	return nil
}

// initTools registers the reference search builtin and every configured MCP
// server.
func (a *App) initTools(ctx context.Context) error {
	host := tools.NewHost(tools.WithMetrics(a.metrics))
	a.toolHost = host
	a.addCloser(host.Close)

	if a.cfg.Search.Enabled {
		client := search.New(search.Config{
			BaseURL:    a.cfg.Search.BaseURL,
			APIKey:     a.cfg.Search.APIKey,
			MaxResults: a.cfg.Search.MaxResults,
			Timeout:    a.cfg.Search.Timeout,
		}, a.httpClient)
		if err := host.RegisterBuiltin(client.Tool()); err != nil {
			return fmt.Errorf("app: register search tool: %w", err)
		}
	}

	for _, srv := range a.cfg.MCP.Servers {
		if err := host.RegisterServer(ctx, srv); err != nil {
			return fmt.Errorf("app: register mcp server %q: %w", srv.Name, err)
		}
		slog.Info("registered MCP server", "name", srv.Name)
	}
	return nil
}

// initPipeline builds the selector and the tool-resolution phase. Both go
// through the retry policy; the generation stream does not.
func (a *App) initPipeline() {
	if a.providers.LLM == nil {
		return
	}
	sel := a.providers.Selector
	if sel == nil {
		sel = a.providers.LLM
	}
	a.selector = selector.New(resilience.NewRetryingProvider(sel, a.retry))

	if a.toolHost != nil && a.toolHost.Len() > 0 {
		a.resolver = tooluse.New(a.providers.LLM, a.toolHost,
			tooluse.WithRetry(a.retry),
			tooluse.WithMetrics(a.metrics),
		)
	}
}

// buildGenerator assembles a generator from the hot-reloadable settings of
// cfg.
func (a *App) buildGenerator(cfg *config.Config) (*report.Generator, error) {
	pricing, err := report.ParsePricing(cfg.Pricing.InputPerMTok, cfg.Pricing.OutputPerMTok)
	if err != nil {
		return nil, fmt.Errorf("app: pricing: %w", err)
	}
	entry := cfg.Providers.LLM
	opts := []report.Option{
		report.WithOptimize(cfg.Templates.OptimizeEnabled()),
		report.WithPricing(pricing),
		report.WithMetrics(a.metrics),
		report.WithModel(entry.Model),
		report.WithMaxTokens(entry.OptInt("max_tokens", 8192)),
		report.WithTemperature(entry.OptFloat("temperature", 0.2)),
	}
	if a.selector != nil {
		opts = append(opts, report.WithSelector(a.selector))
	}
	if a.resolver != nil {
		opts = append(opts, report.WithResolver(a.resolver))
	}
	return report.New(a.providers.LLM, a.templates.Load(), opts...), nil
}

// Generate implements [api.Generator] with the current generator.
func (a *App) Generate(ctx context.Context, req report.Request) (iter.Seq[report.Event], error) {
	return a.generator.Load().Generate(ctx, req)
}

// Reload implements [api.TemplateReloader] on the current template cache.
func (a *App) Reload(ctx context.Context) (*catalog.Catalog, error) {
	return a.templates.Load().Reload(ctx)
}

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler {
	opts := []api.Option{
		api.WithTemplates(a),
		api.WithMetrics(a.metrics),
		api.WithHealth(health.New(a.checkers()...)),
	}
	if a.promHTTP != nil {
		opts = append(opts, api.WithMetricsHandler(a.promHTTP))
	}
	return api.New(a, a.history, opts...).Handler()
}

func (a *App) checkers() []health.Checker {
	return []health.Checker{
		{Name: "provider", Check: func(context.Context) error {
			if a.providers.LLM == nil {
				return report.ErrNoCredentials
			}
			return nil
		}},
		{Name: "templates", Check: func(ctx context.Context) error {
			_, err := a.templates.Load().Get(ctx)
			return err
		}},
		health.Ping("history", a.history),
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled or the listener fails. It returns
// nil after a cancellation; call Shutdown afterwards to drain requests.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown drains in-flight requests and then tears down all subsystems in
// init order. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
			}
		}
		shutdownErr = a.closeAll(ctx)
	})
	return shutdownErr
}

func (a *App) closeAll(ctx context.Context) error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	slog.Info("shutting down", "closers", len(closers))
	for i, closer := range closers {
		select {
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
			return ctx.Err()
		default:
		}
		if err := closer(); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	slog.Info("shutdown complete")
	return nil
}
