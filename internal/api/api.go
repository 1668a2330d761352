// Package api exposes the report pipeline and the report history over HTTP.
//
// Routes:
//
//	POST   /api/gerar-laudo        stream a report as NDJSON events
//	GET    /api/laudos             list recent reports (?limit=n)
//	POST   /api/laudos             store a finished report
//	PATCH  /api/laudos/:id         edit laudo and/or sugestoes
//	DELETE /api/laudos             clear the history
//	POST   /api/templates/reload   reload the template tree
//	GET    /healthz, /readyz       liveness and readiness
//	GET    /metrics                Prometheus exposition
package api

import (
	"context"
	"iter"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduardocaminha/reporter-sub000/internal/catalog"
	"github.com/eduardocaminha/reporter-sub000/internal/health"
	"github.com/eduardocaminha/reporter-sub000/internal/history"
	"github.com/eduardocaminha/reporter-sub000/internal/observe"
	"github.com/eduardocaminha/reporter-sub000/internal/report"
)

// Generator produces the event stream of one report.
type Generator interface {
	Generate(ctx context.Context, req report.Request) (iter.Seq[report.Event], error)
}

// TemplateReloader reloads the template catalog.
type TemplateReloader interface {
	Reload(ctx context.Context) (*catalog.Catalog, error)
}

// Messages of JSON error bodies.
const (
	msgBadBody     = "Corpo da requisição inválido."
	msgEmptyText   = "O texto do laudo não pode ser vazio."
	msgNoProvider  = "Nenhuma credencial de IA configurada no servidor."
	msgNotFound    = "Laudo não encontrado."
	msgEmptyPatch  = "Informe laudo e/ou sugestoes."
	msgStorage     = "Não foi possível acessar o histórico."
	msgReloadFails = "Não foi possível recarregar os modelos."
)

// Server holds the HTTP handlers.
type Server struct {
	gen       Generator
	store     history.Store
	templates TemplateReloader
	health    *health.Handler
	metrics   *observe.Metrics
	promHTTP  http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth serves /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option { return func(s *Server) { s.health = h } }

// WithMetrics records request metrics into m.
func WithMetrics(m *observe.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithMetricsHandler serves /metrics from h.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.promHTTP = h } }

// WithTemplates enables POST /api/templates/reload.
func WithTemplates(t TemplateReloader) Option { return func(s *Server) { s.templates = t } }

// New returns a Server. A nil store disables saving finished reports and the
// history routes answer 503.
func New(gen Generator, store history.Store, opts ...Option) *Server {
	s := &Server{gen: gen, store: store}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), observe.Middleware(s.metrics))
	s.Register(r)
	return r
}

// Register adds all routes to r.
func (s *Server) Register(r gin.IRouter) {
	if s.health != nil {
		s.health.Register(r)
	}
	if s.promHTTP != nil {
		r.GET("/metrics", gin.WrapH(s.promHTTP))
	}

	g := r.Group("/api")
	g.POST("/gerar-laudo", s.generate)
	g.GET("/laudos", s.listReports)
	g.POST("/laudos", s.createReport)
	g.PATCH("/laudos/:id", s.patchReport)
	g.DELETE("/laudos", s.deleteReports)
	if s.templates != nil {
		g.POST("/templates/reload", s.reloadTemplates)
	}
}

func errorBody(msg string) gin.H { return gin.H{"error": msg} }
