// Package httpapi serves the back office over HTTP under /api/v1.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/accounting"
	"github.com/beesaferoot/buildops/internal/apierr"
	"github.com/beesaferoot/buildops/internal/banking"
	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/config"
	"github.com/beesaferoot/buildops/internal/construction"
	"github.com/beesaferoot/buildops/internal/disposition"
	"github.com/beesaferoot/buildops/internal/documents"
	"github.com/beesaferoot/buildops/internal/investors"
	"github.com/beesaferoot/buildops/internal/metrics"
	"github.com/beesaferoot/buildops/internal/pipeline"
	"github.com/beesaferoot/buildops/internal/records"
	"github.com/beesaferoot/buildops/internal/reports"
	"github.com/beesaferoot/buildops/internal/workflow"
)

// Services are the domain services behind the API. Hub may be nil, in
// which case no change feed is served.
type Services struct {
	Pipeline     *pipeline.Service
	Construction *construction.Service
	Workflow     *workflow.Engine
	Accounting   *accounting.Service
	Banking      *banking.Service
	Investors    *investors.Service
	Disposition  *disposition.Service
	Documents    *documents.Service
	Reports      *reports.Builder
	Links        *records.Links
	Hub          *changefeed.Hub
}

type server struct {
	db       *gorm.DB
	log      *zap.Logger
	svc      Services
	pub      changefeed.Publisher
	validate *validator.Validate
}

// NewRouter builds the HTTP handler.
func NewRouter(db *gorm.DB, log *zap.Logger, svc Services, cfg config.ServerConfig) (http.Handler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &server{
		db:       db,
		log:      log.Named("http"),
		svc:      svc,
		pub:      changefeed.Discard,
		validate: apierr.NewValidator(),
	}
	if svc.Hub != nil {
		s.pub = svc.Hub
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(recoverer(s.log))
	r.Use(instrument)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		fail(w, r, apierr.New(http.StatusNotFound, apierr.CodeNotFound, "no route for "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		fail(w, r, apierr.New(http.StatusMethodNotAllowed, apierr.CodeBadRequest, r.Method+" is not allowed on "+r.URL.Path))
	})

	r.Get("/healthz", s.health)
	r.Handle("/metrics", metrics.Handler())

	var routeErr error
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit.Enabled {
			r.Use(rateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, s.log))
		}
		if svc.Hub != nil {
			r.Handle("/changes", svc.Hub)
		}
		r.Group(func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			routeErr = s.routes(r)
		})
	})
	if routeErr != nil {
		return nil, routeErr
	}
	return r, nil
}

func (s *server) routes(r chi.Router) error {
	if err := s.pipelineRoutes(r); err != nil {
		return err
	}
	if err := s.constructionRoutes(r); err != nil {
		return err
	}
	if err := s.accountingRoutes(r); err != nil {
		return err
	}
	if err := s.bankingRoutes(r); err != nil {
		return err
	}
	if err := s.investorRoutes(r); err != nil {
		return err
	}
	if err := s.dispositionRoutes(r); err != nil {
		return err
	}
	if err := s.workflowRoutes(r); err != nil {
		return err
	}
	s.documentRoutes(r)
	s.recordRoutes(r)
	s.reportRoutes(r)
	return nil
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		fail(w, r, apierr.New(http.StatusServiceUnavailable, "unavailable", "database unreachable"))
		return
	}
	respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// newResource builds a resource over a fresh repository for T.
func newResource[T any](s *server, record string, opts ...records.Option) (*resource[T], error) {
	repo, err := records.NewRepository[T](s.db, opts...)
	if err != nil {
		return nil, err
	}
	return &resource[T]{record: record, repo: repo, pub: s.pub, validate: s.validate}, nil
}
