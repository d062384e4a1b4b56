package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/david/quest-radar/internal/auth"
	"github.com/david/quest-radar/internal/db"
	"github.com/david/quest-radar/internal/export"
	"github.com/david/quest-radar/internal/ingest"
	"github.com/david/quest-radar/internal/logger"
	"github.com/david/quest-radar/internal/models"
)

// Store is the persistence the server needs. *db.Store satisfies it.
type Store interface {
	SaveRun(ctx context.Context, b ingest.Bundle, tiers ingest.Tiers, in db.RunInput) (*models.ProcessingRun, error)
	ListOpportunities(ctx context.Context, params db.ListParams) (*db.ListResult, error)
	ListRuns(ctx context.Context, limit int) ([]models.ProcessingRun, error)
	GetRun(ctx context.Context, id uuid.UUID) (*models.ProcessingRun, error)
	TierCounts(ctx context.Context) (map[string]int, error)
}

type Options struct {
	Store         Store // optional; persistence routes answer 503 without it
	Auth          *auth.Service
	Pipeline      *ingest.Pipeline
	Logger        logger.Logger
	DefaultMinROI float64
	OutputDir     string
	CORSOrigins   []string
	Registry      *prometheus.Registry
}

type Server struct {
	Store    Store
	Auth     *auth.Service
	Pipeline *ingest.Pipeline
	Echo     *echo.Echo
	Metrics  *Metrics

	log       logger.Logger
	minROI    float64
	outputDir string
	registry  *prometheus.Registry
	now       func() time.Time
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}

func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{v: validator.New()}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				log.Warn("Request failed", append(fields, logger.Error(v.Error))...)
				return nil
			}
			log.Debug("Request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("10M"))

	allowedOrigins := []string{"http://localhost:4200"}
	for _, o := range opts.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowedOrigins = append(allowedOrigins, o)
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	pipeline := opts.Pipeline
	if pipeline == nil {
		pipeline = ingest.NewPipeline(ingest.Options{Logger: log})
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "data"
	}

	s := &Server{
		Store:     opts.Store,
		Auth:      opts.Auth,
		Pipeline:  pipeline,
		Echo:      e,
		Metrics:   NewMetrics(reg),
		log:       log,
		minROI:    opts.DefaultMinROI,
		outputDir: outputDir,
		registry:  reg,
		now:       time.Now,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := s.Echo.Group("/api/v1")
	api.GET("/opportunities", s.handleListOpportunities)
	api.GET("/stats", s.handleGetStats)
	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)
	api.POST("/auth/token", s.handleIssueToken)

	protected := api.Group("")
	if s.Auth != nil {
		protected.Use(s.Auth.Middleware)
	}
	protected.POST("/process", s.handleProcess)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

type tokenRequest struct {
	Secret string `json:"secret" validate:"required"`
}

func (s *Server) handleIssueToken(c echo.Context) error {
	if s.Auth == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Authentication is not configured")
	}
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp, err := s.Auth.IssueToken(req.Secret)
	switch {
	case errors.Is(err, auth.ErrInvalidCreds):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrTokenDisabled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Token issuance is disabled")
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

type sourceBatchRequest struct {
	Source        string                  `json:"source" validate:"required"`
	Opportunities []ingest.RawOpportunity `json:"opportunities"`
}

type processRequest struct {
	MinROI        *float64                `json:"min_roi"`
	Persist       bool                    `json:"persist"`
	WriteFile     bool                    `json:"write_file"`
	Sources       []sourceBatchRequest    `json:"sources" validate:"required_without=Opportunities,dive"`
	Opportunities []ingest.RawOpportunity `json:"opportunities"`
}

func (r processRequest) batches() []ingest.SourceBatch {
	out := make([]ingest.SourceBatch, 0, len(r.Sources)+1)
	for _, src := range r.Sources {
		out = append(out, ingest.SourceBatch{Source: src.Source, Records: src.Opportunities})
	}
	if len(r.Opportunities) > 0 {
		out = append(out, ingest.SourceBatch{Records: r.Opportunities})
	}
	return out
}

type processResponse struct {
	ingest.Bundle
	Run        *models.ProcessingRun `json:"run,omitempty"`
	OutputFile string                `json:"output_file,omitempty"`
}

func (s *Server) handleProcess(c echo.Context) error {
	caller, err := auth.SubjectFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	// Numbers stay json.Number so record values hash as they were written.
	var req processRequest
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Persist && s.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Persistence is not configured")
	}

	minROI := s.minROI
	if req.MinROI != nil {
		minROI = *req.MinROI
	}

	ctx := c.Request().Context()
	started := s.now()
	batches := req.batches()
	bundle, err := s.Pipeline.ProcessSources(ctx, batches, minROI)
	if err != nil {
		s.Metrics.ObserveFailure()
		if errors.Is(err, ingest.ErrInvalidMinROI) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}
	s.Metrics.ObserveRun(bundle, s.now().Sub(started))

	resp := processResponse{Bundle: bundle}
	if req.WriteFile {
		path, err := export.WriteBundleFile(s.outputDir, bundle, s.now())
		if err != nil {
			s.log.Error("Failed to write output file", logger.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to write output file")
		}
		resp.OutputFile = path
	}
	if req.Persist {
		sources := make([]string, 0, len(batches))
		for _, b := range batches {
			if b.Source != "" {
				sources = append(sources, b.Source)
			}
		}
		run, err := s.Store.SaveRun(ctx, bundle, s.Pipeline.Tiers(), db.RunInput{
			StartedAt:  started,
			Sources:    sources,
			OutputFile: resp.OutputFile,
		})
		if err != nil {
			s.log.Error("Failed to persist run", logger.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to persist run")
		}
		resp.Run = run
	}

	s.log.Info("Processed opportunities",
		logger.String("caller", caller),
		logger.Int("total_raw", bundle.Stats.TotalRaw),
		logger.Int("after_roi_filter", bundle.Stats.AfterROIFilter),
		logger.Bool("persisted", resp.Run != nil),
	)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) requireStore() error {
	if s.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Persistence is not configured")
	}
	return nil
}

func (s *Server) handleListOpportunities(c echo.Context) error {
	if err := s.requireStore(); err != nil {
		return err
	}

	params := db.ListParams{
		Tier:   c.QueryParam("tier"),
		Source: c.QueryParam("source"),
		Limit:  20,
	}
	switch ingest.Tier(params.Tier) {
	case "", ingest.TierHigh, ingest.TierMedium, ingest.TierLow:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "tier must be high, medium or low")
	}
	if v := c.QueryParam("min_roi"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "min_roi must be a number")
		}
		params.MinROI = &f
	}
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		params.Limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		params.Offset = o
	}

	result, err := s.Store.ListOpportunities(c.Request().Context(), params)
	if err != nil {
		s.log.Error("Failed to list opportunities", logger.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list opportunities")
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetStats(c echo.Context) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	counts, err := s.Store.TierCounts(c.Request().Context())
	if err != nil {
		s.log.Error("Failed to count tiers", logger.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load stats")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"tiers":      counts,
		"thresholds": s.Pipeline.Tiers(),
	})
}

func (s *Server) handleListRuns(c echo.Context) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	limit := 10
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	runs, err := s.Store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		s.log.Error("Failed to list runs", logger.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list runs")
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleGetRun(c echo.Context) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid run id")
	}
	run, err := s.Store.GetRun(c.Request().Context(), id)
	if errors.Is(err, db.ErrRunNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Run not found")
	}
	if err != nil {
		s.log.Error("Failed to load run", logger.String("id", id.String()), logger.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load run")
	}
	return c.JSON(http.StatusOK, run)
}
