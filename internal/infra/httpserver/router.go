package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/csrf"

	domai "github.com/bryanwahyu/derma-lens/internal/domain/ai"
	domain "github.com/bryanwahyu/derma-lens/internal/domain/analysis"
	"github.com/bryanwahyu/derma-lens/internal/infra/imaging"
	"github.com/bryanwahyu/derma-lens/internal/middleware"
	"github.com/bryanwahyu/derma-lens/internal/views"
)

const (
	pageTitle       = "Dermatology Image Analysis"
	multipartMemory = 8 << 20
)

// Analyzer runs one analysis. *analysis.Service satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, req domain.Request) (*domain.Result, error)
}

// Options carry everything the router needs besides the analyzer.
type Options struct {
	// CSRFKey must be 32 bytes; empty leaves the form unprotected.
	CSRFKey        []byte
	CSRFSecure     bool
	TrustedOrigins []string
	CORSOrigins    []string
	APIKeys        map[string]string
	MaxUploadBytes int64
	RateLimiter    *middleware.RateLimiter
	DefaultFormat  domain.OutputFormat
	HealthCheckers map[string]middleware.HealthChecker
}

type Router struct {
	svc  Analyzer
	page views.Template
	opts Options
}

func NewRouter(svc Analyzer, opts Options) http.Handler {
	if opts.DefaultFormat == "" {
		opts.DefaultFormat = domain.FormatJSON
	}
	r := &Router{
		svc:  svc,
		page: views.Must(views.ParseFS(views.FS, "templates/analyze.gohtml")),
		opts: opts,
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID, chimw.RealIP, middleware.LoggingMiddleware, middleware.MetricsMiddleware, chimw.Recoverer)

	mux.Get("/health", middleware.HealthHandler(opts.HealthCheckers))
	mux.Get("/healthz/live", middleware.LivenessHandler)
	mux.Get("/healthz/ready", middleware.ReadinessHandler(opts.HealthCheckers))
	mux.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	// the body limit sits in front of csrf, which parses the form itself
	protect := r.csrfProtect()
	mux.With(protect).Get("/", r.handleIndex)
	mux.With(
		middleware.RateLimitMiddleware(opts.RateLimiter),
		middleware.MaxBodySize(opts.MaxUploadBytes),
		protect,
	).Post("/analyze", r.handleAnalyzeForm)

	mux.Route("/api/v1", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
		api.Use(middleware.APIKeyAuth(opts.APIKeys))
		api.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
		api.Use(middleware.MaxBodySize(opts.MaxUploadBytes))
		api.Post("/analyze", r.wrap(r.handleAnalyzeAPI))
	})

	return mux
}

// csrfProtect guards the HTML form. Plain HTTP deployments mark every request
// as plaintext so the origin check does not demand https.
func (r *Router) csrfProtect() func(http.Handler) http.Handler {
	if len(r.opts.CSRFKey) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	protect := csrf.Protect(r.opts.CSRFKey,
		csrf.Secure(r.opts.CSRFSecure),
		csrf.Path("/"),
		csrf.TrustedOrigins(r.opts.TrustedOrigins),
		csrf.ErrorHandler(http.HandlerFunc(r.handleCSRFFailure)),
	)
	return func(next http.Handler) http.Handler {
		protected := protect(next)
		if r.opts.CSRFSecure {
			return protected
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			protected.ServeHTTP(w, csrf.PlaintextHTTPRequest(req))
		})
	}
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// requestError marks a malformed submission.
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			writeError(w, statusFor(err), err)
		}
	}
}

// statusFor maps an analysis error to the HTTP status the client sees.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	var reqErr *requestError
	var provErr *domai.ProviderError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &reqErr),
		errors.Is(err, domain.ErrImageRequired),
		errors.Is(err, middleware.ErrUnsupportedUpload),
		errors.Is(err, imaging.ErrUnsupportedImage):
		return http.StatusBadRequest
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.As(err, &provErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// GET /
func (r *Router) handleIndex(w http.ResponseWriter, req *http.Request) {
	r.page.Execute(w, req, views.PageData{
		Title: pageTitle,
		Form:  views.FormValues{Format: string(r.opts.DefaultFormat)},
	})
}

// POST /analyze
// Renders the result, or the form again with a banner when anything fails.
func (r *Router) handleAnalyzeForm(w http.ResponseWriter, req *http.Request) {
	data := views.PageData{Title: pageTitle}

	ar, err := r.readRequest(req)
	data.Form = views.FormValues{
		MedicalHistory: req.FormValue("medical_history"),
		Symptoms:       req.FormValue("symptoms"),
		Format:         req.FormValue("format"),
	}
	if err == nil {
		var res *domain.Result
		res, err = r.analyze(req.Context(), ar)
		data.Result = views.NewResultView(res)
	}
	if err != nil {
		data.Error = err.Error()
		r.page.ExecuteWithStatus(w, req, statusFor(err), data)
		return
	}
	r.page.Execute(w, req, data)
}

type apiResponse struct {
	*domain.Result
	Sections []domain.SectionView `json:"sections,omitempty"`
}

// POST /api/v1/analyze
// Multipart fields: image (file), medical_history, symptoms, format.
func (r *Router) handleAnalyzeAPI(w http.ResponseWriter, req *http.Request) error {
	ar, err := r.readRequest(req)
	if err != nil {
		return err
	}
	res, err := r.analyze(req.Context(), ar)
	if err != nil {
		return err
	}

	resp := apiResponse{Result: res}
	if res.Format != domain.FormatText {
		resp.Sections = res.Analysis.Views()
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(resp)
}

func (r *Router) analyze(ctx context.Context, ar domain.Request) (*domain.Result, error) {
	res, err := r.svc.Analyze(ctx, ar)
	middleware.RecordAnalysis(ar.Format, res, err)
	if err != nil {
		log.WithError(err).WithField("client", middleware.ClientFromContext(ctx)).Warn("analysis failed")
	}
	return res, err
}

// readRequest pulls the upload and the free-text fields out of a multipart form.
func (r *Router) readRequest(req *http.Request) (domain.Request, error) {
	if err := req.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Request{}, fmt.Errorf("upload exceeds %d bytes: %w", tooLarge.Limit, err)
		}
		return domain.Request{}, &requestError{fmt.Errorf("parse form: %w", err)}
	}

	format := r.opts.DefaultFormat
	if v := req.FormValue("format"); v != "" {
		f, err := domain.ParseFormat(v)
		if err != nil {
			return domain.Request{}, &requestError{err}
		}
		format = f
	}

	file, header, err := req.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return domain.Request{}, domain.ErrImageRequired
	}
	if err != nil {
		return domain.Request{}, &requestError{fmt.Errorf("read image: %w", err)}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.Request{}, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return domain.Request{}, domain.ErrImageRequired
	}
	contentType, err := middleware.ValidateImageUpload(header.Filename, data)
	if err != nil {
		return domain.Request{}, err
	}

	return domain.Request{
		Image:          data,
		Filename:       header.Filename,
		ContentType:    contentType,
		MedicalHistory: req.FormValue("medical_history"),
		Symptoms:       req.FormValue("symptoms"),
		Format:         format,
	}, nil
}

func (r *Router) handleCSRFFailure(w http.ResponseWriter, req *http.Request) {
	log.WithError(csrf.FailureReason(req)).WithField("path", req.URL.Path).Warn("csrf check failed")
	r.page.ExecuteWithStatus(w, req, http.StatusForbidden, views.PageData{
		Title: pageTitle,
		Error: "the form expired or was submitted from another site, reload the page and try again",
		Form:  views.FormValues{Format: string(r.opts.DefaultFormat)},
	})
}

// Server wraps http.Server with the configured timeouts.
func Server(addr string, handler http.Handler, read, write, idle time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}
}
