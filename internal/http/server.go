package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"mcdry/internal/auth"
	"mcdry/internal/log"
	"mcdry/internal/middleware/ratelimit"
	"mcdry/internal/middleware/security"
	"mcdry/internal/middleware/trace"
	"mcdry/internal/services"
	"mcdry/internal/storage"
	appweb "mcdry/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps are the collaborators the server needs.
type Deps struct {
	Repo          *storage.SQLiteRepository
	Ledger        *services.LedgerService
	Leaves        *services.LeaveService
	Authenticator *auth.Authenticator
	Sessions      *auth.SessionStore
	Policy        auth.Policy
	Logger        *log.Logger

	OrganizationName   string
	CookieSecure       bool
	LoginRatePerMinute int
}

type Server struct {
	http.Server
	templates *template.Template

	repo     *storage.SQLiteRepository
	ledger   *services.LedgerService
	leaves   *services.LeaveService
	authn    *auth.Authenticator
	sessions *auth.SessionStore
	policy   auth.Policy

	logger       *log.Logger
	structured   *log.StructuredLogger
	detector     *security.Detector
	loginLimiter *ratelimit.Limiter
	tracer       *trace.Middleware

	orgName      string
	cookieSecure bool
	started      time.Time

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and builds the router.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Repo == nil || deps.Ledger == nil || deps.Leaves == nil {
		return nil, errors.New("http: repository and services are required")
	}
	if deps.Authenticator == nil || deps.Sessions == nil {
		return nil, errors.New("http: authenticator and session store are required")
	}
	if deps.Policy == nil {
		deps.Policy = auth.DefaultPolicy()
	}
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	logger := deps.Logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		templates:    t,
		repo:         deps.Repo,
		ledger:       deps.Ledger,
		leaves:       deps.Leaves,
		authn:        deps.Authenticator,
		sessions:     deps.Sessions,
		policy:       deps.Policy,
		logger:       logger,
		structured:   log.NewStructuredLogger(logger),
		detector:     security.NewDetector(),
		loginLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.LoginRatePerMinute}),
		orgName:      deps.OrganizationName,
		cookieSecure: deps.CookieSecure,
		started:      time.Now(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	handler, err := s.routes()
	if err != nil {
		return nil, err
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() (http.Handler, error) {
	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static files: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.CleanPath)
	r.Use(s.detector.BlockProbes)
	r.Use(s.tracer.Middleware)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(trace.RequestIDFromRequest))
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.withSession)

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.With(security.StaticAssetMiddleware(3600)).
		Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Get("/login", s.handleLoginForm)
	r.With(s.loginLimiter.Middleware(s.detector.ExtractClientIP, s.handleLoginThrottled)).
		Post("/login", s.handleLogin)
	r.Get("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(security.NoStore)
		r.Use(s.requireAction(auth.ActionView))

		r.Get("/", s.handleIndex)
		r.With(s.requireAction(auth.ActionCreateMember)).Post("/", s.handleCreateMember)

		r.Get("/member/{id}", s.handleMember)
		r.Post("/member/{id}", s.handleMemberPost)

		r.Get("/export.xlsx", s.handleExport)

		deletes := []struct {
			path    string
			action  auth.Action
			handler http.HandlerFunc
		}{
			{"/delete/{id}", auth.ActionDeleteMember, s.handleDeleteMember},
			{"/delete_transaction/{id}", auth.ActionDeleteTransaction, s.handleDeleteTransaction},
			{"/delete_leave/{id}", auth.ActionDeleteLeave, s.handleDeleteLeave},
		}
		for _, d := range deletes {
			gated := r.With(s.requireAction(d.action))
			gated.Get(d.path, d.handler)
			gated.Post(d.path, d.handler)
		}
	})

	return r, nil
}

// Shutdown stops the login limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.loginLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// pageData is what every full-page template receives.
type pageData struct {
	Title        string
	Organization string
	Username     string
	Role         string
	IsAdmin      bool
	Flashes      []auth.Flash
	Data         any
}

// render executes a page template into a buffer so a template failure
// still produces a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	p := pageData{
		Title:        title,
		Organization: s.orgName,
		Data:         data,
	}
	if sess, ok := sessionFrom(r.Context()); ok {
		p.Username = sess.Username
		p.Role = sess.Role.String()
		p.IsAdmin = s.policy.Allows(sess.Role, auth.ActionCreateMember)
		p.Flashes = s.sessions.PopFlashes(sess.Token)
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, p); err != nil {
		s.structured.LogError(r.Context(), "Template execution failed", err, log.ComponentTemplate, log.OpRender,
			log.LogFields{"template": name})
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "not_found.html", "Not found", nil)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), msg, log.FieldError, err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
