package http

import (
	"context"
	"net/http"
	"time"

	"rimborsi/internal/cache"
	"rimborsi/internal/core"
	applog "rimborsi/internal/log"
	"rimborsi/internal/middleware/ratelimit"
	"rimborsi/internal/middleware/security"
	"rimborsi/internal/middleware/trace"
	"rimborsi/internal/services"
)

// UserDirectory resolves the acting user named by a request.
type UserDirectory interface {
	FindUser(ctx context.Context, id int64) (core.User, error)
}

// Options configures NewServer. Service and Users are required.
type Options struct {
	Service *services.ExpenseService
	Users   UserDirectory
	Logger  *applog.Logger

	ActorCacheSize int
	ActorCacheTTL  time.Duration
	// CacheManager, when set, sweeps expired actors in the background.
	CacheManager *cache.Manager

	RateLimit ratelimit.Config
	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server
	service *services.ExpenseService
	users   UserDirectory
	actors  *cache.LRUCache[int64, core.User]
	limiter *ratelimit.Limiter
	ready   func(ctx context.Context) error
	logger  *applog.Logger
}

func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	size, ttl := opts.ActorCacheSize, opts.ActorCacheTTL
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	s := &Server{
		service: opts.Service,
		users:   opts.Users,
		actors:  cache.NewLRUCache[int64, core.User](size, ttl),
		limiter: ratelimit.NewLimiter(opts.RateLimit),
		ready:   opts.Ready,
		logger:  logger,
	}
	if opts.CacheManager != nil {
		opts.CacheManager.Register(s.actors)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /expenses", s.withActor(s.handleCreateExpense))
	mux.HandleFunc("GET /expenses/{id}", s.withActor(s.handleGetExpense))
	mux.HandleFunc("PUT /expenses/{id}", s.withActor(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /expenses/{id}", s.withActor(s.handleDeleteExpense))
	mux.HandleFunc("POST /expenses/{id}/approve", s.withActor(s.handleApprove))
	mux.HandleFunc("POST /expenses/{id}/reject", s.withActor(s.handleReject))
	mux.HandleFunc("GET /expenses/{id}/actions", s.withActor(s.handleActions))

	ips := security.NewClientIPResolver()
	limited := s.limiter.Middleware(ips.ClientIP, ratelimit.MutatingOnly, func(w http.ResponseWriter, r *http.Request) {
		NewJSONResponse().
			Status(http.StatusTooManyRequests).
			Data(errorBody{Error: errorDetail{Kind: "rate_limited", Message: "rate limit exceeded"}}).
			Write(w)
	})
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(logger, ips.ClientIP)

	s.Addr = addr
	s.Handler = tracer.Middleware(headers.Middleware(limited(mux)))
	s.ReadHeaderTimeout = 5 * time.Second
	s.ReadTimeout = 15 * time.Second
	s.WriteTimeout = 15 * time.Second
	s.IdleTimeout = 60 * time.Second
	return s
}

// Shutdown stops background work and drains connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			NewJSONResponse().
				Status(http.StatusServiceUnavailable).
				Data(map[string]string{"status": "unavailable"}).
				Write(w)
			return
		}
	}
	NewJSONResponse().Data(map[string]string{"status": "ready"}).Write(w)
}
