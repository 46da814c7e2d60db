package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"medgate/internal/config"
	"medgate/internal/domain"
	"medgate/internal/infra/auth/oidc"
	"medgate/internal/infra/db"
	"medgate/internal/infra/directory"
	"medgate/internal/infra/ratelimit"
	"medgate/internal/usecase"

	"github.com/gin-gonic/gin"
)

type Authorizer interface {
	Authorize(ctx context.Context, rawAuthorizationHeader, requestedID string) domain.Decision
}

type ExpenseLister interface {
	List(ctx context.Context, identificationNumber, skipToken string, top int) (domain.ExpensePage, error)
}

type Server struct {
	cfg    config.Config
	r      *gin.Engine
	logger *slog.Logger
	store  *db.Store

	gate     Authorizer
	expenses ExpenseLister

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool

	authInitErr error
}

func NewServer(cfg config.Config, store *db.Store, logger *slog.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, r: r, store: store, logger: logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.initDeps()
	s.r.Use(s.requestID())
	s.routes()
	return s
}

type ServerDeps struct {
	Gate        Authorizer
	Expenses    ExpenseLister
	RateLimiter domain.RateLimiter
	Logger      *slog.Logger
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:      cfg,
		r:        r,
		logger:   deps.Logger,
		gate:     deps.Gate,
		expenses: deps.Expenses,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.initRateLimit(deps.RateLimiter)
	s.r.Use(s.requestID())
	s.routes()
	return s
}

func (s *Server) initDeps() {
	verifier, err := oidc.NewVerifier(s.cfg)
	if err != nil {
		s.authInitErr = err
		return
	}
	creds, err := directory.NewCredentialClient(s.cfg)
	if err != nil {
		s.authInitErr = err
		return
	}
	resolver, err := directory.NewClient(s.cfg, creds)
	if err != nil {
		s.authInitErr = err
		return
	}
	s.gate = usecase.NewAuthorizationGate(verifier, resolver, s.logger)

	var repo *db.ExpenseRepository
	if s.store != nil {
		repo = db.NewExpenseRepository(s.store.DB)
	}
	s.expenses = usecase.NewExpenseService(repo)
	s.initRateLimit(nil)
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = time.Duration(s.cfg.RateLimitWindowSeconds) * time.Second
	}
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})

	v1 := s.r.Group("/api/v1")
	{
		v1.GET("/expenses/:identificationNumber", s.handleListExpenses)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Run() error {
	if s.authInitErr != nil {
		return s.authInitErr
	}
	return s.r.Run(s.cfg.HTTPAddr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.r
}
