package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/olympiad/internal/api"
	"github.com/victornm/olympiad/internal/attempt"
	"github.com/victornm/olympiad/internal/catalog"
	"github.com/victornm/olympiad/internal/event"
	"github.com/victornm/olympiad/internal/leaderboard"
	"github.com/victornm/olympiad/internal/notify"
	"github.com/victornm/olympiad/internal/postgres"
	"github.com/victornm/olympiad/internal/proctoring"
	"github.com/victornm/olympiad/internal/registration"
	"github.com/victornm/olympiad/internal/session"
	"github.com/victornm/olympiad/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
		// AllowOrigins lists the browser origins of the quiz shell.
		AllowOrigins []string
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres postgres.Config

	Auth struct {
		Secret   string
		TokenTTL time.Duration
	}

	Session struct {
		WarningCeiling int
		Autosave       bool
		SubmitTimeout  time.Duration
	}

	Proctoring struct {
		CaptureInterval time.Duration
	}

	Event struct {
		PoolSize       int
		HandlerTimeout time.Duration
	}
}

// DefaultConfig returns the values used for keys missing from the config file and environment.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.HTTP.AllowOrigins = []string{"http://localhost:3000"}
	c.GRPC.Port = 9090
	c.Redis.Leaderboard.Prefix = "olympiad"
	c.Redis.Pubsub.Prefix = "olympiad"
	c.Auth.TokenTTL = 8 * time.Hour
	c.Session.WarningCeiling = session.DefaultWarningCeiling
	c.Session.SubmitTimeout = 30 * time.Second
	c.Proctoring.CaptureInterval = 30 * time.Second
	c.Event.PoolSize = 1000
	c.Event.HandlerTimeout = 30 * time.Second
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	service struct {
		catalog      *catalog.Service
		attempt      *attempt.Service
		registration *registration.Service
		proctoring   *proctoring.Service
		session      *session.Service
		leaderboard  *leaderboard.Service
		notify       *notify.Notifier
	}

	api  *api.API
	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	if c.Auth.Secret == "" {
		return nil, fmt.Errorf("server: auth secret is not set")
	}

	s.eb = event.NewBus(
		event.WithPoolSize(c.Event.PoolSize),
		event.WithTimeout(c.Event.HandlerTimeout),
	)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	s.infra.postgres, err = postgres.Connect(s.c.Postgres)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return postgres.Migrate(ctx, s.infra.postgres)
}

func (s *Server) initService() {
	db := s.infra.postgres

	s.service.catalog = catalog.NewService(catalog.Config{DB: db})
	s.service.attempt = attempt.NewService(attempt.Config{DB: db})

	s.service.registration = registration.NewService(registration.Config{
		DB:     db,
		Tokens: registration.NewTokens(s.c.Auth.Secret, s.c.Auth.TokenTTL),
	})

	s.service.proctoring = proctoring.NewService(proctoring.Config{
		DB:              db,
		EventBus:        s.eb,
		CaptureInterval: s.c.Proctoring.CaptureInterval,
	})

	s.service.session = session.NewService(session.Config{
		Catalog:  s.service.catalog,
		Attempts: s.service.attempt,
		NewMonitor: func(participantID string) session.Monitor {
			return s.service.proctoring.NewMonitor(participantID)
		},
		EventBus:       s.eb,
		WarningCeiling: s.c.Session.WarningCeiling,
		Autosave:       s.c.Session.Autosave,
		SubmitTimeout:  s.c.Session.SubmitTimeout,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})

	s.service.notify = notify.New(notify.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.pubsub,
		Prefix:   s.c.Redis.Pubsub.Prefix,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.GinLogger())

	cc := cors.DefaultConfig()
	if len(s.c.HTTP.AllowOrigins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = s.c.HTTP.AllowOrigins
	}
	cc.AddAllowHeaders("Authorization")
	e.Use(cors.New(cc))

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())

	s.api = api.New(api.Config{
		HTTP:         e,
		GRPC:         s.grpc,
		Sessions:     s.service.session,
		Registration: s.service.registration,
		Tokens:       s.service.registration.Tokens(),
		Attempts:     s.service.attempt,
		Captures:     s.service.proctoring,
		Leaderboard:  s.service.leaderboard,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.api.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	// Stop timers and capture loops before draining the handlers they publish to.
	s.service.session.Close()
	s.eb.Stop()

	s.infra.postgres.Close()
	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
