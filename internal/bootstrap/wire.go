package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/application/auth"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/config"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/db/mongodb"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/db/postgres"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/email"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/memory"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/redis"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/security"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/seed"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/storage"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/logger"
	http_handlers "github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/handlers"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/middleware"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/response"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/router"
)

const jwtIssuer = "user-service"

/*
========================
 Public entry (prod)
========================
*/

func NewServer() (*http.Server, func(), error) {
	return newServer(defaultDeps())
}

// NewServerWithDeps allows injecting dependencies for testing
func NewServerWithDeps(deps Deps) (*http.Server, func(), error) {
	return newServer(deps)
}

/*
========================
 Dependency injection
========================
*/

type Deps struct {
	LoadConfig func() (*config.Config, error)

	NewStore func(ctx context.Context, cfg *config.Config) (*UserStore, error)

	NewRedis func(addr, password string, db int) RedisClient

	NewMailer func(cfg *config.Config) (auth.Mailer, error)

	NewAvatars func(ctx context.Context, cfg config.S3) (auth.AvatarStorage, error)

	NewRouter func(router.Deps) (http.Handler, error)
}

// UserStore is an opened user store together with its readiness check.
type UserStore struct {
	Users auth.UserRepo
	Ping  http_handlers.Pinger // nil when there is nothing to ping
	Close func() error
}

type RedisClient interface {
	Ping(ctx context.Context) error
	Close() error
}

/*
========================
 Core bootstrap logic
========================
*/

func newServer(deps Deps) (*http.Server, func(), error) {
	ctx := context.Background()

	// 0) config
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	// 1) user store
	store, err := deps.NewStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()
	if store.Close != nil {
		cleanupFns = append(cleanupFns, func() { _ = store.Close() })
	}

	// 2) redis (best-effort)
	var redisCli RedisClient
	if deps.NewRedis != nil && cfg.RedisAddr != "" {
		c := deps.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.Ping(pingCtx)
		cancel()

		if err != nil {
			logger.Logger.Warn().Err(err).Msg("redis unavailable; using in-process limiter and revocation list")
			_ = c.Close()
		} else {
			logger.Logger.Info().Msg("redis connected")
			redisCli = c
			cleanupFns = append(cleanupFns, func() { _ = c.Close() })
		}
	}

	var revoker auth.SessionRevoker = memory.NewRevocationStore()
	var limiter middleware.RateLimiter
	if rc, ok := redisCli.(*redis.Client); ok {
		revoker = redis.NewRevocationStore(rc)
		limiter = redis.NewFixedWindowLimiter(rc)
	}

	// 3) mailer
	mailer, err := deps.NewMailer(cfg)
	if err != nil {
		if !cfg.IsDev() {
			runCleanup(cleanupFns)
			return nil, nil, err
		}
		logger.Logger.Warn().Err(err).Str("transport", cfg.MailTransport).Msg("mail transport unavailable; logging emails instead")
		mailer = email.NewLogSender(logger.Logger)
	}
	if c, ok := mailer.(interface{ Close() error }); ok {
		cleanupFns = append(cleanupFns, func() { _ = c.Close() })
	}

	// 4) avatar storage (optional)
	var avatars auth.AvatarStorage
	if cfg.Avatars.Enabled() && deps.NewAvatars != nil {
		avatars, err = deps.NewAvatars(ctx, cfg.Avatars)
		if err != nil {
			if !cfg.IsDev() {
				runCleanup(cleanupFns)
				return nil, nil, err
			}
			logger.Logger.Warn().Err(err).Msg("avatar storage unavailable; uploads disabled")
			avatars = nil
		}
	}

	// 5) security
	hasher := security.NewBcryptHasher(cfg.BcryptCost)
	signer := security.NewJWTSigner(cfg.JWTSecret, jwtIssuer)
	resets := security.NewResetTokenHasher(cfg.ResetTokenSecret)

	// seed (dev only, enforced by config)
	if cfg.SeedDevUsers {
		n := seed.Users(ctx, store.Users, hasher)
		logger.Logger.Info().Int("created", n).Msg("dev users seeded")
	}

	// 6) service
	svc := auth.NewService(
		store.Users,
		hasher,
		signer,
		resets,
		mailer,
		auth.Config{
			SessionTTL:           cfg.SessionTTL,
			PasswordResetTTL:     cfg.PasswordResetTTL,
			PasswordResetBaseURL: cfg.PasswordResetBaseURL,
			AvatarPresignTTL:     cfg.Avatars.PresignTTL,
		},
	).WithRevoker(revoker)

	if avatars != nil {
		svc = svc.WithAvatarStorage(avatars)
	}

	svc = svc.WithAudit(func(action string, fields map[string]string) {
		evt := logger.Logger.Info().
			Bool("audit", true).
			Str("action", action)
		for k, v := range fields {
			evt = evt.Str(k, v)
		}
		evt.Msg("audit")
	})

	// 7) handlers + middleware
	checks := map[string]http_handlers.Pinger{
		"store": store.Ping,
		"redis": redisCli,
	}
	if p, ok := avatars.(http_handlers.Pinger); ok {
		checks["avatars"] = p
	}

	authMW := middleware.Auth(svc, response.WriteError)
	adminMW := middleware.RequireRole(domain.RoleAdmin, response.WriteError)

	// 8) router
	mux, err := deps.NewRouter(router.Deps{
		Health:  http_handlers.NewHealthHandler(checks),
		Auth:    http_handlers.NewAuthHandler(svc, cfg.CookieSecure),
		Profile: http_handlers.NewProfileHandler(svc),
		Admin:   http_handlers.NewAdminHandler(svc),

		AuthMW:  authMW,
		AdminMW: adminMW,

		Limiter:       limiter,
		Limits:        router.DefaultLimits,
		TrustProxy:    cfg.TrustProxy,
		AvatarUploads: svc.AvatarUploadsEnabled(),
	})
	if err != nil {
		runCleanup(cleanupFns)
		return nil, nil, err
	}

	// 9) server
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	cleanup := func() {
		runCleanup(cleanupFns)
	}

	return srv, cleanup, nil
}

/*
========================
 Default deps (prod)
========================
*/

func defaultDeps() Deps {
	return Deps{
		LoadConfig: config.Load,
		NewStore:   OpenStore,
		NewRedis: func(addr, password string, db int) RedisClient {
			return redis.New(addr, password, db)
		},
		NewMailer: newMailer,
		NewAvatars: func(ctx context.Context, cfg config.S3) (auth.AvatarStorage, error) {
			s3, err := storage.NewS3Avatars(ctx, cfg, logger.Logger)
			if err != nil {
				return nil, err
			}
			return s3, nil
		},
		NewRouter: router.New,
	}
}

// OpenStore connects the configured user store and runs its migrations or
// index setup.
func OpenStore(ctx context.Context, cfg *config.Config) (*UserStore, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := config.NewDB(cfg.DBAddr, cfg.DBDebug)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &UserStore{
			Users: postgres.NewUserRepo(db),
			Ping:  sqlPinger{db},
			Close: db.Close,
		}, nil

	case config.StoreMongo:
		client, coll, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		disconnect := func() error {
			c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(c)
		}
		repo := mongodb.NewUserRepo(coll)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = disconnect()
			return nil, err
		}
		return &UserStore{
			Users: repo,
			Ping:  mongoPinger{client},
			Close: disconnect,
		}, nil

	case config.StoreMemory:
		logger.Logger.Warn().Msg("using in-memory user store; data is lost on restart")
		return &UserStore{Users: memory.NewUserRepo()}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func newMailer(cfg *config.Config) (auth.Mailer, error) {
	switch cfg.MailTransport {
	case config.MailSMTP:
		return email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Timeout:  cfg.SMTP.Timeout,
			Insecure: cfg.SMTP.Insecure,
		}, logger.Logger), nil
	case config.MailRabbit:
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange, cfg.MailRoutingKey)
		if err != nil {
			return nil, err
		}
		return pub, nil
	case config.MailLog, "":
		return email.NewLogSender(logger.Logger), nil
	}
	return nil, errors.New("unknown mail transport " + cfg.MailTransport)
}

/*
========================
 helpers
========================
*/

type sqlPinger struct{ db *sql.DB }

func (p sqlPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

type mongoPinger struct{ client *mongo.Client }

func (p mongoPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx, readpref.Primary())
}

func runCleanup(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
