package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/mkrupp/vidrio/internal/infra/database"
	"github.com/mkrupp/vidrio/internal/infra/logging"
	"github.com/mkrupp/vidrio/internal/infra/metrics"
	http_ "github.com/mkrupp/vidrio/internal/infra/transport/http"
	"github.com/mkrupp/vidrio/internal/repo/blob"
	"github.com/mkrupp/vidrio/internal/repo/foto"
	"github.com/mkrupp/vidrio/internal/repo/medida"
	"github.com/mkrupp/vidrio/internal/repo/user"
	"github.com/mkrupp/vidrio/internal/svc/appsvc"
	"github.com/mkrupp/vidrio/internal/svc/authsvc"
	"github.com/mkrupp/vidrio/internal/svc/authsvc/password"
	"github.com/mkrupp/vidrio/internal/svc/authsvc/session"
	"github.com/mkrupp/vidrio/internal/svc/fotosvc"
	"github.com/mkrupp/vidrio/internal/svc/medidasvc"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server. Pending migrations are applied first unless
VIDRIO_DATABASE_AUTO_MIGRATE is false. SIGINT or SIGTERM drains in-flight requests.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}

			return runServe(cmd.Context(), cfg)
		},
	}
}

// app holds the wired components of a running server.
type app struct {
	db      *database.DB
	authSvc *authsvc.AuthService
	handler http.Handler
	router  *http_.Router
	limiter *http_.RateLimiter
}

func (a *app) Close() error {
	return errors.Join(a.authSvc.Close(), a.db.Close())
}

func runServe(ctx context.Context, cfg Config) (err error) {
	log := logging.GetLogger("cmd.vidrio.serve")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "serve failed", "error", err)
		} else {
			log.InfoContext(ctx, "shutdown")
		}
	}()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, a.Close())
	}()

	go a.limiter.Run(ctx, cfg.RateLimit.IdleTTL)

	log.InfoContext(ctx, "routes registered", "count", len(a.router.Routes()))

	if err := http_.ListenAndServe(ctx, a.handler, cfg.HTTP); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// newApp opens the database and wires every service behind one router.
func newApp(ctx context.Context, cfg Config) (_ *app, err error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	authSvc, err := authsvc.NewAuthService(
		user.Factory(ctx, db, cfg.User),
		password.NewArgon2idHasher(cfg.Auth.Password),
		cfg.Auth,
	)
	if err != nil {
		return nil, fmt.Errorf("new auth service: %w", err)
	}

	sessions, err := session.NewManager(cfg.Auth.Session)
	if err != nil {
		return nil, fmt.Errorf("new session manager: %w", err)
	}

	blobFactory, err := blob.NewRepositoryFactory(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("new blob repository factory: %w", err)
	}

	fotoSvc, err := fotosvc.NewFotoService(ctx, foto.NewSQLRepository(db), blobFactory, cfg.Fotos)
	if err != nil {
		return nil, fmt.Errorf("new foto service: %w", err)
	}

	m := metrics.New(cfg.Metrics.Runtime)
	limiter := http_.NewRateLimiter(cfg.RateLimit)

	router := http_.NewRouter(
		authsvc.NewHTTPTransport(authSvc, sessions, limiter, m),
		medidasvc.NewHTTPTransport(medidasvc.NewMedidaService(medida.NewSQLRepository(db))),
		fotosvc.NewHTTPTransport(fotoSvc),
	)
	appsvc.NewHTTPTransport(router, m.Handler()).RegisterRoutes(router)

	handler := http_.Wrap(
		http_.SessionMiddleware(http_.MetricsMiddleware(router, m), sessions),
		logging.GetLogger("cmd.vidrio.http"),
	)

	return &app{
		db:      db,
		authSvc: authSvc,
		handler: handler,
		router:  router,
		limiter: limiter,
	}, nil
}
