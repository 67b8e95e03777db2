package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"themis-assess/internal/api"
	"themis-assess/internal/auth"
	"themis-assess/internal/config"
	"themis-assess/internal/logging"
	"themis-assess/internal/mcp"
	"themis-assess/internal/repository"
	"themis-assess/internal/services"
	"themis-assess/internal/tls"
)

const serviceName = "themis-assess"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "themis-assess",
		Short:        "Guided control assessment service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ./config.yaml)")

	var migrate bool
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, migrate)
		},
	}
	serve.Flags().BoolVar(&migrate, "migrate", false, "Apply database migrations before serving")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			logger := logging.NewLogger(cfg.Log.Level)
			defer logger.Sync()
			if err := repository.ApplyMigrations(cmd.Context(), cfg.DSN()); err != nil {
				logger.Error("migrations failed", "error", err)
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}

	root.AddCommand(serve, migrateCmd)
	return root
}

func runServe(ctx context.Context, configPath string, migrate bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := logging.NewLogger(cfg.Log.Level)
	defer logger.Sync()

	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"store", cfg.Store.Driver,
		"okta_client_id", cfg.Auth.ClientID,
		"okta_domain", cfg.Auth.OktaDomain,
		"secret_len", len(cfg.Auth.ClientSecret),
		"swagger_client_id", cfg.Auth.SwaggerClientID,
	)
	if cfg.Auth.SwaggerClientID != "" && cfg.Auth.SwaggerClientID == cfg.Auth.ClientID {
		logger.Warn("Swagger client ID matches the backend client ID; PKCE login from the docs page will fail if the backend app requires a secret")
	}

	if migrate && cfg.Store.Driver == "postgres" {
		if err := repository.ApplyMigrations(ctx, cfg.DSN()); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
		logger.Info("Database migrations applied")
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	metrics, err := services.NewMetrics()
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	registry, err := services.NewDefinitionRegistry(store, cfg.Workflows.CacheSize, logger)
	if err != nil {
		return err
	}
	manager := services.NewExecutionManager(store, registry, metrics, logger)

	if cfg.Store.Driver == "memory" {
		seedMemoryStore(ctx, cfg, store, registry, logger)
	}
	logger.Info("Service layer initialized")

	authz, err := auth.New(ctx, cfg, store, logger)
	if err != nil {
		return fmt.Errorf("initializing auth: %w", err)
	}

	e := newEcho(logger)
	apiServer := api.NewServer(manager, registry, store, logger)
	e.GET("/health", apiServer.HandleHealth)

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	api.RegisterHandlers(apiGroup, apiServer)
	logger.Info("REST API handlers mounted")

	mcpServer := mcp.NewServer(manager)
	mcpGroup := e.Group("/mcp")
	mcpGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	mcp.MountHTTPHandlers(mcpGroup, "/mcp", mcpServer.GetMCPServer())
	logger.Info("MCP protocol handlers mounted")

	e.GET("/openapi.yaml", echo.WrapHandler(api.SpecHandler(cfg.Auth.OktaDomain)))
	e.GET("/docs", echo.WrapHandler(api.SwaggerHandler(cfg.Auth.SwaggerClientID)))
	e.GET("/docs/oauth2-redirect.html", echo.WrapHandler(http.HandlerFunc(api.OAuthRedirectHandler)))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr, "tls", cfg.TLS.Enable)
		if !cfg.TLS.Enable {
			serverErrors <- server.ListenAndServe()
			return
		}
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			serverErrors <- errors.New("TLS enabled but cert/key file not provided")
			return
		}
		created, err := tls.EnsureSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
		if err != nil {
			serverErrors <- fmt.Errorf("preparing TLS certificate: %w", err)
			return
		}
		if created {
			logger.Warn("Generated self-signed certificate", "cert_file", cfg.TLS.CertFile, "hostnames", cfg.TLS.Hostnames)
		}
		serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}

func newEcho(logger *logging.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewRequestValidator()

	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(serviceName))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Path(), "/docs") || c.Path() == "/health"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				logger.Warn("request failed", append(args, "error", v.Error)...)
				return nil
			}
			logger.Debug("request", args...)
			return nil
		},
	}))
	return e
}

func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.Repository, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("Using in-memory store; assessments are lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	case "postgres", "":
		pool, err := initDatabase(ctx, cfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing database: %w", err)
		}
		logger.Info("Database connected")
		return repository.NewPostgresStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// seedMemoryStore loads the bundled workflows for the dev tenant so a fresh
// in-memory server has something to assess.
func seedMemoryStore(ctx context.Context, cfg *config.Config, store repository.TenantStore, defs services.DefinitionService, logger *logging.Logger) {
	domain := auth.DevEmail[strings.LastIndex(auth.DevEmail, "@")+1:]
	tenant, err := services.EnsureTenant(ctx, store, domain, "Local Dev Tenant")
	if err != nil {
		logger.Warn("Could not create dev tenant", "error", err)
		return
	}
	if _, err := services.SeedWorkflows(ctx, defs, tenant.ID, cfg.Workflows.Dir, logger); err != nil {
		logger.Warn("Some workflows were not seeded", "dir", cfg.Workflows.Dir, "error", err)
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection", "host", cfg.DB.Host, "db", cfg.DB.Name)

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
