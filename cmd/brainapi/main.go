package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/joenofro/revenue-api/internal/admin"
	"github.com/joenofro/revenue-api/internal/api"
	"github.com/joenofro/revenue-api/internal/config"
	"github.com/joenofro/revenue-api/internal/db"
	"github.com/joenofro/revenue-api/internal/keys"
	"github.com/joenofro/revenue-api/internal/logger"
	"github.com/joenofro/revenue-api/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	rootCmd    = &cobra.Command{
		Use:          "brainapi",
		Short:        "Brain & Revenue API server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configFile)
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configFile)
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and seed the demo key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(configFile)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// customRecovery is a middleware that recovers from panics and handles http.ErrAbortHandler gracefully.
func customRecovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					log.Warn("Client connection aborted", zap.String("path", c.Request.URL.Path))
					c.Abort()
					return
				}

				log.Error("Panic recovered",
					zap.Any("error", recovered),
					zap.String("path", c.Request.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
			}
		}()
		c.Next()
	}
}

// bootstrap loads configuration and opens the database.
func bootstrap(path string) (*config.Config, db.Service, *zap.Logger, error) {
	cfg, warning, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	log := logger.New(cfg.Debug)
	log.Info("Logger initialized", zap.Bool("debug_mode", cfg.Debug))
	if warning != "" {
		log.Warn(warning)
	}

	database, err := db.NewService(cfg.Database, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		return nil, nil, nil, err
	}
	log.Info("Database initialized", zap.String("type", cfg.Database.Type))
	return cfg, database, log, nil
}

func runMigrate(path string) error {
	_, database, log, err := bootstrap(path)
	if err != nil {
		return err
	}
	defer log.Sync()

	demo := &model.APIKey{
		Token:        "demo-free-key",
		Tier:         "free",
		Email:        "demo@example.com",
		DailyLimit:   100,
		MonthlyLimit: 3000,
		Status:       model.KeyStatusActive,
	}
	if err := database.SeedAPIKey(context.Background(), demo); err != nil {
		return fmt.Errorf("seed demo key: %w", err)
	}
	log.Info("Migration complete")
	return nil
}

// registrationWindow shares the window through Redis when configured so every
// replica sees the same attempts.
func registrationWindow(cfg *config.Config, log *zap.Logger) (keys.Window, func(), error) {
	reg := cfg.Registration
	if reg.RedisAddr == "" {
		return keys.NewMemoryWindow(reg.MaxPerWindow, reg.WindowDuration(), nil), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: reg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", reg.RedisAddr, err)
	}
	log.Info("Registration window backed by redis", zap.String("addr", reg.RedisAddr))
	return keys.NewRedisWindow(rdb, reg.MaxPerWindow, reg.WindowDuration(), nil), func() { _ = rdb.Close() }, nil
}

func runServer(path string) error {
	cfg, database, log, err := bootstrap(path)
	if err != nil {
		return err
	}
	defer log.Sync()

	window, closeWindow, err := registrationWindow(cfg, log)
	if err != nil {
		return err
	}
	defer closeWindow()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	// Use our custom recovery middleware instead of the default one.
	router.Use(customRecovery(log))

	server := api.NewServer(cfg, database, window, time.Now, log)
	api.SetupRoutes(router, server, cfg)
	admin.SetupRoutes(router, admin.NewHandler(database, server.Keys(), server.Revenue(), log), cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("start server: %w", err)
	case <-quit:
	}
	log.Info("Shutting down server...")

	// The server has 5 seconds to finish the requests it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exiting")
	return nil
}
