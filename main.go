package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/yeremiapane/restaurant-pos/config"
	"github.com/yeremiapane/restaurant-pos/database"
	"github.com/yeremiapane/restaurant-pos/hub"
	"github.com/yeremiapane/restaurant-pos/messaging"
	"github.com/yeremiapane/restaurant-pos/router"
	"github.com/yeremiapane/restaurant-pos/services"
	"github.com/yeremiapane/restaurant-pos/utils"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	utils.InitLogger()

	rootCmd := &cobra.Command{
		Use:          "restaurant-pos",
		Short:        "Restaurant ordering and payment backend",
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.AddCommand(
		serveCommand(),
		migrateCommand(),
		seedCommand(),
		createAdminCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		utils.ErrorLogger.Error(err)
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			utils.InfoLogger.Println("AutoMigrate completed.")
			return nil
		},
	}
}

func seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "load the sample menu (safe to run repeatedly)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := database.Seed(db); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			utils.InfoLogger.Println("Seed completed.")
			return nil
		},
	}
}

func createAdminCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "create an admin user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := connect(cfg)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			auth := services.NewAuthService(db, []byte(cfg.JWTSecret), cfg.SessionTTL, cfg.DBQueryTimeout)
			user, err := auth.CreateAdmin(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			utils.InfoLogger.Printf("Admin user %s created (id=%d)", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func openDatabase() (*gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return connect(cfg)
}

func connect(cfg *config.Config) (*gorm.DB, error) {
	utils.ConfigureLogger(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, err
	}
	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	utils.ConfigureLogger(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Set gin mode
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	realtime := hub.New()
	publisher := hub.Multi{realtime}
	if cfg.AMQPURL != "" {
		fanout, err := messaging.NewFanoutPublisher(cfg.AMQPURL)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer fanout.Close()
		publisher = append(publisher, fanout)
		utils.InfoLogger.Println("RabbitMQ fan-out enabled")
	}

	gateway := services.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.PaymentTimeout)
	catalog := services.NewCatalogService(db, cfg.DBQueryTimeout)
	svc := router.Services{
		Catalog:  catalog,
		Orders:   services.NewOrderService(db, catalog, gateway, publisher, cfg.TaxRate, cfg.DBQueryTimeout),
		Payments: services.NewPaymentService(db, gateway, gateway, publisher, cfg.Currency, cfg.DBQueryTimeout, cfg.PaymentTimeout),
		Auth:     services.NewAuthService(db, []byte(cfg.JWTSecret), cfg.SessionTTL, cfg.DBQueryTimeout),
		Uploads:  services.NewUploadService(cfg.UploadDir, cfg.PublicBaseURL, catalog),
	}
	r := router.SetupRouter(db, realtime, svc, router.Options{
		JWTSecret:      []byte(cfg.JWTSecret),
		CORSOrigin:     cfg.CORSOrigin,
		ConnectTimeout: cfg.DBConnectTimeout,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	utils.InfoLogger.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
