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

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eclinic/eclinic/internal/config"
	"github.com/eclinic/eclinic/internal/domain/patients"
	"github.com/eclinic/eclinic/internal/platform/auth"
	"github.com/eclinic/eclinic/internal/platform/db"
	"github.com/eclinic/eclinic/internal/platform/middleware"
	"github.com/eclinic/eclinic/internal/platform/objstore"
	"github.com/eclinic/eclinic/internal/platform/uploader"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "eclinic-server",
		Short: "Patient records API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(repairCmd())
	rootCmd.AddCommand(uploadsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the patient records API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func repairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "One-shot data repair commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create-missing-profiles",
		Short: "Create a patient profile for every patient user lacking one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			profiles := patients.NewProfileRepoPG(pool)
			svc := patients.NewService(profiles, nil, nil, nil, nil,
				patients.UploadTriggerFunc(func(context.Context, string, string) {}))

			created, err := svc.CreateMissingProfiles(ctx)
			if err != nil {
				return err
			}
			for _, userID := range created {
				fmt.Printf("Created patient profile for user: %s\n", userID)
			}
			fmt.Printf("Created %d patient profile(s).\n", len(created))
			return nil
		},
	})

	return cmd
}

func uploadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "Object storage upload tooling",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "backfill",
		Short: "Upload all existing record and document files to object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.SpacesBucket == "" {
				return fmt.Errorf("SPACES_BUCKET must be configured for backfill")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			store, err := objstore.NewS3Store(ctx, objstore.S3Config{
				Endpoint:  cfg.SpacesEndpoint,
				Region:    cfg.SpacesRegion,
				Bucket:    cfg.SpacesBucket,
				AccessKey: cfg.SpacesAccessKey,
				SecretKey: cfg.SpacesSecretKey,
			})
			if err != nil {
				return err
			}

			records := patients.NewRecordRepoPG(pool)
			documents := patients.NewDocumentRepoPG(pool)
			up := newUploader(cfg, store, logger, prometheus.NewRegistry())
			registerResolvers(up, records, documents)

			counts := map[uploader.Outcome]int{}

			recordIDs, err := records.IDsWithFiles(ctx)
			if err != nil {
				return err
			}
			for _, id := range recordIDs {
				counts[up.Do(ctx, patients.KindMedicalRecord, id.String(), uploader.OriginBackfill)]++
			}

			docIDs, err := documents.IDsWithFiles(ctx)
			if err != nil {
				return err
			}
			for _, id := range docIDs {
				counts[up.Do(ctx, patients.KindPatientDocument, id.String(), uploader.OriginBackfill)]++
			}

			for outcome, n := range counts {
				fmt.Printf("%-20s %d\n", outcome, n)
			}
			return nil
		},
	})

	return cmd
}

// newUploader builds the uploader with resolvers for both file-bearing
// entity kinds wired to their repositories.
func newUploader(cfg *config.Config, store objstore.ObjectStore, logger zerolog.Logger, reg prometheus.Registerer) *uploader.Uploader {
	up := uploader.New(uploader.Config{
		Enabled:        cfg.UploadEnabled,
		MediaRoot:      cfg.MediaRoot,
		LocationPrefix: cfg.SpacesLocation,
		Workers:        cfg.UploadWorkers,
		QueueSize:      cfg.UploadQueueSize,
		Timeout:        time.Duration(cfg.UploadTimeoutSecs) * time.Second,
	}, store, logger, uploader.NewMetrics(reg))
	return up
}

func registerResolvers(up *uploader.Uploader, records patients.RecordRepository, documents patients.DocumentRepository) {
	resolve := func(lookup func(context.Context, uuid.UUID) (string, error)) uploader.PathResolver {
		return func(ctx context.Context, entityID string) (string, error) {
			id, err := uuid.Parse(entityID)
			if err != nil {
				return "", fmt.Errorf("invalid entity id %q: %w", entityID, err)
			}
			path, err := lookup(ctx, id)
			if errors.Is(err, patients.ErrNotFound) {
				return "", uploader.ErrEntityNotFound
			}
			return path, err
		}
	}
	up.RegisterKind(patients.KindMedicalRecord, resolve(records.FilePath))
	up.RegisterKind(patients.KindPatientDocument, resolve(documents.FilePath))
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Object storage + uploader
	var store objstore.ObjectStore
	if cfg.UploadEnabled {
		s3Store, err := objstore.NewS3Store(ctx, objstore.S3Config{
			Endpoint:  cfg.SpacesEndpoint,
			Region:    cfg.SpacesRegion,
			Bucket:    cfg.SpacesBucket,
			AccessKey: cfg.SpacesAccessKey,
			SecretKey: cfg.SpacesSecretKey,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create object storage client")
		}
		store = s3Store
		logger.Info().Str("bucket", cfg.SpacesBucket).Msg("file uploads enabled")
	} else {
		store = objstore.NewMemoryStore()
		logger.Info().Msg("file uploads disabled")
	}

	// Repositories
	profiles := patients.NewProfileRepoPG(pool)
	records := patients.NewRecordRepoPG(pool)
	documents := patients.NewDocumentRepoPG(pool)
	notes := patients.NewNoteRepoPG(pool)
	consults := patients.NewConsultationsPG(pool)

	up := newUploader(cfg, store, logger, registry)
	registerResolvers(up, records, documents)
	up.Start()
	defer up.Stop()

	svc := patients.NewService(profiles, records, documents, notes, consults, up)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.JWTSecret),
		}))
	}

	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	apiV1 := e.Group("/api/v1")
	patients.NewHandler(svc).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server starting")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	return nil
}
