package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"cutoutly/internal/adapter/repo"
	"cutoutly/internal/domain"
	"cutoutly/internal/http/handlers"
	httpapi "cutoutly/internal/http/httpapi"
	"cutoutly/internal/infra"
	"cutoutly/internal/infra/credentials"
	"cutoutly/internal/infra/geoip"
	"cutoutly/internal/jobs"
	"cutoutly/internal/providers/image"
	"cutoutly/internal/providers/prompt"
	"cutoutly/internal/storage"
)

const shutdownGrace = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobRepo, faceRepo, sqlRunner, closeDB, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to open job store")
	}
	defer closeDB()

	store, staticDir, err := openObjectStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	guard := jobs.Guard(jobs.NewMemoryGuard())
	if cfg.RedisURL != "" {
		rdb, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: redis connection failed")
		}
		defer rdb.Close()
		guard = jobs.NewRedisGuard(rdb, cfg.GuardTTL, &logger)
	} else {
		logger.Warn().Msg("api: REDIS_URL not set, advance guard is local to this process")
	}

	apiKey := strings.TrimSpace(cfg.OpenAIAPIKey)
	if apiKey == "" && sqlRunner != nil {
		keyFromStore, err := credentials.NewStore(sqlRunner).OpenAIAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("api: failed to load openai api key from store")
		} else {
			apiKey = keyFromStore
		}
	}

	machine, err := jobs.NewMachine(jobs.Options{
		Jobs:           jobRepo,
		Faces:          faceRepo,
		Store:          store,
		Guard:          guard,
		Images:         newImageGenerator(cfg, apiKey, logger),
		Scripts:        newScriptWriter(cfg, apiKey, logger),
		Logger:         &logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build job machine")
	}

	var lookup func(string) (string, error)
	if cfg.GeoIPDBPath != "" {
		resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.GeoIPDBPath).Msg("api: geoip disabled")
		} else {
			defer resolver.Close()
			lookup = resolver.CountryCode
		}
	}

	app := handlers.NewApp(cfg, logger, machine)
	router := httpapi.NewRouter(app, httpapi.Options{CountryLookup: lookup, StaticDir: staticDir})
	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Str("job_store", cfg.JobStore).Str("storage", cfg.StorageDriver).Msg("api: listening")
		return server.Run(gctx, shutdownGrace)
	})
	if cfg.JobStore == infra.JobStoreMemory {
		// no worker process can see an in-memory store
		sweeper := jobs.NewSweeper(jobRepo, cfg.StallTimeout, &logger)
		g.Go(func() error { return sweeper.Run(gctx, cfg.SweepInterval) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("api: server failed")
	}
	logger.Info().Msg("api: stopped")
}

// openStores returns the job and face repositories for the configured
// backend. The SQL runner is nil for the memory store.
func openStores(ctx context.Context, cfg *infra.Config, logger infra.Logger) (domain.JobRepository, domain.SavedFaceRepository, *infra.SQLRunner, func(), error) {
	if cfg.JobStore == infra.JobStoreMemory {
		logger.Warn().Msg("api: using in-memory job store, jobs are lost on restart")
		return repo.NewMemoryJobRepository(), repo.NewMemorySavedFaceRepository(), nil, func() {}, nil
	}
	pool, err := infra.NewDBPool(ctx, cfg, "api")
	if err != nil {
		return nil, nil, nil, nil, err
	}
	runner := infra.NewSQLRunner(pool, logger)
	if cfg.DBAutoMigrate {
		if err := repo.Migrate(ctx, runner); err != nil {
			pool.Close()
			return nil, nil, nil, nil, err
		}
		logger.Info().Msg("api: schema ensured")
	}
	return repo.NewJobRepository(runner), repo.NewSavedFaceRepository(runner), runner, pool.Close, nil
}

// openObjectStore returns the store and, for the filesystem driver, the
// directory served under /static.
func openObjectStore(ctx context.Context, cfg *infra.Config) (storage.ObjectStore, string, error) {
	if cfg.StorageDriver == infra.StorageDriverMinio {
		store, err := storage.NewMinioStore(storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			BaseURL:   cfg.StorageBaseURL,
		})
		if err != nil {
			return nil, "", err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, "", err
		}
		return store, "", nil
	}
	path := cfg.StoragePath
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	store, err := storage.NewFileStore(path, cfg.StorageBaseURL)
	if err != nil {
		return nil, "", err
	}
	return store, store.BasePath(), nil
}

func newImageGenerator(cfg *infra.Config, apiKey string, logger infra.Logger) image.Generator {
	if apiKey == "" {
		logger.Warn().Msg("api: openai api key missing, using synthetic image generation")
		return image.NewSyntheticGenerator()
	}
	gen, err := image.NewOpenAIGenerator(image.OpenAIOptions{
		APIKey:       apiKey,
		BaseURL:      cfg.OpenAIBaseURL,
		Model:        cfg.OpenAIImageModel,
		Organization: cfg.OpenAIOrg,
		HTTPClient:   &http.Client{Timeout: cfg.ImageTimeout},
		Logger:       &logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("api: openai image client unavailable, using synthetic image generation")
		return image.NewSyntheticGenerator()
	}
	logger.Info().Str("model", gen.Model()).Msg("api: openai image generation enabled")
	return gen
}

func newScriptWriter(cfg *infra.Config, apiKey string, logger infra.Logger) prompt.ScriptWriter {
	if apiKey == "" {
		return prompt.NewStaticWriter()
	}
	writer, err := prompt.NewOpenAIWriter(prompt.OpenAIOptions{
		APIKey:       apiKey,
		Model:        cfg.OpenAIChatModel,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
		HTTPClient:   &http.Client{Timeout: 60 * time.Second},
		OnFallback: func(reason string, err error) {
			logger.Warn().Err(err).Str("reason", reason).Msg("api: comic script fell back to static writer")
		},
		OnWarning: func(reason, detail string) {
			logger.Warn().Str("reason", reason).Str("detail", detail).Msg("api: script writer warning")
		},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("api: openai script writer unavailable")
		return prompt.NewStaticWriter()
	}
	return writer
}
