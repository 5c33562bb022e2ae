package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/cowrite/internal/assembler"
	"github.com/MrSnakeDoc/cowrite/internal/clock"
	"github.com/MrSnakeDoc/cowrite/internal/config"
	"github.com/MrSnakeDoc/cowrite/internal/events"
	"github.com/MrSnakeDoc/cowrite/internal/evidence"
	"github.com/MrSnakeDoc/cowrite/internal/generator"
	"github.com/MrSnakeDoc/cowrite/internal/httpserver"
	"github.com/MrSnakeDoc/cowrite/internal/httpserver/deps"
	"github.com/MrSnakeDoc/cowrite/internal/identity"
	"github.com/MrSnakeDoc/cowrite/internal/logger"
	"github.com/MrSnakeDoc/cowrite/internal/policy"
	"github.com/MrSnakeDoc/cowrite/internal/quota"
	"github.com/MrSnakeDoc/cowrite/internal/redis"
	"github.com/MrSnakeDoc/cowrite/internal/scheduler"
	"github.com/MrSnakeDoc/cowrite/internal/session"
	redisstore "github.com/MrSnakeDoc/cowrite/internal/store/redis"
	"github.com/MrSnakeDoc/cowrite/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	sessions    *session.Manager
	reloader    *scheduler.PolicyReloader
	reaper      *scheduler.Reaper
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	wall := clockwork.NewRealClock()
	clk := clock.Wrap(wall)
	window := quota.NewWindow(cfg.QuotaLocation)
	holder := policy.NewHolder(cfg.Policy)

	// Quota ledger: redis shares the budget across instances, memory is
	// for single-instance and local runs.
	var (
		redisClient *goredis.Client
		store       *redisstore.Store
		ledger      quota.Ledger
		limiters    []scheduler.LimitSetter
		rotator     scheduler.QuotaRotator
		outcomes    session.OutcomeRecorder
	)
	switch cfg.StoreBackend {
	case config.StoreRedis:
		// Fail fast if redis is unavailable
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RedisConnectTimeout+cfg.RedisPingTimeout)
		client, err := redis.Connect(ctx, redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		cancel()
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		loggerClient.Info("Redis initialized successfully")

		redisClient = client
		store = redisstore.NewStore(client)
		redisLedger := redisstore.NewQuotaLedger(store, window, cfg.Policy.DailyQuota)
		ledger = redisLedger
		limiters = append(limiters, redisLedger)
		outcomes = redisstore.OutcomeRecorder{Store: store, Day: window.Day}
	default:
		loggerClient.Warn("using in-memory quota ledger, quota is per instance and lost on restart")
		memLedger := quota.NewMemoryLedger(window, cfg.Policy.DailyQuota)
		ledger = memLedger
		limiters = append(limiters, memLedger)
		rotator = memLedger
	}

	retriever := newRetriever(cfg, store, loggerClient)
	gen, err := newGenerator(cfg)
	if err != nil {
		loggerClient.Errorf("Failed to initialize generator: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("suggestion backends ready",
		logger.String("retriever", retriever.Name()),
		logger.Bool("retriever_configured", evidence.Configured(retriever)),
		logger.String("generator", gen.Name()))

	asm := assembler.New(retriever, gen, clk, loggerClient, assembler.OptionsFrom(cfg.Policy))
	hub := events.NewHub(cfg.EventBuffer)

	sessions := session.NewManager(session.ManagerConfig{
		Policy:   holder,
		Ledger:   ledger,
		Clock:    clk,
		Sink:     hub,
		Outcomes: outcomes,
		Log:      loggerClient,
		Assembler: func(p policy.Policy) session.Assembler {
			return asm.With(assembler.OptionsFrom(p))
		},
	})

	// Policy file reloader (if a policy file is configured)
	var reloader *scheduler.PolicyReloader
	var reloadTrigger chan struct{}
	if cfg.PolicyFile != "" {
		loggerClient.Info("policy file configured, initializing policy reloader",
			logger.String("file", cfg.PolicyFile))
		reloadTrigger = make(chan struct{}, 1)
		reloader = scheduler.NewPolicyReloader(
			cfg.PolicyFile,
			cfg.Policy,
			holder,
			loggerClient,
			cfg.PolicyReloadInterval,
			wall,
			reloadTrigger,
			limiters...,
		)
	}

	reaper := scheduler.NewReaper(
		sessions,
		rotator,
		loggerClient,
		cfg.ReaperInterval,
		cfg.SessionIdleTTL,
		wall,
	)

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:            loggerClient,
		StartTime:         time.Now(),
		Version:           version.Version,
		Commit:            version.Commit,
		BuildDate:         version.BuildDate,
		GoVersion:         version.GoVersion,
		TimeNow:           clk.Now,
		AllowedHosts:      cfg.AllowedHosts,
		AllowedCIDRS:      cfg.AllowedCIDRS,
		TrustProxy:        cfg.TrustProxy,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitBurst:    cfg.RateLimitBurst,
		RateLimitPerMin:   cfg.RateLimitPerMin,
		RateLimitMaxIPs:   cfg.RateLimitMaxIPs,
		RateLimitIdleTTL:  cfg.RateLimitIdleTTL,
		RateLimitSweepInt: cfg.RateLimitSweepInt,
		Identity:          identity.NewHeaderProvider(cfg.UserHeader),
		UserHeader:        cfg.UserHeader,
		Sessions:          sessions,
		Hub:               hub,
		Ledger:            ledger,
		QuotaWindow:       window,
		Policy:            holder,
		Store:             store,
		StoreBackend:      cfg.StoreBackend,
		Retriever:         retriever,
		Generator:         gen,
		ReloadTrigger:     reloadTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		sessions:    sessions,
		reloader:    reloader,
		reaper:      reaper,
	}
}

// newRetriever builds the evidence retriever behind its caches. store
// may be nil, in which case only the in-process cache is used.
func newRetriever(cfg *config.Config, store *redisstore.Store, log logger.Logger) evidence.Retriever {
	var base evidence.Retriever
	switch cfg.SearchProvider {
	case "static":
		base = &evidence.Static{}
	default:
		if cfg.SearchProvider != "http" {
			log.Warnf("unknown search provider %q, falling back to http", cfg.SearchProvider)
		}
		base = evidence.NewHTTPRetriever(evidence.HTTPConfig{
			Endpoint:      cfg.SearchEndpoint,
			APIKey:        cfg.SearchAPIKey,
			APIKeyHeader:  cfg.SearchAPIKeyHeader,
			ResultsPath:   cfg.SearchResultsPath,
			TitlePath:     cfg.SearchTitlePath,
			URLPath:       cfg.SearchURLPath,
			AuthorPath:    cfg.SearchAuthorPath,
			PublishedPath: cfg.SearchDatePath,
			Timeout:       cfg.SearchTimeout,
		})
	}

	if cfg.EvidenceCacheTTL <= 0 {
		return base
	}
	var shared evidence.SharedCache
	if store != nil {
		shared = store
	}
	return evidence.NewCached(base, cfg.EvidenceCacheSize, cfg.EvidenceCacheTTL, shared, log)
}

func newGenerator(cfg *config.Config) (generator.Generator, error) {
	settings := generator.Settings{
		APIKey:      cfg.GeneratorAPIKey,
		Model:       cfg.GeneratorModel,
		BaseURL:     cfg.GeneratorBaseURL,
		Temperature: cfg.GeneratorTemperature,
		MaxTokens:   cfg.GeneratorMaxTokens,
	}

	switch cfg.GeneratorProvider {
	case "openai":
		return generator.NewOpenAI(settings, cfg.GeneratorTimeout)
	case "gemini":
		ctx, cancel := context.WithTimeout(context.Background(), cfg.GeneratorTimeout)
		defer cancel()
		return generator.NewGemini(ctx, settings, cfg.GeneratorTimeout)
	case "mock":
		return &generator.Mock{Confidence: 0.9}, nil
	default:
		return nil, fmt.Errorf("unknown generator %q (want openai, gemini or mock)", cfg.GeneratorProvider)
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting cowrite v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start policy reloader (if enabled)
	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start policy reloader: %w", err)
		}
		a.logger.Info("policy reloader started",
			logger.Duration("interval", a.cfg.PolicyReloadInterval))
	}

	a.reaper.Start(ctx)
	a.logger.Info("session reaper started",
		logger.Duration("interval", a.cfg.ReaperInterval),
		logger.Duration("idle_ttl", a.cfg.SessionIdleTTL))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	if a.reloader != nil {
		a.reloader.Stop()
	}
	a.reaper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	// Ends every session: pending suggestions expire, in-flight requests
	// are cancelled and event streams close.
	a.sessions.Close()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ cowrite stopped cleanly")
	return nil
}
