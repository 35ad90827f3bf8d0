package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"ottie/internal/config"
	"ottie/internal/configgen"
	server "ottie/internal/http"
	"ottie/internal/jobs"
	"ottie/internal/llm"
	"ottie/internal/migrate"
	"ottie/internal/pipeline"
	"ottie/internal/queue"
	"ottie/internal/scraper"
	"ottie/internal/services"
	"ottie/internal/sites"
	"ottie/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|worker|all")
	flag.Parse()

	switch *role {
	case "api", "worker", "all":
	default:
		log.Fatalf("invalid role: %s (expected api|worker|all)", *role)
	}

	cfg := config.Load(*configPath)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	var st store.Store
	if cfg.Database.DSN != "" {
		if err := migrate.Run(cfg.Database.DSN); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		db, err := sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db failed: %v", err)
		}
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		defer db.Close()
		st = store.NewPostgres(db)
	} else {
		logger.Warn("database_not_configured", "store", "memory")
		st = store.NewMemory()
	}

	q, err := queue.FromConfig(cfg)
	if err != nil {
		log.Fatalf("queue setup failed: %v", err)
	}
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := q.Init(rootCtx); err != nil {
		log.Fatalf("queue init failed: %v", err)
	}
	if *role == "api" && cfg.Queue.Backend == "memory" {
		logger.Warn("memory_queue_on_api_node", "hint", "a separate worker cannot see this queue; use queue.backend=redis")
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
	}

	scrapers, err := scraper.FromConfig(cfg)
	if err != nil {
		log.Fatalf("scraper setup failed: %v", err)
	}
	siteReg := sites.Default(logger)

	client, provider, modelName, err := llm.NewClientFromConfig(cfg, "", "")
	if err != nil {
		log.Fatalf("llm setup failed: %v", err)
	}
	gen := configgen.New(client, provider, modelName, logger)

	// API-only nodes keep a worker for the manual stage re-runs but never
	// run its loop.
	worker := pipeline.NewWorker(cfg, st, q, scrapers, siteReg, gen, logger)

	var trigger pipeline.Triggerer = worker
	if *role == "api" {
		trigger = pipeline.NewHTTPTrigger(cfg.Worker.TriggerURL, cfg.Worker.InternalToken, logger)
	}

	deps := server.Deps{
		Store:  st,
		Queue:  q,
		Redis:  rdb,
		Logger: logger,
	}
	if *role != "worker" {
		deps.Previews = services.NewPreviews(st, q, scrapers, siteReg, worker, trigger, logger)
	}
	if *role != "api" {
		deps.Worker = worker
	}

	var wg sync.WaitGroup
	if *role != "api" {
		runner := jobs.NewRunner(cfg, worker, st, logger)
		wg.Add(2)
		go func() {
			defer wg.Done()
			worker.Run(rootCtx)
		}()
		go func() {
			defer wg.Done()
			runner.Start(rootCtx)
		}()
	}

	s := server.NewServer(cfg, deps)
	go func() {
		<-rootCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server_shutdown_failed", "error", err)
		}
	}()

	logger.Info("server_starting",
		"role", *role,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"queue", cfg.Queue.Backend,
		"llm_provider", provider,
		"llm_model", modelName,
	)
	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}

	stop()
	wg.Wait()
	if err := q.Shutdown(context.Background()); err != nil {
		logger.Warn("queue_shutdown_failed", "error", err)
	}
	logger.Info("server_stopped")
}
