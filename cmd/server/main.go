package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/procurewatch/tender-monitor/internal/ai"
	"github.com/procurewatch/tender-monitor/internal/api"
	"github.com/procurewatch/tender-monitor/internal/config"
	"github.com/procurewatch/tender-monitor/internal/matching"
	"github.com/procurewatch/tender-monitor/internal/monitor"
	"github.com/procurewatch/tender-monitor/internal/notify"
	"github.com/procurewatch/tender-monitor/internal/pkg/distlock"
	"github.com/procurewatch/tender-monitor/internal/portal"
	"github.com/procurewatch/tender-monitor/internal/report"
	"github.com/procurewatch/tender-monitor/internal/repository/postgres"
	"github.com/procurewatch/tender-monitor/internal/search"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  Tender Monitor (cmd/server/main.go)                      ║")
	log.Println("║  zakupki.gov.ru polling, matching and notifications       ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if err := checkPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		log.Fatalf("%v", err)
	}

	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.PingContext(pingCtx)
	cancelPing()
	if err != nil {
		log.Fatalf("Failed to connect to database at %s: %v", extractHost(cfg.Database.URL), err)
	}
	log.Printf("[Server] connected to database at %s", extractHost(cfg.Database.URL))
	defer db.Close()

	// Redis is optional; caches and quotas fall back to in-memory state.
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(rctx).Err(); err != nil {
			log.Printf("[Server] WARNING: Redis unreachable, using in-memory fallbacks: %v", err)
			rdb = nil
		} else {
			log.Printf("[Server] connected to Redis")
		}
		cancel()
	} else {
		log.Printf("[Server] Redis not configured, using in-memory fallbacks")
	}

	// Repositories
	userRepo := postgres.NewUserRepo(db)
	filterRepo := postgres.NewFilterRepo(db)
	noteRepo := postgres.NewNotificationRepo(db)
	tenderCacheRepo := postgres.NewTenderCacheRepo(db)
	actionRepo := postgres.NewActionRepo(db)

	// Portal client and matcher
	portalClient, err := portal.NewClient(cfg.Portal)
	if err != nil {
		log.Fatalf("Failed to build portal client: %v", err)
	}
	matcher := matching.New(nil)

	// AI stack. The checker degrades to deterministic-only verdicts when no
	// API key is configured.
	llm := ai.NewClient(cfg.OpenAI)
	checker := ai.NewChecker(llm, rdb)
	enricher := ai.NewEnricher(ai.NewDocumentExtractor(llm), ai.NewSummarizer(llm, rdb))
	if llm.Enabled() {
		log.Printf("[Server] AI relevance gate enabled (model %s)", cfg.OpenAI.Model)
	} else {
		log.Printf("[Server] AI relevance gate disabled (no API key)")
	}

	// Delivery
	sender := notify.NewSender(notify.NewTelegramClient(cfg.Bot))
	sheets := notify.NewSheetsExporter(cfg.Sheets)
	if sheets.Enabled() {
		log.Printf("[Server] spreadsheet export enabled")
	}

	// Search pipeline and monitoring loop
	searcher := search.New(portalClient, matcher, checker)
	searcher.SetMaxTenders(cfg.Polling.MaxTendersPerPoll)
	searcher.SetTenderCache(tenderCacheRepo)
	reporter, err := report.NewGenerator()
	if err != nil {
		log.Fatalf("Failed to parse report template: %v", err)
	}
	instant := search.NewService(searcher, reporter, sender, actionRepo)
	loop := monitor.New(cfg.Polling, filterRepo, userRepo, noteRepo, tenderCacheRepo, searcher, sender, sheets)
	loop.SetEnricher(enricher)
	loop.SetIntentBackfill(checker, filterRepo)
	loop.SetLock(distlock.NewLock(rdb, db, "poll-cycle", 2*cfg.PollInterval()))

	if err := loop.Start(); err != nil {
		log.Fatalf("Failed to start monitoring loop: %v", err)
	}
	// First cycle right away instead of waiting a full interval.
	go loop.RunCycle(context.Background())

	go runHousekeeping(db, userRepo, noteRepo, tenderCacheRepo)

	// HTTP surface
	health := api.NewHealthChecker(db, rdb, portalClient.Ping, func() bool {
		return loop.Status().Running
	})
	webhook := api.NewPaymentWebhook(cfg.Access.WebhookToken, userRepo, actionRepo)
	searchHandler := api.NewSearchHandler(cfg.Access.WebhookToken, userRepo, filterRepo, instant)
	server := api.NewServer(cfg.Server, health, webhook, searchHandler)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("[Server] listening on %s:%d", cfg.Server.Host, cfg.Server.Port)
		serverErr <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Printf("[Server] received %v, shutting down", sig)
	case err := <-serverErr:
		log.Printf("[Server] HTTP server failed: %v", err)
	}

	loop.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] HTTP shutdown: %v", err)
	}
	if rdb != nil {
		rdb.Close()
	}
	log.Printf("[Server] bye")
}

// runHousekeeping performs the daily maintenance passes: downgrade expired
// subscriptions, prune stale tender cache rows and old notification history.
// The advisory lock keeps multi-instance deployments from doubling the work.
func runHousekeeping(db *sql.DB, users *postgres.UserRepo, notes *postgres.NotificationRepo, tenders *postgres.TenderCacheRepo) {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		lock := distlock.NewPGAdvisoryLock(db, "housekeeping")
		ok, err := lock.Acquire(ctx)
		if err != nil || !ok {
			return
		}
		defer lock.Release(ctx)

		if n, err := users.DowngradeExpired(ctx); err != nil {
			log.Printf("[Housekeeping] downgrade expired: %v", err)
		} else if n > 0 {
			log.Printf("[Housekeeping] downgraded %d expired subscriptions", n)
		}
		if n, err := tenders.Prune(ctx, 30); err != nil {
			log.Printf("[Housekeeping] prune tender cache: %v", err)
		} else if n > 0 {
			log.Printf("[Housekeeping] pruned %d stale tender cache rows", n)
		}
		if n, err := notes.PruneOlderThan(ctx, 90); err != nil {
			log.Printf("[Housekeeping] prune notification history: %v", err)
		} else if n > 0 {
			log.Printf("[Housekeeping] pruned %d old notifications", n)
		}
	}

	run()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		run()
	}
}
