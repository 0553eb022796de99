// Command bench drives the admission pipeline at a configurable load and
// prints a JSON summary of the outcomes. It measures the two hot paths end
// to end, fresh admissions and duplicate suppression, against either the
// in-process store or a shared Redis.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-credit-gate/internal/admission"
	"github.com/tbourn/go-credit-gate/internal/audit"
	"github.com/tbourn/go-credit-gate/internal/balance"
	"github.com/tbourn/go-credit-gate/internal/config"
	"github.com/tbourn/go-credit-gate/internal/integrity"
	"github.com/tbourn/go-credit-gate/internal/observability"
	"github.com/tbourn/go-credit-gate/internal/ratelimit"
	"github.com/tbourn/go-credit-gate/internal/repo"
	"github.com/tbourn/go-credit-gate/internal/store"
	"github.com/tbourn/go-credit-gate/internal/sysutil"
	"github.com/tbourn/go-credit-gate/internal/validation"
)

// version is stamped at build time.
var version = "dev"

var (
	storeKind  string
	redisAddr  string
	workers    int
	duration   time.Duration
	rps        float64
	workload   string
	auditToLog bool
)

func init() {
	flag.StringVar(&storeKind, "store", "memory", "counter store: memory | redis")
	flag.StringVar(&redisAddr, "redis", "", "redis address (overrides REDIS_ADDR)")
	flag.IntVar(&workers, "workers", 8, "number of concurrent submitters")
	flag.DurationVar(&duration, "duration", 10*time.Second, "bench duration")
	flag.Float64Var(&rps, "rate", 0, "total submissions per second (0 = unthrottled)")
	flag.StringVar(&workload, "workload", "unique", "workload: unique | replay")
	flag.BoolVar(&auditToLog, "audit-log", false, "emit audit events through the logger")
}

// Outcome counters, aggregated across workers.
var (
	nAdmitted    uint64
	nRateLimited uint64
	nDuplicate   uint64
	nRejected    uint64
	nErrors      uint64
	latencyNanos uint64
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg := config.MustLoad()
	log := sysutil.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version, log)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(c)
	}()

	st, closeStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("store setup failed")
	}
	defer closeStore()

	sink, closeSink, err := buildAudit(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("audit setup failed")
	}
	defer closeSink()

	var balances balance.Lookup
	if cfg.EnforceBalance {
		pg, err := balance.NewPostgresLookup(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres setup failed")
		}
		defer pg.Close()
		balances = pg
	}

	pipe := admission.New(admission.Options{
		Limiter: ratelimit.New(st, cfg.RateLimit, log),
		Guard:   integrity.NewGuard(st, cfg.ReplayWindow, cfg.TimestampWindow, log),
		AmountRules: validation.AmountRules{
			Precision:     cfg.Credit.Precision,
			Min:           cfg.Credit.MinAmount,
			Max:           cfg.Credit.MaxAmount,
			AllowNegative: cfg.Credit.AllowNegative,
		},
		ShapeRules: validation.TransactionRules{
			MaxMetadataBytes:  cfg.MaxMetadataBytes,
			MaxReferenceIDLen: cfg.MaxReferenceIDLen,
		},
		Balances:       balances,
		EnforceBalance: cfg.EnforceBalance,
		Audit:          sink,
		Log:            log,
	})

	var lim *rate.Limiter
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), workers)
	}

	// One fixed payload shared by every worker reproduces the duplicate
	// storm the dedup path exists for.
	var replayPayload []byte
	if workload == "replay" {
		replayPayload = buildPayload(0, 0, true)
	}

	log.Info().
		Str("workload", workload).
		Str("store", storeKind).
		Int("workers", workers).
		Dur("duration", duration).
		Float64("rate", rps).
		Msg("bench starting")

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			runWorker(runCtx, pipe, lim, w, replayPayload)
		}(w)
	}
	wg.Wait()

	printSummary(os.Stdout, time.Since(start))
}

func buildStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (store.Store, func(), error) {
	switch storeKind {
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	case "redis":
		addr := sysutil.FirstNonEmpty(redisAddr, cfg.Redis.Addr)
		rdb := redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", addr, err)
		}
		log.Info().Str("addr", addr).Msg("using redis store")
		return store.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", storeKind)
	}
}

func buildAudit(cfg config.Config, log zerolog.Logger) (audit.Sink, func(), error) {
	var sinks audit.MultiSink
	cleanup := func() {}

	if auditToLog {
		sinks = append(sinks, audit.NewLogSink(log))
	}
	if cfg.AuditDBPath != "" {
		db, err := repo.OpenSQLite(cfg.AuditDBPath)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.AutoMigrate(db); err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, audit.NewStoreSink(db))
		cleanup = func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	}

	switch len(sinks) {
	case 0:
		return audit.NopSink{}, cleanup, nil
	case 1:
		return sinks[0], cleanup, nil
	default:
		return sinks, cleanup, nil
	}
}

func runWorker(ctx context.Context, pipe *admission.Pipeline, lim *rate.Limiter, w int, replayPayload []byte) {
	ids := []ratelimit.Identity{
		{Type: ratelimit.TypeIP, Value: fmt.Sprintf("203.0.113.%d", w%254+1)},
		{Type: ratelimit.TypeUser, Value: fmt.Sprintf("bench-user-%d", w)},
		{Type: ratelimit.TypeAPIKey, Value: "bench-key"},
	}

	for n := 0; ctx.Err() == nil; n++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return
			}
		}

		payload := replayPayload
		if payload == nil {
			payload = buildPayload(w, n, false)
		}

		t0 := time.Now()
		_, err := pipe.Submit(ctx, ids, payload)
		atomic.AddUint64(&latencyNanos, uint64(time.Since(t0)))
		classify(err)
	}
}

func classify(err error) {
	if err == nil {
		atomic.AddUint64(&nAdmitted, 1)
		return
	}
	var rej *admission.Rejection
	if !errors.As(err, &rej) {
		atomic.AddUint64(&nErrors, 1)
		return
	}
	switch {
	case rej.Stage == admission.StageRateLimit:
		atomic.AddUint64(&nRateLimited, 1)
	case errors.Is(rej.Err, integrity.ErrDuplicateTransaction),
		errors.Is(rej.Err, integrity.ErrReplayedFingerprint):
		atomic.AddUint64(&nDuplicate, 1)
	default:
		atomic.AddUint64(&nRejected, 1)
	}
}

// buildPayload builds one submission body. A fixed payload (replay
// workload) pins the id so every submission carries identical content.
func buildPayload(w, n int, fixed bool) []byte {
	m := map[string]any{
		"from_user_id":     fmt.Sprintf("bench-user-%d", w),
		"to_user_id":       fmt.Sprintf("bench-user-%d", w+1),
		"amount":           "1.00",
		"transaction_type": "purchase",
		"timestamp":        time.Now().UTC().Format(time.RFC3339Nano),
		"reference_id":     fmt.Sprintf("bench-%d-%d-%d", w, n, time.Now().UnixNano()),
	}
	if fixed {
		m["id"] = uuid.NewString()
		m["reference_id"] = "bench-replay"
	}
	b, _ := json.Marshal(m)
	return b
}

func printSummary(w io.Writer, elapsed time.Duration) {
	admitted := atomic.LoadUint64(&nAdmitted)
	rateLimited := atomic.LoadUint64(&nRateLimited)
	duplicates := atomic.LoadUint64(&nDuplicate)
	rejected := atomic.LoadUint64(&nRejected)
	errs := atomic.LoadUint64(&nErrors)
	total := admitted + rateLimited + duplicates + rejected + errs

	summary := map[string]any{
		"workload":       workload,
		"store":          storeKind,
		"workers":        workers,
		"duration_sec":   elapsed.Seconds(),
		"total":          total,
		"throughput_tps": float64(total) / elapsed.Seconds(),
		"admitted":       admitted,
		"rate_limited":   rateLimited,
		"duplicates":     duplicates,
		"rejected_other": rejected,
		"errors":         errs,
	}
	if total > 0 {
		summary["mean_latency_us"] = float64(atomic.LoadUint64(&latencyNanos)) / float64(total) / 1e3
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)
}
