package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fieldops/internal/assign"
	"fieldops/internal/buildinfo"
	"fieldops/internal/config"
	"fieldops/internal/dispatch"
	"fieldops/internal/feed"
	"fieldops/internal/geo"
	"fieldops/internal/logging"
	"fieldops/internal/metrics"
	"fieldops/internal/routeopt"
	"fieldops/internal/score"
	"fieldops/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		date       = flag.String("date", "", "plan a single date (YYYY-MM-DD) and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config")
	}
	log := logging.New(cfg.LogLevel)
	log.Info().Str("version", buildinfo.Version).Str("commit", buildinfo.Commit).Msg("dispatchd starting")
	metrics.RegisterDefault()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("store init")
	}
	if err := seedDefaultRule(ctx, st, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("default rule")
	}

	orch := buildPlanner(cfg, st, log)

	if cfg.TelemetryURL != "" {
		go feed.NewClient(cfg.TelemetryURL, st, log).Run(ctx)
	}

	if *date != "" {
		report, err := orch.RunDailyOptimization(ctx, cfg.OrgID, *date)
		if err != nil {
			log.Fatal().Err(err).Msg("optimization run")
		}
		if len(report.Failed()) > 0 {
			os.Exit(1)
		}
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := orch.Statistics(r.Context(), cfg.OrgID, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("dispatcher listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	go planLoop(ctx, orch, cfg.OrgID, log)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown")
	}
}

func buildStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return pg, nil
}

// seedDefaultRule installs the configured assignment defaults as a wildcard
// rule when the organization has no rules yet, so ticket intake works out of
// the box. Organizations with configured rules are left alone.
func seedDefaultRule(ctx context.Context, st store.Store, cfg config.Config, log zerolog.Logger) error {
	rules, err := st.ListActiveRules(ctx, cfg.OrgID)
	if err != nil {
		return err
	}
	if len(rules) > 0 {
		return nil
	}
	rule := cfg.Assignment.DefaultRule()
	rule.ID = uuid.New().String()
	rule.OrgID = cfg.OrgID
	if err := st.SaveRule(ctx, &rule); err != nil {
		return err
	}
	log.Info().Str("org", cfg.OrgID).Str("logic", string(rule.AssignmentLogic)).Msg("seeded default assignment rule")
	return nil
}

func buildPlanner(cfg config.Config, st store.Store, log zerolog.Logger) *dispatch.Orchestrator {
	var provider geo.Provider = geo.Haversine{}
	if cfg.RoutingURL != "" {
		provider = geo.NewExternal(cfg.RoutingURL, cfg.RoutingTimeout, cfg.RoutingRatePerSec, log)
	}
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		if opts, err := redis.ParseURL(cfg.RedisURL); err == nil {
			rdb = redis.NewClient(opts)
		} else {
			log.Warn().Err(err).Msg("redis url ignored")
		}
	}
	cache := geo.NewCached(provider, rdb)

	weights := score.Weights{
		Skill:             cfg.Assignment.SkillWeight,
		AvailableBonus:    cfg.Assignment.AvailableBonus,
		BusyBonus:         cfg.Assignment.BusyBonus,
		WorkloadCap:       cfg.Assignment.WorkloadCap,
		ProximityCapMiles: cfg.Assignment.ProximityCapMiles,
	}
	engine := assign.NewEngine(score.NewScorer(weights, cache), cache, log)

	var solver routeopt.Solver = routeopt.GreedyProximity{}
	if cfg.Routing.Solver == "annealing" {
		solver = routeopt.NewAnnealing(time.Duration(cfg.Routing.TimeBudgetSeconds) * time.Second)
	}
	opt := routeopt.NewOptimizer(cache, solver, routeopt.Options{
		MetersPerMinute: cfg.Routing.MetersPerMinute,
		LongLegMeters:   cfg.Routing.LongLegMeters,
	}, log)

	return dispatch.NewOrchestrator(st, engine, opt, cache, solver.Name(), log)
}

// planLoop runs one optimization for today at startup and again every
// midnight UTC for the new day.
func planLoop(ctx context.Context, orch *dispatch.Orchestrator, orgID string, log zerolog.Logger) {
	run := func() {
		date := time.Now().UTC().Format("2006-01-02")
		if _, err := orch.RunDailyOptimization(ctx, orgID, date); err != nil {
			log.Error().Err(err).Str("date", date).Msg("optimization run failed")
		}
	}
	run()
	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		select {
		case <-time.After(next.Sub(now)):
			run()
		case <-ctx.Done():
			return
		}
	}
}
