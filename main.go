package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	apihttp "waterscada/internal/api/http"
	"waterscada/internal/auth"
	"waterscada/internal/history"
	"waterscada/internal/observability/metrics"
	"waterscada/internal/physical"
	"waterscada/internal/plc"
	"waterscada/internal/runtimecfg"
	"waterscada/internal/scada"
	"waterscada/internal/sim"
	"waterscada/internal/transport"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	metrics.Init()

	roster, err := runtimecfg.LoadRoster(cfg.RosterPath)
	if err != nil {
		logger.Fatalf("roster error: %v", err)
	}
	built, err := runtimecfg.Build(roster, cfg.InpPath)
	if err != nil {
		logger.Fatalf("runtime config error: %v", err)
	}
	runtimeCfg := &built
	logger.Printf("runtime config built: %d agents", len(runtimeCfg.Agents))

	simCfg, err := loadSimConfig(cfg.SimConfigPath)
	if err != nil {
		logger.Fatalf("sim config error: %v", err)
	}
	engine, err := physical.NewTableEngine(simCfg.Engine)
	if err != nil {
		logger.Fatalf("engine error: %v", err)
	}
	defer engine.Close()

	manual := scada.NewManualPolicy()
	policy := scada.PolicyChain{simCfg.Override, manual}
	coordinator, err := scada.NewCoordinator(runtimeCfg, scada.WithOverridePolicy(policy), scada.WithLogger(logger))
	if err != nil {
		logger.Fatalf("coordinator error: %v", err)
	}

	var recorder history.Recorder
	var reader history.Reader
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		pg := history.NewPostgresRecorder(db)
		recorder, reader = pg, pg
	} else {
		mem := history.NewMemoryRecorder()
		recorder, reader = mem, mem
	}

	agents := make([]*plc.Agent, 0, len(runtimeCfg.Agents))
	for _, agentCfg := range runtimeCfg.Agents {
		agents = append(agents, plc.NewAgent(agentCfg))
	}

	opts := []sim.Option{sim.WithRecorder(recorder), sim.WithLogger(logger)}
	if cfg.RunID != "" {
		opts = append(opts, sim.WithRunID(cfg.RunID))
	}
	orchestrator, err := sim.NewOrchestrator(engine, coordinator, agents, opts...)
	if err != nil {
		logger.Fatalf("orchestrator error: %v", err)
	}

	if cfg.ListenAddr != "" {
		server, err := transport.NewServer(cfg.ListenAddr, coordinator, logger)
		if err != nil {
			logger.Fatalf("transport error: %v", err)
		}
		defer server.Close()
		logger.Printf("coordinator listening on %s", cfg.ListenAddr)
	}

	go func() {
		logger.Printf("run %s starting", orchestrator.RunID())
		steps, err := orchestrator.Run(context.Background())
		if err != nil {
			logger.Printf("run %s failed after %d steps: %v", orchestrator.RunID(), steps, err)
			return
		}
		logger.Printf("run %s finished: %d steps", orchestrator.RunID(), steps)
	}()

	authPolicy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), authPolicy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/status", apihttp.NewStatusHandler(coordinator))
	mux.Handle("/api/v1/overrides", apihttp.NewOverridesHandler(manual, runtimeCfg))
	mux.Handle("/api/v1/runs/", apihttp.NewRunsHandler(reader))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	RosterPath    string
	InpPath       string
	SimConfigPath string
	HTTPAddr      string
	ListenAddr    string
	DatabaseURL   string
	JWTSecret     string
	RunID         string
}

func loadConfig() config {
	cfg := config{
		RosterPath:    getenvDefault("ROSTER_PATH", "config/plcs.yaml"),
		InpPath:       getenvDefault("INP_PATH", "config/network.inp"),
		SimConfigPath: getenvDefault("SIM_CONFIG_PATH", "config/simulation.yaml"),
		HTTPAddr:      getenvDefault("HTTP_ADDR", ":8080"),
		ListenAddr:    getenvDefault("SCADA_LISTEN_ADDR", ""),
		DatabaseURL:   getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		JWTSecret:     getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		RunID:         getenvDefault("RUN_ID", ""),
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

// simFile pairs the engine configuration with the scenario override
// window in one document.
type simFile struct {
	Engine   physical.TableConfig `yaml:"engine"`
	Override scada.WindowPolicy   `yaml:"override"`
}

func loadSimConfig(path string) (simFile, error) {
	var out simFile
	data, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
