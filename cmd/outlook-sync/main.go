package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/airtable"
	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/cache"
	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/graph"
	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/logging"
	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/pipeline"
	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/ratelimit"
)

func main() {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "false") == "true",
	})

	// Configuration from environment
	port := getEnv("PORT", "8080")

	graphCfg := graph.Config{
		TenantID:     os.Getenv("TENANT_ID"),
		ClientID:     os.Getenv("CLIENT_ID"),
		ClientSecret: os.Getenv("CLIENT_SECRET"),
		Mailbox:      os.Getenv("MAILBOX"),
	}

	airtableCfg := airtable.Config{
		APIKey: os.Getenv("AIRTABLE_API_KEY"),
		BaseID: os.Getenv("AIRTABLE_BASE_ID"),
		Table:  getEnv("AIRTABLE_TABLE", "Recipients"),
	}

	runCfg := pipeline.Config{
		PageSize:   getEnvInt("PAGE_SIZE", 50),
		MaxWorkers: getEnvInt("MAX_WORKERS", 5),
		MaxRetries: getEnvInt("MAX_RETRIES", 3),
		RetryDelay: time.Duration(getEnvInt("RETRY_DELAY_SECONDS", 10)) * time.Second,
		ChunkSize:  getEnvInt("CHUNK_SIZE", 10),
	}

	// Redis is optional: without it the pipeline runs with no shared
	// throttle state and no page cache.
	var redisClient *redis.Client
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisURL})

		ctx := context.Background()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		log.Printf("Connected to Redis at %s", redisURL)

		graphCfg.Gate = ratelimit.NewGate(redisClient, "graph")
		graphCfg.PageCache = cache.NewManager(redisClient, cache.DefaultTTL)
		airtableCfg.Gate = ratelimit.NewGate(redisClient, "airtable")
	}

	manager := newRunManager(func(sink pipeline.Sink, stop pipeline.StopObserver) (*pipeline.Runner, error) {
		source, err := graph.New(graphCfg)
		if err != nil {
			return nil, fmt.Errorf("graph client: %w", err)
		}
		dest, err := airtable.New(airtableCfg)
		if err != nil {
			return nil, fmt.Errorf("airtable client: %w", err)
		}
		return pipeline.New(runCfg, source, dest, sink, stop)
	})

	// HTTP Server
	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/ready", readyHandler(redisClient))
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/sync/start", manager.startHandler)
	http.HandleFunc("/sync/stop", manager.stopHandler)
	http.HandleFunc("/sync/status", manager.statusHandler)
	http.HandleFunc("/sync/logs", manager.logsHandler)

	addr := ":" + port
	log.Printf("Starting outlook-sync server on %s", addr)
	log.Printf("Mailbox: %s", graphCfg.Mailbox)

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, fmt.Sprintf("Redis unavailable: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// runnerFactory builds a fresh Runner for each run, bound to the given sink
// and stop observer.
type runnerFactory func(sink pipeline.Sink, stop pipeline.StopObserver) (*pipeline.Runner, error)

// runManager serializes pipeline runs: at most one run is active at a time,
// with a shared stop flag and a log broadcaster for incremental streaming.
type runManager struct {
	factory runnerFactory
	logs    *pipeline.Broadcaster

	mu      sync.Mutex
	running bool
	flag    pipeline.StopFlag
	last    *pipeline.Result
}

func newRunManager(factory runnerFactory) *runManager {
	return &runManager{
		factory: factory,
		logs:    pipeline.NewBroadcaster(),
	}
}

// start launches a run in the background. Returns an error when a run is
// already active or the runner cannot be built.
func (m *runManager) start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("a run is already in progress")
	}

	m.flag.Reset()
	m.logs.Clear()

	// Progress lines go to the HTTP log stream and the structured log.
	sink := pipeline.MultiSink(m.logs, logging.NewEventSink("sync"))

	runner, err := m.factory(sink, &m.flag)
	if err != nil {
		return err
	}

	m.running = true
	go func() {
		res, err := runner.Run(context.Background())
		if err != nil {
			m.logs.Emit(fmt.Sprintf("run failed: %v", err))
		}

		m.mu.Lock()
		m.last = &res
		m.running = false
		m.mu.Unlock()
	}()

	return nil
}

func (m *runManager) startHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := m.start(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, "sync started")
}

func (m *runManager) stopHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.flag.Stop()
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, "stop requested")
}

func (m *runManager) statusHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	status := struct {
		Running    bool             `json:"running"`
		LastResult *pipeline.Result `json:"last_result,omitempty"`
	}{
		Running:    m.running,
		LastResult: m.last,
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// logsHandler serves the run log incrementally: pass the cursor returned by
// the previous call as ?after=N to receive only new lines.
func (m *runManager) logsHandler(w http.ResponseWriter, r *http.Request) {
	after, _ := strconv.Atoi(r.URL.Query().Get("after"))
	lines, next := m.logs.Lines(after)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Lines []string `json:"lines"`
		Next  int      `json:"next"`
	}{Lines: lines, Next: next})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
