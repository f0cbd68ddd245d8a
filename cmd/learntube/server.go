package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/learntube/learntube/internal/api"
	"github.com/learntube/learntube/internal/cache"
	"github.com/learntube/learntube/internal/config"
	"github.com/learntube/learntube/internal/oracle"
	"github.com/learntube/learntube/internal/preferences"
	"github.com/learntube/learntube/internal/prefetch"
	"github.com/learntube/learntube/internal/roadmap"
	"github.com/learntube/learntube/internal/storage"
	"github.com/learntube/learntube/internal/taxonomy"
	"github.com/learntube/learntube/internal/youtube"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the learntube server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running learntube server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show learntube server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools on stdin/stdout")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openCacheStore(ctx context.Context, cfg config.Config) (cache.Store, error) {
	if cfg.Cache.Backend == "redis" {
		return cache.DialRedis(ctx, cfg.Cache.RedisAddr, "learntube")
	}
	return cache.OpenBadger(cfg.CacheDir())
}

func runServer(withMCP bool) error {
	fmt.Fprintln(os.Stderr, versionLine())

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring instance lock: %w", err)
	}
	if !locked {
		if pid, pidErr := readPIDFile(cfg.PIDPath()); pidErr == nil {
			printWarning("learntube is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("another learntube instance holds %s", cfg.LockPath())
		return fmt.Errorf("server already running")
	}
	defer lock.Unlock()

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()
	if _, err := taxonomy.Seed(ctx, store); err != nil {
		slog.Warn("seeding categories failed", "error", err)
	}

	cacheStore, err := openCacheStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s cache: %w", cfg.Cache.Backend, err)
	}
	defer cacheStore.Close()
	responseCache := cache.New(cacheStore, cfg.Cache.TTL)

	yt, err := youtube.New(ctx, youtube.NewCredentialPool(cfg.YouTube.APIKeys), responseCache, youtube.Options{
		BaseURL: cfg.YouTube.BaseURL,
		Timeout: cfg.YouTube.Timeout,
		QPS:     cfg.YouTube.QPS,
	})
	if err != nil {
		return err
	}

	if cfg.Perplexity.APIKey == "" {
		slog.Warn("LEARNTUBE_PERPLEXITY_API_KEY not set; recommendations fall back to direct search")
	}
	chat := oracle.NewChatClient(cfg.Perplexity.APIKey, cfg.Perplexity.BaseURL, cfg.Perplexity.Model)
	recommender := oracle.NewRecommender(chat, yt)
	keywords := oracle.NewGeminiClientWithBaseURL(cfg.Gemini.APIKey, cfg.Gemini.BaseURL, cfg.Gemini.Models)

	engine := roadmap.NewEngine(store, recommender)
	engine.SetPrefetcher(prefetch.NewQueue(store))
	prefs := preferences.NewService(store, engine)

	// Declared after the storage defer so the worker drains before the
	// store closes.
	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := prefetch.NewWorker(store, engine, 0).Start(workerCtx)
	defer func() {
		stopWorker()
		<-workerDone
	}()

	if cfg.API.Token == "" {
		slog.Warn("LEARNTUBE_API_TOKEN not set; HTTP API is unauthenticated")
	}
	handler := api.NewAppHandler(api.AppDeps{
		Roadmaps:    engine,
		Preferences: prefs,
		Recommender: recommender,
		Keywords:    keywords,
		Assistant:   oracle.NewAssistant(chat),
		Content:     yt,
		Categories:  store,
		Token:       cfg.API.Token,
		RateLimit:   cfg.Server.RateLimit,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Roadmaps:    engine,
			Preferences: prefs,
			Recommender: recommender,
			Assistant:   oracle.NewAssistant(chat),
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "learntube listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := cfg.PIDPath()
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("learntube is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop learntube (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to learntube (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	httpClient := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := httpClient.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Cache", "%s (ttl %s)", cfg.Cache.Backend, cfg.Cache.TTL)
	printStatus("Chat model", "%s", cfg.Perplexity.Model)
	for _, env := range []string{"LEARNTUBE_YOUTUBE_API_KEYS", "LEARNTUBE_PERPLEXITY_API_KEY", "LEARNTUBE_GEMINI_API_KEY", "LEARNTUBE_API_TOKEN"} {
		state := colorize(colorYellow, "missing")
		if config.SecretStatus(cfg)[env] {
			state = colorize(colorGreen, "set")
		}
		printStatus(env, "%s", state)
	}

	if running {
		client := &apiClient{baseURL: serverURL, token: cfg.API.Token, httpClient: httpClient}
		if resp, err := client.get(ctx, "/admin/credentials"); err == nil {
			var st youtube.Stats
			if decodeJSON(resp, &st) == nil {
				quota := "ok"
				if st.QuotaExceeded {
					quota = colorize(colorRed, "exceeded")
				}
				printStatus("YouTube keys", "%d total, %d exhausted, quota %s", st.Total, st.Exhausted, quota)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
