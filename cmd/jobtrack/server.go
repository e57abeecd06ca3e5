package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/kalambet/jobtrack/internal/api"
	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/config"
	"github.com/kalambet/jobtrack/internal/listview"
	"github.com/kalambet/jobtrack/internal/profile"
	"github.com/kalambet/jobtrack/internal/recordstore"
	"github.com/kalambet/jobtrack/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the jobtrack server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running jobtrack server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show jobtrack system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Serve the MCP tools over stdio for an MCP client.

The tools act as the principal set in mcp.principal. Changes reach a running
server through notify.redis_addr when both processes share the database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "jobtrack.pid")
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

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newView picks the collation language for sorted lists.
func newView(locale string) listview.View {
	tag, err := language.Parse(locale)
	if err != nil {
		slog.Warn("invalid view.locale, using English", "value", locale, "error", err)
		return listview.Default
	}
	return listview.View{Lang: tag}
}

// openNotifier returns the Redis notifier when notify.redis_addr is set, or
// an in-process one. The returned func releases it.
func openNotifier(ctx context.Context, cfg config.NotifyConfig) (recordstore.Notifier, func(), error) {
	if cfg.RedisAddr == "" {
		return recordstore.LocalNotifier{}, func() {}, nil
	}
	n := recordstore.NewRedisNotifier(cfg.RedisAddr, cfg.Channel)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := n.Ping(pingCtx); err != nil {
		n.Close()
		return nil, nil, err
	}
	return n, func() { n.Close() }, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "jobtrack version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	// Tokens are re-read while running so `jobtrack token create|revoke`
	// apply without a restart.
	tokens, err := auth.NewReloadingTokenSet(func() (string, error) {
		c, err := config.Load()
		if err != nil {
			return "", err
		}
		return c.Auth.Tokens, nil
	}, auth.DefaultReloadTTL)
	if err != nil {
		return fmt.Errorf("loading API tokens: %w", err)
	}
	if tokens.Current().Len() == 0 {
		printWarning("no API tokens configured; create one with `jobtrack token create <principal>`")
	}
	slog.Info("API tokens loaded", "principals", len(tokens.Current().Principals()))

	// Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := "http://" + cfg.Server.Addr() + "/health"
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("jobtrack is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("jobtrack is already running on %s", cfg.Server.Addr())
		return fmt.Errorf("server already running on %s", cfg.Server.Addr())
	}
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

	notifier, closeNotifier, err := openNotifier(ctx, cfg.Notify)
	if err != nil {
		return fmt.Errorf("connecting change notifier: %w", err)
	}
	defer closeNotifier()
	if cfg.Notify.RedisAddr != "" {
		slog.Info("change notifications via redis", "addr", cfg.Notify.RedisAddr, "channel", cfg.Notify.Channel)
	}

	records := recordstore.New(store, notifier)
	handler := api.NewAppHandler(api.AppDeps{
		Records: records,
		Profile: profile.NewManager(store),
		Tokens:  tokens,
		View:    newView(cfg.View.Locale),
		Logger:  logger,
		Health:  store.Ping,
	})

	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "jobtrack listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return records.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	slog.SetDefault(newLogger(cfg.Log, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	notifier, closeNotifier, err := openNotifier(ctx, cfg.Notify)
	if err != nil {
		return fmt.Errorf("connecting change notifier: %w", err)
	}
	defer closeNotifier()

	session := auth.NewSession(cfg.MCP.Principal)
	if _, ok := session.Current(); !ok {
		slog.Warn("mcp.principal is not set; tools will refuse to run")
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Records: recordstore.New(store, notifier),
		Profile: profile.NewManager(store),
		Session: session,
		View:    newView(cfg.View.Locale),
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	slog.Info("MCP server started (stdio transport)", "principal", cfg.MCP.Principal)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("jobtrack is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop jobtrack (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to jobtrack (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := "http://" + cfg.Server.Addr()
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on %s", cfg.Server.Addr())
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Notify.RedisAddr != "" {
		printStatus("Notifications", "redis %s (%s)", cfg.Notify.RedisAddr, cfg.Notify.Channel)
	} else {
		printStatus("Notifications", "in-process")
	}

	if cfg.Client.Principal != "" {
		printStatus("Signed in as", "%s", cfg.Client.Principal)
	} else {
		printStatus("Signed in as", "nobody")
	}

	if running && cfg.Client.Token != "" {
		c := &apiClient{baseURL: serverURL, token: cfg.Client.Token, httpClient: client}
		resp, err := c.get(context.Background(), "/analytics")
		if err == nil {
			var a listview.Analytics
			if decodeJSON(resp, &a) == nil {
				printStatus("Applications", "%d (%d active)", a.Total, a.Active)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
