package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"codewarden/internal/analyzer"
	"codewarden/internal/config"
	"codewarden/internal/logging"
	"codewarden/internal/mcp"
	"codewarden/internal/store"
)

const shutdownTimeout = 10 * time.Second

var (
	// Global flags
	verbose   bool
	workspace string

	// serve flags
	transport string
	addr      string

	// analyze/watch flags
	projectID string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "codewarden",
	Short: "codewarden - MCP development assistant server",
	Long: `codewarden is an MCP server that gives coding assistants persistent
project knowledge: a code graph built with tree-sitter, session and
decision history, quality tracking, and an error firewall that stops
operations known to fail.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(workspace)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		if verbose {
			cfg.Debug = true
		}
		if err := logging.Initialize(workspace, cfg.Debug, cfg.LogLevel); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}

		// stdout is reserved for protocol frames on the stdio transport,
		// so zap always writes to stderr.
		zcfg := zap.NewProductionConfig()
		zcfg.OutputPaths = []string{"stderr"}
		zcfg.ErrorOutputPaths = []string{"stderr"}
		if cfg.Debug {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// serveCmd runs the MCP server on one transport
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server",
	Long: `Starts the server on the selected transport:

  stdio  NDJSON over stdin/stdout (default; for MCP clients)
  http   JSON-RPC over HTTP POST
  sse    Server-Sent Events with per-session streams`,
	RunE: runServe,
}

// analyzeCmd runs a one-shot codebase analysis
var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a codebase and store its entity graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

// watchCmd analyzes and then re-analyzes on file changes
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Analyze a codebase and keep the graph current as files change",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("codewarden %s (protocol %s)\n", mcp.ServerVersion, mcp.ProtocolVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "directory searched for codewarden.yaml")

	serveCmd.Flags().StringVarP(&transport, "transport", "t", "stdio", "transport: stdio, http, or sse")
	serveCmd.Flags().StringVar(&addr, "addr", ":8700", "listen address for http and sse")

	analyzeCmd.Flags().StringVar(&projectID, "project-id", "", "project identifier (defaults to the directory name)")
	watchCmd.Flags().StringVar(&projectID, "project-id", "", "project identifier (defaults to the directory name)")

	rootCmd.AddCommand(serveCmd, analyzeCmd, watchCmd, versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	srv := mcp.NewServer(cfg, st, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch transport {
	case "stdio":
		logger.Info("serving", zap.String("transport", "stdio"))
		return srv.RunStdio(ctx, os.Stdin, os.Stdout)
	case "http":
		return serveHTTP(ctx, srv.HTTPHandler())
	case "sse":
		return serveHTTP(ctx, srv.SSEHandler())
	default:
		return fmt.Errorf("unknown transport %q (want stdio, http, or sse)", transport)
	}
}

// serveHTTP runs an HTTP server until the context is cancelled, then drains
// in-flight requests.
func serveHTTP(ctx context.Context, handler http.Handler) error {
	server := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", zap.String("transport", transport), zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("drain", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := analyzer.New(st).Analyze(ctx, args[0], resolveProjectID(args[0]))
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runWatch(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := analyzer.New(st)
	pid := resolveProjectID(args[0])

	result, err := a.Analyze(ctx, args[0], pid)
	if err != nil {
		return err
	}
	logger.Info("initial analysis complete",
		zap.Int("files", result.FilesParsed),
		zap.Int("entities", result.EntityCount))

	watcher := analyzer.NewWatcher(a, args[0], pid, func(r *analyzer.Result) {
		logger.Info("re-analyzed",
			zap.Int("files", r.FilesParsed),
			zap.Int("entities", r.EntityCount))
	})
	if err := watcher.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func resolveProjectID(path string) string {
	if projectID != "" {
		return projectID
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.Base(abs)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
