package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-chat/internal/adapters/driving/mcp"
	"github.com/custodia-labs/sercha-chat/internal/logger"
	"github.com/custodia-labs/sercha-chat/internal/metrics"
)

var (
	servePort        int
	serveAddr        string
	serveMetricsAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve conversations over the Model Context Protocol",
	Long: `Start an MCP server exposing the chat and history tools.

By default the server speaks MCP over stdio. Pass --addr or --port to serve
streamable HTTP instead. Pass --metrics-addr to expose Prometheus metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (0 uses stdio)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address, e.g. 127.0.0.1:8080")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Prometheus metrics listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(&mcp.Ports{Conversation: rt.Conversation})
	if err != nil {
		return fmt.Errorf("creating mcp server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if rt.Prompts != nil {
		err := rt.Prompts.Watch(ctx, func(name string) {
			logger.Info("prompt %q reloaded", name)
		})
		if err != nil {
			logger.Warn("prompt hot reload disabled: %v", err)
		}
	}

	if addr := resolveMetricsAddr(rt); addr != "" {
		go func() {
			if err := serveMetrics(ctx, addr); err != nil {
				logger.Error("metrics server: %v", err)
			}
		}()
	}

	if addr := resolveServeAddr(rt); addr != "" {
		return server.RunHTTP(ctx, addr)
	}
	logger.Info("mcp server running on stdio")
	return server.Run(ctx)
}

// resolveServeAddr prefers flags over the configured address.
func resolveServeAddr(rt *Runtime) string {
	switch {
	case serveAddr != "":
		return serveAddr
	case servePort > 0:
		return fmt.Sprintf(":%d", servePort)
	default:
		return rt.ServeAddr
	}
}

func resolveMetricsAddr(rt *Runtime) string {
	if serveMetricsAddr != "" {
		return serveMetricsAddr
	}
	return rt.MetricsAddr
}

// newMetricsServer returns a server exposing metrics at /metrics.
func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// serveMetrics blocks until ctx is done.
func serveMetrics(ctx context.Context, addr string) error {
	srv := newMetricsServer(addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown: %v", err)
		}
	}()

	logger.Info("metrics listening on %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
