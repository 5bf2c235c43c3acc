package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"githubactivity/logger"
	"githubactivity/tools"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "githubactivity",
		Short:         "Query and synthesize GitHub user activity",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newCallCmd())
	root.AddCommand(newArchiveStatsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.MetricsAddr != "" {
				srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(a), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					logger.Info("Serving metrics", zap.String("addr", cfg.MetricsAddr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("Metrics server failed", zap.Error(err))
					}
				}()
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(ctx)
				}()
			}

			s := tools.NewServer(a.service, version)

			logger.Info("Serving tools over stdio", zap.Strings("tools", a.registry.Names()))
			return server.ServeStdio(s)
		},
	}
}

func metricsMux(a *app) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	return mux
}

func newCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [key=value...]",
		Short: "Invoke one tool and print its JSON result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			def, err := a.registry.Definition(args[0])
			if err != nil {
				return fmt.Errorf("%w (available: %s)", err, strings.Join(a.registry.Names(), ", "))
			}
			toolArgs, err := parseToolArgs(def, args[1:])
			if err != nil {
				return err
			}

			res, err := a.registry.Call(cmd.Context(), args[0], toolArgs)
			if err != nil {
				return err
			}
			for _, c := range res.Content {
				if text, ok := c.(mcp.TextContent); ok {
					fmt.Fprintln(cmd.OutOrStdout(), text.Text)
				}
			}
			if res.IsError {
				return fmt.Errorf("tool %s failed", args[0])
			}
			return nil
		},
	}
}

// parseToolArgs turns key=value pairs into tool arguments. Only properties
// the tool declares as numbers are converted, so an all-digit login stays a
// string.
func parseToolArgs(def mcp.Tool, pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q is not key=value", p)
		}
		prop, _ := def.InputSchema.Properties[k].(map[string]any)
		if prop["type"] != "number" {
			out[k] = v
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			out[k] = n
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %s must be a number, got %q", k, v)
		}
		out[k] = f
	}
	return out, nil
}

func newArchiveStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive-stats <owner/name>",
		Short: "Print statistics for an archived repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, name, ok := strings.Cut(args[0], "/")
			if !ok || owner == "" || name == "" {
				return fmt.Errorf("repository must be owner/name, got %q", args[0])
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			archive, err := openArchive(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer archive.Close()

			repo, err := archive.GetByName(cmd.Context(), owner, name)
			if err != nil {
				return err
			}
			stats, err := archive.GetRepositoryStats(cmd.Context(), owner, name)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"repository": repo,
				"stats":      stats,
			})
		},
	}
}
