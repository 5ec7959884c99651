package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/wangfeng/cherrycake-gateway/internal/api"
	"github.com/wangfeng/cherrycake-gateway/internal/config"
	"github.com/wangfeng/cherrycake-gateway/internal/logger"
)

var version = "1.0.0"

func main() {
	app := &cli.App{
		Name:    "cherrycake-gateway",
		Usage:   "Dispatch HTTP requests to mapped actions",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"CHERRYCAKE_CONFIG"},
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server",
				Action: serve,
			},
			{
				Name:   "routes",
				Usage:  "Print the mapped actions in dispatch order",
				Action: routes,
			},
			{
				Name:   "openapi",
				Usage:  "Print the OpenAPI document of the mapped actions",
				Action: openapi,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context, out io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Logger.Level, out)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(log)
	return cfg, log, nil
}

func serve(c *cli.Context) error {
	cfg, log, err := setup(c, os.Stdout)
	if err != nil {
		return err
	}
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer g.Close(log)

	engine := api.NewEngine(api.EngineConfig{
		Actions:  g.actions,
		CSRF:     g.csrf,
		Gatherer: g.registry,
		Logger:   log,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting", slog.String("address", cfg.Server.Address), slog.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited")
	return nil
}

// routes prints one line per mapped action. Log output goes to stderr so the
// table can be piped.
func routes(c *cli.Context) error {
	cfg, log, err := setup(c, os.Stderr)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	g, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer g.Close(log)

	infos := api.Describe(g.actions)
	nameWidth, patternWidth := len("ACTION"), len("PATTERN")
	for _, info := range infos {
		nameWidth = max(nameWidth, len(info.Name))
		patternWidth = max(patternWidth, len(info.Pattern))
	}

	header := color.New(color.Bold)
	name := color.New(color.FgCyan)
	flag := color.New(color.FgYellow)
	out := c.App.Writer

	header.Fprintf(out, "%-*s  %-*s  %s\n", nameWidth, "ACTION", patternWidth, "PATTERN", "TARGET")
	for _, info := range infos {
		name.Fprintf(out, "%-*s", nameWidth, info.Name)
		fmt.Fprintf(out, "  %-*s  %s.%s", patternWidth, info.Pattern, info.Module, info.Method)
		if info.Cached {
			flag.Fprintf(out, " cached(%s)", info.CacheProvider)
		}
		if info.CSRF {
			flag.Fprint(out, " csrf")
		}
		if info.SensitiveToBruteForce {
			flag.Fprint(out, " brute-force")
		}
		fmt.Fprintln(out)
	}
	return nil
}

func openapi(c *cli.Context) error {
	cfg, log, err := setup(c, os.Stderr)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	g, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer g.Close(log)

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(g.actions.OpenAPI("Cherrycake Gateway", version))
}
