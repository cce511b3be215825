package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	sqliteadapter "github.com/zallek/galaxy/internal/adapters/db/sqlite"
	"github.com/zallek/galaxy/internal/adapters/export"
	httpadapter "github.com/zallek/galaxy/internal/adapters/http"
	rpcadapter "github.com/zallek/galaxy/internal/adapters/rpcjson"
	"github.com/zallek/galaxy/internal/application"
	"github.com/zallek/galaxy/internal/config"
	"github.com/zallek/galaxy/internal/domain"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "galaxy",
		Usage: "Crawl analysis link graph explorer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file (default galaxy.toml)"},
			&cli.StringFlag{Name: "data-dir", Usage: "directory holding the analysis databases"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			analysisCommand(),
			ingestCommand(),
			groupsCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the layered configuration, command line flags winning.
func loadConfig(c *cli.Command, flagKeys map[string]string) (*config.Config, error) {
	overrides := map[string]any{}
	if c.IsSet("data-dir") {
		overrides["data_dir"] = c.String("data-dir")
	}
	if c.IsSet("log-level") {
		overrides["log.level"] = c.String("log-level")
	}
	for flag, key := range flagKeys {
		if c.IsSet(flag) {
			overrides[key] = c.String(flag)
		}
	}
	return config.Load(c.String("config"), overrides)
}

func newLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)
	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}
	return logger, nil
}

// app bundles what the commands working on the local data directory need.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	registry *sqliteadapter.Registry
	catalog  *application.AnalysisCatalog
}

func openApp(ctx context.Context, c *cli.Command, flagKeys map[string]string) (*app, error) {
	cfg, err := loadConfig(c, flagKeys)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	stores := sqliteadapter.StoreFactory{DataDir: cfg.DataDir}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	registry, err := sqliteadapter.OpenRegistry(ctx, stores.RegistryPath())
	if err != nil {
		return nil, err
	}

	botify := export.NewBotifyResolver(cfg.Botify.Token, cfg.Botify.APIBase, logger)
	resolver := export.SourceResolver{Botify: botify, Local: export.DirResolver{}}
	catalog := application.NewAnalysisCatalog(
		registry,
		botify,
		resolver,
		export.NewOpener(),
		stores,
		application.CatalogConfig{
			IngestChunkSize: cfg.Ingest.ChunkSize,
			Group: application.GroupConfig{
				ChunkSize: cfg.Group.ChunkSize,
				Workers:   cfg.Group.Workers,
				MaxNodes:  cfg.Group.MaxNodes,
			},
		},
		logger,
	)
	return &app{cfg: cfg, logger: logger, registry: registry, catalog: catalog}, nil
}

func (a *app) Close() error {
	return a.registry.Close()
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve one analysis over HTTP and JSON-RPC",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "analysis", Required: true},
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "rpc-socket", Usage: "JSON-RPC unix socket path"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := openApp(ctx, c, map[string]string{"addr": "http.addr", "rpc-socket": "rpc.socket"})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return runServer(ctx, a, uint(c.Uint("analysis")))
		},
	}
}

func runServer(ctx context.Context, a *app, analysisID uint) error {
	service, err := a.catalog.Open(ctx, analysisID)
	if err != nil {
		return err
	}
	defer func() { _ = service.Close() }()

	log := a.logger.WithField("analysis_id", analysisID)
	router := httpadapter.NewRouter(service, log)
	srv := &http.Server{Addr: a.cfg.HTTP.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSrv, err := rpcadapter.Start(a.cfg.RPC.Socket, service, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = rpcSrv.Close()
	}()
	log.WithField("socket", a.cfg.RPC.Socket).Info("json-rpc listening")

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func analysisCommand() *cli.Command {
	return &cli.Command{
		Name:  "analysis",
		Usage: "Register and list analyses",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Register a Botify analysis from its URL",
				ArgsUsage: "<analysis-url>",
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					rawURL := c.Args().First()
					if rawURL == "" {
						return errors.New("analysis url is required")
					}
					ref, err := export.ParseAnalysisURL(rawURL)
					if err != nil {
						return err
					}
					a, err := openApp(ctx, c, nil)
					if err != nil {
						return err
					}
					defer func() { _ = a.Close() }()

					analysis, err := a.catalog.CreateFromURL(ctx, rawURL, ref)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(analysis)
					}
					printAnalysis(analysis)
					return nil
				},
			},
			{
				Name:  "add-local",
				Usage: "Register an analysis whose exports are CSV files in a directory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Required: true, Usage: "directory holding pages.csv and links.csv"},
					&cli.StringFlag{Name: "name"},
					&cli.IntFlag{Name: "crawled", Usage: "number of crawled urls"},
					&cli.IntFlag{Name: "known", Usage: "number of known urls"},
					&cli.StringSliceFlag{Name: "segments", Usage: "segmentation names"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					a, err := openApp(ctx, c, nil)
					if err != nil {
						return err
					}
					defer func() { _ = a.Close() }()

					analysis, err := a.catalog.CreateLocal(ctx, application.LocalAnalysis{
						Dir:          c.String("dir"),
						Name:         c.String("name"),
						CrawledURLs:  c.Int("crawled"),
						KnownURLs:    c.Int("known"),
						SegmentNames: c.StringSlice("segments"),
					})
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(analysis)
					}
					printAnalysis(analysis)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List registered analyses",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					a, err := openApp(ctx, c, nil)
					if err != nil {
						return err
					}
					defer func() { _ = a.Close() }()

					items, err := a.catalog.List(ctx)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(items)
					}
					printAnalyses(items)
					return nil
				},
			},
		},
	}
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Load the page and link exports of an analysis",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "analysis", Required: true},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "disable the progress bar"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := openApp(ctx, c, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			service, err := a.catalog.Open(ctx, uint(c.Uint("analysis")))
			if err != nil {
				return err
			}
			defer func() { _ = service.Close() }()

			reporter := newProgressReporter(newProgressConfig(c.Bool("quiet")), a.logger)
			if err := service.Ingest(ctx, reporter.Notify); err != nil {
				reporter.Abort()
				return err
			}
			reporter.Finish()

			analysis, err := service.Info(ctx)
			if err != nil {
				return err
			}
			printAnalysis(analysis)
			return nil
		},
	}
}

func groupsCommand() *cli.Command {
	transportFlags := func(extra ...cli.Flag) []cli.Flag {
		return append([]cli.Flag{
			&cli.StringFlag{Name: "transport", Value: "uds", Usage: "uds or http"},
			&cli.StringFlag{Name: "server", Usage: "HTTP server URL"},
			&cli.StringFlag{Name: "socket", Usage: "JSON-RPC unix socket path"},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		}, extra...)
	}

	return &cli.Command{
		Name:  "groups",
		Usage: "Inspect and compute groups of a served analysis",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List group states",
				Flags: transportFlags(),
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var out []domain.GroupState
					if err := doGroupsList(ctx, cfg, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printGroupStates(out)
					return nil
				},
			},
			{
				Name:  "compute",
				Usage: "Compute the group of one or two dimensions",
				Flags: transportFlags(
					&cli.StringFlag{Name: "by", Required: true, Usage: "first dimension"},
					&cli.StringFlag{Name: "then-by", Usage: "second dimension"},
					&cli.StringFlag{Name: "follow", Usage: "follow or nofollow"},
					&cli.BoolFlag{Name: "force", Usage: "recompute even when already computed"},
					&cli.BoolFlag{Name: "async", Usage: "return without waiting (uds only)"},
				),
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					req := groupRequest{
						GroupBy1: c.String("by"),
						GroupBy2: c.String("then-by"),
						Follow:   c.String("follow"),
						Force:    c.Bool("force"),
						Async:    c.Bool("async"),
					}
					var out domain.GroupState
					if err := doGroupsCompute(ctx, cfg, req, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printGroupStates([]domain.GroupState{out})
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Show the nodes and links of a computed group",
				Flags: transportFlags(&cli.UintFlag{Name: "id", Required: true}),
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var out rpcadapter.GroupResult
					if err := doGroupsShow(ctx, cfg, uint(c.Uint("id")), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printGroup(out)
					return nil
				},
			},
		},
	}
}
