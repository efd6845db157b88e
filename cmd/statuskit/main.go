// Package main provides the statuskit CLI: subscribe to a telemetry
// feed and either dump a rendering of the cache or follow one path.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/discos/statuskit/client"
	"github.com/discos/statuskit/config"
	"github.com/discos/statuskit/namespace"
	"github.com/discos/statuskit/natsclient"
	"github.com/discos/statuskit/schema"
)

func main() {
	flags := parseFlags()

	logger := setupLogger(flags.verbose)
	slog.SetDefault(logger)

	cfg, err := loadConfig(flags)
	if err != nil {
		logger.Error("configuration failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, flags); err != nil {
		logger.Error("statuskit failed", "error", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	schemaRoot string
	telescope  string
	url        string
	topics     string
	render     string
	watch      string
	verbose    bool
}

func parseFlags() cliFlags {
	var flags cliFlags
	flag.StringVar(&flags.configPath, "config", "", "path to a JSON or YAML config file")
	flag.StringVar(&flags.schemaRoot, "schemas", "", "schema root directory (overrides config)")
	flag.StringVar(&flags.telescope, "telescope", "", "telescope overlay name (overrides config)")
	flag.StringVar(&flags.url, "url", "", "NATS server URL (overrides config)")
	flag.StringVar(&flags.topics, "topics", "", "comma-separated topics; empty subscribes to all")
	flag.StringVar(&flags.render, "render", "i", "render the cache once with this specifier (c, i, <n>i, v, m)")
	flag.StringVar(&flags.watch, "watch", "", "follow a dotted path (e.g. antenna.timestamp) instead of rendering")
	flag.BoolVar(&flags.verbose, "verbose", false, "enable debug logging")
	flag.Parse()
	return flags
}

func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig(flags cliFlags) (config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if flags.schemaRoot != "" {
		cfg.SchemaRoot = flags.schemaRoot
	}
	if flags.telescope != "" {
		cfg.Telescope = flags.telescope
	}
	if flags.url != "" {
		cfg.NATSURL = flags.url
	}
	if flags.topics != "" {
		cfg.Topics = strings.Split(flags.topics, ",")
	}

	return cfg, cfg.Validate()
}

func run(ctx context.Context, logger *slog.Logger, cfg config.Config, flags cliFlags) error {
	catalogOpts := []schema.Option{schema.WithLogger(logger)}
	if cfg.Telescope != "" {
		catalogOpts = append(catalogOpts, schema.WithTelescope(cfg.Telescope))
	}
	catalog, err := schema.Load(cfg.SchemaRoot, catalogOpts...)
	if err != nil {
		return err
	}

	transport, err := natsclient.New(cfg.NATSURL, natsclient.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := transport.Connect(ctx); err != nil {
		return err
	}

	c, err := client.New(catalog, transport, cfg.Topics,
		client.WithLogger(logger),
		client.WithHandshakeTimeout(cfg.HandshakeTimeout.Std()))
	if err != nil {
		_ = transport.Close()
		return err
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		return err
	}

	if flags.watch != "" {
		return watch(ctx, c, flags.watch)
	}

	out, err := c.RenderAll(flags.render)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// watch prints the value rendering of a path after every change until
// interrupted.
func watch(ctx context.Context, c *client.Client, path string) error {
	node, err := c.Get(path)
	if err != nil {
		return err
	}
	if err := printNode(path, node); err != nil {
		return err
	}

	for {
		node, err := c.GetNext(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := printNode(path, node); err != nil {
			return err
		}
	}
}

func printNode(path string, node *namespace.Node) error {
	out, err := node.Render("v")
	if err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", path, out)
	return nil
}
