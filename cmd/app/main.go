package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/basket/internal"
	pkgconfig "github.com/starford/basket/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, string, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, configPath, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, configPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithConfigPath(configPath),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
		internal.WithVersion(version),
	)
}

func importList(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("import: file path required (use - for stdin)")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("import: read %s: %w", path, err)
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	id, err := internal.Import(ctx, data, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Println(id)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "basket",
		Usage:   "Shopping list drafts with cached multi-store price optimization",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve list tools over MCP on stdin/stdout",
				Action: serveMCP,
			},
			{
				Name:      "import",
				Usage:     "Create a list from a YAML or Markdown file and print its id",
				ArgsUsage: "<file|->",
				Action:    importList,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
