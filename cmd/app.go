package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hashmap-kz/pgswitch/config"
	"github.com/hashmap-kz/pgswitch/internal/core/logger"
	"github.com/hashmap-kz/pgswitch/internal/version"
)

func App() *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to config file",
		Aliases: []string{"c"},
		Sources: cli.EnvVars("PGSWITCH_CONFIG_PATH"),
	}
	jsonFlag := &cli.BoolFlag{
		Name:  "json",
		Usage: "Print machine-readable output",
	}
	envFileFlag := &cli.StringFlag{
		Name:    "env-file",
		Usage:   "Path to the env file holding DATABASE_URL",
		Sources: cli.EnvVars("PGSWITCH_ENV_FILE"),
	}

	app := &cli.Command{
		Name:    "pgswitch",
		Usage:   "Manual failover coordinator for a PostgreSQL replication pair",
		Version: version.Version,
		Commands: []*cli.Command{
			{
				Name:      "probe",
				Usage:     "Query a node for its role, replication links and lag",
				ArgsUsage: "<node-url>",
				Flags:     []cli.Flag{configFlag, jsonFlag},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return fmt.Errorf("usage: probe <node-url>")
					}
					cfg := loadConfig(c, config.ModeTool, false)
					return exitCoded(runProbe(ctx, cfg, c.Args().First(), c.Bool("json")))
				},
			},
			{
				Name:      "promote",
				Usage:     "Promote a standby to master and wait until the role flips",
				ArgsUsage: "<node-url>",
				Flags:     []cli.Flag{configFlag},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return fmt.Errorf("usage: promote <node-url>")
					}
					cfg := loadConfig(c, config.ModeTool, false)
					return exitCoded(runPromote(ctx, cfg, c.Args().First()))
				},
			},
			{
				Name:      "switch",
				Usage:     "Atomically rewrite the application's DATABASE_URL",
				ArgsUsage: "<new-url>",
				Flags:     []cli.Flag{configFlag, envFileFlag},
				Action: func(_ context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return fmt.Errorf("usage: switch <new-url>")
					}
					cfg := loadConfig(c, config.ModeTool, false)
					envFile := c.String("env-file")
					if envFile == "" {
						envFile = cfg.Main.EnvFile
					}
					if envFile == "" {
						return fmt.Errorf("--env-file is required (or set main.env_file)")
					}
					return exitCoded(runSwitch(envFile, c.Args().First()))
				},
			},
			{
				Name:  "failover",
				Usage: "Guided failover: probe, confirm, promote, switch endpoint",
				Flags: []cli.Flag{
					configFlag,
					envFileFlag,
					&cli.StringFlag{
						Name:    "master",
						Usage:   "Old master URL (for a situation report before promoting)",
						Sources: cli.EnvVars("PGSWITCH_MASTER_URL"),
					},
					&cli.StringFlag{
						Name:    "standby",
						Usage:   "Standby URL to promote",
						Sources: cli.EnvVars("PGSWITCH_STANDBY_URL"),
					},
					&cli.StringFlag{
						Name:  "new-url",
						Usage: "Value written as DATABASE_URL (defaults to the standby URL)",
					},
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Skip the confirmation prompt",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg := loadConfig(c, config.ModeTool, false)
					return exitCoded(runFailover(ctx, cfg, &failoverOpts{
						MasterURL:  firstNonEmpty(c.String("master"), cfg.Cluster.MasterURL),
						StandbyURL: firstNonEmpty(c.String("standby"), cfg.Cluster.StandbyURL),
						NewURL:     c.String("new-url"),
						EnvFile:    firstNonEmpty(c.String("env-file"), cfg.Main.EnvFile),
						AssumeYes:  c.Bool("yes"),
					}))
				},
			},
			{
				Name:  "status",
				Usage: "Get cluster status from a running monitor daemon",
				Flags: []cli.Flag{
					configFlag,
					jsonFlag,
					&cli.StringFlag{
						Name:  "addr",
						Usage: "The address of pgswitch running in monitor mode",
						Value: "127.0.0.1:7432",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg := loadConfig(c, config.ModeTool, false)
					return runStatus(ctx, cfg, c.String("addr"), c.Bool("json"))
				},
			},
			{
				Name:  "monitor",
				Usage: "Run the monitoring daemon (observation only, never promotes)",
				Flags: []cli.Flag{configFlag},
				Action: func(_ context.Context, c *cli.Command) error {
					cfg := loadConfig(c, config.ModeMonitor, true)
					RunMonitorMode(cfg)
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Validate the config file without running the application",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Validation mode: monitor/failover/tool",
						Value: config.ModeMonitor,
					},
				},
				Action: func(_ context.Context, c *cli.Command) error {
					cfg := loadConfig(c, c.String("mode"), false)
					fmt.Println("Configuration is valid.")
					fmt.Print(cfg.String())
					return nil
				},
			},
		},
	}

	return app
}

func loadConfig(c *cli.Command, mode string, printCfg bool) *config.Config {
	configPath := c.String("config")

	// 1) if -c flag is set -> must read config from file
	// 2) if $PGSWITCH_CONFIG_PATH is set -> must read config from file
	// 3) read config with go-envconfig otherwise
	var cfg *config.Config
	if configPath != "" {
		cfg = config.MustLoad(configPath, mode)
	} else {
		cfg = config.MustEnvconfig(mode)
	}

	// debug config (NOTE: sensitive fields are hidden)
	if printCfg {
		_, _ = fmt.Fprintf(os.Stderr, "STARTING WITH CONFIGURATION:\n%s\n", cfg.String())
	}

	logger.Init(&logger.Opts{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
	})
	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
