package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/phrazzld/artcache/internal/config"
	"github.com/phrazzld/artcache/internal/platform/logger"
	"github.com/spf13/cobra"
)

// cli carries global flags and the application built by the root pre-run.
type cli struct {
	configPath string
	logLevel   string

	logOut io.Writer
	client *http.Client
	app    *application
}

func newCLI() *cli {
	return &cli{logOut: os.Stderr, client: &http.Client{}}
}

// setup loads configuration and builds the application once per invocation.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}

	log, err := logger.SetupWithWriter(cfg.Log, c.logOut)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	ctx := logger.WithLogger(cmd.Context(), log)
	cmd.SetContext(ctx)

	app, err := newApplication(ctx, cfg, log, c.client)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	c.app = app
	return nil
}

// shutdown closes the application if setup built one.
func (c *cli) shutdown() error {
	if c.app == nil {
		return nil
	}
	err := c.app.close()
	c.app = nil
	return err
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "artcache",
		Short: "Download, generate and cache card artwork",
		Long: `artcache keeps a durable cache of card artwork. Images are fetched from
object storage or generated from prompts, stored with a thumbnail, and served
back from the cache on later requests.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ./artcache.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		c.fetchCmd(),
		c.getCmd(),
		c.lsCmd(),
		c.statsCmd(),
		c.deleteCmd(),
		c.clearCmd(),
		c.generateCmd(),
	)
	return root
}

// run executes the command line args and always shuts the application down,
// including when the command fails.
func (c *cli) run(ctx context.Context, args []string, stdout io.Writer) error {
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)

	err := root.ExecuteContext(ctx)
	if cerr := c.shutdown(); err == nil {
		err = cerr
	}
	return err
}
