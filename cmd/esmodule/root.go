package main

import (
	"go.miragespace.co/esmodule/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type cli struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "esmodule",
		Short: "Rewrite and run ES modules as plain scripts",
		Long: `esmodule rewrites ES module import and export statements into calls against a
module loader, and evaluates the result in an embedded JavaScript runtime.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			var err error
			c.cfg, err = config.Load(c.cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			c.logger, err = c.cfg.Logger()
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				c.logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (yaml)")
	flags.String("source", "", "module source, memory:// or file://<dir>")
	flags.String("loader-symbol", "", "name of the module loader function")
	flags.String("exports-symbol", "", "name of the exports object")
	flags.String("module-prefix", "", "prefix of generated module symbols")
	flags.StringSlice("post-symbol-keywords", nil, "keywords that can follow an exported symbol, besides extends")
	flags.Bool("new-lines", false, "put generated import statements on their own lines")
	flags.Duration("match-timeout", 0, "timeout for matching a single statement pattern")
	flags.Duration("load-timeout", 0, "timeout for reading a single module")
	flags.Int("shards", 0, "number of JavaScript runtimes")
	flags.Bool("debug", false, "development logging")

	rootCmd.AddCommand(newRewriteCmd(c))
	rootCmd.AddCommand(newRunCmd(c))
	rootCmd.AddCommand(newServeCmd(c))

	return rootCmd
}
