package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opengovern/dogapi/config"
	"github.com/opengovern/dogapi/logger"
)

type app struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *slog.Logger
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "dogapi",
		Short:         "Call the Datadog HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ./dogapi.yaml or $HOME/.dogapi/dogapi.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, notice, warn or error (overrides log_level)")

	root.AddCommand(newRequestCmd(a), newVersionCmd())

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		fmt.Fprintln(stderr, "Error:", err)
		return err
	})
	return root
}

func (a *app) init(cmd *cobra.Command, stderr io.Writer) error {
	if cmd.Name() == "version" {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return err
	}
	a.cfg = cfg

	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	if !logger.Level.SetByName(level) {
		err := fmt.Errorf("unknown log level %q", level)
		fmt.Fprintln(stderr, "Error:", err)
		return err
	}

	if stderr == os.Stderr {
		a.log = logger.New()
	} else {
		a.log = logger.NewText(stderr)
	}
	return nil
}
