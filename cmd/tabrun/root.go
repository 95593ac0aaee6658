package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thomassthus-stack/Tommytiger/internal/observability"
)

// app carries the state shared by sub-commands once configuration is loaded.
type app struct {
	v   *viper.Viper
	cfg appConfig
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: newViper()}
	var cfgFile string

	root := &cobra.Command{
		Use:           "tabrun",
		Short:         "Run generated analysis programs against tabular data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := readConfigFile(a.v, cfgFile); err != nil {
				return err
			}
			a.cfg = loadAppConfig(a.v)

			log, err := observability.NewLogger(a.cfg.LogLevel, a.cfg.LogFormat)
			if err != nil {
				return err
			}
			log.Out = cmd.ErrOrStderr()
			a.log = log
			if used := a.v.ConfigFileUsed(); used != "" {
				log.WithField("file", used).Debug("loaded config file")
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text or json)")
	flags.Duration("deadline", 0, "per-program wall clock deadline")
	flags.Int64("memory-limit", 0, "per-program memory limit in bytes")
	flags.Bool("python", false, "enable the docker-backed python engine")
	flags.Bool("script-in-process", false, "run javascript inside the host process without a memory bound")

	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = a.v.BindPFlag("python.enabled", flags.Lookup("python"))
	_ = a.v.BindPFlag("script.in_process", flags.Lookup("script-in-process"))
	_ = a.v.BindPFlag("execution.deadline", flags.Lookup("deadline"))
	_ = a.v.BindPFlag("execution.memory_limit", flags.Lookup("memory-limit"))

	root.AddCommand(newServeCmd(a), newWorkerCmd(a), newRunCmd(a), newCapabilitiesCmd(a), newScriptWorkerCmd())
	return root
}
