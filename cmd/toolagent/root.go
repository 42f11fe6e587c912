package main

import (
	"os"
	"strings"

	"github.com/effective-security/toolagent/internal/config"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "cmd")

var rootFlags struct {
	config   string
	verbose  bool
	logLevel string
}

var rootCmd = &cobra.Command{
	Use:           "toolagent",
	Short:         "toolagent answers questions with a model and tools",
	Long:          `toolagent runs a reasoning-act-observe loop: the model asks for local or MCP tools, the results are fed back until it answers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&rootFlags.config, "config", "c", "", "application config file")
	f.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "print tool calls and debug logs")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "log level, overrides the config file")
}

// loadConfig returns the configuration and sets up the logger.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if rootFlags.config != "" {
		var err error
		if cfg, err = config.Load(rootFlags.config); err != nil {
			return nil, err
		}
	}

	level := cfg.LogLevel
	if rootFlags.logLevel != "" {
		level = rootFlags.logLevel
	}
	if rootFlags.verbose {
		level = "DEBUG"
	}
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	xlog.SetGlobalLogLevel(parseLevel(level))
	return cfg, nil
}

func parseLevel(level string) xlog.LogLevel {
	switch strings.ToUpper(level) {
	case "TRACE":
		return xlog.TRACE
	case "DEBUG":
		return xlog.DEBUG
	case "NOTICE":
		return xlog.NOTICE
	case "WARNING", "WARN":
		return xlog.WARNING
	case "ERROR":
		return xlog.ERROR
	case "CRITICAL":
		return xlog.CRITICAL
	default:
		return xlog.INFO
	}
}
