// Command ol-wasm-worker serves WASM functions over HTTP: it compiles
// (or loads from cache) every *.wasm file in a registry directory,
// binds a TCP listener, and dispatches POST /run/<name> requests to
// pooled guest instances until it receives SIGTERM/SIGINT.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/open-lambda/ol-wasm-worker/internal/config"
	"github.com/open-lambda/ol-wasm-worker/internal/lifecycle"
	"github.com/open-lambda/ol-wasm-worker/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		listenAddress string
		registryPath  string
		configFile    string
		configPairs   []string
		enableCPU     bool
	)

	cmd := &cobra.Command{
		Use:   "ol-wasm-worker",
		Short: "A WASM function-as-a-service worker node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, configFile, listenAddress, registryPath, configPairs, enableCPU)
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.LogFormat, parseLevel(cfg.LogLevel), cfg.LogFormat != "json")
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}

			return lifecycle.Run(context.Background(), cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&listenAddress, "listen-address", "l", "", "Listen address (default localhost:5000)")
	flags.StringVarP(&registryPath, "registry-path", "p", "", "Directory of .wasm functions (default ./test-registry.wasm)")
	flags.StringVar(&configFile, "config", "", "Path to an optional YAML config file")
	flags.StringArrayVarP(&configPairs, "config-value", "C", nil, "Injected config value key=value (repeatable)")
	flags.BoolVar(&enableCPU, "enable-cpu-profiler", false, "Expose a pprof profiling endpoint")

	return cmd
}

// buildConfig layers defaults, an optional YAML file, and explicit CLI
// flags, in that order of increasing precedence.
func buildConfig(cmd *cobra.Command, configFile, listenAddress, registryPath string, configPairs []string, enableCPU bool) (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		loaded, err := config.LoadFromYAMLFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("loading config file %q: %w", configFile, err)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}
	cfg.ApplyDefaults()

	if cmd.Flags().Changed("listen-address") {
		cfg.ListenAddress = listenAddress
	}
	if cmd.Flags().Changed("registry-path") {
		cfg.RegistryPath = registryPath
	}
	if cmd.Flags().Changed("enable-cpu-profiler") {
		cfg.EnableCPUProfiler = enableCPU
	}
	for _, pair := range configPairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid -C value %q, expected key=value", pair)
		}
		cfg.ConfigValues[key] = value
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}

	return cfg, nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
