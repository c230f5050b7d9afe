package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/bsv-blockchain/gcsync/cluster"
	"github.com/bsv-blockchain/gcsync/cluster/compose"
	"github.com/bsv-blockchain/gcsync/cluster/local"
	"github.com/bsv-blockchain/gcsync/cluster/memory"
	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/bsv-blockchain/gcsync/scenario"
	"github.com/bsv-blockchain/gcsync/settings"
	"github.com/bsv-blockchain/gcsync/tconfig"
	"github.com/bsv-blockchain/gcsync/ulogger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

// overrides turns the flags set on the command line into tconfig keys.
func overrides(c *cli.Context) map[string]any {
	kv := make(map[string]any)

	if c.IsSet("tconfig-file") {
		kv[tconfig.KeySuiteTConfigFile] = c.String("tconfig-file")
	}

	if c.IsSet("cluster") {
		kv[tconfig.KeyClusterKind] = c.String("cluster")
	}

	if c.IsSet("log-level") {
		kv[tconfig.KeySuiteLogLevel] = c.String("log-level")
	}

	if c.IsSet("target-height") {
		kv[tconfig.KeyScenarioTargetHeight] = c.Uint64("target-height")
	}

	for flag, key := range map[string]string{
		"timeout":       tconfig.KeyScenarioTimeout,
		"poll-interval": tconfig.KeyScenarioPollInterval,
		"restart-grace": tconfig.KeyScenarioRestartGrace,
	} {
		if c.IsSet(flag) {
			kv[key] = c.Duration(flag)
		}
	}

	if c.IsSet("skip-restart") {
		kv[tconfig.KeyScenarioSkipRestart] = c.Bool("skip-restart")
	}

	if c.IsSet("skip-teardown") {
		kv[tconfig.KeyClusterSkipTeardown] = c.Bool("skip-teardown")
	}

	return kv
}

func printConfig(c *cli.Context) error {
	tConfig, err := tconfig.LoadTConfig(overrides(c))
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(c.App.Writer, tConfig.StringYAML())

	return err
}

func runScenario(c *cli.Context) error {
	tConfig, err := tconfig.LoadTConfig(overrides(c))
	if err != nil {
		return err
	}

	tSettings := settings.NewSettings()
	logger := newLogger(tConfig.Suite.LogLevel, tSettings)

	builder, err := newBuilder(tConfig.Cluster, tConfig.Scenario.SkipRestart, logger, tSettings)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr := c.String("metrics-addr"); addr != "" {
		shutdown := serveMetrics(logger, addr)
		defer shutdown()
	}

	logger.Infof("[%s] running against %s cluster\n%s", tConfig.Suite.TestID, tConfig.Cluster.Kind, tConfig.StringYAML())

	result, err := scenario.New(logger, builder, tConfig.ScenarioConfig()).Run(ctx, scenario.DefaultTopology())
	if result != nil {
		printResult(c, result)
	}

	return err
}

func newLogger(level string, tSettings *settings.Settings) ulogger.Logger {
	return ulogger.New("gcsync",
		ulogger.WithLevel(level),
		ulogger.WithLoggerType(tSettings.LoggerType),
		ulogger.WithPrettyLogs(tSettings.PrettyLogs),
	)
}

// newBuilder returns the builder for the configured cluster kind. The in-memory cluster
// keeps killed nodes reachable when the restart is skipped so that the run ends in a timeout.
func newBuilder(cfg tconfig.ConfigCluster, skipRestart bool, logger ulogger.Logger, tSettings *settings.Settings) (cluster.Builder, error) {
	switch cfg.Kind {
	case settings.ClusterMemory:
		opts := []memory.Option{memory.WithSettings(tSettings), memory.WithLogger(logger)}
		if skipRestart {
			opts = append(opts, memory.WithStatusWhileKilled())
		}

		return memory.NewBuilder(opts...), nil
	case settings.ClusterLocal:
		return local.NewBuilder(logger, tSettings), nil
	case settings.ClusterCompose:
		return compose.NewBuilder(logger, tSettings, compose.WithSkipTeardown(cfg.SkipTeardown)), nil
	default:
		return nil, errors.NewConfigurationError("unknown cluster kind %q", cfg.Kind)
	}
}

func serveMetrics(logger ulogger.Logger, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("Starting prometheus endpoint on %s/metrics", addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("prometheus endpoint stopped: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = server.Shutdown(ctx)
	}
}

func printResult(c *cli.Context, result *scenario.Result) {
	w := c.App.Writer

	_, _ = fmt.Fprintf(w, "run %s: %s\n", result.RunID, result.State)
	_, _ = fmt.Fprintf(w, "  target height: %d\n", result.TargetHeight)
	_, _ = fmt.Fprintf(w, "  final height:  %d\n", result.FinalHeight)

	phases := make([]string, 0, len(result.Phases))
	for phase := range result.Phases {
		phases = append(phases, phase)
	}

	sort.Strings(phases)

	for _, phase := range phases {
		_, _ = fmt.Fprintf(w, "  %-10s %s\n", phase, result.Phases[phase])
	}
}
