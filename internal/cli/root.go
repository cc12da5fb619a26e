package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coreguard/coreguard/internal/observability"
	"github.com/coreguard/coreguard/internal/observability/logging"
	otelobs "github.com/coreguard/coreguard/internal/observability/otel"
	"github.com/coreguard/coreguard/internal/version"
)

var (
	logFormatFlag string
	logLevelFlag  string
	logOutputFlag string

	otelFlag            bool
	otelEndpointFlag    string
	otelProtocolFlag    string
	otelInsecureFlag    bool
	otelSampleRatioFlag float64
)

// closers run after the command, in reverse order.
var closers []func(context.Context) error

var rootCmd = &cobra.Command{
	Use:   "coreguard",
	Short: "Filtering JSON-RPC proxy for Bitcoin Core",
	Long: `coreguard: allowlisting proxy in front of a Bitcoin Core RPC node.
Forwards only approved methods, never lets a caller trigger a wallet rescan.`,
	Version:            version.BuildVersion(),
	SilenceUsage:       true,
	PersistentPreRunE:  setupObservability,
	PersistentPostRunE: teardownObservability,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logFormatFlag, "log-format", logging.FormatText, "Log format: text|jsonl|none")
	pf.StringVar(&logLevelFlag, "log-level", logging.LevelInfo, "Log level: debug|info|warn|error")
	pf.StringVar(&logOutputFlag, "log-output", "stderr", "Log destination: stderr|stdout|<file path>")

	pf.BoolVar(&otelFlag, "otel", false, "Export traces via OTLP")
	pf.StringVar(&otelEndpointFlag, "otel-endpoint", "", "OTLP endpoint (default from OTEL_EXPORTER_OTLP_ENDPOINT)")
	pf.StringVar(&otelProtocolFlag, "otel-protocol", otelobs.ProtocolHTTP, "OTLP protocol: otlphttp|otlpgrpc")
	pf.BoolVar(&otelInsecureFlag, "otel-insecure", false, "Disable TLS for the OTLP exporter")
	pf.Float64Var(&otelSampleRatioFlag, "otel-sample-ratio", 1.0, "Trace sampling ratio (0..1)")

	rootCmd.AddCommand(GetServeCmd())
	rootCmd.AddCommand(GetAllowlistCmd())
}

// setupObservability puts the logger, a process op id and the tracer into the
// command context.
func setupObservability(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	closers = nil

	logCfg := logging.DefaultConfig()
	logCfg.Format = logFormatFlag
	logCfg.Level = logLevelFlag
	logCfg.Output = logOutputFlag
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	closers = append(closers, func(context.Context) error { return logger.Close() })
	ctx = logging.WithLogger(ctx, logger)
	ctx = observability.WithOpID(ctx)

	if otelFlag {
		otelCfg := otelobs.DefaultConfig()
		otelCfg.Enabled = true
		otelCfg.Endpoint = otelEndpointFlag
		otelCfg.Protocol = otelProtocolFlag
		otelCfg.Insecure = otelInsecureFlag
		otelCfg.SampleRatio = otelSampleRatioFlag

		h, err := otelobs.Init(ctx, otelCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		closers = append(closers, h.Shutdown)
		ctx = otelobs.WithHandle(ctx, h)
	}

	cmd.SetContext(ctx)
	return nil
}

func teardownObservability(cmd *cobra.Command, _ []string) error {
	ctx := context.WithoutCancel(cmd.Context())
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	closers = nil
	return errors.Join(errs...)
}
