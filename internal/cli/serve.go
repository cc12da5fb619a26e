package cli

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/coreguard/coreguard/internal/config"
	"github.com/coreguard/coreguard/internal/observability/audit"
	"github.com/coreguard/coreguard/internal/observability/logging"
	"github.com/coreguard/coreguard/internal/policy"
	"github.com/coreguard/coreguard/internal/proxy"
	"github.com/coreguard/coreguard/internal/upstream"
)

var (
	servePresetFlag   string
	servePolicyFlag   string
	serveAuditLogFlag string
	serveTimeoutFlag  time.Duration
	serveListenFlag   string
	serveMetricsFlag  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the filtering proxy",
	Long: `Listen for JSON-RPC calls and forward the allowlisted ones to Bitcoin Core.

Connection settings come from the environment (CORE_HOST, CORE_PORT, CORE_USER,
CORE_PASSWORD, LISTEN_HOST, LISTEN_PORT, UPSTREAM_TIMEOUT); flags override them.

Example:
  CORE_USER=rpc CORE_PASSWORD=secret coreguard serve --preset readonly`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&servePresetFlag, "preset", "", "Built-in allowlist preset: "+fmt.Sprint(policy.ListPresetNames()))
	f.StringVar(&servePolicyFlag, "policy", "", "Path to policy YAML file (overrides --preset)")
	f.StringVar(&serveAuditLogFlag, "audit-log", "", "Append one JSONL audit record per call to this file")
	f.DurationVar(&serveTimeoutFlag, "timeout", proxy.DefaultUpstreamTimeout, "Per-call upstream timeout")
	f.StringVar(&serveListenFlag, "listen", "", "Listen address host:port")
	f.BoolVar(&serveMetricsFlag, "metrics", true, "Serve Prometheus metrics on /metrics")
}

// GetServeCmd returns the serve command
func GetServeCmd() *cobra.Command {
	return serveCmd
}

// applyServeFlags lets explicitly set flags win over the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("preset") {
		cfg.Preset = servePresetFlag
	}
	if flags.Changed("policy") {
		cfg.PolicyFile = servePolicyFlag
	}
	if flags.Changed("audit-log") {
		cfg.AuditLog = serveAuditLogFlag
	}
	if flags.Changed("timeout") {
		cfg.UpstreamTimeout = serveTimeoutFlag
	}
	if flags.Changed("metrics") {
		cfg.Metrics = serveMetricsFlag
	}
	if flags.Changed("listen") {
		host, portStr, err := net.SplitHostPort(serveListenFlag)
		if err != nil {
			return fmt.Errorf("invalid --listen %q: %w", serveListenFlag, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid --listen port %q: %w", portStr, err)
		}
		cfg.ListenHost, cfg.ListenPort = host, port
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, _ []string) (err error) {
	ctx := cmd.Context()
	log := logging.From(ctx)
	start := time.Now()

	defer func() {
		fields := map[string]any{"duration_ms": time.Since(start).Milliseconds(), "status": "success"}
		if err != nil {
			fields["status"] = "error"
			fields["error"] = err.Error()
		}
		log.Event(ctx, "serve.complete", fields)
	}()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	pol, err := policy.Resolve(cfg.Preset, cfg.PolicyFile)
	if err != nil {
		return err
	}

	if cfg.AuditLog != "" {
		w, err := audit.NewWriter(cfg.AuditLog, audit.WriterOptions{})
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer w.Close()
		ctx = audit.WithWriter(ctx, w)
	}

	client, err := upstream.New(ctx, upstream.Config{
		URL:        cfg.UpstreamURL(),
		User:       cfg.CoreUser,
		Password:   cfg.CorePassword,
		HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	})
	if err != nil {
		return err
	}
	defer client.Close()

	p, err := proxy.New(proxy.Config{
		ListenAddr:      cfg.ListenAddr(),
		UpstreamTimeout: cfg.UpstreamTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Metrics:         cfg.Metrics,
	}, pol, client)
	if err != nil {
		return err
	}

	fields := cfg.Redacted()
	fields["policy"] = pol.Name
	fields["rules"] = len(pol.Rules)
	log.Event(ctx, "serve.start", fields)

	return p.Run(ctx)
}
