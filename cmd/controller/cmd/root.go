package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/lexfrei/autotls-controller/internal/controller"
	"github.com/lexfrei/autotls-controller/internal/schedule"
)

const defaultLeaderElectionName = "autotls-controller-leader"

//nolint:gochecknoglobals // set by SetVersion from main
var (
	version = "development"
	gitsha  = "development"
)

func SetVersion(ver, sha string) {
	version = ver
	gitsha = sha
}

//nolint:gochecknoglobals // cobra command pattern
var rootCmd = &cobra.Command{
	Use:   "autotls-controller",
	Short: "Kubernetes controller that qualifies Ingress hosts and enables TLS",
	Long: `A Kubernetes controller that watches Ingress resources.
Ingresses annotated with autotls/domain get bare rule hosts qualified with
the domain. Ingresses annotated with autotls/issuer get cert-manager
annotations and a TLS block covering every rule host.`,
	RunE:          runController,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	rootCmd.Flags().String("metrics-addr", ":8080", "Address for metrics endpoint")
	rootCmd.Flags().String("health-addr", ":8081", "Address for health probe endpoint")
	rootCmd.Flags().String("watch-namespace", "", "Only watch ingresses in this namespace (defaults to all namespaces)")
	rootCmd.Flags().String("field-manager-prefix", controller.DefaultFieldManagerPrefix,
		"Prefix of the server-side apply field managers")
	rootCmd.Flags().Int("max-concurrent-reconciles", 1, "Number of ingresses reconciled in parallel")

	// Leader election flags
	rootCmd.Flags().Bool("leader-elect", false, "Enable leader election for high availability")
	rootCmd.Flags().String("leader-election-namespace", "", "Namespace for leader election lease (defaults to controller namespace)")
	rootCmd.Flags().String("leader-election-name", defaultLeaderElectionName, "Name of the leader election lease")

	// Requeue flags
	rootCmd.Flags().Duration("resync-interval", schedule.DefaultResyncInterval, "Requeue delay after a successful reconcile")
	rootCmd.Flags().Duration("retry-base-delay", schedule.DefaultBaseDelay, "First retry delay after a failed reconcile")
	rootCmd.Flags().Duration("retry-max-delay", schedule.DefaultMaxDelay, "Maximum retry delay after repeated failures")
	rootCmd.Flags().Float64("retry-jitter", schedule.DefaultJitter, "Maximum fraction added to each retry delay")

	_ = viper.BindPFlags(rootCmd.Flags())
	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	viper.SetEnvPrefix("AUTOTLS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("metrics-addr", ":8080")
	v.SetDefault("health-addr", ":8081")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "json")
	v.SetDefault("field-manager-prefix", controller.DefaultFieldManagerPrefix)
	v.SetDefault("max-concurrent-reconciles", 1)
	v.SetDefault("leader-elect", false)
	v.SetDefault("leader-election-name", defaultLeaderElectionName)
	v.SetDefault("resync-interval", schedule.DefaultResyncInterval)
	v.SetDefault("retry-base-delay", schedule.DefaultBaseDelay)
	v.SetDefault("retry-max-delay", schedule.DefaultMaxDelay)
	v.SetDefault("retry-jitter", schedule.DefaultJitter)
}

func Execute() error {
	return errors.Wrap(rootCmd.Execute(), "command execution failed")
}

const (
	logFormatJSON = "json"
	logFormatText = "text"
)

func parseLogLevel(value string) (slog.Level, error) {
	switch value {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.Newf("unknown log level %q (want debug, info, warn or error)", value)
	}
}

func parseLogFormat(value string) (string, error) {
	switch value {
	case logFormatJSON, logFormatText:
		return value, nil
	default:
		return "", errors.Newf("unknown log format %q (want json or text)", value)
	}
}

func setupLogger(v *viper.Viper) (*slog.Logger, error) {
	level, err := parseLogLevel(v.GetString("log-level"))
	if err != nil {
		return nil, err
	}

	format, err := parseLogFormat(v.GetString("log-format"))
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if format == logFormatText {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), nil
}

// normalizeVersion returns ver in canonical semver form. Builds without a
// release tag keep their raw value.
func normalizeVersion(ver string) string {
	parsed, err := semver.NewVersion(ver)
	if err != nil {
		return ver
	}

	return parsed.String()
}

// buildConfig assembles the manager configuration from v.
//
//nolint:noinlineerr // inline error handling is fine here
func buildConfig(v *viper.Viper) (*controller.Config, error) {
	if _, err := parseLogLevel(v.GetString("log-level")); err != nil {
		return nil, err
	}

	if _, err := parseLogFormat(v.GetString("log-format")); err != nil {
		return nil, err
	}

	prefix := strings.TrimSpace(v.GetString("field-manager-prefix"))
	if prefix == "" {
		return nil, errors.New("field-manager-prefix must not be empty")
	}

	workers := v.GetInt("max-concurrent-reconciles")
	if workers < 1 {
		return nil, errors.Newf("max-concurrent-reconciles must be at least 1, got %d", workers)
	}

	requeue := schedule.DefaultOptions()
	requeue.ResyncInterval = v.GetDuration("resync-interval")
	requeue.BaseDelay = v.GetDuration("retry-base-delay")
	requeue.MaxDelay = v.GetDuration("retry-max-delay")
	requeue.Jitter = v.GetFloat64("retry-jitter")

	if err := requeue.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid requeue configuration")
	}

	return &controller.Config{
		MetricsAddr: v.GetString("metrics-addr"),
		HealthAddr:  v.GetString("health-addr"),

		LeaderElect:     v.GetBool("leader-elect"),
		LeaderElectNS:   v.GetString("leader-election-namespace"),
		LeaderElectName: v.GetString("leader-election-name"),

		FieldManagerPrefix:      prefix,
		WatchNamespace:          v.GetString("watch-namespace"),
		MaxConcurrentReconciles: workers,
		Requeue:                 requeue,

		Version: normalizeVersion(version),
		GitSHA:  gitsha,
	}, nil
}

//nolint:noinlineerr // inline error handling is fine here
func runController(_ *cobra.Command, _ []string) error {
	logger, err := setupLogger(viper.GetViper())
	if err != nil {
		return err
	}

	slog.SetDefault(logger)

	ctrl.SetLogger(logr.FromSlogHandler(logger.Handler()))

	logger.Info("starting autotls-controller",
		"version", normalizeVersion(version),
		"gitsha", gitsha,
	)

	cfg, err := buildConfig(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := controller.Run(ctx, cfg); err != nil {
		return errors.Wrap(err, "failed to run controller")
	}

	return nil
}
