package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/specialistvlad/infernum/internal/app"
)

// EnvPrefix prefixes the environment variables mirroring the flags, e.g.
// INFERNUM_REDIS_URL for --redis-url.
const EnvPrefix = "INFERNUM"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Action is the subcommand the user selected.
type Action int

const (
	ActionServe Action = iota + 1
	ActionExtensions
	ActionClearCache
)

func (a Action) String() string {
	switch a {
	case ActionServe:
		return "serve"
	case ActionExtensions:
		return "extensions"
	case ActionClearCache:
		return "cache clear"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Invocation is a parsed command line.
type Invocation struct {
	Action Action
	Config *app.Config
}

// Parse processes command-line arguments. Flags may also be given as
// INFERNUM_* environment variables. It returns the invocation, a boolean
// indicating if the program should exit cleanly (help was printed), or an
// ExitError.
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	slog.Debug("CLI parser started.")
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var inv *Invocation
	selected := func(action Action) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			cfg, err := configFrom(v)
			if err != nil {
				return err
			}
			inv = &Invocation{Action: action, Config: cfg}
			return nil
		}
	}

	root := &cobra.Command{
		Use:   "infernum",
		Short: "Infernum - a modular, multi-site web application kernel.",
		Long: `Infernum serves one or more sites from an installation directory holding
config.hcl, sites/<name>/site.hcl and the manifests of the installed
modules and plugins.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(output)
	root.SetErr(output)

	pf := root.PersistentFlags()
	pf.String("root", ".", "Path to the installation directory.")
	pf.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	pf.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.String("cache", app.CacheFile, "Cache driver. Options: 'file', 'redis' or 'memory'.")
	pf.String("redis-url", "", "Redis URL used by the redis cache driver.")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve every site of the installation over HTTP",
		Args:  cobra.NoArgs,
		RunE:  selected(ActionServe),
	}
	serve.Flags().String("addr", ":8080", "HTTP listen address.")
	serve.Flags().Duration("shutdown-timeout", 5*time.Second, "Grace period for in-flight requests on shutdown.")

	extensions := &cobra.Command{
		Use:   "extensions",
		Short: "List the installed modules and plugins",
		Args:  cobra.NoArgs,
		RunE:  selected(ActionExtensions),
	}

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the cache store",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry",
		Args:  cobra.NoArgs,
		RunE:  selected(ActionClearCache),
	})

	root.AddCommand(serve, extensions, cacheCmd)

	if err := root.Execute(); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			return nil, false, exitErr
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if inv == nil {
		slog.Debug("No command selected, help was printed.")
		return nil, true, nil
	}

	slog.Debug("CLI parser finished successfully.", "action", inv.Action, "config", inv.Config)
	return inv, false, nil
}

func configFrom(v *viper.Viper) (*app.Config, error) {
	logFormat := strings.ToLower(v.GetString("log-format"))
	if logFormat != "text" && logFormat != "json" {
		return nil, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(v.GetString("log-level"))
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		Root:            v.GetString("root"),
		Addr:            v.GetString("addr"),
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		Cache:           strings.ToLower(v.GetString("cache")),
		RedisURL:        v.GetString("redis-url"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
	})
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return config, nil
}
