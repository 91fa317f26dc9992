package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"cas-bridge/internal/dialect"
	"cas-bridge/internal/version"
)

// app carries the state shared by every subcommand.
type app struct {
	cfg      Config
	log      *slog.Logger
	registry *dialect.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: loadConfig()}

	rootCmd := &cobra.Command{
		Use:   "casbridge",
		Short: "Drive computer algebra systems as notebook kernels",
		Long: `casbridge runs interactive mathematics engines (GAP, Singular, Asir,
Macaulay2, Mathematica, bc, ...) as child processes, feeds them one cell at a
time and frames their output into results.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}
	rootCmd.SetVersionTemplate(version.String() + "\n")

	rootCmd.PersistentFlags().StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&a.cfg.Profiles, "profiles", a.cfg.Profiles, "JSON file with additional dialect profiles")

	rootCmd.AddCommand(
		newServeCmd(a),
		newRunCmd(a),
		newCheckCmd(a),
		newDialectsCmd(a),
	)
	return rootCmd
}

// setup builds the logger and the dialect registry.
func (a *app) setup(stderr io.Writer) error {
	log, err := newLogger(stderr, a.cfg.LogLevel)
	if err != nil {
		return err
	}
	a.log = log
	slog.SetDefault(log)

	a.registry = dialect.NewRegistry()
	if a.cfg.Profiles != "" {
		if err := a.registry.LoadFile(a.cfg.Profiles); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
