// Package cli implements the obay command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/obay/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	backend   string
	logLevel  string
	logFormat string
}

// environment is what every subcommand runs with, resolved before RunE.
type environment struct {
	flags     rootFlags
	configDir string
	settings  settings
	logger    *slog.Logger
}

// storeConfig returns the backend configuration for Store.Attach.
func (e *environment) storeConfig() types.Config {
	return e.settings.Config
}

// NewRootCmd creates the top-level "obay" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	env := &environment{}

	root := &cobra.Command{
		Use:   "obay",
		Short: "Record service with live queries",
		Long: "obay serves notes, users, words and word groups over HTTP,\n" +
			"with websocket change feeds for every record kind.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&env.flags.configDir, "config-dir", "", "configuration directory (default: $XDG_CONFIG_HOME/obay)")
	pf.StringVar(&env.flags.dataDir, "data-dir", "", "data directory (default: .obay-db)")
	pf.StringVar(&env.flags.backend, "backend", "", "storage backend: sqlite, postgres or memory")
	pf.StringVar(&env.flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&env.flags.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(env),
		newServeCmd(env),
		newProvisionCmd(env),
		newSeedCmd(env),
		newExportCmd(env),
		newImportCmd(env),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "obay:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ue usageError
	if errors.As(err, &ue) {
		return exitUserError
	}
	return exitSysError
}

// usageError marks errors caused by bad input rather than the system.
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }
