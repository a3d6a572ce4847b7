package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systmms/credsync/cmd/credsync/commands"
	cserrors "github.com/systmms/credsync/internal/errors"
	"github.com/systmms/credsync/internal/secure"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	code := run()
	secure.Purge()
	os.Exit(code)
}

func run() int {
	rootCmd := newRootCommand(&commands.GlobalOptions{})

	if err := rootCmd.Execute(); err != nil {
		err = classifyUsage(err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cserrors.ExitCode(cserrors.KindOf(err))
	}
	return 0
}

func newRootCommand(global *commands.GlobalOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "credsync",
		Short: "Synchronize a Vault secret into an AWX credential",
		Long: `credsync reads one secret value from a HashiCorp Vault KV store and
writes it into one field of a named AWX credential, so the two systems
stay consistent without anyone copying passwords by hand.

It is a run-to-completion job: trigger it from a schedule or a pipeline,
and branch on the exit code (0 success, 2 config, 3 auth, 4 not found,
5 network, 6 conflict).`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&global.Debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&global.NoColor, "no-color", false, "Disable colored output")

	// Flag misuse is a configuration defect and exits with the config code.
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return cserrors.ConfigError{Problems: []string{err.Error()}}
	})

	rootCmd.AddCommand(
		commands.NewSyncCommand(global),
		commands.NewCheckCommand(global),
	)

	return rootCmd
}

// classifyUsage folds cobra's own invocation errors into the config
// category. Flag errors already arrive typed via the flag error func;
// an unrecognized subcommand does not, so it is caught by message.
func classifyUsage(err error) error {
	var configErr cserrors.ConfigError
	if errors.As(err, &configErr) {
		return err
	}
	if strings.HasPrefix(err.Error(), "unknown command") {
		return cserrors.ConfigError{Problems: []string{err.Error()}}
	}
	return err
}
