package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/credsync/internal/awx"
	"github.com/systmms/credsync/internal/config"
	"github.com/systmms/credsync/internal/syncer"
	"github.com/systmms/credsync/internal/vault"
)

// NewSyncCommand runs the full synchronization once.
func NewSyncCommand(global *GlobalOptions) *cobra.Command {
	opts := config.Options{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the secret from Vault and write it into the AWX credential",
		Long: `Run one synchronization: log in to Vault with userpass, read the
configured key.subkey out of the KV document, resolve the AWX credential
by name, and overwrite the configured input field with the fetched value.

Examples:
  # Everything from the environment
  credsync sync

  # Explicit coordinates, role_id variant
  credsync sync --vault-secret secret/approle --key credentials \
    --subkey role_id --cred-name "Vault (Dev)" --field role_id`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(opts)
			if err != nil {
				return err
			}
			defer cfg.Password.Destroy()

			logger := global.Logger()
			orch := syncer.New(cfg, logger,
				vault.New(cfg, logger),
				awx.New(cfg, logger),
			)

			result := orch.Run(cmd.Context())
			if result.Err != nil {
				return result.Err
			}
			logger.Info("sync complete in %s (run %s)",
				result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond), result.RunID)
			return nil
		},
	}

	addConfigFlags(cmd, &opts)
	return cmd
}
