package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/credsync/internal/awx"
	"github.com/systmms/credsync/internal/config"
	"github.com/systmms/credsync/internal/vault"
)

// NewCheckCommand validates configuration and connectivity without
// reading the secret or touching the credential.
func NewCheckCommand(global *GlobalOptions) *cobra.Command {
	opts := config.Options{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and authenticate to both services",
		Long: `Dry-run the authentication half of a sync: resolve and validate the
configuration, log in to Vault, and log in to AWX. No secret is read and
no credential is modified. Useful as a pipeline preflight step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(opts)
			if err != nil {
				return err
			}
			defer cfg.Password.Destroy()

			logger := global.Logger()
			logger.Info("configuration ok")

			ctx := cmd.Context()

			vaultClient := vault.New(cfg, logger)
			if err := vaultClient.Login(ctx); err != nil {
				return err
			}
			vaultClient.Close()
			logger.Info("vault authentication ok (%s)", cfg.VaultAddr)

			awxClient := awx.New(cfg, logger)
			if err := awxClient.Login(ctx); err != nil {
				return err
			}
			awxClient.Logout(ctx)
			logger.Info("awx authentication ok (%s)", cfg.AWXURL)

			return nil
		},
	}

	addConfigFlags(cmd, &opts)
	return cmd
}
