// Package commands holds the credsync subcommands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/credsync/internal/config"
	"github.com/systmms/credsync/internal/logging"
)

// GlobalOptions carries the persistent flags shared by every command.
type GlobalOptions struct {
	Debug   bool
	NoColor bool
}

// Logger builds the logger configured by the global flags.
func (g *GlobalOptions) Logger() *logging.Logger {
	return logging.New(g.Debug, g.NoColor)
}

// addConfigFlags registers the connection and target flags shared by
// sync and check. Every flag falls back to its environment variable
// and then the config file; see config.Resolve.
func addConfigFlags(cmd *cobra.Command, opts *config.Options) {
	flags := cmd.Flags()

	flags.StringVar(&opts.File, "config", "", "Config file path (optional)")
	flags.StringVar(&opts.VaultAddr, "vault-addr", "", "Vault server URL (env VAULT_ADDR)")
	flags.StringVar(&opts.SecretPath, "vault-secret", "", "Vault secret path, e.g. secret/myapp (env VAULT_SECRET_PATH)")
	flags.StringVar(&opts.DocumentKey, "key", "", "Top-level key in the secret document (env VAULT_KEY)")
	flags.StringVar(&opts.ValueSubkey, "subkey", "", "Nested key under --key (env VAULT_SUBKEY)")
	flags.StringVar(&opts.AWXURL, "awx-url", "", "AWX API base URL (env AWX_URL)")
	flags.StringVar(&opts.CredentialName, "cred-name", "", "Name of the AWX credential to update (env AWX_CRED_NAME)")
	flags.StringVar(&opts.FieldName, "field", "", "Credential input field to overwrite (env AWX_CRED_FIELD, default password)")
	flags.StringVar(&opts.Username, "username", "", "Username for both Vault and AWX (env SYNC_USERNAME)")
	flags.StringVar(&opts.Password, "password", "", "Password for both services (prefer SYNC_PASSWORD or the OS keyring)")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "Per-call network timeout (default "+config.DefaultTimeout.String()+")")
	flags.BoolVar(&opts.InsecureSkipVerify, "insecure-skip-tls-verify", false, "Disable TLS verification for both services")
}
