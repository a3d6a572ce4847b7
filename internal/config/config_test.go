package config_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/systmms/credsync/internal/config"
	cserrors "github.com/systmms/credsync/internal/errors"
)

// clearEnv blanks every environment variable Resolve consults so tests
// are immune to the surrounding shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"VAULT_ADDR", "VAULT_SECRET_PATH", "VAULT_KEY", "VAULT_SUBKEY",
		"AWX_URL", "AWX_CRED_NAME", "AWX_CRED_FIELD",
		"SYNC_USERNAME", "SYNC_PASSWORD",
	} {
		t.Setenv(key, "")
	}
}

func validOptions() config.Options {
	return config.Options{
		VaultAddr:      "https://vault.example.com:8200",
		SecretPath:     "secret/myapp",
		DocumentKey:    "credentials",
		ValueSubkey:    "password",
		AWXURL:         "https://awx.example.com",
		CredentialName: "Vault (Dev)",
		Username:       "sync-bot",
		Password:       "hunter2-long",
	}
}

func TestResolveAppliesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Resolve(validOptions())
	require.NoError(t, err)
	defer cfg.Password.Destroy()

	assert.Equal(t, config.DefaultFieldName, cfg.FieldName)
	assert.Equal(t, config.DefaultTimeout, cfg.Timeout)
	assert.Equal(t, config.DefaultRetryAttempts, cfg.RetryAttempts)

	err = cfg.Password.WithValue(func(value string) error {
		assert.Equal(t, "hunter2-long", value)
		return nil
	})
	require.NoError(t, err)
}

// TestResolveReportsEveryMissingField verifies a single ConfigError
// names all problems at once and that validation touches the network
// not at all, even when an address is reachable.
func TestResolveReportsEveryMissingField(t *testing.T) {
	clearEnv(t)

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	_, err := config.Resolve(config.Options{
		VaultAddr: server.URL, // reachable, must still not be called
		AWXURL:    "not a url",
	})
	require.Error(t, err)

	var configErr cserrors.ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, cserrors.KindConfig, cserrors.KindOf(err))

	msg := err.Error()
	assert.Contains(t, msg, "awx url")
	assert.Contains(t, msg, "secret path is required")
	assert.Contains(t, msg, "document key is required")
	assert.Contains(t, msg, "value subkey is required")
	assert.Contains(t, msg, "credential name is required")
	assert.Contains(t, msg, "username is required")
	assert.Contains(t, msg, "password is required")

	assert.Zero(t, calls.Load(), "config validation must not perform network calls")
}

func TestResolveNeverEchoesPassword(t *testing.T) {
	clearEnv(t)

	opts := validOptions()
	opts.Username = "" // force a validation failure
	_, err := config.Resolve(opts)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2-long")
}

func TestResolveEnvFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("VAULT_ADDR", "https://vault.env.example.com")
	t.Setenv("VAULT_SECRET_PATH", "secret/env")
	t.Setenv("VAULT_KEY", "credentials")
	t.Setenv("VAULT_SUBKEY", "password")
	t.Setenv("AWX_URL", "https://awx.env.example.com")
	t.Setenv("AWX_CRED_NAME", "Env Cred")
	t.Setenv("AWX_CRED_FIELD", "role_id")
	t.Setenv("SYNC_USERNAME", "env-bot")
	t.Setenv("SYNC_PASSWORD", "env-password")

	cfg, err := config.Resolve(config.Options{})
	require.NoError(t, err)
	defer cfg.Password.Destroy()

	assert.Equal(t, "https://vault.env.example.com", cfg.VaultAddr)
	assert.Equal(t, "secret/env", cfg.SecretPath)
	assert.Equal(t, "role_id", cfg.FieldName)
	assert.Equal(t, "env-bot", cfg.Username)
}

func TestResolveFlagBeatsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("VAULT_ADDR", "https://vault.env.example.com")

	opts := validOptions()
	opts.VaultAddr = "https://vault.flag.example.com"

	cfg, err := config.Resolve(opts)
	require.NoError(t, err)
	defer cfg.Password.Destroy()

	assert.Equal(t, "https://vault.flag.example.com", cfg.VaultAddr)
}

func TestResolveKeyringFallback(t *testing.T) {
	clearEnv(t)
	keyring.MockInit()
	require.NoError(t, keyring.Set(config.KeyringService, "sync-bot", "from-keyring"))

	opts := validOptions()
	opts.Password = ""

	cfg, err := config.Resolve(opts)
	require.NoError(t, err)
	defer cfg.Password.Destroy()

	err = cfg.Password.WithValue(func(value string) error {
		assert.Equal(t, "from-keyring", value)
		return nil
	})
	require.NoError(t, err)
}

func TestResolveRejectsBadURLs(t *testing.T) {
	clearEnv(t)

	opts := validOptions()
	opts.VaultAddr = "ftp://vault.example.com"
	opts.AWXURL = "awx.example.com" // no scheme

	_, err := config.Resolve(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault address")
	assert.Contains(t, err.Error(), "awx url")
}

func TestConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "credsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vault:
  address: https://vault.file.example.com
  secret_path: secret/file
  key: credentials
  subkey: password
awx:
  url: https://awx.file.example.com
  credential: File Cred
auth:
  username: file-bot
timeout: 3s
`), 0o600))

	t.Setenv("SYNC_PASSWORD", "file-password")

	cfg, err := config.Resolve(config.Options{File: path})
	require.NoError(t, err)
	defer cfg.Password.Destroy()

	assert.Equal(t, "https://vault.file.example.com", cfg.VaultAddr)
	assert.Equal(t, "File Cred", cfg.CredentialName)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, config.DefaultFieldName, cfg.FieldName)
}

// TestConfigFileRejectsPassword verifies the schema keeps secrets out
// of files on disk.
func TestConfigFileRejectsPassword(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "credsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  username: bot
  password: nope
`), 0o600))

	_, err := config.Resolve(config.Options{File: path})
	require.Error(t, err)
	assert.Equal(t, cserrors.KindConfig, cserrors.KindOf(err))
	assert.Contains(t, err.Error(), "password")
}

func TestConfigFileRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "credsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vualt:\n  address: x\n"), 0o600))

	_, err := config.Resolve(config.Options{File: path})
	require.Error(t, err)
	assert.Equal(t, cserrors.KindConfig, cserrors.KindOf(err))
}

func TestConfigFileMissing(t *testing.T) {
	clearEnv(t)

	_, err := config.Resolve(config.Options{File: "/nonexistent/credsync.yaml"})
	require.Error(t, err)
	assert.Equal(t, cserrors.KindConfig, cserrors.KindOf(err))
}
