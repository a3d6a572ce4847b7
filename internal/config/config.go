// Package config builds the validated, immutable configuration for one
// sync run.
//
// This is the only package that reads ambient process state. Values are
// resolved once at startup with precedence flags > environment >
// config file, validated in full, and handed to the clients by
// reference. Every other component receives a *Config and touches
// nothing else.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/zalando/go-keyring"

	cserrors "github.com/systmms/credsync/internal/errors"
	"github.com/systmms/credsync/internal/secure"
)

const (
	// DefaultTimeout bounds every individual network call.
	DefaultTimeout = 10 * time.Second

	// DefaultRetryAttempts bounds the retry loop around retryable calls.
	DefaultRetryAttempts = 3

	// DefaultFieldName is the credential input overwritten when no
	// field is configured.
	DefaultFieldName = "password"

	// KeyringService is the OS keyring service name consulted when the
	// password is not supplied by flag or environment.
	KeyringService = "credsync"
)

// Config holds everything one run needs. Immutable after Resolve.
type Config struct {
	// Secret reference (where the value comes from).
	VaultAddr   string
	SecretPath  string
	DocumentKey string
	ValueSubkey string

	// Credential target (where the value goes).
	AWXURL         string
	CredentialName string
	FieldName      string

	// Principal used against both services, matching the source
	// script's single-identity model.
	Username string
	Password *secure.Buffer

	Timeout            time.Duration
	RetryAttempts      int
	InsecureSkipVerify bool
}

// Options carries raw, unvalidated inputs from the command line.
// Empty fields fall through to the environment and the config file.
type Options struct {
	File string // config file path; empty means no file

	VaultAddr      string
	SecretPath     string
	DocumentKey    string
	ValueSubkey    string
	AWXURL         string
	CredentialName string
	FieldName      string
	Username       string
	Password       string

	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Resolve merges flags, environment variables, and the optional config
// file into a validated Config. It performs no network access. On
// failure it returns a ConfigError naming every missing or invalid
// field, not just the first.
func Resolve(opts Options) (*Config, error) {
	var file fileConfig
	if opts.File != "" {
		loaded, err := loadFile(opts.File)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	cfg := &Config{
		VaultAddr:      pick(opts.VaultAddr, os.Getenv("VAULT_ADDR"), file.Vault.Address),
		SecretPath:     pick(opts.SecretPath, os.Getenv("VAULT_SECRET_PATH"), file.Vault.SecretPath),
		DocumentKey:    pick(opts.DocumentKey, os.Getenv("VAULT_KEY"), file.Vault.Key),
		ValueSubkey:    pick(opts.ValueSubkey, os.Getenv("VAULT_SUBKEY"), file.Vault.Subkey),
		AWXURL:         pick(opts.AWXURL, os.Getenv("AWX_URL"), file.AWX.URL),
		CredentialName: pick(opts.CredentialName, os.Getenv("AWX_CRED_NAME"), file.AWX.Credential),
		FieldName:      pick(opts.FieldName, os.Getenv("AWX_CRED_FIELD"), file.AWX.Field, DefaultFieldName),
		Username:       pick(opts.Username, os.Getenv("SYNC_USERNAME"), file.Auth.Username),

		Timeout:            DefaultTimeout,
		RetryAttempts:      DefaultRetryAttempts,
		InsecureSkipVerify: opts.InsecureSkipVerify || file.InsecureSkipVerify,
	}
	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
	} else if file.Timeout > 0 {
		cfg.Timeout = file.Timeout
	}

	password := resolvePassword(opts.Password, cfg.Username)
	if password != "" {
		cfg.Password = secure.NewBufferFromString(password)
	}

	if err := cfg.validate(); err != nil {
		if cfg.Password != nil {
			cfg.Password.Destroy()
		}
		return nil, err
	}
	return cfg, nil
}

// resolvePassword looks for the password in the flag value, the
// environment, and finally the OS keyring under the credsync service.
// The source script prompted interactively as a last resort; a
// pipeline job cannot answer a prompt, so the keyring takes that slot.
func resolvePassword(flagValue, username string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("SYNC_PASSWORD"); v != "" {
		return v
	}
	if username == "" {
		return ""
	}
	stored, err := keyring.Get(KeyringService, username)
	if err != nil {
		return ""
	}
	return stored
}

func (c *Config) validate() error {
	var problems []string

	if msg := checkURL("vault address", c.VaultAddr); msg != "" {
		problems = append(problems, msg)
	}
	if msg := checkURL("awx url", c.AWXURL); msg != "" {
		problems = append(problems, msg)
	}
	for _, field := range []struct{ name, value string }{
		{"secret path", c.SecretPath},
		{"document key", c.DocumentKey},
		{"value subkey", c.ValueSubkey},
		{"credential name", c.CredentialName},
		{"credential field", c.FieldName},
		{"username", c.Username},
	} {
		if strings.TrimSpace(field.value) == "" {
			problems = append(problems, fmt.Sprintf("%s is required", field.name))
		}
	}
	// Presence only. The value itself never appears in any message.
	if c.Password == nil {
		problems = append(problems, "password is required (flag, SYNC_PASSWORD, or OS keyring)")
	}
	if c.Timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}

	if len(problems) > 0 {
		return cserrors.ConfigError{Problems: problems}
	}
	return nil
}

func checkURL(name, value string) string {
	if strings.TrimSpace(value) == "" {
		return name + " is required"
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Sprintf("%s %q is not a valid http(s) URL", name, value)
	}
	return ""
}

// pick returns the first non-empty value.
func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
