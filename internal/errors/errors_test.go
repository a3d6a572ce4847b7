package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systmms/credsync/internal/errors"
)

// TestConfigErrorListsEveryProblem verifies all collected problems
// appear in one message.
func TestConfigErrorListsEveryProblem(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{Problems: []string{
		"vault address is required",
		"username is required",
	}}

	msg := err.Error()
	assert.Contains(t, msg, "vault address is required")
	assert.Contains(t, msg, "username is required")
	assert.Contains(t, msg, "(2)")
}

func TestConfigErrorSingleProblem(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{Problems: []string{"secret path is required"}}
	assert.Equal(t, "configuration error: secret path is required", err.Error())
}

// TestKindOf verifies each taxonomy error classifies to its own kind,
// including through wrapping.
func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		kind errors.Kind
	}{
		{"nil", nil, errors.KindNone},
		{"config", errors.ConfigError{Problems: []string{"x"}}, errors.KindConfig},
		{"auth", errors.AuthError{Service: "vault"}, errors.KindAuth},
		{"secret not found", errors.SecretNotFoundError{Path: "secret/x"}, errors.KindSecretNotFound},
		{"key not found", errors.KeyNotFoundError{Key: "credentials"}, errors.KindKeyNotFound},
		{"credential not found", errors.CredentialNotFoundError{Name: "x"}, errors.KindCredentialNotFound},
		{"ambiguous", errors.AmbiguousCredentialError{Name: "x", Count: 2}, errors.KindAmbiguousCredential},
		{"network", errors.NetworkError{Service: "awx", Op: "login", Err: fmt.Errorf("timeout")}, errors.KindNetwork},
		{"conflict", errors.UpdateConflictError{CredentialID: 42}, errors.KindConflict},
		{"wrapped auth", fmt.Errorf("stage failed: %w", errors.AuthError{Service: "awx"}), errors.KindAuth},
		{"unclassified", fmt.Errorf("something else"), errors.KindNetwork},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.kind, errors.KindOf(tt.err))
		})
	}
}

// TestExitCodes verifies the category mapping: every lookup failure
// shares the not-found code, everything else has its own.
func TestExitCodes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.ExitSuccess, errors.ExitCode(errors.KindNone))
	assert.Equal(t, errors.ExitConfig, errors.ExitCode(errors.KindConfig))
	assert.Equal(t, errors.ExitAuth, errors.ExitCode(errors.KindAuth))
	assert.Equal(t, errors.ExitNotFound, errors.ExitCode(errors.KindSecretNotFound))
	assert.Equal(t, errors.ExitNotFound, errors.ExitCode(errors.KindKeyNotFound))
	assert.Equal(t, errors.ExitNotFound, errors.ExitCode(errors.KindCredentialNotFound))
	assert.Equal(t, errors.ExitNotFound, errors.ExitCode(errors.KindAmbiguousCredential))
	assert.Equal(t, errors.ExitNetwork, errors.ExitCode(errors.KindNetwork))
	assert.Equal(t, errors.ExitConflict, errors.ExitCode(errors.KindConflict))

	// All failure codes are distinct non-zero values.
	codes := map[int]bool{}
	for _, kind := range []errors.Kind{
		errors.KindConfig, errors.KindAuth, errors.KindSecretNotFound,
		errors.KindNetwork, errors.KindConflict,
	} {
		code := errors.ExitCode(kind)
		assert.NotZero(t, code)
		assert.False(t, codes[code], "exit code %d reused", code)
		codes[code] = true
	}
}

// TestRetryable verifies only network failures are retryable.
func TestRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.Retryable(errors.NetworkError{Service: "vault", Op: "login", Err: fmt.Errorf("timeout")}))
	assert.True(t, errors.Retryable(fmt.Errorf("wrapped: %w", errors.NetworkError{Service: "awx", Op: "read", Err: fmt.Errorf("reset")})))

	assert.False(t, errors.Retryable(nil))
	assert.False(t, errors.Retryable(errors.AuthError{Service: "vault"}))
	assert.False(t, errors.Retryable(errors.UpdateConflictError{CredentialID: 1}))
	assert.False(t, errors.Retryable(errors.AmbiguousCredentialError{Name: "x", Count: 3}))
	assert.False(t, errors.Retryable(fmt.Errorf("unclassified")))
}

// TestKeyNotFoundNamesCoordinates verifies the message names the
// missing coordinate, not surrounding values.
func TestKeyNotFoundNamesCoordinates(t *testing.T) {
	t.Parallel()

	err := errors.KeyNotFoundError{Key: "credentials", Subkey: "password"}
	assert.Contains(t, err.Error(), `"credentials"`)
	assert.Contains(t, err.Error(), `"password"`)

	topLevel := errors.KeyNotFoundError{Key: "credentials"}
	assert.Contains(t, topLevel.Error(), `"credentials"`)
}
