// Package errors defines the failure taxonomy for a sync run.
//
// Every failure a run can end in maps to exactly one Kind, and each Kind
// category maps to a distinct process exit code so the invoking pipeline
// can branch on failure class. Only network-class failures are retryable.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a run failure.
type Kind string

const (
	KindNone                Kind = ""
	KindConfig              Kind = "config"
	KindAuth                Kind = "auth"
	KindSecretNotFound      Kind = "secret-not-found"
	KindKeyNotFound         Kind = "key-not-found"
	KindCredentialNotFound  Kind = "credential-not-found"
	KindAmbiguousCredential Kind = "ambiguous-credential"
	KindNetwork             Kind = "network"
	KindConflict            Kind = "conflict"
)

// Exit codes, one per failure category. The not-found code covers all
// four lookup failures (secret path, document key, credential name,
// ambiguous name) since the pipeline reacts to them the same way.
const (
	ExitSuccess  = 0
	ExitConfig   = 2
	ExitAuth     = 3
	ExitNotFound = 4
	ExitNetwork  = 5
	ExitConflict = 6
)

// ConfigError reports every missing or invalid configuration field at
// once, so a misconfigured pipeline is fixed in one pass rather than
// one failed run per field.
type ConfigError struct {
	Problems []string
}

func (e ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return "configuration error: " + e.Problems[0]
	}
	return fmt.Sprintf("configuration errors (%d):\n  - %s",
		len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

// AuthError indicates rejected or expired credentials against one of
// the two services. Never retried.
type AuthError struct {
	Service string // "vault" or "awx"
	Message string
	Err     error
}

func (e AuthError) Error() string {
	msg := fmt.Sprintf("%s authentication failed", e.Service)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e AuthError) Unwrap() error { return e.Err }

// SecretNotFoundError indicates the secret path does not exist in the
// secrets backend.
type SecretNotFoundError struct {
	Path string
}

func (e SecretNotFoundError) Error() string {
	return fmt.Sprintf("no secret at path %q", e.Path)
}

// KeyNotFoundError indicates the secret document exists but the
// requested key or subkey is absent from it.
type KeyNotFoundError struct {
	Key    string
	Subkey string
}

func (e KeyNotFoundError) Error() string {
	if e.Subkey != "" {
		return fmt.Sprintf("secret document has no value at %q.%q", e.Key, e.Subkey)
	}
	return fmt.Sprintf("secret document has no key %q", e.Key)
}

// CredentialNotFoundError indicates the credential name matched nothing
// in the automation platform.
type CredentialNotFoundError struct {
	Name string
}

func (e CredentialNotFoundError) Error() string {
	return fmt.Sprintf("credential %q not found", e.Name)
}

// AmbiguousCredentialError indicates the credential name matched more
// than one object. Names are expected to be unique; this is a
// configuration defect and is never retried.
type AmbiguousCredentialError struct {
	Name  string
	Count int
}

func (e AmbiguousCredentialError) Error() string {
	return fmt.Sprintf("credential name %q matches %d objects, expected exactly one", e.Name, e.Count)
}

// NetworkError indicates a timeout or connectivity failure. This is the
// only retryable kind.
type NetworkError struct {
	Service string
	Op      string
	Err     error
}

func (e NetworkError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e NetworkError) Unwrap() error { return e.Err }

// UpdateConflictError indicates the credential store reported a
// concurrent modification of the target object. Surfaced to the
// caller; no automatic merge is attempted.
type UpdateConflictError struct {
	CredentialID int
}

func (e UpdateConflictError) Error() string {
	return fmt.Sprintf("credential %d was modified concurrently", e.CredentialID)
}

// KindOf classifies err into its Kind, unwrapping as needed. Unknown
// errors classify as network so an unexpected transport failure still
// exits with a meaningful code.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var (
		configErr    ConfigError
		authErr      AuthError
		secretErr    SecretNotFoundError
		keyErr       KeyNotFoundError
		credErr      CredentialNotFoundError
		ambiguousErr AmbiguousCredentialError
		networkErr   NetworkError
		conflictErr  UpdateConflictError
	)

	switch {
	case errors.As(err, &configErr):
		return KindConfig
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &secretErr):
		return KindSecretNotFound
	case errors.As(err, &keyErr):
		return KindKeyNotFound
	case errors.As(err, &credErr):
		return KindCredentialNotFound
	case errors.As(err, &ambiguousErr):
		return KindAmbiguousCredential
	case errors.As(err, &conflictErr):
		return KindConflict
	case errors.As(err, &networkErr):
		return KindNetwork
	default:
		return KindNetwork
	}
}

// ExitCode maps a Kind to its process exit code category.
func ExitCode(kind Kind) int {
	switch kind {
	case KindNone:
		return ExitSuccess
	case KindConfig:
		return ExitConfig
	case KindAuth:
		return ExitAuth
	case KindSecretNotFound, KindKeyNotFound, KindCredentialNotFound, KindAmbiguousCredential:
		return ExitNotFound
	case KindConflict:
		return ExitConflict
	default:
		return ExitNetwork
	}
}

// Redacted carries a scrubbed message for display while keeping the
// underlying error reachable for classification. Error text that may
// quote request or response bodies goes through this before it is
// allowed near stderr.
type Redacted struct {
	Message string
	Err     error
}

func (e Redacted) Error() string {
	return e.Message
}

func (e Redacted) Unwrap() error {
	return e.Err
}

// Retryable reports whether err may be retried. Only a NetworkError
// qualifies; auth rejections, lookup misses, and anything unclassified
// is permanent within a run.
func Retryable(err error) bool {
	var networkErr NetworkError
	return errors.As(err, &networkErr)
}
