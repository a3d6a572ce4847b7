// Package syncer drives one credential synchronization run: fetch a
// secret value from the secrets backend, push it into one field of one
// credential in the automation platform, and classify the outcome.
package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/systmms/credsync/internal/awx"
	"github.com/systmms/credsync/internal/config"
	cserrors "github.com/systmms/credsync/internal/errors"
	"github.com/systmms/credsync/internal/logging"
	"github.com/systmms/credsync/internal/vault"
)

// Stage names the step of the run a result refers to. Stages advance
// strictly forward; a failed stage terminates the run.
type Stage string

const (
	StageInit               Stage = "init"
	StageConfigValidated    Stage = "config-validated"
	StageSecretFetched      Stage = "secret-fetched"
	StageCredentialResolved Stage = "credential-resolved"
	StageUpdated            Stage = "updated"
)

// Status is the terminal outcome of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Result is the single record of one run. The orchestrator is its sole
// writer; it is immutable once returned. Detail never contains secret
// material.
type Result struct {
	RunID      string
	Status     Status
	ErrorKind  cserrors.Kind
	Stage      Stage
	StartedAt  time.Time
	FinishedAt time.Time
	Detail     string

	// Err is the failure that ended the run, nil on success. It is
	// wrapped so its message matches the redacted Detail while the
	// original error stays reachable for classification.
	Err error
}

// ExitCode maps the result onto the process exit code for the
// invoking pipeline.
func (r Result) ExitCode() int {
	return cserrors.ExitCode(r.ErrorKind)
}

// SecretSource is the secrets-backend side of a run.
type SecretSource interface {
	Login(ctx context.Context) error
	ReadSecret(ctx context.Context, path string) (map[string]interface{}, error)
	Close()
}

// CredentialStore is the automation-platform side of a run.
type CredentialStore interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context)
	FindCredential(ctx context.Context, name string) (awx.Credential, error)
	UpdateField(ctx context.Context, id int, field, value string) error
}

// Orchestrator sequences one run. No stage is re-run after its client
// has exhausted its own bounded retries, and nothing restarts earlier
// stages after a later one fails.
type Orchestrator struct {
	cfg     *config.Config
	logger  *logging.Logger
	secrets SecretSource
	creds   CredentialStore

	// protected collects values that must not surface in the result
	// detail, mirroring what the logger redacts.
	protected []string
}

// New builds an orchestrator over already-validated configuration.
func New(cfg *config.Config, logger *logging.Logger, secrets SecretSource, creds CredentialStore) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		logger:  logger,
		secrets: secrets,
		creds:   creds,
	}
}

// Run executes the full sequence exactly once and returns its Result.
// The secret value crosses through working memory only; it is never
// persisted and never reaches the logs or the result detail.
func (o *Orchestrator) Run(ctx context.Context) Result {
	started := time.Now().UTC()
	runID := uuid.NewString()
	o.logger.Debug("run %s starting", runID)

	// Construction implies validated config, so the run enters at
	// ConfigValidated rather than Init.
	stage := StageConfigValidated

	if err := o.secrets.Login(ctx); err != nil {
		return o.failed(runID, started, stage, err)
	}
	defer o.secrets.Close()

	doc, err := o.secrets.ReadSecret(ctx, o.cfg.SecretPath)
	if err != nil {
		return o.failed(runID, started, stage, err)
	}
	value, err := vault.ExtractField(doc, o.cfg.DocumentKey, o.cfg.ValueSubkey)
	if err != nil {
		return o.failed(runID, started, stage, err)
	}
	o.logger.Protect(value)
	o.protected = append(o.protected, value)
	stage = StageSecretFetched
	o.logger.Info("retrieved %s.%s from %s", o.cfg.DocumentKey, o.cfg.ValueSubkey, o.cfg.SecretPath)

	if err := o.creds.Login(ctx); err != nil {
		return o.failed(runID, started, stage, err)
	}
	defer o.creds.Logout(ctx)

	cred, err := o.creds.FindCredential(ctx, o.cfg.CredentialName)
	if err != nil {
		return o.failed(runID, started, stage, err)
	}
	stage = StageCredentialResolved
	o.logger.Info("credential %q resolved to id %d", cred.Name, cred.ID)

	if err := o.creds.UpdateField(ctx, cred.ID, o.cfg.FieldName, value); err != nil {
		return o.failed(runID, started, stage, err)
	}
	stage = StageUpdated
	o.logger.Info("updated field %q on credential %q (id %d)", o.cfg.FieldName, cred.Name, cred.ID)

	return Result{
		RunID:      runID,
		Status:     StatusSuccess,
		Stage:      stage,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
}

func (o *Orchestrator) failed(runID string, started time.Time, stage Stage, err error) Result {
	kind := cserrors.KindOf(err)
	o.logger.Error("run failed at stage %s: %v", stage, err)
	detail := logging.Redact(err.Error(), o.protected)
	return Result{
		RunID:      runID,
		Status:     StatusFailed,
		ErrorKind:  kind,
		Stage:      stage,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Detail:     detail,
		// The raw error stays reachable through Unwrap for
		// classification; only the scrubbed text can be printed.
		Err: cserrors.Redacted{Message: detail, Err: err},
	}
}
