// Package awx is the credential-store client: token login, credential
// lookup by name, and a single-field input update.
package awx

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/buildkite/roko"

	"github.com/systmms/credsync/internal/config"
	cserrors "github.com/systmms/credsync/internal/errors"
	"github.com/systmms/credsync/internal/logging"
)

const defaultBackoff = 500 * time.Millisecond

// Credential is the resolved target object. The ID is looked up by
// name exactly once per run and never changes afterwards.
type Credential struct {
	ID     int
	Name   string
	TypeID int
}

// Client talks to one AWX instance. Not safe for concurrent use; a
// sync run is single-threaded.
type Client struct {
	cfg     *config.Config
	logger  *logging.Logger
	http    *http.Client
	backoff time.Duration

	token   string
	tokenID int
}

// New creates a client for the configured AWX URL.
func New(cfg *config.Config, logger *logging.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Client{
		cfg:     cfg,
		logger:  logger,
		http:    httpClient,
		backoff: defaultBackoff,
	}
}

// Login exchanges the principal's basic credentials for a personal
// access token. The token is revoked again by Logout so periodic runs
// do not accumulate tokens on the server.
func (c *Client) Login(ctx context.Context) error {
	r := c.retrier()
	return r.DoWithContext(ctx, func(r *roko.Retrier) error {
		err := c.loginOnce(ctx)
		if err != nil && !cserrors.Retryable(err) {
			r.Break()
		}
		return err
	})
}

func (c *Client) loginOnce(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"description": "credsync",
		"scope":       "write",
	})
	if err != nil {
		return fmt.Errorf("marshaling token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/v2/tokens/"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	err = c.cfg.Password.WithValue(func(password string) error {
		req.SetBasicAuth(c.cfg.Username, password)

		resp, doErr := c.http.Do(req)
		if doErr != nil {
			return cserrors.NetworkError{Service: "awx", Op: "login", Err: doErr}
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
			// Fall through to decode.
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return cserrors.AuthError{
				Service: "awx",
				Message: fmt.Sprintf("token request rejected with status %d", resp.StatusCode),
			}
		default:
			return cserrors.NetworkError{
				Service: "awx",
				Op:      "login",
				Err:     fmt.Errorf("status %d", resp.StatusCode),
			}
		}

		var tokenResp struct {
			ID    int    `json:"id"`
			Token string `json:"token"`
		}
		if decErr := json.NewDecoder(resp.Body).Decode(&tokenResp); decErr != nil {
			return cserrors.NetworkError{Service: "awx", Op: "login", Err: fmt.Errorf("decoding response: %w", decErr)}
		}
		if tokenResp.Token == "" {
			return cserrors.AuthError{Service: "awx", Message: "no token in response"}
		}
		c.token = tokenResp.Token
		c.tokenID = tokenResp.ID
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.Debug("awx token issued for %s", c.cfg.Username)
	return nil
}

// Logout revokes the token issued by Login. Best effort; a failed
// revocation only means the token lives until its own expiry.
func (c *Client) Logout(ctx context.Context) {
	if c.token == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.url(fmt.Sprintf("/api/v2/tokens/%d/", c.tokenID)), nil)
	if err != nil {
		return
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("awx token revocation failed: %v", err)
		return
	}
	_ = resp.Body.Close()
	c.token = ""
	c.tokenID = 0
}

// FindCredential resolves a credential name to its object. The name is
// expected to be unique; zero matches and multiple matches are both
// permanent failures.
func (c *Client) FindCredential(ctx context.Context, name string) (Credential, error) {
	r := c.retrier()
	return roko.DoFunc(ctx, r, func(r *roko.Retrier) (Credential, error) {
		cred, err := c.findOnce(ctx, name)
		if err != nil && !cserrors.Retryable(err) {
			r.Break()
		}
		return cred, err
	})
}

func (c *Client) findOnce(ctx context.Context, name string) (Credential, error) {
	query := url.Values{"name": []string{name}}
	listURL := c.url("/api/v2/credentials/") + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("building list request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return Credential{}, cserrors.NetworkError{Service: "awx", Op: "list credentials", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus(resp, "list credentials"); err != nil {
		return Credential{}, err
	}

	var listResp struct {
		Count   int `json:"count"`
		Results []struct {
			ID             int    `json:"id"`
			Name           string `json:"name"`
			CredentialType int    `json:"credential_type"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return Credential{}, cserrors.NetworkError{Service: "awx", Op: "list credentials", Err: fmt.Errorf("decoding response: %w", err)}
	}

	matches := listResp.Count
	if matches < len(listResp.Results) {
		matches = len(listResp.Results)
	}
	switch {
	case matches == 0:
		return Credential{}, cserrors.CredentialNotFoundError{Name: name}
	case matches > 1:
		return Credential{}, cserrors.AmbiguousCredentialError{Name: name, Count: matches}
	default:
		found := listResp.Results[0]
		c.logger.Debug("credential %q resolved to id %d (type %d)", name, found.ID, found.CredentialType)
		return Credential{ID: found.ID, Name: found.Name, TypeID: found.CredentialType}, nil
	}
}

// UpdateField overwrites exactly one input field on the credential,
// leaving all other inputs untouched. Write-through: applying the same
// value twice is not an error. A 409 from the server is surfaced as a
// conflict, never merged.
func (c *Client) UpdateField(ctx context.Context, id int, field, value string) error {
	r := c.retrier()
	return r.DoWithContext(ctx, func(r *roko.Retrier) error {
		err := c.updateOnce(ctx, id, field, value)
		if err != nil && !cserrors.Retryable(err) {
			r.Break()
		}
		return err
	})
}

func (c *Client) updateOnce(ctx context.Context, id int, field, value string) error {
	inputs, err := c.currentInputs(ctx, id)
	if err != nil {
		return err
	}
	inputs[field] = value

	body, err := json.Marshal(map[string]interface{}{"inputs": inputs})
	if err != nil {
		return fmt.Errorf("marshaling update request: %w", err)
	}

	credURL := c.url(fmt.Sprintf("/api/v2/credentials/%d/", id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, credURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return cserrors.NetworkError{Service: "awx", Op: "update credential", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		return nil
	case http.StatusConflict:
		return cserrors.UpdateConflictError{CredentialID: id}
	case http.StatusUnauthorized, http.StatusForbidden:
		return cserrors.AuthError{
			Service: "awx",
			Message: fmt.Sprintf("update rejected with status %d", resp.StatusCode),
		}
	case http.StatusNotFound:
		return cserrors.CredentialNotFoundError{Name: fmt.Sprintf("id %d", id)}
	default:
		if resp.StatusCode >= http.StatusInternalServerError {
			return cserrors.NetworkError{
				Service: "awx",
				Op:      "update credential",
				Err:     fmt.Errorf("status %d", resp.StatusCode),
			}
		}
		// Validation errors echo the submitted inputs back, so the
		// response body stays out of the error message.
		return fmt.Errorf("awx update credential rejected with status %d", resp.StatusCode)
	}
}

// currentInputs reads the credential's existing inputs so the patched
// document differs in exactly the one target field.
func (c *Client) currentInputs(ctx context.Context, id int) (map[string]interface{}, error) {
	credURL := c.url(fmt.Sprintf("/api/v2/credentials/%d/", id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, credURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building detail request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, cserrors.NetworkError{Service: "awx", Op: "read credential", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, cserrors.CredentialNotFoundError{Name: fmt.Sprintf("id %d", id)}
	}
	if err := c.checkStatus(resp, "read credential"); err != nil {
		return nil, err
	}

	var detailResp struct {
		Inputs map[string]interface{} `json:"inputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detailResp); err != nil {
		return nil, cserrors.NetworkError{Service: "awx", Op: "read credential", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if detailResp.Inputs == nil {
		detailResp.Inputs = map[string]interface{}{}
	}
	return detailResp.Inputs, nil
}

func (c *Client) checkStatus(resp *http.Response, op string) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return cserrors.AuthError{
			Service: "awx",
			Message: fmt.Sprintf("%s rejected with status %d", op, resp.StatusCode),
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return cserrors.NetworkError{
			Service: "awx",
			Op:      op,
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	default:
		return fmt.Errorf("awx %s rejected with status %d", op, resp.StatusCode)
	}
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func (c *Client) retrier() *roko.Retrier {
	// ExponentialSubsecond: roko.Exponential rejects bases under 1s.
	return roko.NewRetrier(
		roko.WithMaxAttempts(c.cfg.RetryAttempts),
		roko.WithStrategy(roko.ExponentialSubsecond(c.backoff)),
	)
}

func (c *Client) url(apiPath string) string {
	return strings.TrimSuffix(c.cfg.AWXURL, "/") + apiPath
}
