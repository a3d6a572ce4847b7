// Package vault is the secrets-backend client: userpass login and a
// single KV v2 document read.
package vault

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/buildkite/roko"

	"github.com/systmms/credsync/internal/config"
	cserrors "github.com/systmms/credsync/internal/errors"
	"github.com/systmms/credsync/internal/logging"
)

const defaultBackoff = 500 * time.Millisecond

// Client talks to one Vault server. Not safe for concurrent use; a
// sync run is single-threaded.
type Client struct {
	cfg     *config.Config
	logger  *logging.Logger
	http    *http.Client
	backoff time.Duration

	token  string
	expiry time.Time
}

// New creates a client for the configured Vault address.
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

// Login performs a userpass login and keeps the issued client token
// for subsequent reads. Rejected credentials are not retried;
// connectivity failures and 5xx responses are, with bounded
// exponential backoff.
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
	loginURL := c.url("auth/userpass/login/" + c.cfg.Username)

	var resp *http.Response
	err := c.cfg.Password.WithValue(func(password string) error {
		body, err := json.Marshal(map[string]string{"password": password})
		if err != nil {
			return fmt.Errorf("marshaling login request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("building login request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = c.http.Do(req)
		if err != nil {
			return cserrors.NetworkError{Service: "vault", Op: "login", Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Fall through to decode.
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return cserrors.AuthError{
			Service: "vault",
			Message: fmt.Sprintf("login rejected with status %d", resp.StatusCode),
		}
	default:
		return cserrors.NetworkError{
			Service: "vault",
			Op:      "login",
			Err:     fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	var loginResp struct {
		Auth struct {
			ClientToken   string `json:"client_token"`
			LeaseDuration int    `json:"lease_duration"`
		} `json:"auth"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return cserrors.NetworkError{Service: "vault", Op: "login", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if loginResp.Auth.ClientToken == "" {
		return cserrors.AuthError{Service: "vault", Message: "no client token in login response"}
	}

	c.token = loginResp.Auth.ClientToken
	if loginResp.Auth.LeaseDuration > 0 {
		c.expiry = time.Now().Add(time.Duration(loginResp.Auth.LeaseDuration) * time.Second)
	}
	c.logger.Debug("vault login ok for %s", c.cfg.Username)
	return nil
}

// ReadSecret fetches the KV v2 document at path and returns its inner
// data mapping. The read is pure; repeating it has no side effect.
func (c *Client) ReadSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	if c.token == "" {
		return nil, cserrors.AuthError{Service: "vault", Message: "not logged in"}
	}

	r := c.retrier()
	return roko.DoFunc(ctx, r, func(r *roko.Retrier) (map[string]interface{}, error) {
		doc, err := c.readOnce(ctx, path)
		if err != nil && !cserrors.Retryable(err) {
			r.Break()
		}
		return doc, err
	})
}

func (c *Client) readOnce(ctx context.Context, path string) (map[string]interface{}, error) {
	readURL := c.url(kvDataPath(path))
	c.logger.Debug("reading vault secret at %s", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, readURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building read request: %w", err)
	}
	req.Header.Set("X-Vault-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, cserrors.NetworkError{Service: "vault", Op: "read", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Fall through to decode.
	case resp.StatusCode == http.StatusNotFound:
		return nil, cserrors.SecretNotFoundError{Path: path}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Covers token expiry mid-run as well as missing policy.
		return nil, cserrors.AuthError{
			Service: "vault",
			Message: fmt.Sprintf("read rejected with status %d", resp.StatusCode),
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, cserrors.NetworkError{
			Service: "vault",
			Op:      "read",
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	default:
		return nil, fmt.Errorf("vault read rejected with status %d", resp.StatusCode)
	}

	// KV v2 wraps the document in data.data.
	var readResp struct {
		Data struct {
			Data map[string]interface{} `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&readResp); err != nil {
		return nil, cserrors.NetworkError{Service: "vault", Op: "read", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if readResp.Data.Data == nil {
		return nil, cserrors.SecretNotFoundError{Path: path}
	}
	return readResp.Data.Data, nil
}

// Close drops the session token.
func (c *Client) Close() {
	c.token = ""
}

func (c *Client) retrier() *roko.Retrier {
	// ExponentialSubsecond: roko.Exponential rejects bases under 1s.
	return roko.NewRetrier(
		roko.WithMaxAttempts(c.cfg.RetryAttempts),
		roko.WithStrategy(roko.ExponentialSubsecond(c.backoff)),
	)
}

func (c *Client) url(apiPath string) string {
	return strings.TrimSuffix(c.cfg.VaultAddr, "/") + "/v1/" + strings.TrimPrefix(apiPath, "/")
}

// kvDataPath inserts the KV v2 "data" segment after the mount, the way
// hvac's read_secret_version addresses a document: "secret/myapp"
// becomes "secret/data/myapp". Paths already carrying the segment pass
// through unchanged.
func kvDataPath(path string) string {
	trimmed := strings.Trim(path, "/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	if strings.HasPrefix(parts[1], "data/") || parts[1] == "data" {
		return trimmed
	}
	return parts[0] + "/data/" + parts[1]
}

// ExtractField navigates the document to key then subkey and returns
// the value as a string. Both coordinates must be present and the
// value non-empty; the error names only the missing coordinate, never
// the surrounding values.
func ExtractField(doc map[string]interface{}, key, subkey string) (string, error) {
	nested, ok := doc[key]
	if !ok {
		return "", cserrors.KeyNotFoundError{Key: key}
	}
	mapping, ok := nested.(map[string]interface{})
	if !ok {
		return "", cserrors.KeyNotFoundError{Key: key, Subkey: subkey}
	}
	raw, ok := mapping[subkey]
	if !ok {
		return "", cserrors.KeyNotFoundError{Key: key, Subkey: subkey}
	}

	var value string
	switch v := raw.(type) {
	case string:
		value = v
	case float64:
		value = fmt.Sprintf("%g", v)
	case bool:
		value = fmt.Sprintf("%t", v)
	default:
		jsonValue, err := json.Marshal(v)
		if err != nil {
			return "", cserrors.KeyNotFoundError{Key: key, Subkey: subkey}
		}
		value = string(jsonValue)
	}
	if value == "" {
		return "", cserrors.KeyNotFoundError{Key: key, Subkey: subkey}
	}
	return value, nil
}
