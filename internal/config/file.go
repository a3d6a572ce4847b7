package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	cserrors "github.com/systmms/credsync/internal/errors"
)

// fileConfig mirrors the optional credsync.yaml layout. The file may
// carry everything except the password; secrets stay out of files on
// disk, which the schema enforces.
type fileConfig struct {
	Vault struct {
		Address    string `yaml:"address" json:"address,omitempty"`
		SecretPath string `yaml:"secret_path" json:"secret_path,omitempty"`
		Key        string `yaml:"key" json:"key,omitempty"`
		Subkey     string `yaml:"subkey" json:"subkey,omitempty"`
	} `yaml:"vault" json:"vault,omitempty"`
	AWX struct {
		URL        string `yaml:"url" json:"url,omitempty"`
		Credential string `yaml:"credential" json:"credential,omitempty"`
		Field      string `yaml:"field" json:"field,omitempty"`
	} `yaml:"awx" json:"awx,omitempty"`
	Auth struct {
		Username string `yaml:"username" json:"username,omitempty"`
	} `yaml:"auth" json:"auth,omitempty"`
	TimeoutRaw         string `yaml:"timeout" json:"-"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" json:"insecure_skip_verify,omitempty"`

	// Timeout is TimeoutRaw parsed; zero when the file sets none.
	Timeout time.Duration `yaml:"-" json:"-"`
}

// fileSchema rejects unknown keys and, in particular, any attempt to
// put a password into the file.
const fileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "vault": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "address": {"type": "string"},
        "secret_path": {"type": "string"},
        "key": {"type": "string"},
        "subkey": {"type": "string"}
      }
    },
    "awx": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "url": {"type": "string"},
        "credential": {"type": "string"},
        "field": {"type": "string"}
      }
    },
    "auth": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "username": {"type": "string"}
      }
    },
    "timeout": {"type": "string"},
    "insecure_skip_verify": {"type": "boolean"}
  }
}`

func loadFile(path string) (fileConfig, error) {
	var cfg fileConfig

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, cserrors.ConfigError{
			Problems: []string{fmt.Sprintf("config file %s: %v", path, err)},
		}
	}

	// Round-trip through generic YAML so the schema sees exactly what
	// the file says, unknown keys included.
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return cfg, cserrors.ConfigError{
			Problems: []string{fmt.Sprintf("config file %s is not valid YAML: %v", path, err)},
		}
	}
	if err := validateAgainstSchema(path, doc); err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, cserrors.ConfigError{
			Problems: []string{fmt.Sprintf("config file %s: %v", path, err)},
		}
	}

	if cfg.TimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.TimeoutRaw)
		if err != nil {
			return cfg, cserrors.ConfigError{
				Problems: []string{fmt.Sprintf("config file %s: timeout %q: %v", path, cfg.TimeoutRaw, err)},
			}
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

func validateAgainstSchema(path string, doc map[string]interface{}) error {
	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return cserrors.ConfigError{
			Problems: []string{fmt.Sprintf("config file %s: %v", path, err)},
		}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(fileSchema),
		gojsonschema.NewBytesLoader(jsonDoc),
	)
	if err != nil {
		return cserrors.ConfigError{
			Problems: []string{fmt.Sprintf("config file %s: schema validation: %v", path, err)},
		}
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, fmt.Sprintf("config file %s: %s", path, strings.TrimSpace(desc.String())))
		}
		return cserrors.ConfigError{Problems: problems}
	}
	return nil
}
