// Package config loads the gate's service configuration: a YAML file with
// environment-variable overrides. The authorization policy itself lives in
// the policy document, not here.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// OAuth carries the identity provider client registration.
type OAuth struct {
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	RedirectURI   string `yaml:"redirect_uri"`
	AuthEndpoint  string `yaml:"auth_endpoint"`
	TokenEndpoint string `yaml:"token_endpoint"`
}

// Config is the service configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	UsersFile  string `yaml:"users_file"`
	PolicyFile string `yaml:"policy_file"`
	DataFile   string `yaml:"data_file"`
	DevLogin   bool   `yaml:"dev_login"`
	OAuth      OAuth  `yaml:"oauth"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		UsersFile:  "users.json",
		PolicyFile: "policy.json",
		DataFile:   "dashboard.json",
	}
}

// Load reads the YAML config at path (missing file falls back to defaults)
// and applies environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults
		case err != nil:
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.ListenAddr, "GATE_LISTEN_ADDR")
	setString(&c.UsersFile, "GATE_USERS_FILE")
	setString(&c.PolicyFile, "GATE_POLICY_FILE")
	setString(&c.DataFile, "GATE_DATA_FILE")
	if v := os.Getenv("GATE_DEV_LOGIN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DevLogin = b
		}
	}
	setString(&c.OAuth.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.OAuth.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.OAuth.RedirectURI, "GATE_REDIRECT_URI")
	setString(&c.OAuth.AuthEndpoint, "GATE_OAUTH_AUTH_ENDPOINT")
	setString(&c.OAuth.TokenEndpoint, "GATE_OAUTH_TOKEN_ENDPOINT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
