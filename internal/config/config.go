package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models contractdesk.yml.
type Config struct {
	Workspace struct {
		Name string `yaml:"name"`
	} `yaml:"workspace"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Activity struct {
		// Actors with no recorded activity since this many days are reported
		// as inactive. Zero disables the report.
		InactiveAfterDays int `yaml:"inactive_after_days"`
	} `yaml:"activity"`
	Push struct {
		Endpoints []PushEndpoint `yaml:"endpoints"`
	} `yaml:"push"`
}

// PushEndpoint is an external sink for the event feed.
type PushEndpoint struct {
	Name           string   `yaml:"name"`
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cdesk init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Activity.InactiveAfterDays < 0 {
		return fmt.Errorf("config.activity.inactive_after_days must not be negative")
	}
	for i, ep := range c.Push.Endpoints {
		if strings.TrimSpace(ep.URL) == "" {
			return fmt.Errorf("config.push.endpoints[%d].url is required", i)
		}
		u, err := url.Parse(ep.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("config.push.endpoints[%d].url must be an http(s) URL", i)
		}
		if ep.TimeoutSeconds < 0 {
			return fmt.Errorf("config.push.endpoints[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "contractdesk.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(name string) string {
	return fmt.Sprintf(defaultTemplate, name)
}

// Default returns the default Config struct for a workspace.
func Default(name string) *Config {
	cfg, err := FromYAML([]byte(fmt.Sprintf(defaultTemplate, name)))
	if err != nil {
		// template is static; a parse failure is a programming error
		panic(err)
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `workspace:
  name: %s

auth:
  jwt_secret: ""
  allow_legacy_actor_header: true

activity:
  inactive_after_days: 90

push:
  endpoints: []
`
