// Package config loads and saves edictl profiles.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds edictl profiles and default endpoints
type Config struct {
	CurrentProfile string              `yaml:"current_profile" mapstructure:"current_profile"`
	Profiles       map[string]*Profile `yaml:"profiles" mapstructure:"profiles"`
	Defaults       *Defaults           `yaml:"defaults" mapstructure:"defaults"`
	path           string
}

// Profile is one actor identity the CLI can act as
type Profile struct {
	APIURL      string `yaml:"api_url" mapstructure:"api_url"`
	NATSURL     string `yaml:"nats_url" mapstructure:"nats_url"`
	Token       string `yaml:"token" mapstructure:"token"`
	ActorNumber string `yaml:"actor_number" mapstructure:"actor_number"`
	Role        string `yaml:"role" mapstructure:"role"`
}

// Defaults holds endpoints used when a profile does not set them
type Defaults struct {
	APIURL  string `yaml:"api_url" mapstructure:"api_url"`
	NATSURL string `yaml:"nats_url" mapstructure:"nats_url"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		CurrentProfile: "default",
		Profiles:       make(map[string]*Profile),
		Defaults: &Defaults{
			APIURL:  "http://localhost:8090",
			NATSURL: "nats://localhost:4222",
		},
	}
}

// DefaultPath returns $EDICTL_CONFIG_DIR/config.yaml, falling back to
// $HOME/.edictl/config.yaml.
func DefaultPath() (string, error) {
	dir := os.Getenv("EDICTL_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".edictl")
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads cfgFile (or the default path). A missing file yields the
// defaults. EDICTL_API_URL and EDICTL_NATS_URL override the default
// endpoints.
func Load(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		cfgFile = p
	}

	v := viper.New()
	def := Default()
	v.SetDefault("current_profile", def.CurrentProfile)
	v.SetDefault("defaults.api_url", def.Defaults.APIURL)
	v.SetDefault("defaults.nats_url", def.Defaults.NATSURL)

	v.SetConfigFile(cfgFile)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("EDICTL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// viper needs explicit bindings for nested keys
	_ = v.BindEnv("defaults.api_url", "EDICTL_API_URL")
	_ = v.BindEnv("defaults.nats_url", "EDICTL_NATS_URL")

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := def
	cfg.path = cfgFile
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*Profile)
	}
	if cfg.Defaults == nil {
		cfg.Defaults = Default().Defaults
	}
	return cfg, nil
}

// Path returns the file the config is saved to.
func (c *Config) Path() string { return c.path }

// Save writes the config to disk
func (c *Config) Save() error {
	if c.path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		c.path = p
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(c.path, data, 0600)
}

// SaveProfile stores a profile and makes it current
func (c *Config) SaveProfile(name string, p *Profile) error {
	if c.Profiles == nil {
		c.Profiles = make(map[string]*Profile)
	}
	c.Profiles[name] = p
	c.CurrentProfile = name
	return c.Save()
}

// GetProfile retrieves a profile by name (or the current profile if name is empty)
func (c *Config) GetProfile(name string) (*Profile, error) {
	if name == "" {
		name = c.CurrentProfile
	}

	profile, ok := c.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile '%s' not found", name)
	}

	return profile, nil
}

// RemoveProfile removes a profile from the configuration
func (c *Config) RemoveProfile(name string) error {
	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("profile '%s' not found", name)
	}

	delete(c.Profiles, name)

	if c.CurrentProfile == name {
		c.CurrentProfile = ""
	}

	return c.Save()
}

// APIURL returns the API URL from the profile or the defaults
func (c *Config) APIURL(profile string) string {
	if p, err := c.GetProfile(profile); err == nil && p.APIURL != "" {
		return p.APIURL
	}
	return c.Defaults.APIURL
}

// NATSURL returns the NATS URL from the profile or the defaults
func (c *Config) NATSURL(profile string) string {
	if p, err := c.GetProfile(profile); err == nil && p.NATSURL != "" {
		return p.NATSURL
	}
	return c.Defaults.NATSURL
}
