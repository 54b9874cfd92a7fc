// Package config loads adapter configuration from acp.yaml with environment
// variable overrides. Missing config files are not an error; defaults apply.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhubert/acp-core/logger"
	"github.com/zhubert/acp-core/paths"
)

// Permission modes for agent-requested side effects.
const (
	ModeAutoApprove = "auto_approve"
	ModeDenyAll     = "deny_all"
	ModeAllowlist   = "allowlist"
	ModeInteractive = "interactive"
)

// Defaults applied when neither file nor environment specifies a value.
const (
	DefaultAgentCommand = "gemini"
	DefaultTimeout      = 300 * time.Second
	DefaultMode         = ModeAutoApprove
)

// validModes is the set of recognized permission modes.
var validModes = map[string]bool{
	ModeAutoApprove: true,
	ModeDenyAll:     true,
	ModeAllowlist:   true,
	ModeInteractive: true,
}

// Config holds the adapter's runtime configuration.
type Config struct {
	// AgentCommand is the agent executable to spawn (name or path).
	AgentCommand string `yaml:"agent"`

	// AgentArgs are extra arguments passed to the agent, before any
	// vendor-specific ACP flags the adapter appends.
	AgentArgs []string `yaml:"agent_args"`

	// Timeout bounds each prompt round trip.
	Timeout time.Duration `yaml:"timeout"`

	// PermissionMode selects how session/request_permission is answered.
	PermissionMode string `yaml:"permission_mode"`

	// PermissionAllowlist lists tool name patterns approved in allowlist
	// mode. A pattern matches by glob or substring.
	PermissionAllowlist []string `yaml:"permission_allowlist"`

	// Verbose enables debug-level logging.
	Verbose bool `yaml:"verbose"`
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	return &Config{
		AgentCommand:   DefaultAgentCommand,
		Timeout:        DefaultTimeout,
		PermissionMode: DefaultMode,
	}
}

// Load reads acp.yaml from the config directory, falls back to defaults for
// anything unset, then applies environment overrides. A missing file is fine;
// a malformed file is an error.
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom reads configuration from an explicit yaml path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		var file fileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		file.apply(cfg)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fileConfig mirrors Config with pointer fields so "unset" is distinguishable
// from zero values, and timeout expressed in seconds as in the yaml file.
type fileConfig struct {
	Agent               *string  `yaml:"agent"`
	AgentArgs           []string `yaml:"agent_args"`
	TimeoutSeconds      *int     `yaml:"timeout"`
	PermissionMode      *string  `yaml:"permission_mode"`
	PermissionAllowlist []string `yaml:"permission_allowlist"`
	Verbose             *bool    `yaml:"verbose"`
}

func (f *fileConfig) apply(cfg *Config) {
	if f.Agent != nil && *f.Agent != "" {
		cfg.AgentCommand = *f.Agent
	}
	if f.AgentArgs != nil {
		cfg.AgentArgs = f.AgentArgs
	}
	if f.TimeoutSeconds != nil && *f.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(*f.TimeoutSeconds) * time.Second
	}
	if f.PermissionMode != nil && *f.PermissionMode != "" {
		cfg.PermissionMode = *f.PermissionMode
	}
	if f.PermissionAllowlist != nil {
		cfg.PermissionAllowlist = f.PermissionAllowlist
	}
	if f.Verbose != nil {
		cfg.Verbose = *f.Verbose
	}
}

// applyEnv overlays ACP_* environment variables. Invalid values are logged
// and ignored rather than failing the load.
func (c *Config) applyEnv() {
	log := logger.WithComponent("config")

	if v := os.Getenv("ACP_AGENT"); v != "" {
		c.AgentCommand = v
	}
	if v := os.Getenv("ACP_AGENT_ARGS"); v != "" {
		c.AgentArgs = strings.Fields(v)
	}
	if v := os.Getenv("ACP_PERMISSION_MODE"); v != "" {
		if validModes[v] {
			c.PermissionMode = v
		} else {
			log.Warn("ignoring invalid ACP_PERMISSION_MODE", "value", v)
		}
	}
	if v := os.Getenv("ACP_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			log.Warn("ignoring invalid ACP_TIMEOUT", "value", v)
		} else {
			c.Timeout = time.Duration(secs) * time.Second
		}
	}
}

// Validate checks field values for consistency.
func (c *Config) Validate() error {
	if c.AgentCommand == "" {
		return fmt.Errorf("agent command must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if !validModes[c.PermissionMode] {
		return fmt.Errorf("unknown permission mode %q", c.PermissionMode)
	}
	return nil
}
