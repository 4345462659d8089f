package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models choreline.yml.
type Config struct {
	Household struct {
		Name string `yaml:"name"`
	} `yaml:"household"`
	Defaults struct {
		DueDays int   `yaml:"due_days"`
		Points  int64 `yaml:"points"`
	} `yaml:"defaults"`
	Urgency struct {
		MaxVotes    int     `yaml:"max_votes"`
		RedBelow    float64 `yaml:"red_below"`
		YellowBelow float64 `yaml:"yellow_below"`
	} `yaml:"urgency"`
	Escalation struct {
		Max int `yaml:"max"`
	} `yaml:"escalation"`
	Log struct {
		DefaultLimit int `yaml:"default_limit"`
		MaxLimit     int `yaml:"max_limit"`
	} `yaml:"log"`
	Uploads struct {
		Dir      string `yaml:"dir"`
		MaxBytes int64  `yaml:"max_bytes"`
	} `yaml:"uploads"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with chore config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Household.Name == "" {
		return fmt.Errorf("config.household.name is required")
	}
	if c.Defaults.DueDays <= 0 {
		return fmt.Errorf("config.defaults.due_days must be positive")
	}
	if c.Defaults.Points < 0 {
		return fmt.Errorf("config.defaults.points must not be negative")
	}
	if c.Urgency.MaxVotes <= 0 {
		return fmt.Errorf("config.urgency.max_votes must be positive")
	}
	if c.Urgency.RedBelow < 0 || c.Urgency.RedBelow > 100 {
		return fmt.Errorf("config.urgency.red_below must be between 0 and 100")
	}
	if c.Urgency.YellowBelow < c.Urgency.RedBelow || c.Urgency.YellowBelow > 100 {
		return fmt.Errorf("config.urgency.yellow_below must be between red_below and 100")
	}
	if c.Escalation.Max <= 0 {
		return fmt.Errorf("config.escalation.max must be positive")
	}
	if c.Log.DefaultLimit <= 0 {
		return fmt.Errorf("config.log.default_limit must be positive")
	}
	if c.Log.MaxLimit < c.Log.DefaultLimit {
		return fmt.Errorf("config.log.max_limit must be at least default_limit")
	}
	if c.Uploads.Dir == "" {
		return fmt.Errorf("config.uploads.dir is required")
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("config.uploads.max_bytes must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "choreline.yml")
}

// UploadDir resolves the upload directory relative to the workspace.
func (c *Config) UploadDir(workspace string) string {
	if filepath.IsAbs(c.Uploads.Dir) {
		return c.Uploads.Dir
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, c.Uploads.Dir)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(household string) string {
	return fmt.Sprintf(defaultTemplate, household)
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

// Default returns the default Config struct for a household.
func Default(household string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(household))).Decode(&cfg)
	cfg.Household.Name = household
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// the file keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("home")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `household:
  name: %q

defaults:
  # due window for manual assignments when the task has no interval
  due_days: 7
  points: 1

urgency:
  max_votes: 5
  # percent of the interval left before the task turns red / yellow
  red_below: 15
  yellow_below: 40

escalation:
  max: 2

log:
  default_limit: 100
  max_limit: 500

uploads:
  dir: uploads
  max_bytes: 5242880
`
