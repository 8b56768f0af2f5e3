package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"narrahunt/internal/artifact"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Entities      []Entity  `yaml:"entities"`
	ArtifactTypes []string  `yaml:"artifact_types"`
	Keywords      []string  `yaml:"keywords"`
	Scoring       Scoring   `yaml:"scoring"`
	Promotion     Promotion `yaml:"promotion"`
	Crawler       Crawler   `yaml:"crawler"`
	LLM           LLM       `yaml:"llm"`
	Output        Output    `yaml:"output"`
	Server        Server    `yaml:"server"`
	Logging       Logging   `yaml:"logging"`
}

// Entity is a seed research target: canonical name, optional aliases, and
// the ordered source queue used for each of its matrix cells.
type Entity struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	Sources []string `yaml:"sources"`
}

type Scoring struct {
	SubtypeWeights     map[string]float64 `yaml:"subtype_weights"`
	EntityBoost        float64            `yaml:"entity_boost"`
	KeywordBoost       float64            `yaml:"keyword_boost"`
	MinPersistScore    float64            `yaml:"min_persist_score"`
	PromotionThreshold float64            `yaml:"promotion_threshold"`
	DecayFactor        float64            `yaml:"decay_factor"`
	PriorityFloor      float64            `yaml:"priority_floor"`
	DefaultCredibility float64            `yaml:"default_credibility"`
	SourceCredibility  map[string]float64 `yaml:"source_credibility"`
}

// Promotion controls the default source queue synthesized for entities
// promoted out of high-scoring discoveries. ProfileURLs and SearchTemplate
// carry one %s verb each, filled with the new entity name.
type Promotion struct {
	ProfileURLs    []string `yaml:"profile_urls"`
	SearchTemplate string   `yaml:"search_template"`
}

type Crawler struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxParallel    int    `yaml:"max_parallel"`
	SearchURL      string `yaml:"search_url"`
	UserAgent      string `yaml:"user_agent"`
}

type LLM struct {
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model"`
	OllamaURL     string  `yaml:"ollama_url"`
	OpenAIModel   string  `yaml:"openai_model"`
	APIKeyEnv     string  `yaml:"api_key_env"`
	MaxTokens     int     `yaml:"max_tokens"`
	JudgeBandLow  float64 `yaml:"judge_band_low"`
	JudgeBandHigh float64 `yaml:"judge_band_high"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for narrahunt.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "narrahunt")
}

// DataDir returns the XDG data directory for narrahunt.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "narrahunt")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/narrahunt/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'narrahunt init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses, and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML bytes into a Config, applying defaults. Unknown
// artifact types are rejected here rather than at extraction time.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		ArtifactTypes: []string{"username", "project_name", "pseudonym", "terminology", "organization"},
		Scoring: Scoring{
			SubtypeWeights: map[string]float64{
				"username":     0.6,
				"project_name": 0.7,
				"pseudonym":    0.6,
				"terminology":  0.5,
				"organization": 0.6,
				"generic":      0.4,
			},
			EntityBoost:        0.2,
			KeywordBoost:       0.1,
			MinPersistScore:    0.3,
			PromotionThreshold: 0.8,
			DecayFactor:        0.5,
			PriorityFloor:      0.01,
			DefaultCredibility: 0.8,
		},
		Promotion: Promotion{
			SearchTemplate: "%s cryptocurrency blockchain",
		},
		Crawler: Crawler{
			TimeoutSeconds: 15,
			MaxParallel:    4,
			SearchURL:      "https://html.duckduckgo.com/html/?q=%s",
			UserAgent:      "Narrahunt/1.0 (research crawler)",
		},
		LLM: LLM{
			Provider:      "ollama",
			Model:         "qwen2.5:7b",
			OllamaURL:     "http://localhost:11434",
			OpenAIModel:   "gpt-4o-mini",
			APIKeyEnv:     "OPENAI_API_KEY",
			MaxTokens:     256,
			JudgeBandLow:  0.4,
			JudgeBandHigh: 0.6,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	seen := make(map[string]bool)
	for _, e := range c.Entities {
		if e.Name == "" {
			return fmt.Errorf("entity with empty name in config")
		}
		if seen[e.Name] {
			return fmt.Errorf("duplicate entity in config: %q", e.Name)
		}
		seen[e.Name] = true
	}

	for _, s := range c.ArtifactTypes {
		if _, err := artifact.ParseType(s); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	if c.Scoring.DecayFactor <= 0 || c.Scoring.DecayFactor >= 1 {
		return fmt.Errorf("scoring.decay_factor must be in (0, 1), got %v", c.Scoring.DecayFactor)
	}
	if c.LLM.JudgeBandLow > c.LLM.JudgeBandHigh {
		return fmt.Errorf("llm.judge_band_low %v exceeds judge_band_high %v", c.LLM.JudgeBandLow, c.LLM.JudgeBandHigh)
	}
	return nil
}

// Types returns the configured artifact types as validated enum values.
func (c *Config) Types() []artifact.Type {
	types := make([]artifact.Type, 0, len(c.ArtifactTypes))
	for _, s := range c.ArtifactTypes {
		t, err := artifact.ParseType(s)
		if err != nil {
			continue // validate already rejected these
		}
		types = append(types, t)
	}
	return types
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
