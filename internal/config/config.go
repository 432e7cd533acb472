package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Classification modes.
const (
	ModeAuto          = "auto"
	ModeExistingLists = "existing_lists"
)

// defaultConfigFiles are probed in order when no config file is given.
var defaultConfigFiles = []string{
	"config.yaml",
	"config.yml",
	".star-tidy.yaml",
	".star-tidy.yml",
}

// SummaryOptions control list description generation. AutoComplete and
// EnhanceExisting are mutually permissive: both may apply in one run.
type SummaryOptions struct {
	AutoComplete    bool `yaml:"auto_complete"`
	EnhanceExisting bool `yaml:"enhance_existing"`
	UseAISummary    bool `yaml:"use_ai_summary"`
	IncludeStats    bool `yaml:"include_stats"`
}

type Config struct {
	GitHubToken   string  `yaml:"github_token"`
	OpenAIAPIKey  string  `yaml:"openai_api_key"`
	OpenAIAPIBase string  `yaml:"openai_api_base"`
	Model         string  `yaml:"ai_model"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float32 `yaml:"temperature"`

	Mode          string   `yaml:"mode"`
	ExcludeRepos  []string `yaml:"exclude_repos"`
	BatchSize     int      `yaml:"batch_size"`
	Concurrency   int      `yaml:"concurrency"`
	MaxRetries    int      `yaml:"max_retries"`
	MultiCategory bool     `yaml:"multi_category"`
	Prune         bool     `yaml:"prune"`
	TieEpsilon    float64  `yaml:"tie_epsilon"`
	DryRun        bool     `yaml:"dry_run"`

	Summary SummaryOptions `yaml:"summary_options"`

	LogFile string `yaml:"log_file"`
}

// Load builds the configuration from defaults, then environment variables,
// then an optional YAML config file (file values win, matching the original
// precedence). path may be empty; CONFIG_FILE and a few conventional file
// names are probed before giving up on file config entirely.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		OpenAIAPIBase: "https://api.openai.com/v1",
		Model:         "gpt-4o-mini",
		Temperature:   0.3,
		Mode:          ModeAuto,
		BatchSize:     15,
		Concurrency:   4,
		MaxRetries:    3,
		TieEpsilon:    0.05,
		LogFile:       "star-tidy.log",
		Summary: SummaryOptions{
			AutoComplete:    true,
			EnhanceExisting: true,
			UseAISummary:    true,
			IncludeStats:    true,
		},
	}

	cfg.fromEnv()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		for _, candidate := range defaultConfigFiles {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	return cfg, nil
}

func (c *Config) fromEnv() {
	envStr(&c.GitHubToken, "GITHUB_TOKEN")
	envStr(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	envStr(&c.OpenAIAPIBase, "OPENAI_API_BASE")
	envStr(&c.Model, "AI_MODEL")
	envStr(&c.Mode, "STAR_TIDY_MODE")
	envStr(&c.LogFile, "STAR_TIDY_LOG_FILE")

	envInt(&c.MaxTokens, "MAX_TOKENS")
	envInt(&c.BatchSize, "BATCH_SIZE")
	envInt(&c.Concurrency, "CONCURRENCY")
	envInt(&c.MaxRetries, "MAX_RETRIES")

	if v := os.Getenv("TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			c.Temperature = float32(f)
		}
	}
	if v := os.Getenv("TIE_EPSILON"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.TieEpsilon = f
		}
	}

	envBool(&c.DryRun, "DRY_RUN")
	envBool(&c.MultiCategory, "MULTI_CATEGORY")
	envBool(&c.Prune, "PRUNE_REASSIGNED")
	envBool(&c.Summary.AutoComplete, "AUTO_COMPLETE_SUMMARIES")
	envBool(&c.Summary.EnhanceExisting, "ENHANCE_EXISTING_SUMMARIES")
	envBool(&c.Summary.UseAISummary, "USE_AI_SUMMARY")
	envBool(&c.Summary.IncludeStats, "INCLUDE_STATS")

	if v := os.Getenv("EXCLUDE_REPOS"); v != "" {
		c.ExcludeRepos = splitList(v)
	}
}

// Validate rejects configurations the run cannot work with. Called once at
// startup; the components themselves assume a valid config.
func (c *Config) Validate() error {
	var missing []string
	if c.GitHubToken == "" {
		missing = append(missing, "github_token")
	}
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "openai_api_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Mode != ModeAuto && c.Mode != ModeExistingLists {
		return fmt.Errorf("invalid mode %q (want %q or %q)", c.Mode, ModeAuto, ModeExistingLists)
	}
	if c.BatchSize < 1 || c.BatchSize > 50 {
		return fmt.Errorf("batch_size %d out of range [1,50]", c.BatchSize)
	}
	if c.Concurrency < 1 || c.Concurrency > 16 {
		return fmt.Errorf("concurrency %d out of range [1,16]", c.Concurrency)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max_retries %d out of range [0,10]", c.MaxRetries)
	}
	if c.TieEpsilon < 0 || c.TieEpsilon > 1 {
		return fmt.Errorf("tie_epsilon %f out of range [0,1]", c.TieEpsilon)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %f out of range [0,2]", c.Temperature)
	}
	return nil
}

// Redacted returns the configuration as ordered key/value pairs with
// credentials shortened, for the `config` command.
func (c *Config) Redacted() [][2]string {
	return [][2]string{
		{"github_token", redact(c.GitHubToken)},
		{"openai_api_key", redact(c.OpenAIAPIKey)},
		{"openai_api_base", c.OpenAIAPIBase},
		{"ai_model", c.Model},
		{"mode", c.Mode},
		{"batch_size", strconv.Itoa(c.BatchSize)},
		{"concurrency", strconv.Itoa(c.Concurrency)},
		{"max_retries", strconv.Itoa(c.MaxRetries)},
		{"tie_epsilon", strconv.FormatFloat(c.TieEpsilon, 'g', -1, 64)},
		{"multi_category", strconv.FormatBool(c.MultiCategory)},
		{"prune", strconv.FormatBool(c.Prune)},
		{"dry_run", strconv.FormatBool(c.DryRun)},
		{"exclude_repos", strings.Join(c.ExcludeRepos, ", ")},
		{"auto_complete_summaries", strconv.FormatBool(c.Summary.AutoComplete)},
		{"enhance_existing_summaries", strconv.FormatBool(c.Summary.EnhanceExisting)},
		{"use_ai_summary", strconv.FormatBool(c.Summary.UseAISummary)},
		{"include_stats", strconv.FormatBool(c.Summary.IncludeStats)},
		{"log_file", c.LogFile},
	}
}

func redact(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:8] + "..."
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}
