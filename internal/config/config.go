package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all settings for the sync, cross-reference, cleanup and
// analytics runs. Every field has a default: a missing config file is not an
// error, the core runs on defaults.
type Config struct {
	Neo4j      Neo4jConfig      `yaml:"neo4j" mapstructure:"neo4j"`
	Jira       JiraConfig       `yaml:"jira" mapstructure:"jira"`
	GitHub     GitHubConfig     `yaml:"github" mapstructure:"github"`
	Staging    StagingConfig    `yaml:"staging" mapstructure:"staging"`
	Processing ProcessingConfig `yaml:"processing" mapstructure:"processing"`
	RunState   RunStateConfig   `yaml:"run_state" mapstructure:"run_state"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

type JiraConfig struct {
	BaseURL               string   `yaml:"base_url" mapstructure:"base_url"`
	Username              string   `yaml:"username" mapstructure:"username"`
	Token                 string   `yaml:"token" mapstructure:"token"`
	Projects              []string `yaml:"projects" mapstructure:"projects"`
	BatchSize             int      `yaml:"batch_size" mapstructure:"batch_size"`
	RateLimitDelaySeconds float64  `yaml:"rate_limit_delay_seconds" mapstructure:"rate_limit_delay_seconds"`
	UpdatedSinceDays      int      `yaml:"updated_since_days" mapstructure:"updated_since_days"`
}

// RepoGroup assigns a repository category to a set of full names. Order
// matters: the first group containing a repository wins.
type RepoGroup struct {
	Category     string   `yaml:"category" mapstructure:"category"`
	Repositories []string `yaml:"repositories" mapstructure:"repositories"`
}

type GitHubConfig struct {
	Token                 string      `yaml:"token" mapstructure:"token"`
	Repositories          []RepoGroup `yaml:"repositories" mapstructure:"repositories"`
	CollectionOrgs        []string    `yaml:"collection_orgs" mapstructure:"collection_orgs"`
	ExcludeLabels         []string    `yaml:"exclude_labels" mapstructure:"exclude_labels"`
	BatchSize             int         `yaml:"batch_size" mapstructure:"batch_size"`
	RateLimitDelaySeconds float64     `yaml:"rate_limit_delay_seconds" mapstructure:"rate_limit_delay_seconds"`
	UpdatedSinceDays      int         `yaml:"updated_since_days" mapstructure:"updated_since_days"`
	OrgSampleRepos        int         `yaml:"org_sample_repos" mapstructure:"org_sample_repos"`
}

// StagingConfig points at the optional Postgres staging store. Empty DSN
// disables staging; all runs work without it.
type StagingConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// Pattern is one reference-extraction rule: a regular expression plus the
// capture group that holds the identifier (0 = whole match).
type Pattern struct {
	Regex string `yaml:"regex" mapstructure:"regex"`
	Group int    `yaml:"group" mapstructure:"group"`
}

// TechPattern maps a regular expression to a technology tag. An empty Tag
// means "use the first capture group, lowercased" so vocabulary patterns like
// \b(ansible|python)\b emit one tag per distinct match.
type TechPattern struct {
	Regex string `yaml:"regex" mapstructure:"regex"`
	Tag   string `yaml:"tag" mapstructure:"tag"`
}

// ComponentRule maps a repository-name substring to a component category.
// First matching rule wins.
type ComponentRule struct {
	Match    string `yaml:"match" mapstructure:"match"`
	Category string `yaml:"category" mapstructure:"category"`
}

type ProcessingConfig struct {
	RetentionWindowDays   int             `yaml:"retention_window_days" mapstructure:"retention_window_days"`
	OrphanWindowDays      int             `yaml:"orphan_window_days" mapstructure:"orphan_window_days"`
	JiraReferencePatterns []Pattern       `yaml:"jira_reference_patterns" mapstructure:"jira_reference_patterns"`
	TechnologyPatterns    []TechPattern   `yaml:"technology_patterns" mapstructure:"technology_patterns"`
	ComponentMapping      []ComponentRule `yaml:"component_mapping" mapstructure:"component_mapping"`
}

type RunStateConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Jira: JiraConfig{
			BatchSize:             100,
			RateLimitDelaySeconds: 1,
			UpdatedSinceDays:      1,
		},
		GitHub: GitHubConfig{
			BatchSize:             100,
			RateLimitDelaySeconds: 1,
			UpdatedSinceDays:      1,
			OrgSampleRepos:        10,
		},
		Processing: ProcessingConfig{
			RetentionWindowDays: 90,
			OrphanWindowDays:    30,
			JiraReferencePatterns: []Pattern{
				{Regex: `\b([A-Z][A-Z0-9]+-\d+)\b`, Group: 1},
				{Regex: `JIRA[:\s]+([A-Z][A-Z0-9]+-\d+)`, Group: 1},
				{Regex: `jira\.[^\s]*?([A-Z][A-Z0-9]+-\d+)`, Group: 1},
			},
			TechnologyPatterns: []TechPattern{
				{Regex: `(?i)\b(ansible|python|kubernetes|openshift|docker|podman)\b`},
				{Regex: `(?i)\b(terraform|helm|yaml|json|api)\b`},
				{Regex: `(?i)\b(automation|devops|ci/cd|pipeline)\b`},
			},
			ComponentMapping: []ComponentRule{
				{Match: "ansible", Category: "automation-platform"},
				{Match: "automation", Category: "automation-platform"},
				{Match: "aap", Category: "automation-platform"},
				{Match: "kubernetes", Category: "container-platform"},
				{Match: "openshift", Category: "container-platform"},
				{Match: "k8s", Category: "container-platform"},
				{Match: "pipeline", Category: "ci-cd"},
				{Match: "jenkins", Category: "ci-cd"},
				{Match: "tekton", Category: "ci-cd"},
				{Match: "terraform", Category: "infrastructure"},
				{Match: "infrastructure", Category: "infrastructure"},
			},
		},
		RunState: RunStateConfig{
			Path: filepath.Join(homeDir, ".tracegraph", "runs.db"),
		},
	}
}

// Load reads configuration from path, falling back to defaults for anything
// missing. A nonexistent file is not an error. Environment variables override
// file values for credentials.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v := viper.New()
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
			if err := v.Unmarshal(cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	applyFloors(cfg)
	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence (closest wins).
func loadEnvFiles() {
	candidates := []string{".env", ".env.local"}
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Neo4j.URI, "NEO4J_URI")
	set(&cfg.Neo4j.Username, "NEO4J_USER")
	set(&cfg.Neo4j.Password, "NEO4J_PASSWORD")
	set(&cfg.Neo4j.Database, "NEO4J_DATABASE")
	set(&cfg.Jira.BaseURL, "JIRA_URL")
	set(&cfg.Jira.Username, "JIRA_USERNAME")
	set(&cfg.Jira.Token, "JIRA_API_TOKEN")
	set(&cfg.GitHub.Token, "GITHUB_TOKEN")
	set(&cfg.Staging.DSN, "STAGING_DSN")

	// Tokens absent from env and file fall through to the OS keychain.
	if cfg.Jira.Token == "" {
		if v, err := GetSecret(SecretJiraToken); err == nil {
			cfg.Jira.Token = v
		}
	}
	if cfg.GitHub.Token == "" {
		if v, err := GetSecret(SecretGitHubToken); err == nil {
			cfg.GitHub.Token = v
		}
	}
	if cfg.Neo4j.Password == "" {
		if v, err := GetSecret(SecretNeo4jPassword); err == nil {
			cfg.Neo4j.Password = v
		}
	}
}

// applyFloors restores defaults for zero-valued knobs so a sparse config file
// cannot disable paging or windows by accident.
func applyFloors(cfg *Config) {
	def := Default()
	if cfg.Jira.BatchSize <= 0 {
		cfg.Jira.BatchSize = def.Jira.BatchSize
	}
	if cfg.GitHub.BatchSize <= 0 {
		cfg.GitHub.BatchSize = def.GitHub.BatchSize
	}
	if cfg.Processing.RetentionWindowDays <= 0 {
		cfg.Processing.RetentionWindowDays = def.Processing.RetentionWindowDays
	}
	if cfg.Processing.OrphanWindowDays <= 0 {
		cfg.Processing.OrphanWindowDays = def.Processing.OrphanWindowDays
	}
	if len(cfg.Processing.JiraReferencePatterns) == 0 {
		cfg.Processing.JiraReferencePatterns = def.Processing.JiraReferencePatterns
	}
	if len(cfg.Processing.TechnologyPatterns) == 0 {
		cfg.Processing.TechnologyPatterns = def.Processing.TechnologyPatterns
	}
	if len(cfg.Processing.ComponentMapping) == 0 {
		cfg.Processing.ComponentMapping = def.Processing.ComponentMapping
	}
	if cfg.RunState.Path == "" {
		cfg.RunState.Path = def.RunState.Path
	}
}

// Save writes the configuration to path as YAML. Credentials already moved to
// the keychain are not written back.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
