// Package config loads and validates the LeadForge configuration from a YAML
// file plus a .env overlay. Secrets only ever come from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Remote  RemoteConfig  `yaml:"remote"`
	AI      AIConfig      `yaml:"ai"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	Notion  NotionConfig  `yaml:"notion"`
	Workers WorkersConfig `yaml:"workers"`
	Queue   QueueConfig   `yaml:"queue"`
	Backup  BackupConfig  `yaml:"backup"`
	Events  EventsConfig  `yaml:"events"`
}

// ServerConfig holds HTTP listener configuration. The API and admin surfaces
// bind separate ports so operators can firewall /metrics independently.
type ServerConfig struct {
	Port      int `yaml:"port"`
	AdminPort int `yaml:"admin_port"`
}

// RemoteConfig describes the remote relational store (PostgREST-style API).
// ServiceKey is environment-only.
type RemoteConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"-"`
}

// AIConfig describes the text-model provider used for page selection and
// dimension analysis. APIKey is environment-only.
type AIConfig struct {
	Provider      string        `yaml:"provider"`
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url,omitempty"`
	APIKey        string        `yaml:"-"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
}

// SMTPConfig carries outreach delivery credentials. The composer never sends
// mail itself; the keys are validated and handed to the delivery adapter.
type SMTPConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"-"`
	Password string `yaml:"-"`
}

// NotionConfig carries the Notion export token (environment-only).
type NotionConfig struct {
	Token string `yaml:"-"`
}

// WorkersConfig sets per-work-type worker budgets.
type WorkersConfig struct {
	Prospecting     int `yaml:"prospecting"`
	AnalyzeURL      int `yaml:"analyze_url"`
	AnalyzeProspect int `yaml:"analyze_prospect"`
	ComposeOutreach int `yaml:"compose_outreach"`
	GenerateReport  int `yaml:"generate_report"`
}

// QueueConfig holds queue-wide tunables.
type QueueConfig struct {
	JournalPath   string        `yaml:"journal_path"`
	HighWaterMark int           `yaml:"high_water_mark"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`

	// Per-job wall-clock caps.
	AnalyzeTimeout  time.Duration `yaml:"analyze_timeout"`
	ProspectTimeout time.Duration `yaml:"prospect_timeout"`
	ComposeTimeout  time.Duration `yaml:"compose_timeout"`
	ReportTimeout   time.Duration `yaml:"report_timeout"`
}

// BackupConfig holds local durability settings.
type BackupConfig struct {
	Root          string `yaml:"root"`
	RetentionDays int    `yaml:"retention_days"`
}

// EventsConfig gates the NATS job-lifecycle publisher.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// Load reads the YAML config file, applies the .env overlay, environment
// overrides, and defaults, then validates.
func Load(path string) (*Config, error) {
	cfg, err := LoadLenient(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLenient loads without validating required secrets. Offline tooling that
// only touches the local backup store uses this; serve and anything that
// writes to the remote store must go through Load.
func LoadLenient(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			// Missing file is fine: everything can come from env + defaults.
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// .env overlay before reading process env.
	_ = loadEnvFile()
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnv reads environment overrides. Unknown keys in the environment are
// simply never looked at.
func (c *Config) applyEnv() {
	setString(&c.Remote.URL, "LEADFORGE_REMOTE_URL")
	setString(&c.Remote.ServiceKey, "LEADFORGE_REMOTE_SERVICE_KEY")
	setString(&c.AI.APIKey, "LEADFORGE_AI_API_KEY")
	setString(&c.AI.Provider, "LEADFORGE_AI_PROVIDER")
	setString(&c.AI.Model, "LEADFORGE_AI_MODEL")
	setString(&c.AI.BaseURL, "LEADFORGE_AI_BASE_URL")
	setString(&c.SMTP.Host, "LEADFORGE_SMTP_HOST")
	setString(&c.SMTP.Username, "LEADFORGE_SMTP_USERNAME")
	setString(&c.SMTP.Password, "LEADFORGE_SMTP_PASSWORD")
	setString(&c.Notion.Token, "LEADFORGE_NOTION_TOKEN")
	setString(&c.Backup.Root, "LEADFORGE_BACKUP_ROOT")
	setString(&c.Events.NATSURL, "LEADFORGE_NATS_URL")
	setInt(&c.Server.Port, "LEADFORGE_PORT")
	setInt(&c.Server.AdminPort, "LEADFORGE_ADMIN_PORT")
	setInt(&c.SMTP.Port, "LEADFORGE_SMTP_PORT")
	setInt(&c.Queue.HighWaterMark, "LEADFORGE_QUEUE_HIGH_WATER_MARK")
	setInt(&c.AI.MaxConcurrent, "LEADFORGE_AI_MAX_CONCURRENT")
	setInt(&c.Backup.RetentionDays, "LEADFORGE_BACKUP_RETENTION_DAYS")
	setInt(&c.Workers.Prospecting, "LEADFORGE_WORKERS_PROSPECTING")
	setInt(&c.Workers.AnalyzeURL, "LEADFORGE_WORKERS_ANALYZE_URL")
	setInt(&c.Workers.AnalyzeProspect, "LEADFORGE_WORKERS_ANALYZE_PROSPECT")
	setInt(&c.Workers.ComposeOutreach, "LEADFORGE_WORKERS_COMPOSE_OUTREACH")
	setInt(&c.Workers.GenerateReport, "LEADFORGE_WORKERS_GENERATE_REPORT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// applyDefaults fills zero values with operational defaults.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.AdminPort == 0 {
		c.Server.AdminPort = 3090
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "anthropic"
	}
	if c.AI.MaxConcurrent == 0 {
		c.AI.MaxConcurrent = 4
	}
	if c.AI.RatePerSecond == 0 {
		c.AI.RatePerSecond = 2
	}
	if c.AI.CallTimeout == 0 {
		c.AI.CallTimeout = 60 * time.Second
	}
	if c.Workers.Prospecting == 0 {
		c.Workers.Prospecting = 4
	}
	if c.Workers.AnalyzeURL == 0 {
		c.Workers.AnalyzeURL = 2
	}
	if c.Workers.AnalyzeProspect == 0 {
		c.Workers.AnalyzeProspect = 2
	}
	if c.Workers.ComposeOutreach == 0 {
		c.Workers.ComposeOutreach = 4
	}
	if c.Workers.GenerateReport == 0 {
		c.Workers.GenerateReport = 1
	}
	if c.Queue.JournalPath == "" {
		c.Queue.JournalPath = "leadforge-queue.db"
	}
	if c.Queue.HighWaterMark == 0 {
		c.Queue.HighWaterMark = 1000
	}
	if c.Queue.FetchTimeout == 0 {
		c.Queue.FetchTimeout = 15 * time.Second
	}
	if c.Queue.AnalyzeTimeout == 0 {
		c.Queue.AnalyzeTimeout = 10 * time.Minute
	}
	if c.Queue.ProspectTimeout == 0 {
		c.Queue.ProspectTimeout = 15 * time.Minute
	}
	if c.Queue.ComposeTimeout == 0 {
		c.Queue.ComposeTimeout = 5 * time.Minute
	}
	if c.Queue.ReportTimeout == 0 {
		c.Queue.ReportTimeout = 5 * time.Minute
	}
	if c.Backup.Root == "" {
		c.Backup.Root = "local-backups"
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 30
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "leadforge.jobs"
	}
}
