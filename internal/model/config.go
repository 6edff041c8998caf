package model

import "time"

// Config is the complete runtime configuration.
// Field tags serve both viper (mapstructure) and `config show|init` (yaml).
type Config struct {
	Thresholds     ThresholdsConfig     `yaml:"thresholds" mapstructure:"thresholds"`
	UnrelatedRules UnrelatedRulesConfig `yaml:"unrelated_rules" mapstructure:"unrelated_rules"`
	Timing         TimingConfig         `yaml:"timing" mapstructure:"timing"`
	LLM            LLMConfig            `yaml:"llm" mapstructure:"llm"`
	Cache          CacheConfig          `yaml:"cache" mapstructure:"cache"`
	Store          StoreConfig          `yaml:"store" mapstructure:"store"`
	HTTP           HTTPConfig           `yaml:"http" mapstructure:"http"`
	Alert          AlertConfig          `yaml:"alert" mapstructure:"alert"`
	Publish        PublishConfig        `yaml:"publish" mapstructure:"publish"`
	Metrics        MetricsConfig        `yaml:"metrics" mapstructure:"metrics"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`

	SourcesFile string `yaml:"sources_file" mapstructure:"sources_file"`
	KillSwitch  string `yaml:"kill_switch" mapstructure:"kill_switch"`
}

// ThresholdsConfig gates which facts enter and stay in the pipeline
type ThresholdsConfig struct {
	MinConfidence     int     `yaml:"min_confidence" mapstructure:"min_confidence"`
	QueueTimeoutHours float64 `yaml:"queue_timeout_hours" mapstructure:"queue_timeout_hours"`
	Overlap           float64 `yaml:"overlap" mapstructure:"overlap"`
}

// QueueTimeout returns the queue expiry as a duration
func (t ThresholdsConfig) QueueTimeout() time.Duration {
	return time.Duration(t.QueueTimeoutHours * float64(time.Hour))
}

// UnrelatedRulesConfig controls the source independence test
type UnrelatedRulesConfig struct {
	MaxSharedTopHolders int `yaml:"max_shared_top_holders" mapstructure:"max_shared_top_holders"` // 0 makes every pair related
}

// TimingConfig controls the polling loop
type TimingConfig struct {
	ScrapeIntervalMinutes float64       `yaml:"scrape_interval_minutes" mapstructure:"scrape_interval_minutes"`
	ErrorCooldown         time.Duration `yaml:"error_cooldown" mapstructure:"error_cooldown"`
	SourceRPS             float64       `yaml:"source_rps" mapstructure:"source_rps"`
}

// ScrapeInterval returns the sleep between cycles
func (t TimingConfig) ScrapeInterval() time.Duration {
	return time.Duration(t.ScrapeIntervalMinutes * float64(time.Minute))
}

// LLMConfig configures the oracle backend
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"-" mapstructure:"api_key"` // never written to config files
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// CacheConfig configures the oracle response cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// StoreConfig configures durable state
type StoreConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"` // file, sqlite
	DataDir    string `yaml:"data_dir" mapstructure:"data_dir"`
	ArchiveDir string `yaml:"archive_dir" mapstructure:"archive_dir"`
	SQLitePath string `yaml:"sqlite_path,omitempty" mapstructure:"sqlite_path"`
}

// HTTPConfig configures the headline scraper's HTTP client
type HTTPConfig struct {
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent   string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBytes    int64         `yaml:"max_bytes" mapstructure:"max_bytes"`
	HTTPProxy   string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy  string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"` // sources scraped at once
}

// AlertConfig selects and configures the alert sink
type AlertConfig struct {
	Kind       string `yaml:"kind" mapstructure:"kind"` // log, webhook, twilio
	WebhookURL string `yaml:"webhook_url,omitempty" mapstructure:"webhook_url"`
	TwilioFrom string `yaml:"twilio_from,omitempty" mapstructure:"twilio_from"`
	TwilioTo   string `yaml:"twilio_to,omitempty" mapstructure:"twilio_to"`
}

// PublishConfig configures the publication sinks
type PublishConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// MetricsConfig configures the Prometheus listener
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"` // empty disables the listener
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // text, json
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Thresholds: ThresholdsConfig{
			MinConfidence:     85,
			QueueTimeoutHours: 3,
			Overlap:           0.15,
		},
		UnrelatedRules: UnrelatedRulesConfig{
			MaxSharedTopHolders: 2,
		},
		Timing: TimingConfig{
			ScrapeIntervalMinutes: 5,
			ErrorCooldown:         60 * time.Second,
			SourceRPS:             1,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			Timeout:   30,
			MaxTokens: 300,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     "",
			TTL:     24 * time.Hour,
		},
		Store: StoreConfig{
			Backend:    "file",
			DataDir:    "./data",
			ArchiveDir: "./archive",
		},
		HTTP: HTTPConfig{
			Timeout:     15 * time.Second,
			UserAgent:   "Corroborate/0.1 (facts only; respects robots.txt)",
			MaxBytes:    2_000_000,
			Concurrency: 4,
		},
		Alert: AlertConfig{
			Kind: "log",
		},
		Publish: PublishConfig{
			Dir: "./data",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		SourcesFile: "./sources.yaml",
		KillSwitch:  "/tmp/corroborate-stop",
	}
}
