package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "DIGEST_CONFIG"
	databasePathEnv   = "DATABASE_PATH"
	logLevelEnv       = "LOG_LEVEL"
	chatGPTAPIKeyEnv  = "CHATGPT_API_KEY"
	chatGPTModelEnv   = "CHATGPT_MODEL"
	chatGPTEndpoint   = "CHATGPT_ENDPOINT"
	newsAPIKeyEnv     = "NEWS_API_KEY"
	emailHostEnv      = "EMAIL_HOST"
	emailPortEnv      = "EMAIL_PORT"
	emailUsernameEnv  = "EMAIL_USERNAME"
	emailPasswordEnv  = "EMAIL_PASSWORD"
	emailFromEnv      = "EMAIL_FROM"
	emailSSLEnv       = "EMAIL_SSL"
	searchProviderEnv = "SEARCH_PROVIDER"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	ChatGPT  ChatGPTConfig  `yaml:"chatgpt"`
	Search   SearchConfig   `yaml:"search"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Condense CondenseConfig `yaml:"condense"`
	Render   RenderConfig   `yaml:"render"`
	Mail     MailConfig     `yaml:"mail"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// LoggingConfig selects slog level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig points at the SQLite file holding recipients and delivery history.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig bounds every outbound HTTP call.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// SearchConfig selects the search backend and its options.
type SearchConfig struct {
	Provider      string        `yaml:"provider"`
	PageSize      int           `yaml:"pageSize"`
	ExtractBodies bool          `yaml:"extractBodies"`
	BodyMaxChars  int           `yaml:"bodyMaxChars"`
	NewsAPI       NewsAPIConfig `yaml:"newsapi"`
	Arxiv         ArxivConfig   `yaml:"arxiv"`
}

// NewsAPIConfig wires the NewsAPI "everything" endpoint.
type NewsAPIConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// ArxivConfig points at the arXiv search page.
type ArxivConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// FetchConfig tunes the content fetcher.
type FetchConfig struct {
	QueriesPerTopic  int           `yaml:"queriesPerTopic"`
	MaxItemsPerTopic int           `yaml:"maxItemsPerTopic"`
	Concurrency      int           `yaml:"concurrency"`
	CallTimeout      time.Duration `yaml:"callTimeout"`
}

// CondenseConfig tunes synopsis generation.
type CondenseConfig struct {
	MaxSynopsisWords int           `yaml:"maxSynopsisWords"`
	IncludeRelevance *bool         `yaml:"includeRelevance"`
	Concurrency      int           `yaml:"concurrency"`
	CallTimeout      time.Duration `yaml:"callTimeout"`
}

// Relevance reports whether relevance notes are requested (default true).
func (c CondenseConfig) Relevance() bool {
	return c.IncludeRelevance == nil || *c.IncludeRelevance
}

// RenderConfig selects the document template and date presentation.
type RenderConfig struct {
	Template    string         `yaml:"template"`
	TemplateDir string         `yaml:"templateDir"`
	DateLayout  string         `yaml:"dateLayout"`
	Timezone    string         `yaml:"timezone"`
	CallTimeout time.Duration  `yaml:"callTimeout"`
	location    *time.Location `yaml:"-"`
}

// Location resolves the render timezone string to a time.Location.
func (r RenderConfig) Location() *time.Location {
	if r.location != nil {
		return r.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// MailConfig holds SMTP credentials; incomplete credentials mean simulated delivery.
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// SSL selects implicit TLS (SMTPS). Port 465 implies it.
	SSL bool `yaml:"ssl"`
}

// ImplicitTLS reports whether the mail connection speaks TLS from the first byte.
func (m MailConfig) ImplicitTLS() bool {
	return m.SSL || m.Port == 465
}

// PipelineConfig holds run defaults.
type PipelineConfig struct {
	DefaultChannel  string `yaml:"defaultChannel"`
	DefaultLanguage string `yaml:"defaultLanguage"`
	Concurrency     int    `yaml:"concurrency"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := Default()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}
	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.ChatGPT.Model = v
	}
	if v := os.Getenv(chatGPTEndpoint); v != "" {
		c.ChatGPT.Endpoint = v
	}

	if v := os.Getenv(newsAPIKeyEnv); v != "" {
		c.Search.NewsAPI.APIKey = v
	}
	if v := os.Getenv(searchProviderEnv); v != "" {
		c.Search.Provider = v
	}

	if v := os.Getenv(emailHostEnv); v != "" {
		c.Mail.Host = v
	}
	if v := os.Getenv(emailPortEnv); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Mail.Port = port
		} else {
			log.Printf("config: invalid %s %q: %v", emailPortEnv, v, err)
		}
	}
	if v := os.Getenv(emailUsernameEnv); v != "" {
		c.Mail.Username = v
	}
	if v := os.Getenv(emailPasswordEnv); v != "" {
		c.Mail.Password = v
	}
	if v := os.Getenv(emailFromEnv); v != "" {
		c.Mail.From = v
	}
	if v := os.Getenv(emailSSLEnv); v != "" {
		if ssl, err := strconv.ParseBool(v); err == nil {
			c.Mail.SSL = ssl
		} else {
			log.Printf("config: invalid %s %q: %v", emailSSLEnv, v, err)
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Render.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Render.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.Path != "" {
		base.Database = override.Database
	}
	if override.HTTP.Timeout > 0 {
		base.HTTP.Timeout = override.HTTP.Timeout
	}

	if override.ChatGPT.Endpoint != "" {
		base.ChatGPT.Endpoint = override.ChatGPT.Endpoint
	}
	if override.ChatGPT.Model != "" {
		base.ChatGPT.Model = override.ChatGPT.Model
	}
	if override.ChatGPT.APIKey != "" {
		base.ChatGPT.APIKey = override.ChatGPT.APIKey
	}

	base.Search = mergeSearch(base.Search, override.Search)

	if override.Fetch.QueriesPerTopic > 0 {
		base.Fetch.QueriesPerTopic = override.Fetch.QueriesPerTopic
	}
	if override.Fetch.MaxItemsPerTopic > 0 {
		base.Fetch.MaxItemsPerTopic = override.Fetch.MaxItemsPerTopic
	}
	if override.Fetch.Concurrency > 0 {
		base.Fetch.Concurrency = override.Fetch.Concurrency
	}
	if override.Fetch.CallTimeout > 0 {
		base.Fetch.CallTimeout = override.Fetch.CallTimeout
	}

	if override.Condense.MaxSynopsisWords > 0 {
		base.Condense.MaxSynopsisWords = override.Condense.MaxSynopsisWords
	}
	if override.Condense.IncludeRelevance != nil {
		base.Condense.IncludeRelevance = override.Condense.IncludeRelevance
	}
	if override.Condense.Concurrency > 0 {
		base.Condense.Concurrency = override.Condense.Concurrency
	}
	if override.Condense.CallTimeout > 0 {
		base.Condense.CallTimeout = override.Condense.CallTimeout
	}

	if override.Render.Template != "" {
		base.Render.Template = override.Render.Template
	}
	if override.Render.TemplateDir != "" {
		base.Render.TemplateDir = override.Render.TemplateDir
	}
	if override.Render.DateLayout != "" {
		base.Render.DateLayout = override.Render.DateLayout
	}
	if override.Render.Timezone != "" {
		base.Render.Timezone = override.Render.Timezone
	}
	if override.Render.CallTimeout > 0 {
		base.Render.CallTimeout = override.Render.CallTimeout
	}

	if override.Mail.Host != "" {
		base.Mail.Host = override.Mail.Host
	}
	if override.Mail.Port > 0 {
		base.Mail.Port = override.Mail.Port
	}
	if override.Mail.Username != "" {
		base.Mail.Username = override.Mail.Username
	}
	if override.Mail.Password != "" {
		base.Mail.Password = override.Mail.Password
	}
	if override.Mail.From != "" {
		base.Mail.From = override.Mail.From
	}
	if override.Mail.SSL {
		base.Mail.SSL = true
	}

	if override.Pipeline.DefaultChannel != "" {
		base.Pipeline.DefaultChannel = override.Pipeline.DefaultChannel
	}
	if override.Pipeline.DefaultLanguage != "" {
		base.Pipeline.DefaultLanguage = override.Pipeline.DefaultLanguage
	}
	if override.Pipeline.Concurrency > 0 {
		base.Pipeline.Concurrency = override.Pipeline.Concurrency
	}

	return base
}

func mergeSearch(base, override SearchConfig) SearchConfig {
	if override.Provider != "" {
		base.Provider = override.Provider
	}
	if override.PageSize > 0 {
		base.PageSize = override.PageSize
	}
	if override.ExtractBodies {
		base.ExtractBodies = true
	}
	if override.BodyMaxChars > 0 {
		base.BodyMaxChars = override.BodyMaxChars
	}
	if override.NewsAPI.Endpoint != "" {
		base.NewsAPI.Endpoint = override.NewsAPI.Endpoint
	}
	if override.NewsAPI.APIKey != "" {
		base.NewsAPI.APIKey = override.NewsAPI.APIKey
	}
	if override.Arxiv.Endpoint != "" {
		base.Arxiv.Endpoint = override.Arxiv.Endpoint
	}
	return base
}

// Default returns the built-in configuration without file or environment input.
func Default() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Path: "digest.db"},
		HTTP:     HTTPConfig{Timeout: 30 * time.Second},
		ChatGPT: ChatGPTConfig{
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
		},
		Search: SearchConfig{
			Provider:     "newsapi",
			PageSize:     5,
			BodyMaxChars: 4000,
			NewsAPI:      NewsAPIConfig{Endpoint: "https://newsapi.org/v2/everything"},
			Arxiv:        ArxivConfig{Endpoint: "https://arxiv.org/search/"},
		},
		Fetch: FetchConfig{
			QueriesPerTopic:  3,
			MaxItemsPerTopic: 3,
			Concurrency:      4,
			CallTimeout:      30 * time.Second,
		},
		Condense: CondenseConfig{
			MaxSynopsisWords: 150,
			Concurrency:      4,
			CallTimeout:      30 * time.Second,
		},
		Render: RenderConfig{
			Template:    "default",
			DateLayout:  "January 2, 2006",
			Timezone:    defaultTimezone,
			CallTimeout: 30 * time.Second,
			location:    tz,
		},
		Mail: MailConfig{Port: 587},
		Pipeline: PipelineConfig{
			DefaultChannel:  "mail",
			DefaultLanguage: "en",
			Concurrency:     2,
		},
	}
}
