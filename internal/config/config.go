package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Source types understood by the fetcher registry.
const (
	SourceArxiv          = "arxiv"
	SourceHFPapers       = "hf_papers"
	SourceActuIA         = "actuia"
	SourceYouTube        = "youtube"
	SourceInsuranceTimes = "insurance_times"
)

// Subject categories.
const (
	CategoryTechno        = "[Techno Monitoring]"
	CategoryBusiness      = "[Business Monitoring]"
	CategoryEntertainment = "[Entertainment Monitoring]"
)

type Config struct {
	DataDir      string          `yaml:"data_dir" toml:"data_dir"`
	DocumentsDir string          `yaml:"documents_dir" toml:"documents_dir"`
	Schedule     string          `yaml:"schedule" toml:"schedule"`
	RunOnStart   bool            `yaml:"run_on_start" toml:"run_on_start"`
	Logging      LoggingConfig   `yaml:"logging" toml:"logging"`
	Models       ModelsConfig    `yaml:"models" toml:"models"`
	Templates    TemplatesConfig `yaml:"templates" toml:"templates"`
	Publisher    PublisherConfig `yaml:"publisher" toml:"publisher"`
	Digest       DigestConfig    `yaml:"digest" toml:"digest"`
	Sources      []SourceConfig  `yaml:"sources" toml:"sources" validate:"required,min=1,dive"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=console json"`
}

type ModelsConfig struct {
	Primary         string `yaml:"primary" toml:"primary" validate:"required"`
	Secondary       string `yaml:"secondary" toml:"secondary" validate:"required"`
	GeminiAPIKey    string `yaml:"gemini_api_key" toml:"gemini_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key" toml:"anthropic_api_key"`
	MaxTokens       int    `yaml:"max_tokens" toml:"max_tokens" validate:"gt=0"`
	CallTimeout     string `yaml:"call_timeout" toml:"call_timeout"`
	Delay           string `yaml:"delay" toml:"delay"`
}

// CallTimeoutDuration returns the per-call deadline. Load guarantees it parses.
func (m ModelsConfig) CallTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(m.CallTimeout)
	return d
}

// DelayDuration returns the pause between two summarized items.
func (m ModelsConfig) DelayDuration() time.Duration {
	d, _ := time.ParseDuration(m.Delay)
	return d
}

// TemplatesConfig points at a directory whose files override the built-in
// prompt templates by name (paper.tmpl, article.tmpl, video_techno.tmpl, ...).
type TemplatesConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// DigestConfig overrides the notification table layout per field name.
type DigestConfig struct {
	Columns map[string]ColumnConfig `yaml:"columns" toml:"columns" validate:"dive"`
}

type ColumnConfig struct {
	Width string `yaml:"width" toml:"width"`
	Align string `yaml:"align" toml:"align" validate:"omitempty,oneof=left center right"`
}

type PublisherConfig struct {
	Types   []string      `yaml:"types" toml:"types" validate:"dive,oneof=stdout email web discord"`
	Email   EmailConfig   `yaml:"email" toml:"email"`
	Web     WebConfig     `yaml:"web" toml:"web"`
	Discord DiscordConfig `yaml:"discord" toml:"discord"`
}

// Enabled reports whether the publisher type t is configured.
func (p PublisherConfig) Enabled(t string) bool {
	for _, pt := range p.Types {
		if pt == t {
			return true
		}
	}
	return false
}

type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url" toml:"webhook_url"`
}

type EmailConfig struct {
	SMTPHost           string   `yaml:"smtp_host" toml:"smtp_host"`
	SMTPPort           int      `yaml:"smtp_port" toml:"smtp_port"`
	Username           string   `yaml:"username" toml:"username"`
	Password           string   `yaml:"password" toml:"password"`
	From               string   `yaml:"from" toml:"from"`
	To                 []string `yaml:"to" toml:"to" validate:"dive,email"`
	ImplicitTLS        bool     `yaml:"implicit_tls" toml:"implicit_tls"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`
}

type WebConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// SourceConfig describes one monitored source and its dataset.
type SourceConfig struct {
	ID           string            `yaml:"id" toml:"id" validate:"required"`
	Name         string            `yaml:"name" toml:"name"`
	Type         string            `yaml:"type" toml:"type" validate:"required,oneof=arxiv hf_papers actuia youtube insurance_times"`
	URL          string            `yaml:"url" toml:"url"`
	KeyField     string            `yaml:"key_field" toml:"key_field"`
	IgnoreFields []string          `yaml:"ignore_fields" toml:"ignore_fields"`
	Summarize    *bool             `yaml:"summarize" toml:"summarize"`
	Category     string            `yaml:"category" toml:"category"`
	Template     string            `yaml:"template" toml:"template"`
	Delay        string            `yaml:"delay" toml:"delay"`
	MaxResults   int               `yaml:"max_results" toml:"max_results" validate:"gte=0"`
	Recipients   []string          `yaml:"recipients" toml:"recipients" validate:"dive,email"`
	Options      map[string]string `yaml:"options" toml:"options"`
}

// SummarizeEnabled reports whether items of the source go through the models.
func (s SourceConfig) SummarizeEnabled() bool {
	return s.Summarize == nil || *s.Summarize
}

// Option returns the named adapter option, or def.
func (s SourceConfig) Option(name, def string) string {
	if v, ok := s.Options[name]; ok && v != "" {
		return v
	}
	return def
}

// DelayDuration returns the source's pacing override, or fallback.
func (s SourceConfig) DelayDuration(fallback time.Duration) time.Duration {
	if s.Delay == "" {
		return fallback
	}
	d, _ := time.ParseDuration(s.Delay)
	return d
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func setDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.DocumentsDir == "" {
		cfg.DocumentsDir = "tmp_raw_sources"
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 7 * * *"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Models.Primary == "" {
		cfg.Models.Primary = "gemini-2.5-pro"
	}
	if cfg.Models.Secondary == "" {
		cfg.Models.Secondary = "gemini-2.5-flash"
	}
	if cfg.Models.MaxTokens == 0 {
		cfg.Models.MaxTokens = 8192
	}
	if cfg.Models.CallTimeout == "" {
		cfg.Models.CallTimeout = "2m"
	}
	if cfg.Models.Delay == "" {
		cfg.Models.Delay = "3s"
	}
	if len(cfg.Publisher.Types) == 0 {
		cfg.Publisher.Types = []string{"stdout"}
	}
	if cfg.Publisher.Web.Addr == "" {
		cfg.Publisher.Web.Addr = ":8080"
	}
	if cfg.Publisher.Email.SMTPPort == 0 {
		cfg.Publisher.Email.SMTPPort = 587
	}

	for i := range cfg.Sources {
		s := &cfg.Sources[i]
		if s.Name == "" {
			s.Name = s.ID
		}
		if s.KeyField == "" {
			s.KeyField = "link"
			if s.Type == SourceYouTube {
				s.KeyField = "id"
			}
		}
		if s.IgnoreFields == nil {
			s.IgnoreFields = defaultIgnoreFields(s.Type)
		}
		if s.Category == "" {
			s.Category = CategoryTechno
			switch {
			case s.Type == SourceYouTube && s.Option("category", "") == "entertainment":
				s.Category = CategoryEntertainment
			case s.Type == SourceInsuranceTimes:
				s.Category = CategoryBusiness
			}
		}
		if s.MaxResults == 0 {
			s.MaxResults = 10
		}
		if len(s.Recipients) == 0 {
			s.Recipients = cfg.Publisher.Email.To
		}
	}
}

func defaultIgnoreFields(sourceType string) []string {
	switch sourceType {
	case SourceHFPapers:
		return []string{"id", "pdf_path"}
	case SourceActuIA, SourceInsuranceTimes:
		return []string{"content", "link"}
	case SourceArxiv:
		return []string{"content"}
	case SourceYouTube:
		return []string{"id", "transcript", "link"}
	}
	return nil
}

// itemFields lists the fields the adapter of each source type fills in. The
// key field must be one of them or every item would be dropped as keyless.
var itemFields = map[string][]string{
	SourceArxiv:          {"id", "title", "author", "date", "link", "content"},
	SourceHFPapers:       {"id", "title", "authors", "link", "pdf_path"},
	SourceActuIA:         {"title", "author", "thumbnailUrl", "date", "link", "content"},
	SourceInsuranceTimes: {"title", "author", "thumbnailUrl", "date", "link", "content"},
	SourceYouTube:        {"channelName", "title", "description", "date", "thumbnailUrl", "id", "link", "transcript"},
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: invalid %s (%s=%s)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("config: %w", err)
	}

	for _, d := range []struct{ name, value string }{
		{"models.call_timeout", cfg.Models.CallTimeout},
		{"models.delay", cfg.Models.Delay},
	} {
		if v, err := time.ParseDuration(d.value); err != nil || v < 0 {
			return fmt.Errorf("config: %s %q is not a valid duration", d.name, d.value)
		}
	}

	ids := make(map[string]bool, len(cfg.Sources))
	summarizing := false
	for _, s := range cfg.Sources {
		if ids[s.ID] {
			return fmt.Errorf("config: duplicate source id %q", s.ID)
		}
		ids[s.ID] = true

		if s.Delay != "" {
			if v, err := time.ParseDuration(s.Delay); err != nil || v < 0 {
				return fmt.Errorf("config: sources[%s].delay %q is not a valid duration", s.ID, s.Delay)
			}
		}
		if s.Template != "" {
			if _, err := os.Stat(s.Template); err != nil {
				return fmt.Errorf("config: sources[%s].template: %w", s.ID, err)
			}
		}
		if fields := itemFields[s.Type]; !slices.Contains(fields, s.KeyField) {
			return fmt.Errorf("config: sources[%s].key_field %q is not produced by %s sources (one of %s)", s.ID, s.KeyField, s.Type, strings.Join(fields, ", "))
		}
		switch s.Type {
		case SourceYouTube:
			if s.Option("channel_id", "") == "" {
				return fmt.Errorf("config: sources[%s].options.channel_id is required for youtube sources", s.ID)
			}
			switch c := s.Option("category", "techno"); c {
			case "techno", "debate", "entertainment":
			default:
				return fmt.Errorf("config: sources[%s].options.category %q is not one of techno, debate, entertainment", s.ID, c)
			}
		case SourceActuIA:
			if s.Option("domain", "") == "" {
				return fmt.Errorf("config: sources[%s].options.domain is required for actuia sources", s.ID)
			}
		}
		if s.SummarizeEnabled() {
			summarizing = true
		}
		if cfg.Publisher.Enabled("email") && len(s.Recipients) == 0 {
			return fmt.Errorf("config: sources[%s].recipients (or publisher.email.to) is required for email publisher", s.ID)
		}
	}

	if summarizing && cfg.Models.GeminiAPIKey == "" && cfg.Models.AnthropicAPIKey == "" {
		return fmt.Errorf("config: models.gemini_api_key or models.anthropic_api_key is required (set GEMINI_API_KEY or ANTHROPIC_API_KEY env var)")
	}

	if cfg.Publisher.Enabled("discord") && cfg.Publisher.Discord.WebhookURL == "" {
		return fmt.Errorf("config: publisher.discord.webhook_url is required for discord publisher")
	}
	if cfg.Publisher.Enabled("email") {
		if cfg.Publisher.Email.SMTPHost == "" {
			return fmt.Errorf("config: publisher.email.smtp_host is required for email publisher")
		}
		if cfg.Publisher.Email.From == "" {
			return fmt.Errorf("config: publisher.email.from is required for email publisher")
		}
	}
	if cfg.Templates.Dir != "" {
		if fi, err := os.Stat(cfg.Templates.Dir); err != nil || !fi.IsDir() {
			return fmt.Errorf("config: templates.dir %q is not a directory", cfg.Templates.Dir)
		}
	}
	return nil
}

// Load reads the config file (YAML, or TOML for a .toml extension), expands
// environment variables, applies defaults, and validates the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	expanded := []byte(expandEnvVars(string(data)))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(expanded, &cfg)
	} else {
		err = yaml.Unmarshal(expanded, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	setDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Source returns the source with the given id.
func (c *Config) Source(id string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}
