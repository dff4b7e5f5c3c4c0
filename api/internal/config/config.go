package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is read from tutor.yaml (optional) and the environment. Keys are the
// lower-case env names, so TEXT_ENGINE and text_engine are the same setting.
type Config struct {
	Port             string `mapstructure:"port"`
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	WebhookURL       string `mapstructure:"webhook_url"`
	LogMode          string `mapstructure:"log_mode"`

	TextEngine     string `mapstructure:"text_engine"`
	GeminiAPIKey   string `mapstructure:"gemini_api_key"`
	GeminiModel    string `mapstructure:"gemini_model"`
	OpenAIAPIKey   string `mapstructure:"openai_api_key"`
	OpenAIModel    string `mapstructure:"openai_model"`
	DeepseekAPIKey string `mapstructure:"deepseek_api_key"`
	DeepseekModel  string `mapstructure:"deepseek_model"`
	GroqAPIKey     string `mapstructure:"groq_api_key"`
	GroqModel      string `mapstructure:"groq_model"`

	Diagrams         bool          `mapstructure:"diagrams"`
	OpenAIImageModel string        `mapstructure:"openai_image_model"`
	ImageSize        string        `mapstructure:"image_size"`
	ImageQuality     string        `mapstructure:"image_quality"`
	DiagramCache     string        `mapstructure:"diagram_cache"` // memory|postgres|redis|none
	DiagramMaxAge    time.Duration `mapstructure:"diagram_cache_max_age"`

	DatabaseURL      string `mapstructure:"database_url"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PGHost           string `mapstructure:"pghost"`
	PGPort           string `mapstructure:"pgport"`
	RedisURL         string `mapstructure:"redis_url"`

	// CORSOrigins enables CORS on the web JSON API; comma-separated in the env.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

var defaults = map[string]any{
	"port":                  "8080",
	"telegram_bot_token":    "",
	"webhook_url":           "",
	"log_mode":              "dev",
	"text_engine":           "groq",
	"gemini_api_key":        "",
	"gemini_model":          "gemini-2.5-flash",
	"openai_api_key":        "",
	"openai_model":          "gpt-4o-mini",
	"deepseek_api_key":      "",
	"deepseek_model":        "deepseek-chat",
	"groq_api_key":          "",
	"groq_model":            "llama-3.3-70b-versatile",
	"diagrams":              true,
	"openai_image_model":    "dall-e-3",
	"image_size":            "1024x1024",
	"image_quality":         "standard",
	"diagram_cache":         "memory",
	"diagram_cache_max_age": "50m",
	"database_url":          "",
	"postgres_user":         "tutor",
	"postgres_password":     "",
	"postgres_db":           "tutor",
	"pghost":                "db",
	"pgport":                "5432",
	"redis_url":             "",
	"cors_origins":          []string{},
}

// Load reads the configuration. A missing tutor.yaml is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("tutor")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "physics-tutor"))
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.TextEngine = NormalizeEngine(cfg.TextEngine)
	cfg.DiagramCache = strings.ToLower(strings.TrimSpace(cfg.DiagramCache))
	return &cfg, nil
}

// NormalizeEngine maps user-facing aliases to engine names.
func NormalizeEngine(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "openai" {
		return "gpt"
	}
	return name
}

// EngineKey returns the API key configured for the named text engine.
func (c *Config) EngineKey(name string) (string, bool) {
	switch NormalizeEngine(name) {
	case "gemini":
		return c.GeminiAPIKey, true
	case "gpt":
		return c.OpenAIAPIKey, true
	case "deepseek":
		return c.DeepseekAPIKey, true
	case "groq":
		return c.GroqAPIKey, true
	}
	return "", false
}

// Validate reports missing startup credentials: the selected text engine's key, and the
// image provider key while diagrams are enabled.
func (c *Config) Validate() error {
	key, ok := c.EngineKey(c.TextEngine)
	if !ok {
		return fmt.Errorf("unknown text_engine %q (gemini|gpt|deepseek|groq)", c.TextEngine)
	}
	var missing []string
	if strings.TrimSpace(key) == "" {
		missing = append(missing, strings.ToUpper(envKeyFor(c.TextEngine)))
	}
	if c.Diagrams && strings.TrimSpace(c.OpenAIAPIKey) == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	switch c.DiagramCache {
	case "", "memory", "none", "postgres":
	case "redis":
		if strings.TrimSpace(c.RedisURL) == "" {
			missing = append(missing, "REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown diagram_cache %q (memory|postgres|redis|none)", c.DiagramCache)
	}
	if c.ImageSize != "" && !squareSize(c.ImageSize) {
		return fmt.Errorf("image_size %q must be square, e.g. 1024x1024", c.ImageSize)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env %s", strings.Join(dedup(missing), ", "))
	}
	return nil
}

// squareSize reports whether s is "NxN" with a positive N.
func squareSize(s string) bool {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return false
	}
	n, err := strconv.Atoi(w)
	return err == nil && n > 0 && w == h
}

// ValidateTelegram additionally requires the bot token.
func (c *Config) ValidateTelegram() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.TelegramBotToken) == "" {
		return fmt.Errorf("missing required env TELEGRAM_BOT_TOKEN")
	}
	return nil
}

// DSN prefers DATABASE_URL and otherwise builds one from POSTGRES_* / PG* values.
func (c *Config) DSN() string {
	if v := strings.TrimSpace(c.DatabaseURL); v != "" {
		return v
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     net.JoinHostPort(c.PGHost, c.PGPort),
		Path:     "/" + c.PostgresDB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func envKeyFor(engine string) string {
	switch NormalizeEngine(engine) {
	case "gpt":
		return "openai_api_key"
	default:
		return NormalizeEngine(engine) + "_api_key"
	}
}

func dedup(in []string) []string {
	out := in[:0]
	seen := map[string]bool{}
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
