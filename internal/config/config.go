package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration, read from the environment and an
// optional .env file in the working directory.
type Config struct {
	Port          string `mapstructure:"PORT"`
	Env           string `mapstructure:"ENV"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"` // Empty disables interview locking
	JWTSecret     string `mapstructure:"JWT_SECRET"`
	AuthUsername  string `mapstructure:"AUTH_USERNAME"`
	AuthPassword  string `mapstructure:"AUTH_PASSWORD"`
	CORSOrigins   string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	OpenAIKey     string  `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL string  `mapstructure:"OPENAI_BASE_URL"`
	OpenAIModel   string  `mapstructure:"OPENAI_MODEL"`
	AITemperature float32 `mapstructure:"AI_TEMPERATURE"`
	AITimeoutMS   int     `mapstructure:"AI_TIMEOUT_MS"`

	QuestionBudget int  `mapstructure:"INTERVIEW_QUESTION_BUDGET"`
	AllowOverwrite bool `mapstructure:"INTERVIEW_ALLOW_OVERWRITE"`
	LockTTLMS      int  `mapstructure:"INTERVIEW_LOCK_TTL_MS"`
}

const devJWTSecret = "wellpath-dev-secret"

var keys = []string{
	"PORT", "ENV", "MONGO_URI", "MONGO_DATABASE", "REDIS_ADDR",
	"JWT_SECRET", "AUTH_USERNAME", "AUTH_PASSWORD", "CORS_ALLOWED_ORIGINS",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "AI_TEMPERATURE", "AI_TIMEOUT_MS",
	"INTERVIEW_QUESTION_BUDGET", "INTERVIEW_ALLOW_OVERWRITE", "INTERVIEW_LOCK_TTL_MS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "wellpath")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("AUTH_USERNAME", "demo")
	v.SetDefault("AUTH_PASSWORD", "demo")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("AI_TEMPERATURE", 0.5)
	v.SetDefault("AI_TIMEOUT_MS", 10000)
	v.SetDefault("INTERVIEW_QUESTION_BUDGET", 18)
	v.SetDefault("INTERVIEW_ALLOW_OVERWRITE", true)
	v.SetDefault("INTERVIEW_LOCK_TTL_MS", 30000)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.JWTSecret == "" && cfg.IsDev() {
		cfg.JWTSecret = devJWTSecret
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run
func (c *Config) Validate() error {
	if c.QuestionBudget <= 0 {
		return fmt.Errorf("INTERVIEW_QUESTION_BUDGET must be positive, got %d", c.QuestionBudget)
	}
	if c.AITimeoutMS <= 0 {
		return fmt.Errorf("AI_TIMEOUT_MS must be positive, got %d", c.AITimeoutMS)
	}
	if c.LockTTLMS <= 0 {
		return fmt.Errorf("INTERVIEW_LOCK_TTL_MS must be positive, got %d", c.LockTTLMS)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	if c.IsProduction() && c.JWTSecret == devJWTSecret {
		return fmt.Errorf("JWT_SECRET must not use the development default in production")
	}
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// LockTTL is how long an interview lock is held before it expires on its own
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMS) * time.Millisecond
}

// Interview returns the engine settings
func (c *Config) Interview() InterviewConfig {
	return InterviewConfig{
		QuestionBudget: c.QuestionBudget,
		AllowOverwrite: c.AllowOverwrite,
	}
}

// InterviewConfig tunes the questionnaire engine
type InterviewConfig struct {
	QuestionBudget int  // Max reasoning-service questions per interview
	AllowOverwrite bool // Re-answering an answered question replaces the answer
}

// DefaultInterviewConfig matches the documented defaults
func DefaultInterviewConfig() InterviewConfig {
	return InterviewConfig{QuestionBudget: 18, AllowOverwrite: true}
}
