package config

import "time"

// AIConfig holds all reasoning-service configuration
type AIConfig struct {
	APIKey      string  `json:"-"` // Never serialize
	BaseURL     string  `json:"baseUrl,omitempty"`
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	TimeoutMS   int     `json:"timeoutMs"`
}

// DefaultAIConfig returns the default AI configuration with no key set
func DefaultAIConfig() *AIConfig {
	return &AIConfig{
		Model:       "gpt-4o-mini",
		Temperature: 0.5,
		TimeoutMS:   10000, // 10 second default timeout
	}
}

// AI extracts the reasoning-service settings
func (c *Config) AI() *AIConfig {
	return &AIConfig{
		APIKey:      c.OpenAIKey,
		BaseURL:     c.OpenAIBaseURL,
		Model:       c.OpenAIModel,
		Temperature: c.AITemperature,
		TimeoutMS:   c.AITimeoutMS,
	}
}

// IsEnabled returns true if the AI API is configured
func (c *AIConfig) IsEnabled() bool {
	return c.APIKey != ""
}

// Timeout bounds a single reasoning call
func (c *AIConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
