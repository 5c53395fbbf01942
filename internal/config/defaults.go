package config

import (
	"strings"
	"time"
)

// Provider names accepted in llm.provider.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

var defaultModels = map[string]string{
	ProviderGemini:    "gemini-2.5-flash",
	ProviderAnthropic: "claude-sonnet-4-5",
	ProviderOpenAI:    "gpt-4.1-mini",
}

var defaultKeyEnvs = map[string]string{
	ProviderGemini:    "GEMINI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
}

// Default sampling temperatures for the two model calls.
const (
	DefaultClassifyTemperature = 0.2
	DefaultSummaryTemperature  = 0.5
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 20 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/taxonomia/data/db/analyses.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/taxonomia/data/indices/bleve"
	}

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderGemini
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModels[cfg.LLM.Provider]
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = defaultKeyEnvs[cfg.LLM.Provider]
	}
	if cfg.LLM.ClassifyTemperature == nil {
		cfg.LLM.ClassifyTemperature = Float(DefaultClassifyTemperature)
	}
	if cfg.LLM.SummaryTemperature == nil {
		cfg.LLM.SummaryTemperature = Float(DefaultSummaryTemperature)
	}
	if cfg.LLM.MaxOutputTokens == 0 {
		cfg.LLM.MaxOutputTokens = 8192
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 120 * time.Second
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx", ".odt", ".rtf"}
	}
	if cfg.Watch.DefaultSubject == "" {
		cfg.Watch.DefaultSubject = "Language and Literature"
	}
	if cfg.Watch.DefaultGrade == "" {
		cfg.Watch.DefaultGrade = "1º MEDIO"
	}
}

// Float returns a pointer to v, for the optional temperature fields.
func Float(v float64) *float64 {
	return &v
}

// ClassifyTemp returns the classification temperature, or the default when unset.
func (c *LLMConfig) ClassifyTemp() float64 {
	if c.ClassifyTemperature == nil {
		return DefaultClassifyTemperature
	}
	return *c.ClassifyTemperature
}

// SummaryTemp returns the summary temperature, or the default when unset.
func (c *LLMConfig) SummaryTemp() float64 {
	if c.SummaryTemperature == nil {
		return DefaultSummaryTemperature
	}
	return *c.SummaryTemperature
}
