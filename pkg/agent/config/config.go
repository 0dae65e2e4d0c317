package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
)

// Config represents the full agent service configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Models    ModelsConfig    `mapstructure:"models"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Geocoder  GeocoderConfig  `mapstructure:"geocoder"`
	GIS       GISConfig       `mapstructure:"gis"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// ModelsConfig holds model candidate ordering and retry policy
type ModelsConfig struct {
	// Candidates are tried in order; each exhausts its retry budget before
	// the invoker falls through to the next.
	Candidates []string      `mapstructure:"candidates"`
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`

	GeminiAPIKey    string `mapstructure:"gemini_api_key"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
}

// AgentConfig holds agent loop configuration
type AgentConfig struct {
	MaxIterations     int           `mapstructure:"max_iterations"`
	SystemInstruction string        `mapstructure:"system_instruction"`
	StatusRetention   time.Duration `mapstructure:"status_retention"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
}

// RetrievalConfig holds grounded document-query configuration
type RetrievalConfig struct {
	// Model is the single grounded-query model; grounding is model-specific
	// so this path has no fallback candidates.
	Model      string        `mapstructure:"model"`
	StoreName  string        `mapstructure:"store_name"`
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// GeocoderConfig holds the address geocoding collaborator endpoint
type GeocoderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// GISConfig holds the spatial zoning lookup collaborator endpoint
type GISConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultSystemInstruction is the system prompt driving the zoning assistant.
const DefaultSystemInstruction = `You are a Milwaukee zoning and real-estate assistant. You answer questions
about zoning districts, permitted uses, parking requirements, and planning
documents for properties in the City of Milwaukee.

You have tools available:
- geocode_address: resolve a street address to coordinates
- lookup_zoning: find the zoning district and overlay zones for coordinates
- calculate_parking: compute required parking spaces for a use in a district
- query_documents: search indexed planning and zoning documents

For questions about a specific property, geocode the address first, then look
up zoning. For code or policy questions, query the documents. Cite the zoning
district and code sections you relied on. If a tool fails, tell the user what
you could not determine and what information would help.`

// Load reads configuration from an optional YAML file and the environment.
// Environment variables use the ZONEWISE prefix (ZONEWISE_SERVER_PORT etc).
func Load(filePath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ZONEWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.New(apperrors.ErrCodeAgentConfig, "failed to read config file", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeAgentConfig, "failed to parse config", err)
	}

	// API keys are commonly supplied through the vendor-standard variables.
	if cfg.Models.GeminiAPIKey == "" {
		cfg.Models.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Models.OpenAIAPIKey == "" {
		cfg.Models.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Models.AnthropicAPIKey == "" {
		cfg.Models.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every key with viper. AutomaticEnv only resolves keys
// viper already knows about, so without this the ZONEWISE_* variables would be
// ignored when no config file is loaded.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("models.candidates", d.Models.Candidates)
	v.SetDefault("models.max_retries", d.Models.MaxRetries)
	v.SetDefault("models.base_delay", d.Models.BaseDelay)
	v.SetDefault("models.gemini_api_key", "")
	v.SetDefault("models.openai_api_key", "")
	v.SetDefault("models.anthropic_api_key", "")
	v.SetDefault("agent.max_iterations", d.Agent.MaxIterations)
	v.SetDefault("agent.system_instruction", d.Agent.SystemInstruction)
	v.SetDefault("agent.status_retention", d.Agent.StatusRetention)
	v.SetDefault("agent.sweep_interval", d.Agent.SweepInterval)
	v.SetDefault("retrieval.model", d.Retrieval.Model)
	v.SetDefault("retrieval.store_name", d.Retrieval.StoreName)
	v.SetDefault("retrieval.max_retries", d.Retrieval.MaxRetries)
	v.SetDefault("retrieval.base_delay", d.Retrieval.BaseDelay)
	v.SetDefault("retrieval.timeout", d.Retrieval.Timeout)
	v.SetDefault("geocoder.base_url", d.Geocoder.BaseURL)
	v.SetDefault("geocoder.timeout", d.Geocoder.Timeout)
	v.SetDefault("gis.base_url", d.GIS.BaseURL)
	v.SetDefault("gis.timeout", d.GIS.Timeout)
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Models: ModelsConfig{
			Candidates: []string{"gemini-2.5-flash", "gemini-2.0-flash"},
			MaxRetries: 3,
			BaseDelay:  time.Second,
		},
		Agent: AgentConfig{
			MaxIterations:     12,
			SystemInstruction: DefaultSystemInstruction,
			StatusRetention:   time.Hour,
			SweepInterval:     5 * time.Minute,
		},
		Retrieval: RetrievalConfig{
			Model:      "gemini-2.5-flash",
			StoreName:  "planning-documents",
			MaxRetries: 2,
			BaseDelay:  2 * time.Second,
			Timeout:    90 * time.Second,
		},
		Geocoder: GeocoderConfig{
			BaseURL: "https://geocoding.geo.census.gov/geocoder",
			Timeout: 15 * time.Second,
		},
		GIS: GISConfig{
			BaseURL: "https://milwaukeemaps.milwaukee.gov/arcgis/rest/services",
			Timeout: 15 * time.Second,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Models.Candidates) == 0 {
		return apperrors.New(apperrors.ErrCodeAgentConfig, "at least one candidate model is required", nil)
	}
	if c.Models.MaxRetries < 1 {
		return apperrors.New(apperrors.ErrCodeAgentConfig, "models.max_retries must be at least 1", nil)
	}
	if c.Agent.MaxIterations < 1 {
		return apperrors.New(apperrors.ErrCodeAgentConfig, "agent.max_iterations must be at least 1", nil)
	}
	if c.Agent.SystemInstruction == "" {
		return apperrors.New(apperrors.ErrCodeAgentConfig, "agent.system_instruction is required", nil)
	}
	if c.Retrieval.Model == "" {
		return apperrors.New(apperrors.ErrCodeAgentConfig, "retrieval.model is required", nil)
	}
	if c.Retrieval.Timeout <= 0 {
		return apperrors.New(apperrors.ErrCodeAgentConfig, "retrieval.timeout must be positive", nil)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return apperrors.New(apperrors.ErrCodeAgentConfig,
			fmt.Sprintf("server.port %d out of range", c.Server.Port), nil)
	}
	return nil
}
