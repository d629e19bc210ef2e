package llmfactory

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers" validate:"dive"`
	// DefaultProvider specifies the name of the default provider,
	// the first configured provider is used when empty.
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`
}

// ProviderConfig describes one model provider.
type ProviderConfig struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	// Provider specifies the provider type:
	// OPENAI|AZURE|AZURE_AD|ANTHROPIC|GOOGLEAI|BEDROCK|OLLAMA
	Provider string `json:"provider" yaml:"provider" validate:"required"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// APIVersion is used by the Azure variants.
	APIVersion string `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	// OrgID specifies which organization's quota and billing should be used
	// when making API requests.
	OrgID           string   `json:"org_id,omitempty" yaml:"org_id,omitempty"`
	DefaultModel    string   `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty"`
}

// FindModel returns the first preferred model the provider offers,
// or the provider default.
func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// LoadConfig from file, expanding environment variables in values.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid provider configuration")
	}
	return cfg, nil
}
