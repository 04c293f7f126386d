package contact

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config is the contact cascade configuration. Sources are queried in
// list order; trust feeds the confidence score of a winning email.
type Config struct {
	Sources            []SourceConfig `yaml:"sources"`
	CorroborationBonus float64        `yaml:"corroboration_bonus"`
}

// SourceConfig names a lookup source and the trust assigned to an email
// it finds, on a 0..1 scale.
type SourceConfig struct {
	Name  string  `yaml:"name"`
	Trust float64 `yaml:"trust"`
}

// DefaultConfig returns the built-in cascade ordering. Property-manager
// registries outrank scraped listings, which outrank guessed inboxes.
func DefaultConfig() *Config {
	return &Config{
		Sources: []SourceConfig{
			{Name: "registry", Trust: 0.9},
			{Name: "listing", Trust: 0.7},
			{Name: "website", Trust: 0.6},
			{Name: "pattern", Trust: 0.4},
		},
		CorroborationBonus: 0.1,
	}
}

// LoadConfig reads a cascade config from a YAML file. Omitted values
// fall back to the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "contact: read config %s", path)
	}

	var wrapper struct {
		Contact Config `yaml:"contact"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "contact: parse config")
	}

	cfg := &wrapper.Contact
	def := DefaultConfig()
	if len(cfg.Sources) == 0 {
		cfg.Sources = def.Sources
	}
	if cfg.CorroborationBonus == 0 {
		cfg.CorroborationBonus = def.CorroborationBonus
	}
	return cfg, nil
}

// Trust returns the configured trust for a source name, or zero when
// the source is not in the cascade.
func (c *Config) Trust(name string) float64 {
	for _, s := range c.Sources {
		if s.Name == name {
			return s.Trust
		}
	}
	return 0
}
