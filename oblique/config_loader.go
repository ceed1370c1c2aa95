package oblique

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults applied by LoadConfig and DefaultConfig
const (
	DefaultTerrainHeight = 200.0
	DefaultRenderScale   = 0.2
	DefaultRenderPadding = 50.0
	DefaultResolution    = 96.0
	DefaultHTTPPort      = 4040
	DefaultPublishPrefix = "obliqueplan"
)

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	cfg := &Config{TerrainHeight: DefaultTerrainHeight}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.FootprintsGroup == "" {
		c.FootprintsGroup = DefaultFootprintsGroup
	}
	if c.Output == "" {
		c.Output = "."
	}
	if c.Render.Scale == 0 {
		c.Render.Scale = DefaultRenderScale
	}
	if c.Render.Padding == 0 {
		c.Render.Padding = DefaultRenderPadding
	}
	if c.Render.Resolution == 0 {
		c.Render.Resolution = DefaultResolution
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.MQTT.PublishPrefix == "" {
		c.MQTT.PublishPrefix = DefaultPublishPrefix
	}
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.Render.Scale < 0 {
		return fmt.Errorf("render.scale must be positive, got %g", c.Render.Scale)
	}
	if c.Render.Padding < 0 {
		return fmt.Errorf("render.padding must not be negative, got %g", c.Render.Padding)
	}
	if c.Render.GridSpacing < 0 {
		return fmt.Errorf("render.gridSpacing must not be negative, got %g", c.Render.GridSpacing)
	}
	if c.Render.Resolution < 0 {
		return fmt.Errorf("render.resolution must be positive, got %g", c.Render.Resolution)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	return nil
}

// LoadConfig loads the configuration from a YAML file. Missing terrain
// height is an error because it drives every footprint.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	var keys map[string]interface{}
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if _, ok := keys["terrainHeight"]; !ok {
		return nil, fmt.Errorf("terrainHeight is required")
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
