package config

import (
	"github.com/wayposthq/waypost/internal/idgen"
)

// IDTemplateConfig overrides the ID templates per entity. Templates accept
// {{uuidv4}}, {{uuidv7}}, and {{nanoid}}. Empty keeps the built-in default.
type IDTemplateConfig struct {
	Event    string `yaml:"event" env:"ID_TEMPLATE_EVENT"`
	Delivery string `yaml:"delivery" env:"ID_TEMPLATE_DELIVERY"`
	Endpoint string `yaml:"endpoint" env:"ID_TEMPLATE_ENDPOINT"`
}

func (c *IDTemplateConfig) ToConfig() idgen.IDTemplateConfig {
	return idgen.IDTemplateConfig{
		Event:    c.Event,
		Delivery: c.Delivery,
		Endpoint: c.Endpoint,
	}
}
