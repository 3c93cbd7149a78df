package idgen

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	defaultEventTemplate    = "evt_{{uuidv7}}"
	defaultDeliveryTemplate = "dlv_{{uuidv7}}"
	defaultEndpointTemplate = "ep_{{nanoid}}"
)

var (
	eventGenerator    *IDGenerator
	deliveryGenerator *IDGenerator
	endpointGenerator *IDGenerator
)

func init() {
	eventGenerator, _ = NewIDGenerator(defaultEventTemplate)
	deliveryGenerator, _ = NewIDGenerator(defaultDeliveryTemplate)
	endpointGenerator, _ = NewIDGenerator(defaultEndpointTemplate)
}

// IDGenerator generates IDs based on a template
type IDGenerator struct {
	template *template.Template
}

// NewIDGenerator creates a new ID generator with the given template string.
// Templates may use {{uuidv4}}, {{uuidv7}}, and {{nanoid}}.
func NewIDGenerator(templateStr string) (*IDGenerator, error) {
	if templateStr == "" {
		templateStr = "{{uuidv4}}"
	}

	tmpl := template.New("id").Funcs(template.FuncMap{
		"uuidv4": func() string {
			return uuid.New().String()
		},
		"uuidv7": func() string {
			id, err := uuid.NewV7()
			if err != nil {
				// Fallback to v4 if v7 generation fails
				return uuid.New().String()
			}
			return id.String()
		},
		"nanoid": func() string {
			id, err := gonanoid.New()
			if err != nil {
				return uuid.New().String()
			}
			return id
		},
	})

	parsed, err := tmpl.Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ID template: %w", err)
	}

	return &IDGenerator{template: parsed}, nil
}

// Generate generates a new ID using the template
func (g *IDGenerator) Generate() (string, error) {
	var buf bytes.Buffer
	if err := g.template.Execute(&buf, nil); err != nil {
		return "", fmt.Errorf("failed to generate ID: %w", err)
	}
	return buf.String(), nil
}

// IDTemplateConfig contains ID generation templates for different entity types
type IDTemplateConfig struct {
	Event    string
	Delivery string
	Endpoint string
}

// Configure configures all ID generators based on the provided config.
// This should be called once at application startup before any concurrent usage.
func Configure(cfg IDTemplateConfig) error {
	if cfg.Event != "" {
		gen, err := NewIDGenerator(cfg.Event)
		if err != nil {
			return fmt.Errorf("failed to configure event ID generator: %w", err)
		}
		eventGenerator = gen
	}
	if cfg.Delivery != "" {
		gen, err := NewIDGenerator(cfg.Delivery)
		if err != nil {
			return fmt.Errorf("failed to configure delivery ID generator: %w", err)
		}
		deliveryGenerator = gen
	}
	if cfg.Endpoint != "" {
		gen, err := NewIDGenerator(cfg.Endpoint)
		if err != nil {
			return fmt.Errorf("failed to configure endpoint ID generator: %w", err)
		}
		endpointGenerator = gen
	}
	return nil
}

// Event generates an event ID using the configured generator.
func Event() string {
	return generate(eventGenerator)
}

// Delivery generates a delivery ID using the configured generator.
func Delivery() string {
	return generate(deliveryGenerator)
}

// Endpoint generates an endpoint ID using the configured generator.
func Endpoint() string {
	return generate(endpointGenerator)
}

func generate(g *IDGenerator) string {
	id, err := g.Generate()
	if err != nil {
		// Fallback to UUID v4 on error
		return uuid.New().String()
	}
	return id
}
