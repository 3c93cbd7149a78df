package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDGenerator(t *testing.T) {
	tests := []struct {
		name     string
		template string
		wantErr  bool
	}{
		{
			name:     "empty template uses default",
			template: "",
			wantErr:  false,
		},
		{
			name:     "uuidv4 template",
			template: "{{uuidv4}}",
			wantErr:  false,
		},
		{
			name:     "uuidv7 with prefix",
			template: "evt_{{uuidv7}}",
			wantErr:  false,
		},
		{
			name:     "nanoid template",
			template: "{{nanoid}}",
			wantErr:  false,
		},
		{
			name:     "unknown function",
			template: "{{ulid}}",
			wantErr:  true,
		},
		{
			name:     "malformed template",
			template: "{{uuidv4",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := NewIDGenerator(tt.template)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			id, err := gen.Generate()
			require.NoError(t, err)
			assert.NotEmpty(t, id)
		})
	}
}

func TestIDGenerator_Generate(t *testing.T) {
	t.Run("uuidv4", func(t *testing.T) {
		gen, err := NewIDGenerator("{{uuidv4}}")
		require.NoError(t, err)
		id, err := gen.Generate()
		require.NoError(t, err)
		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(4), parsed.Version())
	})

	t.Run("uuidv7", func(t *testing.T) {
		gen, err := NewIDGenerator("{{uuidv7}}")
		require.NoError(t, err)
		id, err := gen.Generate()
		require.NoError(t, err)
		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), parsed.Version())
	})

	t.Run("prefix preserved", func(t *testing.T) {
		gen, err := NewIDGenerator("dlv_{{uuidv7}}")
		require.NoError(t, err)
		id, err := gen.Generate()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(id, "dlv_"))
		_, err = uuid.Parse(strings.TrimPrefix(id, "dlv_"))
		assert.NoError(t, err)
	})
}

func TestConfigure(t *testing.T) {
	t.Cleanup(func() {
		require.NoError(t, Configure(IDTemplateConfig{
			Event:    defaultEventTemplate,
			Delivery: defaultDeliveryTemplate,
			Endpoint: defaultEndpointTemplate,
		}))
	})

	require.NoError(t, Configure(IDTemplateConfig{
		Event:    "e-{{uuidv4}}",
		Delivery: "d-{{uuidv4}}",
		Endpoint: "ep-{{nanoid}}",
	}))

	assert.True(t, strings.HasPrefix(Event(), "e-"))
	assert.True(t, strings.HasPrefix(Delivery(), "d-"))
	assert.True(t, strings.HasPrefix(Endpoint(), "ep-"))

	assert.Error(t, Configure(IDTemplateConfig{Event: "{{invalid}}"}))
}

func TestDefaults(t *testing.T) {
	assert.True(t, strings.HasPrefix(Event(), "evt_"))
	assert.True(t, strings.HasPrefix(Delivery(), "dlv_"))
	assert.True(t, strings.HasPrefix(Endpoint(), "ep_"))
}

func TestUniqueness(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := Delivery()
		assert.False(t, ids[id], "generated duplicate ID: %s", id)
		ids[id] = true
	}
}
