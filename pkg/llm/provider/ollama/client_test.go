package ollama

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientWithModel(t *testing.T) {
	tests := []struct {
		name    string
		hostURL string
		model   string
	}{
		{
			name:    "default host",
			hostURL: "http://localhost:11434",
			model:   "llama3.1:8b",
		},
		{
			name:    "custom host",
			hostURL: "http://gpu-box:11434",
			model:   "qwen2.5:14b",
		},
		{
			name:    "invalid URL falls back to default",
			hostURL: "://not-a-url",
			model:   "mistral:7b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClientWithModel(tt.hostURL, tt.model)
			require.NotNil(t, client)
			assert.Equal(t, tt.model, client.ModelName())
		})
	}
}
