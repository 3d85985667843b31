package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing provider", Config{Model: "m", APIKey: "k"}},
		{"missing model", Config{Provider: "anthropic", APIKey: "k"}},
		{"missing key", Config{Provider: "anthropic", Model: "m"}},
		{"unknown provider", Config{Provider: "carrier-pigeon", Model: "m", APIKey: "k"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewClientKnownProviders(t *testing.T) {
	for _, provider := range []string{"anthropic", "openai-responses", "openai-chat", "google"} {
		client, err := NewClient(Config{Provider: provider, Model: "m", APIKey: "k"})
		require.NoError(t, err, provider)
		assert.NotNil(t, client.LLM, provider)
	}
}

func TestCompleteOnNilClient(t *testing.T) {
	var client *Client
	_, err := client.Complete(context.Background(), "system", nil)
	assert.Error(t, err)
}
