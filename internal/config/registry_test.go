package config

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

const sampleYAML = `
api_endpoints:
  openai1:
    api_key: ${TEST_OPENAI_KEY}
    base_url: https://api.openai.com/v1
  local:
    api_key: sk-local
    base_url: http://localhost:8000/v1
commands:
  /chat:
    api_endpoint: openai1
    model: gpt-4
    parameters:
      temperature: 0.7
      max_tokens: 512
    description: Chat with GPT-4
  /local:
    api_endpoint: local
    model: llama-3
allowed_user_ids: [123456789]
`

func TestRegistryFromYAML(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-from-env")

	var reg Registry
	if err := yaml.Unmarshal([]byte(sampleYAML), &reg); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	reg.expandEnv()
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	ep, ok := reg.Endpoint("openai1")
	if !ok {
		t.Fatal("Endpoint(openai1) not found")
	}
	if ep.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want sk-from-env", ep.APIKey)
	}

	cmd, ok := reg.Command("/chat")
	if !ok {
		t.Fatal("Command(/chat) not found")
	}
	if cmd.Endpoint != "openai1" || cmd.Model != "gpt-4" {
		t.Errorf("Command(/chat) = %+v", cmd)
	}
	if got := cmd.Parameters["temperature"]; got != 0.7 {
		t.Errorf("temperature = %v, want 0.7", got)
	}

	if got := reg.CommandNames(); len(got) != 2 || got[0] != "/chat" || got[1] != "/local" {
		t.Errorf("CommandNames() = %v", got)
	}
}

func TestExpandEnvUnsetVariableIsEmpty(t *testing.T) {
	reg := Registry{
		Endpoints: map[string]Endpoint{
			"a": {APIKey: "${DEFINITELY_NOT_SET_FOR_TEST}", BaseURL: "http://x"},
		},
	}
	reg.expandEnv()
	if got := reg.Endpoints["a"].APIKey; got != "" {
		t.Errorf("APIKey = %q, want empty", got)
	}
}

func TestValidateRejectsDanglingEndpoint(t *testing.T) {
	t.Parallel()

	reg := Registry{
		Endpoints: map[string]Endpoint{"a": {APIKey: "k", BaseURL: "http://x"}},
		Commands:  map[string]Command{"/chat": {Endpoint: "missing", Model: "m"}},
	}
	err := reg.Validate()
	if !errors.Is(err, ErrUnknownEndpoint) {
		t.Fatalf("Validate() error = %v, want ErrUnknownEndpoint", err)
	}
}

func TestValidateRejectsBadCommandName(t *testing.T) {
	t.Parallel()

	reg := Registry{
		Endpoints: map[string]Endpoint{"a": {APIKey: "k", BaseURL: "http://x"}},
		Commands:  map[string]Command{"chat": {Endpoint: "a", Model: "m"}},
	}
	if err := reg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for name without /")
	}
}

func TestValidateRejectsMissingModel(t *testing.T) {
	t.Parallel()

	reg := Registry{
		Endpoints: map[string]Endpoint{"a": {APIKey: "k", BaseURL: "http://x"}},
		Commands:  map[string]Command{"/chat": {Endpoint: "a"}},
	}
	if err := reg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for missing model")
	}
}
