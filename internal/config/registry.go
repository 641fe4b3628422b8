package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownEndpoint = errors.New("unknown api endpoint")
	ErrUnknownCommand  = errors.New("unknown command")
)

// InvalidEndpointError marks an endpoint definition with a missing required
// field. It is a configuration error, reported at the first use of any route
// that targets the endpoint.
type InvalidEndpointError struct {
	Name  string
	Field string
}

func (e *InvalidEndpointError) Error() string {
	return fmt.Sprintf("api endpoint %q: missing %s", e.Name, e.Field)
}

// Endpoint is one named OpenAI-compatible backend.
type Endpoint struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// Command binds a slash command to an endpoint, a model and an opaque set of
// extra request parameters.
type Command struct {
	Endpoint    string         `yaml:"api_endpoint" mapstructure:"api_endpoint"`
	Model       string         `yaml:"model" mapstructure:"model"`
	Parameters  map[string]any `yaml:"parameters" mapstructure:"parameters"`
	Description string         `yaml:"description" mapstructure:"description"`
}

// Registry is the resolved bot configuration: endpoints, command routes and
// the authorization allow-list. Immutable after Load.
type Registry struct {
	Endpoints      map[string]Endpoint `yaml:"api_endpoints" mapstructure:"api_endpoints"`
	Commands       map[string]Command  `yaml:"commands" mapstructure:"commands"`
	AllowedUserIDs []int64             `yaml:"allowed_user_ids" mapstructure:"allowed_user_ids"`
}

// Load builds the registry from bot.config_file when set, otherwise from the
// api_endpoints / commands / allowed_user_ids trees of the main viper config.
func Load() (*Registry, error) {
	var reg Registry
	if path := strings.TrimSpace(viper.GetString("bot.config_file")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read bot config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &reg); err != nil {
			return nil, fmt.Errorf("parse bot config: %w", err)
		}
	} else {
		if err := viper.UnmarshalKey("api_endpoints", &reg.Endpoints); err != nil {
			return nil, fmt.Errorf("parse api_endpoints: %w", err)
		}
		if err := viper.UnmarshalKey("commands", &reg.Commands); err != nil {
			return nil, fmt.Errorf("parse commands: %w", err)
		}
		if err := viper.UnmarshalKey("allowed_user_ids", &reg.AllowedUserIDs); err != nil {
			return nil, fmt.Errorf("parse allowed_user_ids: %w", err)
		}
	}

	reg.expandEnv()
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate checks the cross-references the dispatch path relies on: every
// command must name an existing endpoint and carry a model.
func (r *Registry) Validate() error {
	for name, cmd := range r.Commands {
		if !strings.HasPrefix(name, "/") {
			return fmt.Errorf("command %q: name must start with /", name)
		}
		if strings.TrimSpace(cmd.Endpoint) == "" {
			return fmt.Errorf("command %q: api_endpoint is required", name)
		}
		if _, ok := r.Endpoints[cmd.Endpoint]; !ok {
			return fmt.Errorf("command %q: %w: %s", name, ErrUnknownEndpoint, cmd.Endpoint)
		}
		if strings.TrimSpace(cmd.Model) == "" {
			return fmt.Errorf("command %q: model is required", name)
		}
	}
	return nil
}

func (r *Registry) Endpoint(name string) (Endpoint, bool) {
	ep, ok := r.Endpoints[name]
	return ep, ok
}

func (r *Registry) Command(name string) (Command, bool) {
	cmd, ok := r.Commands[name]
	return cmd, ok
}

// CommandNames returns the configured command names in stable order, for the
// help text and the Telegram command menu.
func (r *Registry) CommandNames() []string {
	names := make([]string, 0, len(r.Commands))
	for name := range r.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// expandEnv resolves ${VAR} references in every string value. An unset
// variable expands to the empty string, matching the original loader.
func (r *Registry) expandEnv() {
	for name, ep := range r.Endpoints {
		ep.APIKey = expandEnvValue(ep.APIKey)
		ep.BaseURL = expandEnvValue(ep.BaseURL)
		r.Endpoints[name] = ep
	}
	for name, cmd := range r.Commands {
		cmd.Endpoint = expandEnvValue(cmd.Endpoint)
		cmd.Model = expandEnvValue(cmd.Model)
		cmd.Parameters = expandEnvAny(cmd.Parameters).(map[string]any)
		r.Commands[name] = cmd
	}
}

func expandEnvValue(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

func expandEnvAny(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvValue(val)
	case map[string]any:
		if val == nil {
			return val
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandEnvAny(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandEnvAny(item)
		}
		return out
	default:
		return v
	}
}
