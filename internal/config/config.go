// Package config loads application settings from the environment, with
// optional .env files and CLI flag overrides applied by the command layer.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
)

// App types. An llm instance serves providers directly; an agent proxies
// to registered llm instances.
const (
	AppTypeLLM   = "llm"
	AppTypeAgent = "agent"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Settings is the full application configuration.
type Settings struct {
	AppType string `validate:"oneof=llm agent"`

	Host    string `validate:"required"`
	Port    int    `validate:"min=1,max=65535"`
	Workers int    `validate:"min=1"`

	Reload      bool
	ReloadDelay time.Duration `validate:"min=0"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	UseColors bool

	// AgentURL is where llm instances register; SelfURL is the address
	// they advertise. Both are required only in llm mode with an agent.
	AgentURL           string
	SelfURL            string
	RegisterPeriod     time.Duration `validate:"min=1s"`
	RegisterFailPeriod time.Duration `validate:"min=1s"`

	OpenAIAPIKey      string
	OpenAIEndpoint    string
	AnthropicAPIKey   string
	AnthropicEndpoint string
	GoogleAPIKey      string
	GoogleEndpoint    string

	// Deploys maps public deploy names to provider/model routes.
	Deploys map[string]configuration.ModelRoute

	RedisAddr      string
	PostgresDSN    string
	DataDir        string
	EmbeddingModel string
}

// Defaults returns the settings used when the environment sets nothing.
func Defaults() *Settings {
	return &Settings{
		AppType:            AppTypeLLM,
		Host:               "0.0.0.0",
		Port:               8680,
		Workers:            1,
		ReloadDelay:        5 * time.Second,
		LogLevel:           "debug",
		UseColors:          true,
		RegisterPeriod:     10 * time.Second,
		RegisterFailPeriod: 2 * time.Second,
		DataDir:            "./data",
		EmbeddingModel:     "text-embedding-3-small",
		Deploys:            map[string]configuration.ModelRoute{},
	}
}

// Load reads .env (when present) and the process environment over the
// defaults. The result is validated.
func Load() (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	s := Defaults()
	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) applyEnv() error {
	var err error
	setString(&s.AppType, "APP_TYPE")
	setString(&s.Host, "HOST")
	if err = setInt(&s.Port, "PORT"); err != nil {
		return err
	}
	if err = setInt(&s.Workers, "WORKERS"); err != nil {
		return err
	}
	if err = setBool(&s.Reload, "RELOAD"); err != nil {
		return err
	}
	if err = setDuration(&s.ReloadDelay, "RELOAD_DELAY"); err != nil {
		return err
	}
	setString(&s.LogLevel, "LOG_LEVEL")
	if err = setBool(&s.UseColors, "USE_COLORS"); err != nil {
		return err
	}

	setString(&s.AgentURL, "AGENT_BASE_URL")
	setString(&s.SelfURL, "SELF_BASE_URL")
	if err = setDuration(&s.RegisterPeriod, "MODEL_REGISTER_PERIOD"); err != nil {
		return err
	}
	if err = setDuration(&s.RegisterFailPeriod, "MODEL_REGISTER_FAIL_PERIOD"); err != nil {
		return err
	}

	setString(&s.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&s.OpenAIEndpoint, "OPENAI_API_BASE")
	setString(&s.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&s.AnthropicEndpoint, "ANTHROPIC_API_BASE")
	setString(&s.GoogleAPIKey, "GOOGLE_API_KEY")
	setString(&s.GoogleEndpoint, "GOOGLE_API_BASE")

	if raw, ok := os.LookupEnv("MODEL_DEPLOYS"); ok {
		deploys, err := ParseDeploys(raw)
		if err != nil {
			return err
		}
		s.Deploys = deploys
	}

	setString(&s.RedisAddr, "REDIS_ADDR")
	setString(&s.PostgresDSN, "POSTGRES_DSN")
	setString(&s.DataDir, "DATA_DIR")
	setString(&s.EmbeddingModel, "EMBEDDING_MODEL")
	return nil
}

// Validate checks field constraints and mode-specific requirements.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if s.AppType == AppTypeLLM && len(s.Deploys) == 0 && !s.hasProviderKey() {
		return errors.New("llm mode requires at least one provider API key or model deploy")
	}
	return nil
}

func (s *Settings) hasProviderKey() bool {
	return s.OpenAIAPIKey != "" || s.AnthropicAPIKey != "" || s.GoogleAPIKey != ""
}

// Addr returns the host:port bind address.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AdvertisedURL returns the base URL registered with the agent. SelfURL
// wins when set; otherwise it is derived from the bind address.
func (s *Settings) AdvertisedURL() string {
	if s.SelfURL != "" {
		return strings.TrimRight(s.SelfURL, "/")
	}
	host := s.Host
	if host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}

// ClientConfig builds the provider client configuration: configured
// providers, deploy routes, and Redis-backed cache and global rate limit
// when a Redis address is set.
func (s *Settings) ClientConfig() *configuration.Config {
	cfg := configuration.DefaultConfig()

	cfg.Providers = map[string]configuration.ProviderConfig{}
	if s.OpenAIAPIKey != "" {
		cfg.Providers["openai"] = configuration.ProviderConfig{
			Endpoint: s.OpenAIEndpoint,
			APIKey:   s.OpenAIAPIKey,
		}
	}
	if s.AnthropicAPIKey != "" {
		cfg.Providers["anthropic"] = configuration.ProviderConfig{
			Endpoint: s.AnthropicEndpoint,
			APIKey:   s.AnthropicAPIKey,
		}
	}
	if s.GoogleAPIKey != "" {
		cfg.Providers["google"] = configuration.ProviderConfig{
			Endpoint: s.GoogleEndpoint,
			APIKey:   s.GoogleAPIKey,
		}
	}

	cfg.Routes = make(map[string]configuration.ModelRoute, len(s.Deploys))
	for name, route := range s.Deploys {
		cfg.Routes[name] = route
	}

	if s.RedisAddr != "" {
		cfg.Cache.Enabled = true
		cfg.Cache.RedisAddr = s.RedisAddr
		cfg.RateLimit.Global.Enabled = true
		cfg.RateLimit.Global.RedisAddr = s.RedisAddr
	}
	return cfg
}

// ParseDeploys parses a comma-separated list of deploy=provider/model
// entries, e.g. "my-gpt=openai/gpt-4o-mini,my-claude=anthropic/claude-3-haiku".
func ParseDeploys(raw string) (map[string]configuration.ModelRoute, error) {
	deploys := make(map[string]configuration.ModelRoute)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, routeValue, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		routeValue = strings.TrimSpace(routeValue)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid model deploy %q, want name=provider/model", entry)
		}
		route, err := configuration.ParseRoute(routeValue)
		if err != nil {
			return nil, fmt.Errorf("invalid model deploy %q: %w", entry, err)
		}
		deploys[name] = route
	}
	return deploys, nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

// setDuration accepts Go duration strings and, for compatibility with the
// original launcher, bare numbers meaning seconds.
func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	if seconds, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(seconds * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}
