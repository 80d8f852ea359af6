package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting the service reads at startup.
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Engine    EngineConfig
	Telemetry TelemetryConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	engine, err := loadEngineConfig()
	if err != nil {
		return nil, err
	}

	telemetry, err := loadTelemetryConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Engine: engine, Telemetry: telemetry}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// Generation provider names selectable via AI_PROVIDER.
const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// AIConfig describes the text-generation capability: which provider plays the
// buyer and how the turn generator retries.
type AIConfig struct {
	Provider string

	// Ark credentials and model settings.
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int

	// OpenAI-compatible endpoint settings.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	StreamResponse bool

	// Timeout is the hard per-call limit, independent of the retry policy.
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	HistoryLimit   int
}

// ArkEnabled reports whether Ark credentials are present.
func (c AIConfig) ArkEnabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// OpenAIEnabled reports whether an OpenAI-compatible endpoint is configured.
func (c AIConfig) OpenAIEnabled() bool {
	return c.OpenAIAPIKey != "" && c.OpenAIModel != ""
}

// NewChatModel builds the Ark chat model from this configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.ArkEnabled() {
		return nil, fmt.Errorf("ark credentials missing: provide ARK_API_KEY + AI_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("AI_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 60*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	retries, err := parseIntEnv("AI_MAX_RETRIES", 3)
	if err != nil {
		return AIConfig{}, err
	}

	retryDelay, err := parseDurationEnv("AI_RETRY_BASE_DELAY", time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit, err := parseIntEnv("AI_HISTORY_LIMIT", 10)
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:       strings.ToLower(strings.TrimSpace(os.Getenv("AI_PROVIDER"))),
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("AI_MODEL")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		OpenAIAPIKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:  getEnvOrDefault("OPENAI_BASE_URL", ""),
		OpenAIModel:    getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		StreamResponse: stream,
		Timeout:        timeout,
		MaxRetries:     retries,
		RetryBaseDelay: retryDelay,
		HistoryLimit:   historyLimit,
	}

	// Provider selection is configuration: unset falls through to whichever
	// credentials are present, then to the offline mock.
	if cfg.Provider == "" {
		switch {
		case cfg.ArkEnabled():
			cfg.Provider = ProviderArk
		case cfg.OpenAIEnabled():
			cfg.Provider = ProviderOpenAI
		default:
			cfg.Provider = ProviderMock
		}
	}

	switch cfg.Provider {
	case ProviderArk, ProviderOpenAI, ProviderMock:
	default:
		return AIConfig{}, fmt.Errorf("unknown AI_PROVIDER %q", cfg.Provider)
	}

	return cfg, nil
}

// EngineConfig tunes the session engine: heartbeats, the reconnect grace
// period, and the phase machine policy.
type EngineConfig struct {
	HeartbeatInterval time.Duration
	// HeartbeatMisses is how many silent intervals mark a connection dead.
	HeartbeatMisses  int
	GracePeriod      time.Duration
	SweepInterval    time.Duration
	MinTurnsPerPhase int
	TurnCeiling      int
	PublishRetries   int
	PublishBaseDelay time.Duration
}

// ReadDeadline is the inbound-traffic window after which a connection is
// presumed dead.
func (c EngineConfig) ReadDeadline() time.Duration {
	return c.HeartbeatInterval * time.Duration(c.HeartbeatMisses)
}

func loadEngineConfig() (EngineConfig, error) {
	heartbeat, err := parseDurationEnv("ENGINE_HEARTBEAT_INTERVAL", 30*time.Second)
	if err != nil {
		return EngineConfig{}, err
	}

	misses, err := parseIntEnv("ENGINE_HEARTBEAT_MISSES", 3)
	if err != nil {
		return EngineConfig{}, err
	}

	grace, err := parseDurationEnv("ENGINE_GRACE_PERIOD", 2*time.Minute)
	if err != nil {
		return EngineConfig{}, err
	}

	sweep, err := parseDurationEnv("ENGINE_SWEEP_INTERVAL", 30*time.Second)
	if err != nil {
		return EngineConfig{}, err
	}

	minTurns, err := parseIntEnv("ENGINE_MIN_TURNS_PER_PHASE", 3)
	if err != nil {
		return EngineConfig{}, err
	}

	ceiling, err := parseIntEnv("ENGINE_TURN_CEILING", 40)
	if err != nil {
		return EngineConfig{}, err
	}

	publishRetries, err := parseIntEnv("ENGINE_PUBLISH_RETRIES", 3)
	if err != nil {
		return EngineConfig{}, err
	}

	publishDelay, err := parseDurationEnv("ENGINE_PUBLISH_BASE_DELAY", 500*time.Millisecond)
	if err != nil {
		return EngineConfig{}, err
	}

	return EngineConfig{
		HeartbeatInterval: heartbeat,
		HeartbeatMisses:   misses,
		GracePeriod:       grace,
		SweepInterval:     sweep,
		MinTurnsPerPhase:  minTurns,
		TurnCeiling:       ceiling,
		PublishRetries:    publishRetries,
		PublishBaseDelay:  publishDelay,
	}, nil
}

// TelemetryConfig describes the optional OTLP trace export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	enabled, err := parseBoolEnv("OTLP_ENABLED", false)
	if err != nil {
		return TelemetryConfig{}, err
	}

	return TelemetryConfig{
		Enabled:      enabled,
		OTLPEndpoint: getEnvOrDefault("OTLP_ENDPOINT", "localhost:4317"),
		ServiceName:  getEnvOrDefault("OTLP_SERVICE_NAME", "dealdojo-engine"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
