package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverSQLite = "sqlite"
	StoreDriverMongo  = "mongo"

	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Logging    LoggingConfig
	CORS       CORSConfig
	Store      StoreConfig
	LLM        LLMConfig
	Voice      VoiceConfig
	Hume       HumeConfig
	ThingSpeak ThingSpeakConfig
	MQTT       MQTTConfig
	Auth       AuthConfig
	Capture    CaptureConfig
}

type ServerConfig struct {
	HTTPPort     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string // json or console
}

type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int
}

type StoreConfig struct {
	Driver        string
	DatabaseURL   string // SQLite data source
	MongoURI      string
	MongoDatabase string
}

// LLMConfig selects the completion provider used by the assistant.
type LLMConfig struct {
	Provider      string
	GroqAPIKey    string
	GroqBaseURL   string
	GeminiAPIKey  string
	ChatModel     string
	VisionModel   string
	PlantImageURL string
}

type VoiceConfig struct {
	Endpoint       string // where the bridge sends start/stop
	AgentEnabled   bool
	DeepgramAPIKey string
	DeepgramURL    string
}

type HumeConfig struct {
	Enabled      bool
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
}

type ThingSpeakConfig struct {
	ChannelID    string
	BaseURL      string
	PollInterval time.Duration
}

type MQTTConfig struct {
	BrokerURL string
	Topic     string
	ClientID  string
	Username  string
	Password  string
}

type AuthConfig struct {
	JWTSecret      string
	DeviceTokenTTL time.Duration
}

type CaptureConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	Dir       string
}

// Enabled reports whether Cloudinary credentials are present.
func (c CaptureConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	provider := strings.ToLower(getEnv("LLM_PROVIDER", ProviderGroq))
	defaultChatModel, defaultVisionModel := "llama-3.1-70b-versatile", "llama-3.2-90b-vision-preview"
	if provider == ProviderGemini {
		defaultChatModel, defaultVisionModel = "gemini-1.5-flash-latest", "gemini-1.5-flash-latest"
	}

	cfg := &Config{
		Server: ServerConfig{
			HTTPPort:     getEnv("HTTP_PORT", "8080"),
			ReadTimeout:  getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getEnvAsDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			MaxAge:         getEnvAsInt("CORS_MAX_AGE", 300),
		},
		Store: StoreConfig{
			Driver:        strings.ToLower(getEnv("STORE_DRIVER", StoreDriverSQLite)),
			DatabaseURL:   getEnv("DATABASE_URL", "bloom.db"),
			MongoURI:      getEnv("MONGODB_URI", ""),
			MongoDatabase: getEnv("MONGODB_DATABASE", "bloom"),
		},
		LLM: LLMConfig{
			Provider:      provider,
			GroqAPIKey:    getEnv("GROQ_API_KEY", ""),
			GroqBaseURL:   getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			ChatModel:     getEnv("CHAT_MODEL", defaultChatModel),
			VisionModel:   getEnv("VISION_MODEL", defaultVisionModel),
			PlantImageURL: getEnv("PLANT_IMAGE_URL", ""),
		},
		Voice: VoiceConfig{
			Endpoint:       strings.TrimRight(getEnv("VOICE_AI_ENDPOINT", "http://localhost:8080/voice"), "/"),
			AgentEnabled:   getEnvAsBool("VOICE_AGENT_ENABLED", true),
			DeepgramAPIKey: getEnv("DEEPGRAM_API_KEY", ""),
			DeepgramURL:    getEnv("DEEPGRAM_URL", "wss://api.deepgram.com/v1/listen"),
		},
		Hume: HumeConfig{
			Enabled:      getEnvAsBool("HUME_ENABLED", false),
			APIKey:       getEnv("HUME_API_KEY", ""),
			BaseURL:      strings.TrimRight(getEnv("HUME_BASE_URL", "https://api.hume.ai"), "/"),
			PollInterval: getEnvAsDuration("HUME_POLL_INTERVAL", 2*time.Second),
		},
		ThingSpeak: ThingSpeakConfig{
			ChannelID:    getEnv("THINGSPEAK_CHANNEL_ID", ""),
			BaseURL:      strings.TrimRight(getEnv("THINGSPEAK_BASE_URL", "https://api.thingspeak.com"), "/"),
			PollInterval: getEnvAsDuration("THINGSPEAK_POLL_INTERVAL", 15*time.Second),
		},
		MQTT: MQTTConfig{
			BrokerURL: getEnv("MQTT_BROKER_URL", ""),
			Topic:     getEnv("MQTT_TOPIC", "bloom/+/telemetry"),
			ClientID:  getEnv("MQTT_CLIENT_ID", "bloom-dashboard"),
			Username:  getEnv("MQTT_USERNAME", ""),
			Password:  getEnv("MQTT_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			DeviceTokenTTL: getEnvAsDuration("DEVICE_TOKEN_TTL", 365*24*time.Hour),
		},
		Capture: CaptureConfig{
			CloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    getEnv("CLOUDINARY_API_KEY", ""),
			APISecret: getEnv("CLOUDINARY_API_SECRET", ""),
			Folder:    getEnv("CLOUDINARY_FOLDER", ""),
			Dir:       getEnv("CAPTURE_DIR", "static/captures"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate fails fast on missing secrets for the integrations that are switched on.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderGroq:
		if c.LLM.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY environment variable is required")
		}
	case ProviderGemini:
		if c.LLM.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider)
	}

	switch c.Store.Driver {
	case StoreDriverSQLite:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the sqlite store")
		}
	case StoreDriverMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	if c.Voice.AgentEnabled && c.Voice.DeepgramAPIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required when VOICE_AGENT_ENABLED is true")
	}
	if c.Hume.Enabled && c.Hume.APIKey == "" {
		return fmt.Errorf("HUME_API_KEY is not set in the environment variables")
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
