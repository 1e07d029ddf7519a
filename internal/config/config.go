package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"` // json, text
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Mail        MailConfig       `yaml:"mail"`
	LLM         LLMConfig        `yaml:"llm"`
	Translate   TranslateConfig  `yaml:"translate"`
	TTS         TTSConfig        `yaml:"tts"`
	Player      PlayerConfig     `yaml:"player"`
	Cache       CacheConfig      `yaml:"cache"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxEvents     int    `yaml:"max_events"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type MailConfig struct {
	Source          string `yaml:"source"` // gmail, mbox
	CredentialsPath string `yaml:"credentials_path"`
	TokenPath       string `yaml:"token_path"`
	MboxPath        string `yaml:"mbox_path"`
	MaxResults      int    `yaml:"max_results"`
}

type LLMConfig struct {
	Mode        string  `yaml:"mode"` // mock, ollama, openai, exec
	Endpoint    string  `yaml:"endpoint"`
	Command     string  `yaml:"command"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
}

type TranslateConfig struct {
	DefaultLanguage string  `yaml:"default_language"`
	SourceLanguage  string  `yaml:"source_language"`
	MaxAttempts     int     `yaml:"max_attempts"`
	BackoffBase     float64 `yaml:"backoff_base"`
	TimeoutMS       int     `yaml:"timeout_ms"`
}

type TTSConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	Format     string `yaml:"format"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type PlayerConfig struct {
	Mode           string `yaml:"mode"` // mock, exec
	Command        string `yaml:"command"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
}

type CacheConfig struct {
	Dir      string `yaml:"dir"`
	Eviction string `yaml:"eviction"` // global, per_key
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-narrator",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/narrator-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxEvents:     10000,
		},
		Mail: MailConfig{
			Source:          "gmail",
			CredentialsPath: "credentials.json",
			TokenPath:       "token.json",
			MaxResults:      10,
		},
		LLM: LLMConfig{
			Mode:        "ollama",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3",
			Temperature: 0,
		},
		Translate: TranslateConfig{
			DefaultLanguage: "Marathi",
			SourceLanguage:  "English",
			MaxAttempts:     3,
			BackoffBase:     1.5,
			TimeoutMS:       120000,
		},
		TTS: TTSConfig{
			Mode:       "mock",
			Format:     "mp3",
			SampleRate: 22050,
			Channels:   1,
		},
		Player: PlayerConfig{
			Mode:           "mock",
			PollIntervalMS: 100,
		},
		Cache: CacheConfig{
			Dir:      "./data/audio",
			Eviction: "global",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "NARRATOR_RUNTIME_NAME")
	overrideString(&cfg.Environment, "NARRATOR_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "NARRATOR_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "NARRATOR_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "NARRATOR_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "NARRATOR_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "NARRATOR_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "NARRATOR_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "NARRATOR_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "NARRATOR_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "NARRATOR_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "NARRATOR_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "NARRATOR_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "NARRATOR_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "NARRATOR_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "NARRATOR_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "NARRATOR_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "NARRATOR_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "NARRATOR_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "NARRATOR_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "NARRATOR_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "NARRATOR_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxEvents, "NARRATOR_EVENT_STORE_MAX_EVENTS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "NARRATOR_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Mail.Source, "NARRATOR_MAIL_SOURCE")
	overrideString(&cfg.Mail.CredentialsPath, "NARRATOR_MAIL_CREDENTIALS_PATH")
	overrideString(&cfg.Mail.TokenPath, "NARRATOR_MAIL_TOKEN_PATH")
	overrideString(&cfg.Mail.MboxPath, "NARRATOR_MAIL_MBOX_PATH")
	overrideInt(&cfg.Mail.MaxResults, "NARRATOR_MAIL_MAX_RESULTS")
	overrideString(&cfg.LLM.Mode, "NARRATOR_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "NARRATOR_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "NARRATOR_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "NARRATOR_LLM_MODEL")
	overrideString(&cfg.LLM.APIKey, "NARRATOR_LLM_API_KEY")
	overrideFloat(&cfg.LLM.Temperature, "NARRATOR_LLM_TEMPERATURE")
	overrideString(&cfg.Translate.DefaultLanguage, "NARRATOR_TRANSLATE_DEFAULT_LANGUAGE")
	overrideString(&cfg.Translate.SourceLanguage, "NARRATOR_TRANSLATE_SOURCE_LANGUAGE")
	overrideInt(&cfg.Translate.MaxAttempts, "NARRATOR_TRANSLATE_MAX_ATTEMPTS")
	overrideFloat(&cfg.Translate.BackoffBase, "NARRATOR_TRANSLATE_BACKOFF_BASE")
	overrideInt(&cfg.Translate.TimeoutMS, "NARRATOR_TRANSLATE_TIMEOUT_MS")
	overrideString(&cfg.TTS.Mode, "NARRATOR_TTS_MODE")
	overrideString(&cfg.TTS.Command, "NARRATOR_TTS_COMMAND")
	overrideString(&cfg.TTS.Format, "NARRATOR_TTS_FORMAT")
	overrideInt(&cfg.TTS.SampleRate, "NARRATOR_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "NARRATOR_TTS_CHANNELS")
	overrideString(&cfg.Player.Mode, "NARRATOR_PLAYER_MODE")
	overrideString(&cfg.Player.Command, "NARRATOR_PLAYER_COMMAND")
	overrideInt(&cfg.Player.PollIntervalMS, "NARRATOR_PLAYER_POLL_INTERVAL_MS")
	overrideString(&cfg.Cache.Dir, "NARRATOR_CACHE_DIR")
	overrideString(&cfg.Cache.Eviction, "NARRATOR_CACHE_EVICTION")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Telemetry.LogFormat {
	case "json", "text":
	default:
		return errors.New("telemetry.log_format must be one of json|text")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" && cfg.EventStore.RetentionMode != "ephemeral" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.Mail.Source {
	case "gmail":
		if cfg.Mail.TokenPath == "" || cfg.Mail.CredentialsPath == "" {
			return errors.New("mail.token_path and mail.credentials_path must be set when source=gmail")
		}
	case "mbox":
		if cfg.Mail.MboxPath == "" {
			return errors.New("mail.mbox_path must be set when source=mbox")
		}
	default:
		return errors.New("mail.source must be one of gmail|mbox")
	}
	switch cfg.LLM.Mode {
	case "mock", "ollama", "openai", "exec":
	default:
		return errors.New("llm.mode must be one of mock|ollama|openai|exec")
	}
	if cfg.LLM.Mode == "ollama" && cfg.LLM.Endpoint == "" {
		return errors.New("llm.endpoint must be set when mode=ollama")
	}
	if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
		return errors.New("llm.command must be set when mode=exec")
	}
	if cfg.LLM.Mode == "openai" && cfg.LLM.APIKey == "" {
		return errors.New("llm.api_key must be set when mode=openai")
	}
	if cfg.Translate.MaxAttempts <= 0 {
		return errors.New("translate.max_attempts must be >= 1")
	}
	if cfg.Translate.BackoffBase < 1 {
		return errors.New("translate.backoff_base must be >= 1")
	}
	if cfg.Translate.TimeoutMS <= 0 {
		return errors.New("translate.timeout_ms must be positive")
	}
	if cfg.Translate.SourceLanguage == "" {
		return errors.New("translate.source_language must not be empty")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec":
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	switch cfg.Player.Mode {
	case "mock", "exec":
	default:
		return errors.New("player.mode must be one of mock|exec")
	}
	if cfg.Player.Mode == "exec" && cfg.Player.Command == "" {
		return errors.New("player.command must be set when mode=exec")
	}
	if cfg.Player.PollIntervalMS <= 0 {
		return errors.New("player.poll_interval_ms must be positive")
	}
	if cfg.Cache.Dir == "" {
		return errors.New("cache.dir must not be empty")
	}
	switch cfg.Cache.Eviction {
	case "global", "per_key":
	default:
		return errors.New("cache.eviction must be one of global|per_key")
	}
	return nil
}
