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
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Service     ServiceConfig   `yaml:"service"`
	Session     SessionConfig   `yaml:"session"`
	Relay       RelayConfig     `yaml:"relay"`
	Bus         BusConfig       `yaml:"bus"`
	Synth       SynthConfig     `yaml:"synth"`
	Store       StoreConfig     `yaml:"store"`
}

// ServiceConfig describes the animation inference endpoint.
type ServiceConfig struct {
	Mode       string `yaml:"mode"` // mock, external
	Target     string `yaml:"target"`
	ChunkBytes int    `yaml:"chunk_bytes"`
}

type SessionConfig struct {
	ParamsPath string `yaml:"params_path"`
	OutputDir  string `yaml:"output_dir"`
	RelayAudio bool   `yaml:"relay_audio"`
}

type RelayConfig struct {
	Mode      string `yaml:"mode"` // off, ws, nats
	WSURL     string `yaml:"ws_url"`
	QueueSize int    `yaml:"queue_size"`
}

type BusConfig struct {
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

type SynthConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "faceflow-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Service: ServiceConfig{
			Mode:       "mock",
			Target:     "localhost:52000",
			ChunkBytes: 65536,
		},
		Session: SessionConfig{
			ParamsPath: "./session_params.yaml",
			OutputDir:  "./output",
			RelayAudio: false,
		},
		Relay: RelayConfig{
			Mode:      "ws",
			WSURL:     "ws://localhost:2000",
			QueueSize: 256,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Synth: SynthConfig{
			Mode:       "mock",
			SampleRate: 44100,
			Channels:   1,
		},
		Store: StoreConfig{
			Path:          "./data/faceflow-sessions.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
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
	overrideString(&cfg.RuntimeName, "FACEFLOW_RUNTIME_NAME")
	overrideString(&cfg.Environment, "FACEFLOW_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "FACEFLOW_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "FACEFLOW_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "FACEFLOW_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "FACEFLOW_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "FACEFLOW_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "FACEFLOW_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.Service.Mode, "FACEFLOW_SERVICE_MODE")
	overrideString(&cfg.Service.Target, "FACEFLOW_SERVICE_TARGET")
	overrideInt(&cfg.Service.ChunkBytes, "FACEFLOW_SERVICE_CHUNK_BYTES")
	overrideString(&cfg.Session.ParamsPath, "FACEFLOW_SESSION_PARAMS_PATH")
	overrideString(&cfg.Session.OutputDir, "FACEFLOW_SESSION_OUTPUT_DIR")
	overrideBool(&cfg.Session.RelayAudio, "FACEFLOW_SESSION_RELAY_AUDIO")
	overrideString(&cfg.Relay.Mode, "FACEFLOW_RELAY_MODE")
	overrideString(&cfg.Relay.WSURL, "FACEFLOW_RELAY_WS_URL")
	overrideInt(&cfg.Relay.QueueSize, "FACEFLOW_RELAY_QUEUE_SIZE")
	overrideBool(&cfg.Bus.Embedded, "FACEFLOW_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "FACEFLOW_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "FACEFLOW_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "FACEFLOW_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "FACEFLOW_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "FACEFLOW_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "FACEFLOW_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "FACEFLOW_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "FACEFLOW_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Synth.Mode, "FACEFLOW_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "FACEFLOW_SYNTH_COMMAND")
	overrideString(&cfg.Synth.Voice, "FACEFLOW_SYNTH_VOICE")
	overrideInt(&cfg.Synth.SampleRate, "FACEFLOW_SYNTH_SAMPLE_RATE")
	overrideInt(&cfg.Synth.Channels, "FACEFLOW_SYNTH_CHANNELS")
	overrideString(&cfg.Store.Path, "FACEFLOW_STORE_PATH")
	overrideString(&cfg.Store.RetentionMode, "FACEFLOW_STORE_RETENTION_MODE")
	overrideInt(&cfg.Store.RetentionDays, "FACEFLOW_STORE_RETENTION_DAYS")
	overrideInt(&cfg.Store.MaxSessions, "FACEFLOW_STORE_MAX_SESSIONS")
	overrideBool(&cfg.Store.VacuumOnStart, "FACEFLOW_STORE_VACUUM_ON_START")
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

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Service.Mode {
	case "mock", "external":
	default:
		return errors.New("service.mode must be one of mock|external")
	}
	if cfg.Service.Mode == "external" && cfg.Service.Target == "" {
		return errors.New("service.target must be set when mode=external")
	}
	if cfg.Service.ChunkBytes <= 0 {
		return errors.New("service.chunk_bytes must be positive")
	}
	if cfg.Session.ParamsPath == "" {
		return errors.New("session.params_path must not be empty")
	}
	if cfg.Session.OutputDir == "" {
		return errors.New("session.output_dir must not be empty")
	}
	switch cfg.Relay.Mode {
	case "off", "ws", "nats":
	default:
		return errors.New("relay.mode must be one of off|ws|nats")
	}
	if cfg.Relay.Mode == "ws" && cfg.Relay.WSURL == "" {
		return errors.New("relay.ws_url must be set when relay.mode=ws")
	}
	if cfg.Relay.Mode != "off" && cfg.Relay.QueueSize <= 0 {
		return errors.New("relay.queue_size must be positive")
	}
	if cfg.Relay.Mode == "nats" {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else {
			if len(cfg.Bus.Servers) == 0 {
				return errors.New("bus.servers must not be empty when embedded mode is disabled")
			}
		}
	}
	switch cfg.Synth.Mode {
	case "mock", "exec":
	default:
		return errors.New("synth.mode must be one of mock|exec")
	}
	if cfg.Synth.Mode == "exec" && cfg.Synth.Command == "" {
		return errors.New("synth.command must be set when mode=exec")
	}
	if cfg.Synth.SampleRate <= 0 {
		return errors.New("synth.sample_rate must be positive")
	}
	if cfg.Synth.Channels != 1 {
		return errors.New("synth.channels must be 1, only mono audio is supported")
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	switch cfg.Store.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	return nil
}
