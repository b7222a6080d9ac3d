package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the arbitrationd configuration file.
type Config struct {
	ListenAddress   string `toml:"ListenAddress"`
	DataDir         string `toml:"DataDir"`
	EventLogPath    string `toml:"EventLogPath"`
	IdempotencyPath string `toml:"IdempotencyPath"`
	LogFile         string `toml:"LogFile"`
	LogLevel        string `toml:"LogLevel"`
	Environment     string `toml:"Environment"`
	FeeUnit         string `toml:"FeeUnit"`
	ProcedureUnit   string `toml:"ProcedureUnit"`

	Auth      Auth      `toml:"Auth"`
	RateLimit RateLimit `toml:"RateLimit"`
	Telemetry Telemetry `toml:"Telemetry"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8090"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.FeeUnit) == "" {
		cfg.FeeUnit = defaultFeeUnit
	}
	if strings.TrimSpace(cfg.ProcedureUnit) == "" {
		cfg.ProcedureUnit = defaultProcedureUnit
	}
	if strings.TrimSpace(cfg.EventLogPath) == "" {
		cfg.EventLogPath = ":memory:"
	}
	if strings.TrimSpace(cfg.Auth.HSSecretEnv) == "" {
		cfg.Auth.HSSecretEnv = "ARBITRATIOND_JWT_SECRET"
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 20
	}
	if strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		cfg.Telemetry.Endpoint = "localhost:4318"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		dir = "."
	}
	cfg := &Config{
		ListenAddress:   ":8090",
		DataDir:         filepath.Join(dir, "arbitration-data"),
		EventLogPath:    filepath.Join(dir, "arbitration-events.db"),
		IdempotencyPath: filepath.Join(dir, "arbitration-idempotency.db"),
		Environment:     "local",
		LogLevel:        "info",
		FeeUnit:         defaultFeeUnit,
		ProcedureUnit:   defaultProcedureUnit,
		Auth: Auth{
			Issuer:      "arbitrationd",
			Audience:    "arbitration-clients",
			HSSecretEnv: "ARBITRATIOND_JWT_SECRET",
		},
		RateLimit: RateLimit{RequestsPerMinute: 120, Burst: 20},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
