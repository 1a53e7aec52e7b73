// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Import  ImportConfig  `yaml:"import" mapstructure:"import"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the coverage store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// GeocodeConfig configures the geocoding provider chain.
type GeocodeConfig struct {
	ViaCEPBaseURL    string  `yaml:"viacep_base_url" mapstructure:"viacep_base_url"`
	BrasilAPIBaseURL string  `yaml:"brasilapi_base_url" mapstructure:"brasilapi_base_url"`
	NominatimBaseURL string  `yaml:"nominatim_base_url" mapstructure:"nominatim_base_url"`
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	NominatimRPS     float64 `yaml:"nominatim_rps" mapstructure:"nominatim_rps"`
}

// IngestConfig configures geometry ingestion.
type IngestConfig struct {
	ProgressEvery int `yaml:"progress_every" mapstructure:"progress_every"`
}

// ImportConfig configures bulk imports.
type ImportConfig struct {
	CEPBatchSize  int `yaml:"cep_batch_size" mapstructure:"cep_batch_size"`
	CityBatchSize int `yaml:"city_batch_size" mapstructure:"city_batch_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COVERAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "coverage.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("geocode.viacep_base_url", "https://viacep.com.br/ws")
	v.SetDefault("geocode.brasilapi_base_url", "https://brasilapi.com.br/api/cep/v2")
	v.SetDefault("geocode.nominatim_base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "coverage-cli/1.0 (ops@horizonnet.com.br)")
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.nominatim_rps", 1.0)
	v.SetDefault("ingest.progress_every", 25)
	v.SetDefault("import.cep_batch_size", 500)
	v.SetDefault("import.city_batch_size", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
