package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Model    ModelConfig
	Classify ClassifyConfig
	History  HistoryConfig
	Cache    CacheConfig
	Redis    RedisConfig
	UI       UIConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	MaxUploadBytes int64
	MaxImagePixels int
}

type ModelConfig struct {
	Path         string
	MetadataPath string
	LabelsPath   string
	// LibraryPath points at the onnxruntime shared library; empty uses the
	// platform default search.
	LibraryPath string
}

type ClassifyConfig struct {
	TopN int
}

type HistoryConfig struct {
	Backend    string
	CSVPath    string
	SQLitePath string
}

type CacheConfig struct {
	Backend    string
	TTLSeconds int
	MaxSize    int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type UIConfig struct {
	Title   string
	OKClass string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads configFile when set, otherwise searches the usual locations for
// config.yaml. Environment variables prefixed with QUALITYCAST_ override both.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/qualitycast")
	}

	v.SetEnvPrefix("QUALITYCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Classify.TopN < 1 {
		return fmt.Errorf("classify.topN must be at least 1, got %d", c.Classify.TopN)
	}
	switch c.History.Backend {
	case "csv", "sqlite":
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.maxUploadBytes must be positive")
	}
	if c.Server.MaxImagePixels <= 0 {
		return fmt.Errorf("server.maxImagePixels must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.maxUploadBytes", 10<<20)
	v.SetDefault("server.maxImagePixels", 40_000_000)

	v.SetDefault("model.path", "models/model.onnx")
	v.SetDefault("model.metadataPath", "models/model_metadata.json")
	v.SetDefault("model.labelsPath", "models/labels.txt")
	v.SetDefault("model.libraryPath", "")

	v.SetDefault("classify.topN", 5)

	v.SetDefault("history.backend", "csv")
	v.SetDefault("history.csvPath", "data/history.csv")
	v.SetDefault("history.sqlitePath", "data/history.db")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttlSeconds", 3600)
	v.SetDefault("cache.maxSize", 256)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ui.title", "QualityCast")
	v.SetDefault("ui.okClass", "Perfect")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
