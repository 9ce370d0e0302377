package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Index       IndexConfig       `mapstructure:"index"`
	Encoder     EncoderConfig     `mapstructure:"encoder"`
	Qdrant      QdrantConfig      `mapstructure:"qdrant"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Bot         BotConfig         `mapstructure:"bot"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DatabaseConfig describes the relational store holding the cached reference index.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`   // sqlite file
	URL             string        `mapstructure:"url"`    // postgres DSN
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.URL
	}
	return c.Path
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

// StorageConfig points at the bucket mirroring the reference corpus.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // s3, r2, s3compatible, minio
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

type RecognitionConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type BotConfig struct {
	Token             string   `mapstructure:"token"`
	EmergencyContacts []string `mapstructure:"emergency_contacts"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are usually injected by the environment
	v.BindEnv("bot.token", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("encoder.api_key", "JINA_API_KEY")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("database.url", "DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Encoder.ResolveEnvVars()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/reference_index.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("catalog.path", "./data/weapons_db.json")

	v.SetDefault("index.corpus_path", "./data/weapon_images")
	v.SetDefault("index.shape", IndexShapeCorpus)
	v.SetDefault("index.store", IndexStoreDatabase)
	v.SetDefault("index.verify_corpus", false)
	v.SetDefault("index.workers", 4)

	v.SetDefault("encoder.strategy", StrategyONNX)
	v.SetDefault("encoder.model_path", "./models/vision.onnx")
	v.SetDefault("encoder.input_size", 224)
	v.SetDefault("encoder.mean", []float64{0.48145466, 0.4578275, 0.40821073})
	v.SetDefault("encoder.std", []float64{0.26862954, 0.26130258, 0.27577711})
	v.SetDefault("encoder.threads", 4)
	v.SetDefault("encoder.model", "jina-clip-v2")
	v.SetDefault("encoder.api_key_env", "JINA_API_KEY")
	v.SetDefault("encoder.base_url", "https://api.jina.ai/v1")
	v.SetDefault("encoder.dimensions", 1024)

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "reference_images")

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "weapon-images")
	v.SetDefault("storage.prefix", "corpus")

	v.SetDefault("recognition.workers", 2)
	v.SetDefault("recognition.queue_size", 32)

	v.SetDefault("bot.emergency_contacts", []string{})
}

// Validate checks cross-section constraints that viper cannot express.
func (c *Config) Validate() error {
	if err := c.Encoder.Validate(); err != nil {
		return err
	}
	return c.Index.Validate(&c.Encoder)
}
