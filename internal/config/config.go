package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration, loaded from YAML with
// environment-variable overrides for deployment secrets.
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Assetstore AssetstoreConfig `yaml:"assetstore"`
	Site       SiteConfig       `yaml:"site"`
	Packager   PackagerConfig   `yaml:"packager"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type AppConfig struct {
	Name string `yaml:"name" validate:"required"`
	Env  string `yaml:"env" validate:"oneof=local development production"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"gt=0"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Name     string `yaml:"name" validate:"required"`
	Charset  string `yaml:"charset"`
}

// GetDSN builds the MySQL connection string.
func (d DatabaseConfig) GetDSN() string {
	charset := d.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.Name, charset)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AssetstoreConfig selects and parameterizes the content store backend.
type AssetstoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=filesystem s3"`
	// Dir is the filesystem backend's base directory.
	Dir string `yaml:"dir"`

	S3Region    string `yaml:"s3_region"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3BasePath  string `yaml:"s3_base_path"`
}

type SiteConfig struct {
	// Handle is the site-level persistent identifier recorded as manifest
	// custodian.
	Handle string `yaml:"handle" validate:"required"`
	// URL is the repository's public base URL.
	URL string `yaml:"url" validate:"required,url"`
	// ResolveBaseURL is the prefix under which member identifiers resolve.
	ResolveBaseURL string `yaml:"resolve_base_url" validate:"required,url"`
}

// PackagerConfig names the crosswalks per manifest section; empty fields use
// the built-in defaults.
type PackagerConfig struct {
	Descriptive string `yaml:"descriptive"`
	Technical   string `yaml:"technical"`
	Rights      string `yaml:"rights"`
	Provenance  string `yaml:"provenance"`
	Source      string `yaml:"source"`
	// Validate runs structural manifest checks before committing manifests.
	Validate bool `yaml:"validate"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads the YAML config at path, applies environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrideString(&c.App.Env, "APP_ENV")
	overrideString(&c.Database.Host, "DB_HOST")
	overrideInt(&c.Database.Port, "DB_PORT")
	overrideString(&c.Database.User, "DB_USER")
	overrideString(&c.Database.Password, "DB_PASSWORD")
	overrideString(&c.Database.Name, "DB_NAME")
	overrideString(&c.Redis.Addr, "REDIS_ADDR")
	overrideString(&c.Redis.Password, "REDIS_PASSWORD")
	overrideString(&c.Assetstore.Backend, "ASSETSTORE_BACKEND")
	overrideString(&c.Assetstore.Dir, "ASSETSTORE_DIR")
	overrideString(&c.Assetstore.S3Region, "ASSETSTORE_S3_REGION")
	overrideString(&c.Assetstore.S3Bucket, "ASSETSTORE_S3_BUCKET")
	overrideString(&c.Assetstore.S3AccessKey, "ASSETSTORE_S3_ACCESS_KEY")
	overrideString(&c.Assetstore.S3SecretKey, "ASSETSTORE_S3_SECRET_KEY")
	overrideString(&c.Assetstore.S3Endpoint, "ASSETSTORE_S3_ENDPOINT")
	overrideString(&c.Server.Addr, "SERVER_ADDR")
	overrideString(&c.Metrics.Addr, "METRICS_ADDR")
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "preserv-backend"
	}
	if c.App.Env == "" {
		c.App.Env = "local"
	}
	if c.Assetstore.Backend == "" {
		c.Assetstore.Backend = "filesystem"
	}
	if c.Assetstore.Backend == "filesystem" && c.Assetstore.Dir == "" {
		c.Assetstore.Dir = "assetstore"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
