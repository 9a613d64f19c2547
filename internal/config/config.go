// Package config loads the service configuration from the environment and .env files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emrgen/notesync/internal/model"
	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	DBDriver string `mapstructure:"DB_DRIVER" validate:"oneof=sqlite postgres"`
	DBDSN    string `mapstructure:"DB_DSN" validate:"required"`
	HTTPPort string `mapstructure:"HTTP_PORT" validate:"required,numeric"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=trace debug info warn warning error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=text json"`

	SigningSecret       string `mapstructure:"SIGNING_SECRET"`
	SignedURLTTLSeconds int    `mapstructure:"SIGNED_URL_TTL_SECONDS" validate:"gt=0"`
	PublicBaseURL       string `mapstructure:"PUBLIC_BASE_URL" validate:"omitempty,url"`

	NoteTagsCollection    string `mapstructure:"NOTE_TAGS_COLLECTION" validate:"required,max=63"`
	AttachmentsCollection string `mapstructure:"ATTACHMENTS_COLLECTION" validate:"max=63"`

	BlobBackend  string `mapstructure:"BLOB_BACKEND" validate:"oneof=badger s3"`
	BlobPath     string `mapstructure:"BLOB_PATH" validate:"required_if=BlobBackend badger"`
	S3BucketName string `mapstructure:"S3_BUCKET_NAME"`
	AWSS3Region  string `mapstructure:"AWS_S3_REGION"`

	RedisAddr           string `mapstructure:"REDIS_ADDR"`
	PlanCacheTTLSeconds int    `mapstructure:"PLAN_CACHE_TTL_SECONDS" validate:"gte=0"`
	DefaultPlan         string `mapstructure:"DEFAULT_PLAN" validate:"required"`
	// PlanAssignments is a comma separated list of owner=plan pairs.
	PlanAssignments string `mapstructure:"PLAN_ASSIGNMENTS"`

	PivotQueryChunk     int    `mapstructure:"PIVOT_QUERY_CHUNK" validate:"gt=0,lte=1000"`
	RevisionCompression string `mapstructure:"REVISION_COMPRESSION" validate:"oneof=nop gzip brotli lz4"`
	PruneWorkers        int    `mapstructure:"PRUNE_WORKERS" validate:"gt=0"`

	ReconcileSchedule      string `mapstructure:"RECONCILE_SCHEDULE"`
	RetentionSchedule      string `mapstructure:"RETENTION_SCHEDULE"`
	RetentionWindowMinutes int    `mapstructure:"RETENTION_WINDOW_MINUTES" validate:"gt=0"`
}

var defaults = map[string]any{
	"DB_DRIVER":                "sqlite",
	"DB_DSN":                   ".data/notesync.db",
	"HTTP_PORT":                "4020",
	"LOG_LEVEL":                "info",
	"LOG_FORMAT":               "text",
	"SIGNING_SECRET":           "",
	"SIGNED_URL_TTL_SECONDS":   300,
	"PUBLIC_BASE_URL":          "",
	"NOTE_TAGS_COLLECTION":     model.NoteTagsTable,
	"ATTACHMENTS_COLLECTION":   "",
	"BLOB_BACKEND":             "badger",
	"BLOB_PATH":                ".data/blobs",
	"S3_BUCKET_NAME":           "",
	"AWS_S3_REGION":            "",
	"REDIS_ADDR":               "",
	"PLAN_CACHE_TTL_SECONDS":   300,
	"DEFAULT_PLAN":             "free",
	"PLAN_ASSIGNMENTS":         "",
	"PIVOT_QUERY_CHUNK":        100,
	"REVISION_COMPRESSION":     "gzip",
	"PRUNE_WORKERS":            4,
	"RECONCILE_SCHEDULE":       "",
	"RETENTION_SCHEDULE":       "@every 10m",
	"RETENTION_WINDOW_MINUTES": 60,
}

// Load reads the configuration from v, which must already hold the environment.
func Load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := cfg.Assignments(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadConfig reads the configuration from the environment, exiting on invalid values.
func LoadConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	// AutomaticEnv only answers Get, Unmarshal needs every key bound
	for key := range defaults {
		_ = v.BindEnv(key)
	}

	cfg, err := Load(v)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	ConfigureLogging(cfg)
	return cfg
}

// ConfigureLogging applies the log level and format to the logrus standard logger.
func ConfigureLogging(cfg *Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// GetDb opens the configured database.
func GetDb(cfg *Config) *gorm.DB {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DBDSN)
	default:
		if dir := filepath.Dir(cfg.DBDSN); dir != "." && !strings.HasPrefix(cfg.DBDSN, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				logrus.Fatalf("create database directory %s: %v", dir, err)
			}
		}
		dialector = sqlite.Open(cfg.DBDSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		logrus.Fatalf("open %s database: %v", cfg.DBDriver, err)
	}

	return db
}

func (c *Config) Tables() model.Tables {
	return model.Tables{
		NoteTags:    c.NoteTagsCollection,
		Attachments: c.AttachmentsCollection,
	}
}

func (c *Config) SignedURLTTL() time.Duration {
	return time.Duration(c.SignedURLTTLSeconds) * time.Second
}

func (c *Config) PlanCacheTTL() time.Duration {
	return time.Duration(c.PlanCacheTTLSeconds) * time.Second
}

// Assignments parses PLAN_ASSIGNMENTS into owner to plan name.
func (c *Config) Assignments() (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(c.PlanAssignments, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		owner, name, ok := strings.Cut(pair, "=")
		owner, name = strings.TrimSpace(owner), strings.TrimSpace(name)
		if !ok || owner == "" || name == "" {
			return nil, fmt.Errorf("PLAN_ASSIGNMENTS: malformed pair %q", pair)
		}
		out[owner] = name
	}

	return out, nil
}

func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionWindowMinutes) * time.Minute
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.HTTPPort
}
