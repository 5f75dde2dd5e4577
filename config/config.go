package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	// DBDriver selects the store backend: "sqlite" (a single file, default) or "postgres".
	DBDriver   string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBPath     string `envconfig:"DB_PATH" default:"citnet.db"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"citnet"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	ADSBaseURL           string        `envconfig:"ADS_BASE_URL" default:"https://api.adsabs.harvard.edu/v1"`
	ADSAPIKey            string        `envconfig:"ADS_API_KEY"`
	ADSRequestsPerSecond float64       `envconfig:"ADS_REQUESTS_PER_SECOND" default:"2"`
	ADSTimeout           time.Duration `envconfig:"ADS_TIMEOUT" default:"60s"`

	BatchSize            int           `envconfig:"SAMPLER_BATCH_SIZE" default:"50"`
	MaxRetries           int           `envconfig:"SAMPLER_MAX_RETRIES" default:"5"`
	RetryInitialInterval time.Duration `envconfig:"SAMPLER_RETRY_INITIAL_INTERVAL" default:"1s"`
	RetryMaxInterval     time.Duration `envconfig:"SAMPLER_RETRY_MAX_INTERVAL" default:"30s"`
	MaxDepth             int           `envconfig:"SAMPLER_MAX_DEPTH" default:"1"`

	// Default year interval for snowball sampling, 0 disables the bound.
	SnowballStartYear int `envconfig:"SNOWBALL_START_YEAR" default:"0"`
	SnowballEndYear   int `envconfig:"SNOWBALL_END_YEAR" default:"0"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Cron-Job: leere Schedule deaktiviert den Scheduler.
	CronSchedule   string `envconfig:"CRON_SCHEDULE"`
	CronDirections string `envconfig:"CRON_DIRECTIONS" default:"references,citations"`
	CronRelation   string `envconfig:"CRON_RELATION" default:"direct_citation"`

	S3Key    string `envconfig:"S3_KEY"`
	S3Secret string `envconfig:"S3_SECRET"`
	S3URL    string `envconfig:"S3_URL"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"citnet"`

	// UserFile is the YAML file holding the persisted API key and snowball interval.
	UserFile string `envconfig:"CITNET_CONFIG_FILE"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// S3Enabled reports whether enough S3 settings are present to upload exports.
func (c *Config) S3Enabled() bool {
	return c.S3URL != "" && c.S3Bucket != "" && c.S3Key != "" && c.S3Secret != ""
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("SAMPLER_BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("SAMPLER_MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if c.SnowballStartYear > 0 && c.SnowballEndYear > 0 && c.SnowballStartYear > c.SnowballEndYear {
		return fmt.Errorf("snowball interval %d-%d is reversed", c.SnowballStartYear, c.SnowballEndYear)
	}
	return nil
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
// Values from the user file fill the API key and snowball interval when the
// matching environment variables are not set.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if c.UserFile == "" {
		c.UserFile = DefaultUserFile()
	}
	fc, err := ReadFile(c.UserFile)
	if err != nil {
		return nil, err
	}
	c.applyFile(fc)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyFile(fc *FileConfig) {
	if fc == nil {
		return
	}
	if _, ok := os.LookupEnv("ADS_API_KEY"); !ok && fc.ADS.APIKey != "" {
		c.ADSAPIKey = fc.ADS.APIKey
	}
	if _, ok := os.LookupEnv("SNOWBALL_START_YEAR"); !ok && fc.Snowball.StartYear != 0 {
		c.SnowballStartYear = fc.Snowball.StartYear
	}
	if _, ok := os.LookupEnv("SNOWBALL_END_YEAR"); !ok && fc.Snowball.EndYear != 0 {
		c.SnowballEndYear = fc.Snowball.EndYear
	}
}
