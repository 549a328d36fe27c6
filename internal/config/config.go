package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"testdrive/internal/schedule"
)

// EnvConfigPath selects the config file when no path is passed.
const EnvConfigPath = "CONFIG_PATH"

const defaultConfigPath = "configs/config.yaml"

type Config struct {
	HTTP struct {
		Address         string `yaml:"address"`
		APIKey          string `yaml:"api_key"`
		// Insecure serves without an API key; X-User-ID is then unauthenticated.
		Insecure        bool   `yaml:"insecure"`
		ReadTimeoutSec  int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSec int    `yaml:"write_timeout_seconds"`
	} `yaml:"http"`

	Database struct {
		Driver string `yaml:"driver"` // sqlite | postgres
		Path   string `yaml:"path"`
		URL    string `yaml:"url"`
	} `yaml:"database"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Booking struct {
		SlotMinutes       int    `yaml:"slot_minutes"`
		MinAdvanceMinutes int    `yaml:"min_advance_minutes"`
		MaxAdvanceDays    int    `yaml:"max_advance_days"`
		MaxActivePerUser  int    `yaml:"max_active_per_user"`
		LockTTLSeconds    int    `yaml:"lock_ttl_seconds"`
		Timezone          string `yaml:"timezone"`
	} `yaml:"booking"`

	Dealership struct {
		ID    string              `yaml:"id"`
		Hours []schedule.DayHours `yaml:"hours"`
	} `yaml:"dealership"`

	Telegram struct {
		Enabled  bool   `yaml:"enabled"`
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	Reminders struct {
		Enabled         bool `yaml:"enabled"`
		HoursBefore     int  `yaml:"hours_before"`
		IntervalMinutes int  `yaml:"interval_minutes"`
	} `yaml:"reminders"`

	Backup BackupConfig `yaml:"backup"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	RateLimit struct {
		Enabled       bool `yaml:"enabled"`
		MaxRequests   int  `yaml:"max_requests"`
		PeriodSeconds int  `yaml:"period_seconds"`
	} `yaml:"rate_limit"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Load reads the YAML config at path, or at $CONFIG_PATH when path is empty.
// A .env file next to the working directory is loaded first so that
// ${ENV_VAR} placeholders can reference it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML document, expanding ${ENV_VAR} placeholders and applying defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/testdrive.db"
	}
	if c.Dealership.ID == "" {
		c.Dealership.ID = "default"
	}
	if c.Booking.SlotMinutes <= 0 {
		c.Booking.SlotMinutes = 60
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "UTC"
	}
	if c.Reminders.HoursBefore <= 0 {
		c.Reminders.HoursBefore = 24
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate catches settings that would only fail later at startup.
func (c *Config) Validate() error {
	if c.HTTP.APIKey == "" && !c.HTTP.Insecure {
		return errors.New("http.api_key is required (set http.insecure to serve without one)")
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if len(c.Dealership.Hours) > 0 {
		if _, err := schedule.NewWeeklySchedule(c.Dealership.Hours); err != nil {
			return fmt.Errorf("dealership.hours: %w", err)
		}
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required when telegram is enabled")
	}
	return nil
}

// Location is the timezone booking dates and times are expressed in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return nil, fmt.Errorf("booking.timezone: %w", err)
	}
	return loc, nil
}

// InitialSchedule is the schedule seeded from config, if any.
func (c *Config) InitialSchedule() (schedule.WeeklySchedule, bool) {
	if len(c.Dealership.Hours) == 0 {
		return schedule.WeeklySchedule{}, false
	}
	s, err := schedule.NewWeeklySchedule(c.Dealership.Hours)
	if err != nil {
		return schedule.WeeklySchedule{}, false
	}
	return s, true
}

func (c *Config) BookingMinAdvance() time.Duration {
	if c.Booking.MinAdvanceMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Booking.MinAdvanceMinutes) * time.Minute
}

func (c *Config) BookingMaxAdvance() time.Duration {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}

func (c *Config) LockTTL() time.Duration {
	if c.Booking.LockTTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Booking.LockTTLSeconds) * time.Second
}

func (c *Config) ReminderLead() time.Duration {
	return time.Duration(c.Reminders.HoursBefore) * time.Hour
}

func (c *Config) ReminderInterval() time.Duration {
	if c.Reminders.IntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Reminders.IntervalMinutes) * time.Minute
}

func (c *Config) RateLimitPeriod() time.Duration {
	if c.RateLimit.PeriodSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimit.PeriodSeconds) * time.Second
}

func (c *Config) RateLimitMax() int {
	if c.RateLimit.MaxRequests <= 0 {
		return 10
	}
	return c.RateLimit.MaxRequests
}

func (c *Config) HTTPTimeouts() (read, write time.Duration) {
	read, write = 10*time.Second, 15*time.Second
	if c.HTTP.ReadTimeoutSec > 0 {
		read = time.Duration(c.HTTP.ReadTimeoutSec) * time.Second
	}
	if c.HTTP.WriteTimeoutSec > 0 {
		write = time.Duration(c.HTTP.WriteTimeoutSec) * time.Second
	}
	return read, write
}

func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}
