package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // scheduling timezone must resolve in minimal containers

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Source    SourceConfig    `yaml:"source"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Lock      LockConfig      `yaml:"lock"`
	R2        R2Config        `yaml:"r2"`
	Retention RetentionConfig `yaml:"retention"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
}

// MySQLConfig describes the relational destination store.
type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// SourceConfig describes the document store the data is copied from.
type SourceConfig struct {
	URI            string            `yaml:"uri"`
	Database       string            `yaml:"database"`
	ConnectTimeout time.Duration     `yaml:"connect_timeout"`
	Collections    CollectionsConfig `yaml:"collections"`
}

type CollectionsConfig struct {
	Users    string `yaml:"users"`
	Profiles string `yaml:"profiles"`
	Emotions string `yaml:"emotions"`
	Sessions string `yaml:"sessions"`
}

// ScheduleConfig holds the two cron cadences, evaluated in Timezone.
type ScheduleConfig struct {
	Timezone     string `yaml:"timezone"`
	DailyBackup  string `yaml:"daily_backup"`
	WeeklyReport string `yaml:"weekly_report"`
}

type LockConfig struct {
	StaleAfter time.Duration `yaml:"stale_after"`
	LockFile   string        `yaml:"lock_file"` // guards against two daemons on one host
}

type R2Config struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	PathPrefix string `yaml:"path_prefix"`
}

type RetentionConfig struct {
	Hours int `yaml:"hours"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads the configuration from a YAML file. ${VAR} references are
// expanded from the environment before parsing so credentials can stay out
// of the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.MySQL.MaxOpenConns == 0 {
		c.MySQL.MaxOpenConns = 10
	}
	if c.MySQL.MaxIdleConns == 0 {
		c.MySQL.MaxIdleConns = 5
	}
	if c.MySQL.ConnMaxLifetime == 0 {
		c.MySQL.ConnMaxLifetime = time.Hour
	}
	if c.Source.Database == "" {
		c.Source.Database = "counseling"
	}
	if c.Source.ConnectTimeout == 0 {
		c.Source.ConnectTimeout = 10 * time.Second
	}
	if c.Source.Collections.Users == "" {
		c.Source.Collections.Users = "users"
	}
	if c.Source.Collections.Profiles == "" {
		c.Source.Collections.Profiles = "user_profiles"
	}
	if c.Source.Collections.Emotions == "" {
		c.Source.Collections.Emotions = "emotion_records"
	}
	if c.Source.Collections.Sessions == "" {
		c.Source.Collections.Sessions = "counseling_sessions"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Asia/Seoul"
	}
	if c.Schedule.DailyBackup == "" {
		c.Schedule.DailyBackup = "0 3 * * *"
	}
	if c.Schedule.WeeklyReport == "" {
		c.Schedule.WeeklyReport = "0 9 * * 1"
	}
	if c.Lock.StaleAfter == 0 {
		c.Lock.StaleAfter = 2 * time.Hour
	}
	if c.Lock.LockFile == "" {
		c.Lock.LockFile = "/tmp/hybrid-backup.lock"
	}
	if c.Retention.Hours == 0 {
		c.Retention.Hours = 24 * 7 * 12 // keep weekly reports for ~3 months
	}
	if c.R2.PathPrefix == "" {
		c.R2.PathPrefix = "reports"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.MySQL.DSN == "" {
		errs = append(errs, errors.New("mysql.dsn is required"))
	}
	if c.Source.URI == "" {
		errs = append(errs, errors.New("source.uri is required"))
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
	}
	for name, spec := range map[string]string{
		"schedule.daily_backup":  c.Schedule.DailyBackup,
		"schedule.weekly_report": c.Schedule.WeeklyReport,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Lock.StaleAfter < time.Minute {
		errs = append(errs, fmt.Errorf("lock.stale_after must be at least 1m, got %s", c.Lock.StaleAfter))
	}
	return errors.Join(errs...)
}

// Location returns the scheduling timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
