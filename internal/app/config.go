package app

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/cache"
	coreconfig "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/config"
	coredatabase "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/database"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/service"
)

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

// AcademicConfig describes how sections are shaped.
type AcademicConfig struct {
	MaxMembers       int      `yaml:"max_members" envconfig:"SECTION_MAX_MEMBERS"`
	StudyTypes       []string `yaml:"study_types" envconfig:"SECTION_STUDY_TYPES"`
	Divisions        []string `yaml:"divisions" envconfig:"SECTION_DIVISIONS"`
	JoinCodeAttempts int      `yaml:"join_code_attempts" envconfig:"JOIN_CODE_ATTEMPTS"`
}

// NotificationsConfig controls the assignment fan-out and its job queue.
type NotificationsConfig struct {
	// Delay is the spacing between two sends; negative disables pacing.
	Delay      time.Duration `yaml:"delay" envconfig:"NOTIFY_DELAY"`
	Workers    int           `yaml:"workers" envconfig:"NOTIFY_WORKERS"`
	QueueSize  int           `yaml:"queue_size" envconfig:"NOTIFY_QUEUE_SIZE"`
	MaxRetries int           `yaml:"max_retries" envconfig:"NOTIFY_MAX_RETRIES"`
}

// ConversationConfig controls multi-step sessions.
type ConversationConfig struct {
	// SessionTTL expires idle sessions; zero keeps them until they end.
	SessionTTL time.Duration `yaml:"session_ttl" envconfig:"SESSION_TTL"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database      coredatabase.Config `yaml:"database"`
	Redis         cache.Config        `yaml:"redis"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Academic      AcademicConfig      `yaml:"academic"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Conversation  ConversationConfig  `yaml:"conversation"`
	// Timezone is the IANA zone deadlines are typed and shown in.
	Timezone string `yaml:"timezone" envconfig:"BOT_TIMEZONE"`

	location *time.Location
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// Location returns the resolved Timezone.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// LoadConfig reads path, overlays the environment and validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "drsbot:"
	}

	a := &c.Academic
	if a.MaxMembers < 0 {
		return fmt.Errorf("academic.max_members must be >= 0")
	}
	if a.MaxMembers == 0 {
		a.MaxMembers = 50
	}
	if len(a.StudyTypes) == 0 {
		a.StudyTypes = []string{string(models.StudyMorning), string(models.StudyEvening)}
	}
	for i, v := range a.StudyTypes {
		v = strings.ToLower(strings.TrimSpace(v))
		switch models.StudyType(v) {
		case models.StudyMorning, models.StudyEvening:
		default:
			return fmt.Errorf("invalid academic.study_types value %q; allowed: morning, evening", a.StudyTypes[i])
		}
		a.StudyTypes[i] = v
	}
	if len(a.Divisions) == 0 {
		a.Divisions = []string{"A", "B"}
	}
	for i, d := range a.Divisions {
		d = strings.ToUpper(strings.TrimSpace(d))
		if !validDivision(d) {
			return fmt.Errorf("invalid academic.divisions value %q", a.Divisions[i])
		}
		a.Divisions[i] = d
	}
	if a.JoinCodeAttempts < 0 {
		return fmt.Errorf("academic.join_code_attempts must be >= 0")
	}

	n := &c.Notifications
	if n.Delay == 0 {
		n.Delay = 50 * time.Millisecond
	}
	if n.Workers <= 0 {
		n.Workers = 1
	}
	if n.QueueSize <= 0 {
		n.QueueSize = 64
	}
	if n.MaxRetries < 0 {
		return fmt.Errorf("notifications.max_retries must be >= 0")
	}

	if c.Conversation.SessionTTL < 0 {
		return fmt.Errorf("conversation.session_ttl must be >= 0")
	}

	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		tz = "Asia/Baghdad"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.Timezone = tz
	c.location = loc
	return nil
}

func (c *Config) academicOptions() service.AcademicOptions {
	studyTypes := make([]models.StudyType, 0, len(c.Academic.StudyTypes))
	for _, v := range c.Academic.StudyTypes {
		studyTypes = append(studyTypes, models.StudyType(v))
	}
	return service.AcademicOptions{
		BotUsername:      c.Telegram.BotUsername,
		MaxMembers:       c.Academic.MaxMembers,
		StudyTypes:       studyTypes,
		Divisions:        c.Academic.Divisions,
		JoinCodeAttempts: c.Academic.JoinCodeAttempts,
	}
}

// Divisions travel inside callback data, so they stay short and alphanumeric.
func validDivision(d string) bool {
	if d == "" || len(d) > 32 {
		return false
	}
	for _, r := range d {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
