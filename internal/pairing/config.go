package pairing

import (
	"strings"
	"time"

	"github.com/gdbrns/go-whatsapp-pair-session/pkg/env"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/validation"
)

type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportZip  ExportFormat = "zip"
)

const defaultExportMessage = "*Session generated.*\n\nKeep the attached file safe and upload it to your bot.\n\nNever share your session file with anyone."

type Config struct {
	Root          string
	MinDigits     int
	SettleDelay   time.Duration
	SettlePoll    time.Duration
	CodeTimeout   time.Duration
	SessionTTL    time.Duration
	EmitTimeout   time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	ExportFormat  ExportFormat
	ExportTimeout time.Duration
	ExportMessage string
	Thumbnail     []byte
}

// ConfigFromEnv reads the PAIR_* variables.
func ConfigFromEnv() Config {
	format := ExportFormat(strings.ToLower(env.GetEnvStringOrDefault("PAIR_EXPORT_FORMAT", string(ExportZip))))
	if format != ExportJSON {
		format = ExportZip
	}

	return Config{
		Root:          env.GetEnvStringOrDefault("PAIR_SESSION_ROOT", "./sessions"),
		MinDigits:     env.GetEnvPositiveIntOrDefault("PAIR_MIN_PHONE_DIGITS", validation.DefaultMinPhoneDigits),
		SettleDelay:   env.GetEnvDurationOrDefault("PAIR_SETTLE_DELAY", 5*time.Second),
		SettlePoll:    env.GetEnvDurationOrDefault("PAIR_SETTLE_POLL", 250*time.Millisecond),
		CodeTimeout:   env.GetEnvDurationOrDefault("PAIR_CODE_TIMEOUT", 90*time.Second),
		SessionTTL:    env.GetEnvDurationOrDefault("PAIR_SESSION_TTL", 10*time.Minute),
		EmitTimeout:   env.GetEnvDurationOrDefault("PAIR_EMIT_TIMEOUT", 5*time.Second),
		MaxRetries:    env.GetEnvPositiveIntOrDefault("PAIR_MAX_RETRIES", 5),
		BackoffBase:   env.GetEnvDurationOrDefault("PAIR_BACKOFF_BASE", 2*time.Second),
		BackoffMax:    env.GetEnvDurationOrDefault("PAIR_BACKOFF_MAX", 30*time.Second),
		ExportFormat:  format,
		ExportTimeout: env.GetEnvDurationOrDefault("PAIR_EXPORT_TIMEOUT", 60*time.Second),
		ExportMessage: env.GetEnvStringOrDefault("PAIR_EXPORT_MESSAGE", defaultExportMessage),
	}
}

func (c *Config) setDefaults() {
	if c.Root == "" {
		c.Root = "./sessions"
	}
	if c.MinDigits <= 0 {
		c.MinDigits = validation.DefaultMinPhoneDigits
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 5 * time.Second
	}
	if c.SettlePoll <= 0 {
		c.SettlePoll = 250 * time.Millisecond
	}
	if c.CodeTimeout <= 0 {
		c.CodeTimeout = 90 * time.Second
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 10 * time.Minute
	}
	if c.EmitTimeout <= 0 {
		c.EmitTimeout = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.ExportFormat == "" {
		c.ExportFormat = ExportZip
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = 60 * time.Second
	}
	if c.ExportMessage == "" {
		c.ExportMessage = defaultExportMessage
	}
}
