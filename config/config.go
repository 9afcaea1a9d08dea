// Package config loads the authd configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	Pepper      string
	MinLength   int
	MinScore    int
	HistorySize int
}

type SessionConfig struct {
	TTL              time.Duration
	RememberMeTTL    time.Duration
	MaxPerUser       int
	SuspiciousIPs    int
	SuspiciousWindow time.Duration
}

type LockoutConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	CounterTTL      time.Duration
}

type MFAConfig struct {
	Issuer          string
	SealKey         string
	BackupCodeCount int
	ChallengeTTL    time.Duration
}

type RateLimitConfig struct {
	LoginPerMinute   int
	LoginBurst       int
	RefreshPerMinute int
	RefreshBurst     int
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	MaxEntries int
	Retention  time.Duration
}

type AppConfig struct {
	Environment string
	LogLevel    string
	HTTP        HTTPConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Password    PasswordConfig
	Session     SessionConfig
	Lockout     LockoutConfig
	MFA         MFAConfig
	RateLimit   RateLimitConfig
	Audit       AuditConfig
	CSRFSecret  string
}

// Load reads config.yaml (cwd, ./config, /etc/authd) plus AUTHD_* env
// overrides and applies defaults for everything unset.
func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/authd")

	v.SetEnvPrefix("AUTHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that would weaken the token or MFA layer.
func (c *AppConfig) Validate() error {
	if len(c.JWT.AccessSecret) < 32 {
		return errors.New("config: jwt.accesssecret must be at least 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("config: jwt.refreshsecret must be at least 32 bytes")
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("config: access and refresh secrets must differ")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("config: jwt.refreshttl must exceed jwt.accessttl")
	}
	if len(c.MFA.SealKey) != 32 {
		return errors.New("config: mfa.sealkey must be exactly 32 bytes")
	}
	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("config: lockout.maxattempts must be positive")
	}
	if c.Session.MaxPerUser <= 0 {
		return errors.New("config: session.maxperuser must be positive")
	}
	if len(c.CSRFSecret) < 32 {
		return errors.New("config: csrfsecret must be at least 32 bytes")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "info")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8085)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.accessttl", "15m")
	v.SetDefault("jwt.refreshttl", "168h")
	v.SetDefault("jwt.issuer", "maintainpro")
	v.SetDefault("jwt.audience", "maintainpro-api")
	v.SetDefault("jwt.leeway", "30s")

	v.SetDefault("password.memory", 65536)
	v.SetDefault("password.time", 3)
	v.SetDefault("password.parallelism", 2)
	v.SetDefault("password.minlength", 8)
	v.SetDefault("password.minscore", 50)
	v.SetDefault("password.historysize", 5)

	v.SetDefault("session.ttl", "8h")
	v.SetDefault("session.remembermettl", "720h")
	v.SetDefault("session.maxperuser", 5)
	v.SetDefault("session.suspiciousips", 2)
	v.SetDefault("session.suspiciouswindow", "15m")

	v.SetDefault("lockout.maxattempts", 5)
	v.SetDefault("lockout.lockoutduration", "15m")
	v.SetDefault("lockout.counterttl", "1h")

	v.SetDefault("mfa.issuer", "MaintainPro")
	v.SetDefault("mfa.backupcodecount", 10)
	v.SetDefault("mfa.challengettl", "5m")

	v.SetDefault("ratelimit.loginperminute", 10)
	v.SetDefault("ratelimit.loginburst", 5)
	v.SetDefault("ratelimit.refreshperminute", 30)
	v.SetDefault("ratelimit.refreshburst", 10)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffersize", 1024)
	v.SetDefault("audit.dropiffull", true)
	v.SetDefault("audit.maxentries", 10000)
	v.SetDefault("audit.retention", "2160h")
}
