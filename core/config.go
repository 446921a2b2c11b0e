package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// build is the git revision injected at compile time.
var build = "develop"

type (
	ServerConfig struct {
		Host                      string
		Port                      int
		DebugHost                 string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ShutdownTimeout           time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          int
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	Config struct {
		Env      string
		Debug    bool
		TestMode bool
		Build    string

		AppName          string
		SecretKey        []byte
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		AdminEmails      []string

		MagicLinkTimeout    time.Duration
		MagicLinkRateLimit  int
		MagicLinkRateWindow time.Duration

		SendgridAPIKey string
		RollbarToken   string
		PostHogAPIKey  string
		PostHogHost    string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
	}
)

// NewConfig reads the environment (and an optional config/.env.<env> file)
// once at startup and returns the resulting Config. Handlers and services
// receive it by injection; nothing re-reads the environment afterwards.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("appName", "AI Masterclass")
	v.SetDefault("secretKey", "w3lc0me-70-7h3-41-m4s73rcl4ss-ch4ng3-m3-1n-pr0d")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "onboarding@resend.dev")
	v.SetDefault("adminEmails", "")
	v.SetDefault("magicLinkTimeout", 15*time.Minute)
	v.SetDefault("magicLinkRateLimit", 5)
	v.SetDefault("magicLinkRateWindow", 15*time.Minute)
	v.SetDefault("posthogHost", "https://us.i.posthog.com")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverPort", 8000)
	v.SetDefault("serverDebugHost", "localhost:4000")
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("shutdownTimeout", 5*time.Second)

	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseName", "aimasterclass")
	v.SetDefault("databaseUser", "aimasterclass")
	v.SetDefault("databasePassword", "")
	v.SetDefault("databaseAdminUser", "")
	v.SetDefault("databaseAdminPassword", "")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", 5432)
	v.SetDefault("databaseDisableTLS", true)

	v.SetDefault("redisAddr", "")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err = godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:      env,
		Debug:    v.GetBool("debug"),
		TestMode: env == "TEST",
		Build:    build,

		AppName:          v.GetString("appName"),
		SecretKey:        []byte(v.GetString("secretKey")),
		FrontendBaseURL:  strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail: mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		AdminEmails:      splitEmails(v.GetString("adminEmails")),

		MagicLinkTimeout:    v.GetDuration("magicLinkTimeout"),
		MagicLinkRateLimit:  v.GetInt("magicLinkRateLimit"),
		MagicLinkRateWindow: v.GetDuration("magicLinkRateWindow"),

		SendgridAPIKey: v.GetString("sendgridApiKey"),
		RollbarToken:   v.GetString("rollbarToken"),
		PostHogAPIKey:  v.GetString("posthogApiKey"),
		PostHogHost:    v.GetString("posthogHost"),

		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			Port:                      v.GetInt("serverPort"),
			DebugHost:                 v.GetString("serverDebugHost"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
			ShutdownTimeout:           v.GetDuration("shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("databaseEngine"),
			Name:          v.GetString("databaseName"),
			User:          v.GetString("databaseUser"),
			Password:      v.GetString("databasePassword"),
			AdminUser:     v.GetString("databaseAdminUser"),
			AdminPassword: v.GetString("databaseAdminPassword"),
			Host:          v.GetString("databaseHost"),
			Port:          v.GetInt("databasePort"),
			DisableTLS:    v.GetBool("databaseDisableTLS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redisAddr"),
			Password: v.GetString("redisPassword"),
			DB:       v.GetInt("redisDB"),
		},
	}
}

func (c ServerConfig) Address() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

func (c DatabaseConfig) Address() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// EmailEnabled reports whether a transactional email provider is configured.
func (c *Config) EmailEnabled() bool { return c.SendgridAPIKey != "" }

// AnalyticsEnabled reports whether server-side analytics capture is configured.
func (c *Config) AnalyticsEnabled() bool { return c.PostHogAPIKey != "" }

// RedisEnabled reports whether the rate-limiter backend is configured.
func (c *Config) RedisEnabled() bool { return c.Redis.Addr != "" }

// IsAdminEmail reports whether email belongs to the configured operator list.
func (c *Config) IsAdminEmail(email string) bool {
	email = CleanString(email, true /* lower */)
	for _, e := range c.AdminEmails {
		if e == email {
			return true
		}
	}
	return false
}

func splitEmails(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	emails := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = CleanString(p, true /* lower */); p != "" {
			emails = append(emails, p)
		}
	}
	return emails
}
