package profile

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration needed to start the bot process.
type Profile struct {
	// BotToken authenticates against the chat transport.
	BotToken string
	// Admins is the read-only set of admin chat ids. Loaded once at startup.
	Admins []int64
	// DSN is the Postgres connection string.
	DSN string
	// SSLMode is the Postgres sslmode ("require" unless PGSSLMODE=disable).
	SSLMode string
	// RedisURL, when set, selects the shared conversation store.
	RedisURL string
	// AllowDBReset unlocks the destructive schema reset. Only the literal
	// string "true" unlocks it.
	AllowDBReset bool
	// MetricsAddr, when set, exposes /metrics on this address.
	MetricsAddr string

	Mode    string
	Version string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAdmin reports whether chatID belongs to the configured admin set.
func (p *Profile) IsAdmin(chatID int64) bool {
	for _, id := range p.Admins {
		if id == chatID {
			return true
		}
	}
	return false
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.BotToken = strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	p.Admins = parseAdmins(os.Getenv("ADMINS"))
	p.DSN = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	p.SSLMode = getEnvOrDefault("PGSSLMODE", "require")
	p.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	p.AllowDBReset = os.Getenv("ALLOW_DB_RESET") == "true"
	p.MetricsAddr = strings.TrimSpace(os.Getenv("METRICS_ADDR"))
}

// parseAdmins splits a comma-separated id list, dropping malformed entries.
func parseAdmins(raw string) []int64 {
	var admins []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id == 0 {
			continue
		}
		admins = append(admins, id)
	}
	return admins
}

// NormalizeDSN rewrites the postgres:// scheme and applies the SSL mode.
func NormalizeDSN(dsn, sslMode string) string {
	if strings.HasPrefix(dsn, "postgres://") {
		dsn = "postgresql://" + strings.TrimPrefix(dsn, "postgres://")
	}
	if sslMode == "disable" && !strings.Contains(dsn, "sslmode=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "sslmode=disable"
	}
	return dsn
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.BotToken == "" {
		return errors.New("BOT_TOKEN is required")
	}
	if len(p.Admins) == 0 {
		return errors.New("ADMINS must contain at least one chat id, e.g. ADMINS=123,456")
	}
	if p.DSN == "" {
		return errors.New("DATABASE_URL is required")
	}
	p.DSN = NormalizeDSN(p.DSN, p.SSLMode)
	return nil
}
