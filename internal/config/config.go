package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string
	LogMode  string

	DBDriver string // sqlite|postgres|memory
	DBDSN    string

	BlobBasePath string

	AuthSecret         string
	TokenTTL           time.Duration
	EnableRegistration bool

	CORSOrigins []string

	// Notifications
	RedisAddr      string
	RedisChannel   string
	SendgridAPIKey string
	MailFrom       string
	MailFromName   string
	NotifyWorkers  int
	NotifyQueue    int

	// Grading
	MaxEditDistance  int     // fill-in-blank typo tolerance, 0 is exact
	NumericTolerance float64 // fill-in-blank numeric answers

	// Reconciler
	ReconcileSchedule string
	ReconcileBatch    int
	CASRetries        int
	// InProcessSweep runs the stale sweep inside the gateway.
	InProcessSweep bool
}

// FromEnv reads the process environment. A .env file in the working directory
// is loaded first when present; variables already set win.
func FromEnv() Config {
	_ = godotenv.Load()

	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	logMode := "development"
	if mode == ModeOnline {
		logMode = "production"
	}
	return Config{
		Mode:         mode,
		HTTPAddr:     envOr("HTTP_ADDR", ":8080"),
		LogMode:      envOr("LOG_MODE", logMode),
		DBDriver:     envOr("DB_DRIVER", "sqlite"),
		DBDSN:        envOr("DB_DSN", ""),
		BlobBasePath: envOr("BLOB_BASE_PATH", "./data"),

		AuthSecret: envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		TokenTTL:   envDuration("TOKEN_TTL", 8*time.Hour),

		EnableRegistration: envBool("ENABLE_REGISTRATION", true),

		CORSOrigins: csvOr("CORS_ORIGINS", "http://localhost:3000"),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisChannel:   envOr("REDIS_CHANNEL", "lms-events"),
		SendgridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		MailFrom:       envOr("MAIL_FROM", "noreply@localhost"),
		MailFromName:   envOr("MAIL_FROM_NAME", "MindEngage Courses"),
		NotifyWorkers:  envInt("NOTIFY_WORKERS", 2),
		NotifyQueue:    envInt("NOTIFY_QUEUE_SIZE", 256),

		MaxEditDistance:  envInt("GRADING_MAX_EDIT_DISTANCE", 0),
		NumericTolerance: envFloat("GRADING_NUMERIC_TOLERANCE", 0),

		ReconcileSchedule: envOr("RECONCILE_SCHEDULE", "@every 5m"),
		ReconcileBatch:    envInt("RECONCILE_BATCH", 200),
		CASRetries:        envInt("CAS_RETRIES", 5),
		InProcessSweep:    envBool("IN_PROCESS_SWEEP", true),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envFloat(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
