package config

import (
	"time"

	"github.com/gamma-omg/timewise-go/internal/pkg/env"
)

// Backend choices.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendFile     = "file"
	BackendLocal    = "local"
	BackendSession  = "session"
	BackendPostgres = "postgres"
)

type Config struct {
	HTTP       httpConfig
	Session    sessionConfig
	Redis      redisConfig
	Lock       lockConfig
	Mirror     mirrorConfig
	DB         dbConfig
	Line       lineConfig
	WFM        wfmConfig
	Attendance attendanceConfig
	OTC        otcConfig
	AppURL     string
}

type httpConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type sessionConfig struct {
	Secret  string
	TTL     time.Duration
	Backend string
	Dir     string
	MaxKeys int64
}

type redisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Prefix   string
}

type lockConfig struct {
	Backend string
	TTL     time.Duration
}

type mirrorConfig struct {
	Backend string
}

type dbConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type lineConfig struct {
	ChannelID     string
	ChannelSecret string
	RedirectURL   string
	VerifyIDToken bool
}

type wfmConfig struct {
	SearchURL       string
	TaskURL         string
	UserSearchURL   string
	UserSearchToken string
	Timeout         time.Duration
	PhoneRegion     string
}

type attendanceConfig struct {
	TimeZone        *time.Location
	RadiusMeters    float64
	LocationTimeout time.Duration
}

type otcConfig struct {
	Backend string
	TTL     time.Duration
}

func FromEnv() Config {
	return Config{
		HTTP: httpConfig{
			ListenAddr:      env.String("HTTP_LISTEN_ADDR", ":8080"),
			ReadTimeout:     env.Duration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    env.Duration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     env.Duration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: env.Duration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Session: sessionConfig{
			Secret:  env.RequireString("SESSION_SECRET"),
			TTL:     env.Duration("SESSION_TTL", 30*24*time.Hour),
			Backend: env.String("SESSION_BACKEND", BackendMemory),
			Dir:     env.String("SESSION_DIR", "./data/sessions"),
			MaxKeys: env.Int64("SESSION_MAX_KEYS", 100_000),
		},
		Redis: redisConfig{
			Host:     env.String("REDIS_HOST", "localhost"),
			Port:     env.String("REDIS_PORT", "6379"),
			Password: env.String("REDIS_PASSWORD", ""),
			DB:       env.Int("REDIS_DB", 0),
			Prefix:   env.String("REDIS_PREFIX", "timewise:"),
		},
		Lock: lockConfig{
			Backend: env.String("LOCK_BACKEND", BackendLocal),
			TTL:     env.Duration("LOCK_TTL", time.Minute),
		},
		Mirror: mirrorConfig{
			Backend: env.String("MIRROR_BACKEND", BackendSession),
		},
		DB: dbConfig{
			Host:     env.String("DB_HOST", "localhost"),
			Port:     env.String("DB_PORT", "5432"),
			User:     env.String("DB_USER", "timewise"),
			Password: env.String("DB_PASSWORD", ""),
			Name:     env.String("DB_NAME", "timewise"),
			SSLMode:  env.String("DB_SSLMODE", "disable"),
		},
		Line: lineConfig{
			ChannelID:     env.RequireString("LINE_CHANNEL_ID"),
			ChannelSecret: env.RequireString("LINE_CHANNEL_SECRET"),
			RedirectURL:   env.RequireString("LINE_REDIRECT_URL"),
			VerifyIDToken: env.Bool("LINE_VERIFY_ID_TOKEN", true),
		},
		WFM: wfmConfig{
			SearchURL:       env.RequireString("WFM_SEARCH_URL"),
			TaskURL:         env.RequireString("WFM_TASK_URL"),
			UserSearchURL:   env.RequireString("WFM_USER_SEARCH_URL"),
			UserSearchToken: env.RequireString("WFM_USER_SEARCH_TOKEN"),
			Timeout:         env.Duration("REMOTE_TIMEOUT", 15*time.Second),
			PhoneRegion:     env.String("WFM_PHONE_REGION", "TH"),
		},
		Attendance: attendanceConfig{
			TimeZone:        env.Location("ATTENDANCE_TIMEZONE", bangkok()),
			RadiusMeters:    env.Float64("GEOFENCE_RADIUS_METERS", 50),
			LocationTimeout: env.Duration("LOCATION_TIMEOUT", 15*time.Second),
		},
		OTC: otcConfig{
			Backend: env.String("OTC_BACKEND", BackendLocal),
			TTL:     env.Duration("OTC_TTL", time.Minute),
		},
		AppURL: env.RequireString("APP_REDIRECT_URL"),
	}
}

func bangkok() *time.Location {
	loc, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		return time.FixedZone("ICT", 7*60*60)
	}
	return loc
}
