package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Realtime  RealtimeConfig
	Scheduler SchedulerConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Requests per minute per client IP on the HTTP API.
	RateLimit int
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
	// RequireToken makes ?token= mandatory on the websocket endpoint.
	RequireToken bool
}

type RealtimeConfig struct {
	SendBuffer      int
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
	EventsPerSecond float64
	EventBurst      int
	AllowedOrigins  []string
}

// PingPeriod is how often the write pump pings; it must stay below PongWait.
func (r RealtimeConfig) PingPeriod() time.Duration {
	return (r.PongWait * 9) / 10
}

// Catch-up policies for pending scheduled messages whose time elapsed while
// the process was down.
const (
	CatchUpNone = "none"
	CatchUpFire = "fire"
	CatchUpFail = "fail"
)

type SchedulerConfig struct {
	FireTimeout time.Duration
	CatchUp     string
}

type LogConfig struct {
	Level string
}

// Load returns the default configuration overridden by environment variables.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         "5000",
			Env:          "development",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			RateLimit:    300,
		},
		Database: DatabaseConfig{
			DSN:             "sqlite:pulse.db",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret: "change-me-in-production",
			AccessExpiry: 24 * time.Hour,
			Issuer:       "pulse",
		},
		Realtime: RealtimeConfig{
			SendBuffer:      256,
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			MaxMessageBytes: 1 << 20,
			EventsPerSecond: 50,
			EventBurst:      100,
		},
		Scheduler: SchedulerConfig{
			FireTimeout: 15 * time.Second,
			CatchUp:     CatchUpNone,
		},
		Log: LogConfig{Level: "info"},
	}

	var invalid []string
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int, min int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < min {
				invalid = append(invalid, key)
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				invalid = append(invalid, key)
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				invalid = append(invalid, key)
				return
			}
			*dst = b
		}
	}

	str("PORT", &cfg.Server.Port)
	str("APP_ENV", &cfg.Server.Env)
	duration("HTTP_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	duration("HTTP_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	integer("HTTP_RATE_LIMIT", &cfg.Server.RateLimit, 1)

	str("DATABASE_DSN", &cfg.Database.DSN)
	integer("DATABASE_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns, 0)
	integer("DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns, 1)
	duration("DATABASE_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)

	str("JWT_ACCESS_SECRET", &cfg.JWT.AccessSecret)
	str("JWT_ISSUER", &cfg.JWT.Issuer)
	duration("JWT_ACCESS_EXPIRY", &cfg.JWT.AccessExpiry)
	boolean("WS_REQUIRE_TOKEN", &cfg.JWT.RequireToken)

	integer("WS_SEND_BUFFER", &cfg.Realtime.SendBuffer, 1)
	duration("WS_WRITE_WAIT", &cfg.Realtime.WriteWait)
	duration("WS_PONG_WAIT", &cfg.Realtime.PongWait)
	integer("WS_EVENT_BURST", &cfg.Realtime.EventBurst, 1)
	if v := strings.TrimSpace(os.Getenv("WS_MAX_MESSAGE_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			invalid = append(invalid, "WS_MAX_MESSAGE_BYTES")
		} else {
			cfg.Realtime.MaxMessageBytes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("WS_EVENTS_PER_SECOND")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			invalid = append(invalid, "WS_EVENTS_PER_SECOND")
		} else {
			cfg.Realtime.EventsPerSecond = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("CLIENT_URL")); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.Realtime.AllowedOrigins = append(cfg.Realtime.AllowedOrigins, origin)
			}
		}
	}

	duration("SCHEDULER_FIRE_TIMEOUT", &cfg.Scheduler.FireTimeout)
	if v := strings.TrimSpace(os.Getenv("SCHEDULER_CATCHUP")); v != "" {
		switch v {
		case CatchUpNone, CatchUpFire, CatchUpFail:
			cfg.Scheduler.CatchUp = v
		default:
			invalid = append(invalid, "SCHEDULER_CATCHUP")
		}
	}

	str("LOG_LEVEL", &cfg.Log.Level)

	if len(invalid) > 0 {
		return nil, fmt.Errorf("config: invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}
