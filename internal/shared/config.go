package shared

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"prod"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	TrustProxy  bool   `env:"TRUST_PROXY" envDefault:"false"`
	MetricsAddr string `env:"METRICS_ADDR"`
	PublicURL   string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`

	MySQLDSN  string        `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/enjoyhub?parseTime=true&charset=utf8mb4,utf8&loc=UTC"`
	RedisAddr string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB   int           `env:"REDIS_DB" envDefault:"0"`
	RedisPass string        `env:"REDIS_PASSWORD"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"15m"`

	AuthURL       string `env:"AUTH_URL"`
	AuthAnonKey   string `env:"AUTH_ANON_KEY"`
	AuthJWTSecret string `env:"AUTH_JWT_SECRET"`
	AuthAudience  string `env:"AUTH_JWT_AUDIENCE" envDefault:"authenticated"`
	CookieSecure  bool   `env:"COOKIE_SECURE" envDefault:"true"`

	MediaAPIBase string `env:"MEDIA_API_BASE" envDefault:"https://api.cloudinary.com/v1_1"`
	MediaCloud   string `env:"MEDIA_CLOUD_NAME"`
	MediaKey     string `env:"MEDIA_API_KEY"`
	MediaSecret  string `env:"MEDIA_API_SECRET"`
	MediaFolder  string `env:"MEDIA_FOLDER" envDefault:"enjoyhub"`
	MediaRPS     int    `env:"MEDIA_RPS" envDefault:"5"`

	WriteRPS   float64 `env:"WRITE_RPS" envDefault:"2"`
	WriteBurst int     `env:"WRITE_BURST" envDefault:"10"`

	SweepWorkers int           `env:"SWEEP_WORKERS" envDefault:"8"`
	SweepGrace   time.Duration `env:"SWEEP_GRACE" envDefault:"24h"`
	SweepDryRun  bool          `env:"SWEEP_DRY_RUN" envDefault:"true"`
}

// Load reads the configuration from the environment. Malformed values are fatal.
func Load() Config {
	c, err := Parse()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if !c.CookieSecure && !c.Dev() {
		log.Warn().Str("env", c.AppEnv).Msg("COOKIE_SECURE=false outside dev; session cookies travel over plain HTTP")
	}
	if c.SweepDryRun {
		log.Debug().Msg("media sweep runs in dry-run mode")
	}
	return c
}

func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
	c.MediaFolder = strings.Trim(c.MediaFolder, "/")
	if c.SweepWorkers < 1 {
		c.SweepWorkers = 1
	}
	return c, nil
}

func (c Config) Dev() bool { return c.AppEnv == "dev" || c.AppEnv == "development" }
