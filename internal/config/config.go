// config предоставляет структуру конфигурации gallery-сервиса
// и функции загрузки из YAML/ENV с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация сервиса.
// Приоритет источников:
//  1. явный путь, переданный в MustLoad/Load;
//  2. переменная окружения CONFIG_PATH;
//  3. файл ./local.yaml из рабочей директории;
//  4. переменные окружения.
type Config struct {
	Env      string        `yaml:"env"      env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Bsky     BskyConfig    `yaml:"bsky"`
	Media    MediaConfig   `yaml:"media"`
	Session  SessionConfig `yaml:"session"`
	DB       DBConfig      `yaml:"db"`
	AI       AIConfig      `yaml:"ai"`
	Limits   LimitsConfig  `yaml:"limits"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// HTTPConfig — сетевые настройки HTTP-сервера.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// BskyConfig — параметры доступа к Bluesky (AT Protocol XRPC).
type BskyConfig struct {
	// Service — базовый URL PDS (обычно https://bsky.social).
	Service string `yaml:"service" env:"BSKY_SERVICE" env-default:"https://bsky.social"`
	// Handle — хэндл аккаунта, от имени которого читается таймлайн.
	Handle string `yaml:"handle" env:"BSKY_HANDLE" env-required:"true"`
	// AppPassword — app password аккаунта (не основной пароль).
	AppPassword string `yaml:"app_password" env:"BSKY_APP_PASSWORD" env-required:"true"`
	// PageSize — размер страницы getTimeline (API допускает 1..100).
	PageSize int `yaml:"page_size" env:"BSKY_PAGE_SIZE" env-default:"25"`
	// RatePerSec — ограничение исходящих XRPC-вызовов, запросов в секунду.
	RatePerSec float64 `yaml:"rate_per_sec" env:"BSKY_RATE_PER_SEC" env-default:"8"`
	// RateBurst — burst для лимитера.
	RateBurst int `yaml:"rate_burst" env:"BSKY_RATE_BURST" env-default:"16"`
}

// MediaConfig — параметры материализации изображений.
type MediaConfig struct {
	// Backend — disk | s3.
	Backend string `yaml:"backend" env:"MEDIA_BACKEND" env-default:"disk"`
	// Dir — каталог для disk-бэкенда (создаётся при старте).
	Dir string `yaml:"dir" env:"MEDIA_DIR" env-default:"./media"`
	// MaxBytes — максимальный размер одного изображения.
	MaxBytes int64 `yaml:"max_bytes" env:"MEDIA_MAX_BYTES" env-default:"10485760"`
	S3       S3Config `yaml:"s3"`
}

// S3Config — настройки S3/MinIO для media.backend=s3.
type S3Config struct {
	Endpoint     string        `yaml:"endpoint"      env:"S3_ENDPOINT"`
	Bucket       string        `yaml:"bucket"        env:"S3_BUCKET"`
	RootUser     string        `yaml:"root_user"     env:"S3_ROOT_USER"`
	RootPassword string        `yaml:"root_password" env:"S3_ROOT_PASSWORD"`
	UseSSL       bool          `yaml:"use_ssl"       env:"S3_USE_SSL" env-default:"false"`
	PresignTTL   time.Duration `yaml:"presign_ttl"   env:"S3_PRESIGN_TTL" env-default:"15m"`
}

// SessionConfig — параметры хранилища курсоров сессий.
type SessionConfig struct {
	// Backend — memory | redis.
	Backend string `yaml:"backend" env:"SESSION_BACKEND" env-default:"memory"`
	// TTL — время жизни состояния сессии с момента последнего обращения.
	TTL time.Duration `yaml:"ttl" env:"SESSION_TTL" env-default:"30m"`
	// SeenCap — верхняя граница размера множества seen-URI на сессию.
	SeenCap int `yaml:"seen_cap" env:"SESSION_SEEN_CAP" env-default:"5000"`
	// RedisURL — адрес Redis для backend=redis (redis://...).
	RedisURL string `yaml:"redis_url" env:"SESSION_REDIS_URL"`
}

// DBConfig — настройки подключения к PostgreSQL (аналитика ответов).
// URL пустой — reply-аналитика выключена, фильтр по ответам недоступен.
type DBConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
	// Lookback — окно, за которое считаются прошлые ответы.
	Lookback time.Duration `yaml:"lookback" env:"REPLY_LOOKBACK" env-default:"168h"`
	// TableLimit — максимальный размер таблицы счётчиков на один проход.
	TableLimit int `yaml:"table_limit" env:"REPLY_TABLE_LIMIT" env-default:"500"`
}

// AIConfig — параметры генератора ответов.
type AIConfig struct {
	// Model — имя модели Gemini.
	Model string `yaml:"model" env:"AI_MODEL" env-default:"gemini-2.5-flash"`
	// APIKey — ключ Google GenAI; пустой — генерация ответов выключена.
	APIKey string `yaml:"api_key" env:"GOOGLE_API_KEY"`
	// SettingsFile — JSON-файл с персоной/тональностью для промпта.
	SettingsFile string `yaml:"settings_file" env:"AI_SETTINGS_FILE" env-default:"./ai_settings.json"`
}

// LimitsConfig — серверные лимиты на параметры выборки.
type LimitsConfig struct {
	// DefaultCount применяется при запросе без count.
	DefaultCount int `yaml:"default_count" env:"DEFAULT_COUNT" env-default:"6"`
	// MaxCount — верхняя граница count (диапазон API источника).
	MaxCount int `yaml:"max_count" env:"MAX_COUNT" env-default:"18"`
	// MaxPerUser — верхняя граница max_per_user.
	MaxPerUser int `yaml:"max_per_user" env:"MAX_PER_USER" env-default:"10"`
	// MaxFetches — верхняя граница страниц на один проход агрегатора.
	MaxFetches int `yaml:"max_fetches" env:"MAX_FETCHES" env-default:"2000"`
	// MaxExaminedTotal — жёсткий потолок просмотренных записей на все
	// попытки reply-фильтра суммарно (гарантия завершения).
	MaxExaminedTotal int `yaml:"max_examined_total" env:"MAX_EXAMINED_TOTAL" env-default:"3000"`
	// FilterAttempts — число попыток цикла reply-фильтра.
	FilterAttempts int `yaml:"filter_attempts" env:"FILTER_ATTEMPTS" env-default:"5"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	// Service — общий дедлайн одного не-стримингового запроса.
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"120s"`
	// Keepalive — интервал keepalive-событий SSE при простое.
	Keepalive time.Duration `yaml:"keepalive" env:"SSE_KEEPALIVE" env-default:"15s"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", p)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		c, err := tryRead(path)
		if err != nil {
			return nil, err
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		return c, nil
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		c, err := tryRead(envPath)
		if err != nil {
			return nil, err
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		return c, nil
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read local.yaml: %w", err)
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate — базовая валидация значений.
func (c *Config) validate() error {
	if c.Bsky.Service == "" {
		return fmt.Errorf("bsky.service is required")
	}
	if c.Bsky.PageSize < 1 || c.Bsky.PageSize > 100 {
		return fmt.Errorf("bsky.page_size must be in 1..100")
	}
	if c.Bsky.RatePerSec <= 0 {
		return fmt.Errorf("bsky.rate_per_sec must be > 0")
	}
	switch c.Media.Backend {
	case "disk":
		if c.Media.Dir == "" {
			return fmt.Errorf("media.dir is required for media.backend=disk")
		}
	case "s3":
		if c.Media.S3.Endpoint == "" || c.Media.S3.Bucket == "" {
			return fmt.Errorf("media.s3.endpoint and media.s3.bucket are required for media.backend=s3")
		}
	default:
		return fmt.Errorf("media.backend must be disk or s3")
	}
	if c.Media.MaxBytes <= 0 {
		return fmt.Errorf("media.max_bytes must be > 0")
	}
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisURL == "" {
			return fmt.Errorf("session.redis_url is required for session.backend=redis")
		}
	default:
		return fmt.Errorf("session.backend must be memory or redis")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be > 0")
	}
	if c.Session.SeenCap <= 0 {
		return fmt.Errorf("session.seen_cap must be > 0")
	}
	if c.Limits.DefaultCount <= 0 || c.Limits.MaxCount <= 0 {
		return fmt.Errorf("limits.default_count and limits.max_count must be > 0")
	}
	if c.Limits.DefaultCount > c.Limits.MaxCount {
		return fmt.Errorf("limits.default_count must be <= limits.max_count")
	}
	if c.Limits.MaxPerUser <= 0 {
		return fmt.Errorf("limits.max_per_user must be > 0")
	}
	if c.Limits.MaxFetches <= 0 {
		return fmt.Errorf("limits.max_fetches must be > 0")
	}
	if c.Limits.MaxExaminedTotal <= 0 {
		return fmt.Errorf("limits.max_examined_total must be > 0")
	}
	if c.Limits.FilterAttempts <= 0 {
		return fmt.Errorf("limits.filter_attempts must be > 0")
	}
	return nil
}
