// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"golang.org/x/crypto/bcrypt"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Auth      AuthConfig      `yaml:"auth"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	Audit     AuditConfig     `yaml:"audit"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Janitor   JanitorConfig   `yaml:"janitor"`
}

// HTTPConfig — сетевые настройки HTTP-сервера (публичные эндпоинты, пробы, метрики).
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// GRPCConfig — сетевые настройки внутреннего gRPC-сервера (Guard/Authorize).
type GRPCConfig struct {
	Host string `yaml:"host" env:"GRPC_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"GRPC_PORT" env-default:"50051"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// Addr возвращает адрес в формате host:port.
func (g GRPCConfig) Addr() string {
	return net.JoinHostPort(g.Host, g.Port)
}

// AuthConfig содержит параметры выпуска и проверки токенов.
// Секрет и алгоритм обязаны совпадать у всех сервисов, проверяющих токены.
type AuthConfig struct {
	JWTSecret            string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	SigningAlg           string        `yaml:"signing_alg" env:"SIGNING_ALG" env-default:"HS256"`
	AccessTokenTTL       time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL      time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	Issuer               string        `yaml:"issuer" env:"ISSUER" env-default:"carelink-auth"`
	Audience             []string      `yaml:"audience" env:"AUDIENCE" env-default:"carelink"`
	Leeway               time.Duration `yaml:"leeway" env:"LEEWAY" env-default:"5s"`
	PasswordCost         int           `yaml:"password_cost" env:"PASSWORD_COST" env-default:"12"`
	SuperRole            string        `yaml:"super_role" env:"SUPER_ROLE" env-default:"super_admin"`
	RevocationFailClosed bool          `yaml:"revocation_fail_closed" env:"REVOCATION_FAIL_CLOSED" env-default:"false"`
}

// DBConfig — настройки подключения к PostgreSQL.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL" env-required:"true"`
}

// RedisConfig — реестр отзыва (ключи с TTL).
type RedisConfig struct {
	RedisURL  string `yaml:"redis_url" env:"REDIS_URL" env-required:"true"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"auth:revoked:"`
}

// AuditConfig — журнал событий безопасности. Пустой URL — только лог.
type AuditConfig struct {
	MongoURL string `yaml:"mongo_url" env:"AUDIT_MONGO_URL"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Request  time.Duration `yaml:"request" env:"REQUEST_TIMEOUT" env-default:"5s"`
	Store    time.Duration `yaml:"store" env:"STORE_TIMEOUT" env-default:"2s"`
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// RateLimitConfig — ограничение частоты /login по IP клиента.
type RateLimitConfig struct {
	LoginRPS   float64 `yaml:"login_rps" env:"LOGIN_RPS" env-default:"5"`
	LoginBurst int     `yaml:"login_burst" env:"LOGIN_BURST" env-default:"10"`
}

// JanitorConfig — фоновая очистка давно истёкших refresh-записей.
type JanitorConfig struct {
	Period    time.Duration `yaml:"period" env:"JANITOR_PERIOD" env-default:"1h"`
	Retention time.Duration `yaml:"retention" env:"JANITOR_RETENTION" env-default:"720h"`
}

var (
	errUnsupportedAlg = errors.New("unsupported signing algorithm")
	errNonPositiveTTL = errors.New("token ttl must be positive")
	errPasswordCost   = errors.New("password cost out of range")
)

// Validate проверяет значения, которые cleanenv не умеет проверить тегами.
// Нулевой TTL до Validate не доходит: cleanenv заменяет его на env-default,
// поэтому отклоняются только отрицательные.
func (c *Config) Validate() error {
	switch c.Auth.SigningAlg {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("%w: %q", errUnsupportedAlg, c.Auth.SigningAlg)
	}

	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return errNonPositiveTTL
	}

	if c.Auth.PasswordCost < bcrypt.MinCost || c.Auth.PasswordCost > bcrypt.MaxCost {
		return fmt.Errorf("%w: %d", errPasswordCost, c.Auth.PasswordCost)
	}

	return nil
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
// После чтения файла ENV-переменные накладываются поверх значений из YAML.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	fromFile := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	if path != "" {
		return fromFile(path)
	}

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return fromFile(envPath)
	}

	if _, err := os.Stat("local.yaml"); err == nil {
		return fromFile("local.yaml")
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
