package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ENV string

const (
	Dev        ENV = "development"
	Test       ENV = "test"
	Preview    ENV = "preview"
	Production ENV = "production"
)

type Config struct {
	AppName string
	ENV     ENV
	AppPort int
	// HTTPWriteTimeout bounds a response; Inngest steps run a whole pass
	// inside one request.
	HTTPWriteTimeout time.Duration

	LogLevel string

	// CORSOrigins are allowed in addition to the local dev origins.
	CORSOrigins []string

	// Postgres (optional; enabled only when DBHost + DBName are set).
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     int
	DBName     string

	// Redis (optional; enabled only when RedisHost is set).
	RedisUser     string
	RedisPassword string
	RedisHost     string
	RedisPort     int
	RedisScheme   string

	Turso    TursoConfig
	RabbitMQ RabbitMQConfig
	Inngest  InngestConfig

	Catalog  CatalogConfig
	Pipeline PipelineConfig
	Fetch    FetchConfig
}

type TursoConfig struct {
	DSN   string
	Path  string
	Token string
}

type RabbitMQConfig struct {
	URL             string
	Exchange        string
	Queue           string
	RoutingKey      string
	Prefetch        int
	DeclareTopology bool
}

type InngestConfig struct {
	AppID      string
	Dev        string
	SigningKey string
	ServeHost  string
	ServePath  string
	RetryCron  string
}

type CatalogConfig struct {
	BaseURL      string `validate:"required,url"`
	UserAgent    string
	PageLimit    int           `validate:"gt=0"`
	RequestDelay time.Duration `validate:"gte=0"`
	Timeout      time.Duration `validate:"gt=0"`
	// Categories is "name=id,name=id"; see ParseCategories.
	Categories string
}

const (
	OutputFormatArray  = "array"
	OutputFormatNDJSON = "ndjson"

	OutputBackendFile     = "file"
	OutputBackendSQLite   = "sqlite"
	OutputBackendPostgres = "postgres"

	LedgerBackendFile  = "file"
	LedgerBackendRedis = "redis"
)

type PipelineConfig struct {
	InputDir      string `validate:"required"`
	OutputFile    string `validate:"required"`
	OutputFormat  string `validate:"oneof=array ndjson"`
	OutputBackend string `validate:"oneof=file sqlite postgres"`
	SyncWrites    bool
	LedgerFile    string `validate:"required"`
	LedgerBackend string `validate:"oneof=file redis"`
	LedgerKey     string
	LockTTL       time.Duration `validate:"gt=0"`
}

type FetchConfig struct {
	MaxAttempts int           `validate:"gte=1,lte=10"`
	RetryDelay  time.Duration `validate:"gte=0"`
	Timeout     time.Duration `validate:"gt=0"`
	MediaType   string        `validate:"required"`
}

// NewViper loads a .env file when present and binds environment variables
// with defaults.
func NewViper() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "product-image-miner")
	v.SetDefault("APP_ENV", string(Dev))
	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("HTTP_WRITE_TIMEOUT", 6*time.Hour)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_SCHEME", "redis")

	v.SetDefault("RABBITMQ_EXCHANGE", "events")
	v.SetDefault("RABBITMQ_QUEUE", "images.pass.requested.v1")
	v.SetDefault("RABBITMQ_ROUTING_KEY", "images.pass.requested.v1")
	v.SetDefault("RABBITMQ_PREFETCH", 1)
	v.SetDefault("RABBITMQ_DECLARE_TOPOLOGY", true)

	v.SetDefault("INNGEST_SERVE_PATH", "/api/inngest")

	v.SetDefault("CATALOG_BASE_URL", "https://tiki.vn/api/v2")
	v.SetDefault("CATALOG_USER_AGENT", "Mozilla/5.0 (Macintosh; Intel Mac OS X 11_1_0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.96 Safari/537.36")
	v.SetDefault("CATALOG_PAGE_LIMIT", 10000)
	v.SetDefault("CATALOG_REQUEST_DELAY", 300*time.Millisecond)
	v.SetDefault("CATALOG_TIMEOUT", 30*time.Second)

	v.SetDefault("PIPELINE_INPUT_DIR", "data")
	v.SetDefault("PIPELINE_OUTPUT_FILE", "map_image_base64.json")
	v.SetDefault("PIPELINE_OUTPUT_FORMAT", OutputFormatArray)
	v.SetDefault("PIPELINE_OUTPUT_BACKEND", OutputBackendFile)
	v.SetDefault("PIPELINE_SYNC_WRITES", false)
	v.SetDefault("PIPELINE_LEDGER_FILE", "fail_map.json")
	v.SetDefault("PIPELINE_LEDGER_BACKEND", LedgerBackendFile)
	v.SetDefault("PIPELINE_LEDGER_KEY", "images:ledger:failed_ids")
	v.SetDefault("PIPELINE_LOCK_TTL", 6*time.Hour)

	v.SetDefault("FETCH_MAX_ATTEMPTS", 3)
	v.SetDefault("FETCH_RETRY_DELAY", 2*time.Second)
	v.SetDefault("FETCH_TIMEOUT", 100*time.Second)
	v.SetDefault("FETCH_MEDIA_TYPE", "image/jpeg")

	return v
}

func NewConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppName: v.GetString("APP_NAME"),
		ENV:     ENV(strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV")))),
		AppPort: v.GetInt("APP_PORT"),

		HTTPWriteTimeout: v.GetDuration("HTTP_WRITE_TIMEOUT"),

		LogLevel: v.GetString("LOG_LEVEL"),

		CORSOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),

		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetInt("DB_PORT"),
		DBName:     v.GetString("DB_NAME"),

		RedisUser:     v.GetString("REDIS_USER"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisHost:     v.GetString("REDIS_HOST"),
		RedisPort:     v.GetInt("REDIS_PORT"),
		RedisScheme:   v.GetString("REDIS_SCHEME"),

		Turso: TursoConfig{
			DSN:   v.GetString("TURSO_SQLITE_DSN"),
			Path:  v.GetString("TURSO_SQLITE_PATH"),
			Token: v.GetString("TURSO_SQLITE_TOKEN"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             v.GetString("RABBITMQ_URL"),
			Exchange:        v.GetString("RABBITMQ_EXCHANGE"),
			Queue:           v.GetString("RABBITMQ_QUEUE"),
			RoutingKey:      v.GetString("RABBITMQ_ROUTING_KEY"),
			Prefetch:        v.GetInt("RABBITMQ_PREFETCH"),
			DeclareTopology: v.GetBool("RABBITMQ_DECLARE_TOPOLOGY"),
		},
		Inngest: InngestConfig{
			AppID:      v.GetString("INNGEST_APP_ID"),
			Dev:        v.GetString("INNGEST_DEV"),
			SigningKey: v.GetString("INNGEST_SIGNING_KEY"),
			ServeHost:  v.GetString("INNGEST_SERVE_HOST"),
			ServePath:  v.GetString("INNGEST_SERVE_PATH"),
			RetryCron:  v.GetString("INNGEST_RETRY_CRON"),
		},

		Catalog: CatalogConfig{
			BaseURL:      strings.TrimRight(v.GetString("CATALOG_BASE_URL"), "/"),
			UserAgent:    v.GetString("CATALOG_USER_AGENT"),
			PageLimit:    v.GetInt("CATALOG_PAGE_LIMIT"),
			RequestDelay: v.GetDuration("CATALOG_REQUEST_DELAY"),
			Timeout:      v.GetDuration("CATALOG_TIMEOUT"),
			Categories:   v.GetString("CATALOG_CATEGORIES"),
		},
		Pipeline: PipelineConfig{
			InputDir:      v.GetString("PIPELINE_INPUT_DIR"),
			OutputFile:    v.GetString("PIPELINE_OUTPUT_FILE"),
			OutputFormat:  strings.ToLower(v.GetString("PIPELINE_OUTPUT_FORMAT")),
			OutputBackend: strings.ToLower(v.GetString("PIPELINE_OUTPUT_BACKEND")),
			SyncWrites:    v.GetBool("PIPELINE_SYNC_WRITES"),
			LedgerFile:    v.GetString("PIPELINE_LEDGER_FILE"),
			LedgerBackend: strings.ToLower(v.GetString("PIPELINE_LEDGER_BACKEND")),
			LedgerKey:     v.GetString("PIPELINE_LEDGER_KEY"),
			LockTTL:       v.GetDuration("PIPELINE_LOCK_TTL"),
		},
		Fetch: FetchConfig{
			MaxAttempts: v.GetInt("FETCH_MAX_ATTEMPTS"),
			RetryDelay:  v.GetDuration("FETCH_RETRY_DELAY"),
			Timeout:     v.GetDuration("FETCH_TIMEOUT"),
			MediaType:   v.GetString("FETCH_MEDIA_TYPE"),
		},
	}

	switch cfg.ENV {
	case Dev, Test, Preview, Production:
	default:
		return nil, fmt.Errorf("invalid APP_ENV %q", cfg.ENV)
	}
	if cfg.AppPort <= 0 || cfg.AppPort > 65535 {
		return nil, fmt.Errorf("invalid APP_PORT %d", cfg.AppPort)
	}
	if cfg.HTTPWriteTimeout < 0 {
		return nil, fmt.Errorf("invalid HTTP_WRITE_TIMEOUT %s", cfg.HTTPWriteTimeout)
	}
	if cfg.DBPort <= 0 || cfg.DBPort > 65535 {
		return nil, fmt.Errorf("invalid DB_PORT %d", cfg.DBPort)
	}
	if cfg.RedisPort <= 0 || cfg.RedisPort > 65535 {
		return nil, fmt.Errorf("invalid REDIS_PORT %d", cfg.RedisPort)
	}

	validate := validator.New()
	if err := validate.Struct(cfg.Catalog); err != nil {
		return nil, fmt.Errorf("invalid catalog config: %w", err)
	}
	if err := validate.Struct(cfg.Pipeline); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if err := validate.Struct(cfg.Fetch); err != nil {
		return nil, fmt.Errorf("invalid fetch config: %w", err)
	}
	if _, err := ParseCategories(cfg.Catalog.Categories); err != nil {
		return nil, err
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
