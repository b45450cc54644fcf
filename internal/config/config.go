package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort     uint16   `env:"HTTP_SERVER_PORT"     envDefault:"8085" validate:"min=1000,max=65535"`
	CorsAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","  validate:"dive,url"`
	StaticDir          string   `env:"STATIC_DIR"           envDefault:"public"`

	WsSendBuffer     int   `env:"WS_SEND_BUFFER"      envDefault:"256"   validate:"min=1,max=65536"`
	WsMaxMessageSize int64 `env:"WS_MAX_MESSAGE_SIZE" envDefault:"16384" validate:"min=512"`

	RelayKeepEmptyRooms bool `env:"RELAY_KEEP_EMPTY_ROOMS" envDefault:"false"`

	RedisEnabled         bool          `env:"REDIS_ENABLED"          envDefault:"false"`
	RedisHost            string        `env:"REDIS_HOST"             envDefault:"localhost" validate:"required_if=RedisEnabled true"`
	RedisPort            uint16        `env:"REDIS_PORT"             envDefault:"6379"      validate:"min=1000,max=65535"`
	RedisPassword        string        `env:"REDIS_PASSWORD"`
	RedisDb              int           `env:"REDIS_DB"               envDefault:"0"         validate:"min=0,max=15"`
	PresenceSyncInterval time.Duration `env:"PRESENCE_SYNC_INTERVAL" envDefault:"10s"       validate:"min=1s"`

	PostgresEnabled    bool          `env:"POSTGRES_ENABLED"     envDefault:"false"`
	PostgresHost       string        `env:"POSTGRES_HOST"        envDefault:"localhost"`
	PostgresPort       string        `env:"POSTGRES_PORT"        envDefault:"5432"`
	PostgresUser       string        `env:"POSTGRES_USER"        envDefault:"relay_user"`
	PostgresPassword   string        `env:"POSTGRES_PASSWORD"    envDefault:"relay_password"`
	PostgresDb         string        `env:"POSTGRES_DB"          envDefault:"relay_db"`
	PostgresSslMode    string        `env:"POSTGRES_SSLMODE"     envDefault:"disable" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	AuditBatchSize     int           `env:"AUDIT_BATCH_SIZE"     envDefault:"100"     validate:"min=1,max=10000"`
	AuditFlushInterval time.Duration `env:"AUDIT_FLUSH_INTERVAL" envDefault:"2s"      validate:"min=100ms"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
