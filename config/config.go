package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Notification backends.
const (
	NotifyLog      = "log"
	NotifyMailtrap = "mailtrap"
	NotifyRabbitMQ = "rabbitmq"
	NotifyPubSub   = "pubsub"
)

type Config struct {
	ServerPort int
	JWTSecret  string
	SessionTTL time.Duration
	BcryptCost int
	Store      StoreConfig
	Mongo      MongoConfig
	Database   DatabaseConfig
	Notify     NotifyConfig
	Mailtrap   MailtrapConfig
	RabbitMQ   RabbitMQConfig
	PubSub     PubSubConfig
	Log        LogConfig
}

type StoreConfig struct {
	Backend string
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type NotifyConfig struct {
	Backend string
	Channel string
	Timeout time.Duration
	// LogBodies makes the log backend print message bodies, reset tokens
	// included. Local development only.
	LogBodies bool
}

type MailtrapConfig struct {
	Token     string
	Endpoint  string
	FromEmail string
	FromName  string
	Category  string
}

type RabbitMQConfig struct {
	URL             string
	PrefetchCount   int
	QueueDurable    bool
	QueueAutoDelete bool
}

type PubSubConfig struct {
	ProjectID           string
	CredentialsFile     string
	SubscriptionSuffix  string
	MaxDeliveryAttempts int
}

type LogConfig struct {
	Format string
	Level  string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 3000),
		JWTSecret:  strings.TrimSpace(getEnv("JWT_SECRET", "")),
		SessionTTL: getEnvDuration("SESSION_TTL", 876000*time.Hour),
		BcryptCost: getEnvInt("BCRYPT_COST", 10),
		Store: StoreConfig{
			Backend: strings.ToLower(getEnv("STORE_BACKEND", StoreMongo)),
		},
		Mongo: MongoConfig{
			URI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:   getEnv("MONGO_DATABASE", "adfyer"),
			Collection: getEnv("MONGO_COLLECTION", "users"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "adfyer"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "adfyer_db"),
			UseSSL:   getEnvBool("DB_USE_SSL", false),
		},
		Notify: NotifyConfig{
			Backend:   strings.ToLower(getEnv("NOTIFY_BACKEND", NotifyLog)),
			Channel:   getEnv("NOTIFY_CHANNEL", "password-reset-email"),
			Timeout:   getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
			LogBodies: getEnvBool("NOTIFY_LOG_BODIES", false),
		},
		Mailtrap: MailtrapConfig{
			Token:     getEnv("MAILTRAP_TOKEN", ""),
			Endpoint:  getEnv("MAILTRAP_ENDPOINT", "https://send.api.mailtrap.io/api/send"),
			FromEmail: getEnv("MAIL_FROM_EMAIL", "mailtrap@codipher.com"),
			FromName:  getEnv("MAIL_FROM_NAME", "Adfyer"),
			Category:  getEnv("MAIL_CATEGORY", "Password Reset"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
		},
		PubSub: PubSubConfig{
			ProjectID:           getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:     getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix:  getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			MaxDeliveryAttempts: getEnvInt("PUBSUB_MAX_DELIVERY_ATTEMPTS", 5),
		},
		Log: LogConfig{
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		},
	}
}

// Validate reports configuration that would prevent the server from starting.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Store.Backend {
	case StoreMongo:
		if strings.TrimSpace(c.Mongo.URI) == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
	case StorePostgres, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	switch c.Notify.Backend {
	case NotifyLog:
	case NotifyMailtrap:
		if strings.TrimSpace(c.Mailtrap.Token) == "" {
			errs = append(errs, errors.New("MAILTRAP_TOKEN is required for the mailtrap notifier"))
		}
	case NotifyRabbitMQ:
		if strings.TrimSpace(c.RabbitMQ.URL) == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required for the rabbitmq notifier"))
		}
	case NotifyPubSub:
		if strings.TrimSpace(c.PubSub.ProjectID) == "" {
			errs = append(errs, errors.New("PUBSUB_PROJECT_ID is required for the pubsub notifier"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFY_BACKEND %q", c.Notify.Backend))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.Atoi(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}
