package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Courses       CoursesConfig
	Proofs        ProofsConfig
	Payments      PaymentsConfig
	Notifications NotificationsConfig
	Events        EventsConfig
	Jobs          JobsConfig
	Client        ClientConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MigrationsPath string
	AutoMigrate    bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CoursesConfig tunes catalog reads.
type CoursesConfig struct {
	CacheTTL time.Duration
}

// ProofsConfig controls proof-of-payment storage and validation.
type ProofsConfig struct {
	StorageDir       string
	MaxFileSizeBytes int64
	SignedURLSecret  string
	SignedURLTTL     time.Duration
}

// PaymentsConfig holds the receiving identifiers shown in payment instructions.
type PaymentsConfig struct {
	Currency          string
	JazzCashNumber    string
	JazzCashTitle     string
	EasypaisaNumber   string
	EasypaisaTitle    string
	BankName          string
	BankAccountTitle  string
	BankIBAN          string
	CardMerchantID    string
	CardMerchantLabel string
}

// NotificationsConfig configures outgoing SMTP email.
type NotificationsConfig struct {
	Enabled     bool
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	From        string
	AdminEmails []string
}

// EventsConfig configures the Kafka enrollment event stream.
type EventsConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// JobsConfig sizes the background worker pool.
type JobsConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// ClientConfig is consumed by the enroll CLI.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetInt("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSL_MODE"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		MigrationsPath: v.GetString("DB_MIGRATIONS_PATH"),
		AutoMigrate:    v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Courses = CoursesConfig{
		CacheTTL: parseDuration(v.GetString("COURSES_CACHE_TTL"), 10*time.Minute),
	}

	maxProofSize := v.GetInt64("PROOFS_MAX_FILE_SIZE")
	if maxProofSize <= 0 {
		maxProofSize = 5 * 1024 * 1024
	}
	cfg.Proofs = ProofsConfig{
		StorageDir:       v.GetString("PROOFS_STORAGE_DIR"),
		MaxFileSizeBytes: maxProofSize,
		SignedURLSecret:  v.GetString("PROOFS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("PROOFS_SIGNED_URL_TTL"), 15*time.Minute),
	}

	cfg.Payments = PaymentsConfig{
		Currency:          v.GetString("PAYMENT_CURRENCY"),
		JazzCashNumber:    v.GetString("PAYMENT_JAZZCASH_NUMBER"),
		JazzCashTitle:     v.GetString("PAYMENT_JAZZCASH_TITLE"),
		EasypaisaNumber:   v.GetString("PAYMENT_EASYPAISA_NUMBER"),
		EasypaisaTitle:    v.GetString("PAYMENT_EASYPAISA_TITLE"),
		BankName:          v.GetString("PAYMENT_BANK_NAME"),
		BankAccountTitle:  v.GetString("PAYMENT_BANK_ACCOUNT_TITLE"),
		BankIBAN:          v.GetString("PAYMENT_BANK_IBAN"),
		CardMerchantID:    v.GetString("PAYMENT_CARD_MERCHANT_ID"),
		CardMerchantLabel: v.GetString("PAYMENT_CARD_MERCHANT_LABEL"),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:     v.GetBool("ENABLE_NOTIFICATIONS"),
		SMTPHost:    v.GetString("SMTP_HOST"),
		SMTPPort:    v.GetInt("SMTP_PORT"),
		SMTPUser:    v.GetString("SMTP_USER"),
		SMTPPass:    v.GetString("SMTP_PASSWORD"),
		From:        v.GetString("SMTP_FROM"),
		AdminEmails: splitAndTrim(v.GetString("NOTIFY_ADMIN_EMAILS")),
	}

	cfg.Events = EventsConfig{
		Brokers:      splitAndTrim(v.GetString("KAFKA_BROKERS")),
		Topic:        v.GetString("KAFKA_ENROLLMENT_TOPIC"),
		WriteTimeout: parseDuration(v.GetString("KAFKA_WRITE_TIMEOUT"), 10*time.Second),
	}

	cfg.Jobs = JobsConfig{
		Workers:    v.GetInt("JOBS_WORKERS"),
		MaxRetries: v.GetInt("JOBS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("JOBS_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Client = ClientConfig{
		BaseURL: v.GetString("ENROLL_API_BASE_URL"),
		Token:   v.GetString("ENROLL_API_TOKEN"),
		Timeout: parseDuration(v.GetString("ENROLL_API_TIMEOUT"), 15*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "course_enrollment")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_MIGRATIONS_PATH", "file://migrations")
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "course-enrollment-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("COURSES_CACHE_TTL", "10m")

	v.SetDefault("PROOFS_STORAGE_DIR", "./proofs")
	v.SetDefault("PROOFS_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("PROOFS_SIGNED_URL_SECRET", "dev_proofs_secret")
	v.SetDefault("PROOFS_SIGNED_URL_TTL", "15m")

	v.SetDefault("PAYMENT_CURRENCY", "PKR")
	v.SetDefault("PAYMENT_JAZZCASH_NUMBER", "0300-1234567")
	v.SetDefault("PAYMENT_JAZZCASH_TITLE", "Course Academy")
	v.SetDefault("PAYMENT_EASYPAISA_NUMBER", "0345-7654321")
	v.SetDefault("PAYMENT_EASYPAISA_TITLE", "Course Academy")
	v.SetDefault("PAYMENT_BANK_NAME", "Meezan Bank")
	v.SetDefault("PAYMENT_BANK_ACCOUNT_TITLE", "Course Academy Pvt Ltd")
	v.SetDefault("PAYMENT_BANK_IBAN", "PK36MEZN0001230104567890")
	v.SetDefault("PAYMENT_CARD_MERCHANT_ID", "CA-POS-0042")
	v.SetDefault("PAYMENT_CARD_MERCHANT_LABEL", "COURSE ACADEMY")

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@course-academy.local")
	v.SetDefault("NOTIFY_ADMIN_EMAILS", "")

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_ENROLLMENT_TOPIC", "enrollments")
	v.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")

	v.SetDefault("JOBS_WORKERS", 2)
	v.SetDefault("JOBS_MAX_RETRIES", 3)
	v.SetDefault("JOBS_RETRY_DELAY", "2s")

	v.SetDefault("ENROLL_API_BASE_URL", "http://localhost:8080/api/v1")
	v.SetDefault("ENROLL_API_TOKEN", "")
	v.SetDefault("ENROLL_API_TIMEOUT", "15s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
