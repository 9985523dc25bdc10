package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"taskflow/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

// RedisConfig points the rate limiter at a shared Redis instance
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// SMTPConfig holds the outgoing mail server used for deadline reminders
type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
}

// Config holds all application settings, loaded once from the environment
type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`
	FrontendURL string `json:"frontend_url"`
	LogLevel    string `json:"log_level"`
	SentryDSN   string `json:"-"`

	DBDriver       string `json:"db_driver"` // postgres or sqlite
	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBPath         string `json:"db_path"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	// JWTSecret signs access tokens; at least 32 characters in production
	JWTSecret string        `json:"-"`
	JWTExpiry time.Duration `json:"jwt_expiry"`

	RateLimitAPI    int           `json:"rate_limit_api"`
	RateLimitAuth   int           `json:"rate_limit_auth"`
	RateLimitWindow time.Duration `json:"rate_limit_window"`
	Redis           RedisConfig   `json:"redis"`

	SMTP             SMTPConfig    `json:"smtp"`
	ReminderInterval time.Duration `json:"reminder_interval"`
	ReminderWindow   time.Duration `json:"reminder_window"`

	// Derive a task's status from the name of the list it is moved into
	AutoStatusFromList bool `json:"auto_status_from_list"`

	SeedAdminEmail    string `json:"seed_admin_email"`
	SeedAdminPassword string `json:"-"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

// LoadConfig fills AppConfig from the environment and validates it
func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),

		DBDriver:       getEnv("DB_DRIVER", "postgres"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "taskflow"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBPath:         getEnv("DB_PATH", "taskflow.db"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTExpiry: getEnvAsDuration("JWT_EXPIRY", 7*24*time.Hour),

		RateLimitAPI:    getEnvAsInt("RATE_LIMIT_API", 100),
		RateLimitAuth:   getEnvAsInt("RATE_LIMIT_AUTH", 10),
		RateLimitWindow: getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("FROM_EMAIL", "no-reply@taskflow.local"),
		},
		ReminderInterval: getEnvAsDuration("REMINDER_INTERVAL", time.Hour),
		ReminderWindow:   getEnvAsDuration("REMINDER_WINDOW", 24*time.Hour),

		AutoStatusFromList: getEnvAsBool("AUTO_STATUS_FROM_LIST", true),

		SeedAdminEmail:    getEnv("SEED_ADMIN_EMAIL", ""),
		SeedAdminPassword: getEnv("SEED_ADMIN_PASSWORD", ""),
	}

	// Validate required configurations
	if AppConfig.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch AppConfig.DBDriver {
	case "postgres":
		if AppConfig.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required for the postgres driver")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", AppConfig.DBDriver)
	}
	if AppConfig.Environment == "production" && len(AppConfig.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}

	ConfigureLogging()
	logConfig()
	return nil
}

// ConnectDB opens the configured database, tunes the pool and migrates the schema.
func ConnectDB() error {
	logrus.Info("Attempting to connect to database...")

	db, err := Open(AppConfig)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logrus.Info("Successfully connected to the database")

	logrus.Info("Starting database migration...")
	if err := Migrate(db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	logrus.Info("Database migration completed")

	DB = db
	return nil
}

// Open returns a gorm handle for the driver named in cfg without migrating.
func Open(cfg Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(SQLiteDSN(cfg.DBPath))
		logrus.WithField("path", cfg.DBPath).Info("Using sqlite database")
	default:
		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBSSLMode,
		)
		logrus.WithField("dsn", maskPassword(dsn)).Info("Using postgres database")
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// SQLiteDSN enables foreign keys so ON DELETE rules are enforced.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=on"
	}
	return path + "?_foreign_keys=on"
}

// Migrate creates or updates the six TaskFlow relations in dependency order.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.ProjectMember{},
		&models.List{},
		&models.Task{},
		&models.Comment{},
	)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		logrus.Warnf("Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	logrus.WithFields(logrus.Fields{
		"environment":   AppConfig.Environment,
		"server_port":   AppConfig.ServerPort,
		"db_driver":     AppConfig.DBDriver,
		"redis_enabled": AppConfig.Redis.Enabled,
		"smtp_enabled":  AppConfig.SMTP.Host != "",
		"sentry":        AppConfig.SentryDSN != "",
	}).Info("Loaded configuration")
	if AppConfig.DBDriver == "postgres" {
		logrus.Infof("Database: %s@%s:%s/%s",
			AppConfig.DBUser,
			AppConfig.DBHost,
			AppConfig.DBPort,
			AppConfig.DBName)
	}
}
