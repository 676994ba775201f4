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
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	HTTP     HTTPConfig
	KPI      KPIConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers             []string
	TopicReportRequests string
	TopicReportResults  string
	GroupID             string
	NumPartitions       int
}

type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (h HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", h.Port)
}

type KPIConfig struct {
	CacheTTL             time.Duration
	CacheSweepInterval   time.Duration
	DirectoryTTL         time.Duration
	Location             *time.Location
	QualityWarning       float64
	FastGeneratorTimeout time.Duration
	SlowGeneratorTimeout time.Duration
}

type LogConfig struct {
	Level    string
	Encoding string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	tz := getEnv("KPI_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", tz, err)
	}

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "kpi_user"),
			Password: getEnv("DB_PASSWORD", "kpi_pass"),
			DBName:   getEnv("DB_NAME", "energy_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:             strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicReportRequests: getEnv("KAFKA_TOPIC_REPORT_REQUESTS", "energy.reports.requests"),
			TopicReportResults:  getEnv("KAFKA_TOPIC_REPORT_RESULTS", "energy.reports.results"),
			GroupID:             getEnv("KAFKA_GROUP_ID", "kpi-reporter"),
			NumPartitions:       getEnvAsInt("KAFKA_NUM_PARTITIONS", 4),
		},
		HTTP: HTTPConfig{
			Port:         getEnvAsInt("HTTP_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("HTTP_WRITE_TIMEOUT", 60*time.Second),
		},
		KPI: KPIConfig{
			CacheTTL:             getEnvAsDuration("KPI_CACHE_TTL", 5*time.Minute),
			CacheSweepInterval:   getEnvAsDuration("KPI_CACHE_SWEEP_INTERVAL", time.Minute),
			DirectoryTTL:         getEnvAsDuration("KPI_DIRECTORY_TTL", time.Minute),
			Location:             loc,
			QualityWarning:       getEnvAsFloat("KPI_QUALITY_WARNING", 90),
			FastGeneratorTimeout: getEnvAsDuration("KPI_FAST_GENERATOR_TIMEOUT", 10*time.Second),
			SlowGeneratorTimeout: getEnvAsDuration("KPI_SLOW_GENERATOR_TIMEOUT", 20*time.Second),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
