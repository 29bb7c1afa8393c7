package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName     string
	HTTPAddr        string
	GRPCAddr        string
	ShutdownTimeout time.Duration
	ListMaxLimit    int

	Database DatabaseConfig
	Cache    CacheConfig
	Kafka    KafkaConfig
	Tracing  TracingConfig
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type CacheConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	TTL      time.Duration
}

func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled bool
	Broker  string
	Topic   string
}

type TracingConfig struct {
	Enabled        bool
	JaegerEndpoint string
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment take precedence over .env.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName:     getEnv("SERVICE_NAME", "catalog-service"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8081"),
		GRPCAddr:        getEnv("GRPC_ADDR", ":50052"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		ListMaxLimit:    getInt("LIST_MAX_LIMIT", 100),
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Name:         getEnv("DB_NAME", "catalogdb"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getInt("DB_MAX_IDLE_CONNS", 10),
		},
		Cache: CacheConfig{
			Enabled:  getBool("CACHE_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			TTL:      getDuration("CACHE_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Enabled: getBool("KAFKA_ENABLED", false),
			Broker:  getEnv("KAFKA_BROKER", "localhost:9092"),
			Topic:   getEnv("KAFKA_TOPIC", "product_events"),
		},
		Tracing: TracingConfig{
			Enabled:        getBool("TRACING_ENABLED", true),
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
