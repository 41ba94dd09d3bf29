package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	// MQTT Configuration
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	// Topics
	MQTTTopicData     string
	MQTTTopicStatus   string
	MQTTTopicSchedule string

	// Pipeline
	ModelPath     string
	LogPath       string
	RollingWindow int
	WarmStart     bool

	// HTTP surface
	HTTPAddr string

	// ClickHouse mirror (disabled when ClickHouseAddr is empty)
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string

	LogLevel slog.Level
}

// Load reads configuration from the environment, after loading .env if present
func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		MQTTBroker:   getEnv("MQTT_BROKER", "broker.emqx.io"),
		MQTTPort:     getEnvInt("MQTT_PORT", 1883),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "shhe-backend-"+uuid.NewString()[:8]),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),

		MQTTTopicData:     getEnv("MQTT_TOPIC_DATA", "SHHE/data"),
		MQTTTopicStatus:   getEnv("MQTT_TOPIC_STATUS", "SHHE/status"),
		MQTTTopicSchedule: getEnv("MQTT_TOPIC_SCHEDULE", "SHHE/obat"),

		ModelPath:     getEnv("MODEL_PATH", "models/smarthealth.json"),
		LogPath:       getEnv("LOG_PATH", "data.csv"),
		RollingWindow: getEnvInt("ROLLING_WINDOW", 3),
		WarmStart:     getEnvBool("WARM_START", false),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "shhe"),
		ClickHouseUser: getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("CLICKHOUSE_PASS", ""),

		LogLevel: getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// BrokerURL returns the broker address paho expects. A broker given as a
// bare host gets the tcp scheme and MQTTPort.
func (c *Config) BrokerURL() string {
	if strings.Contains(c.MQTTBroker, "://") {
		return c.MQTTBroker
	}
	host := c.MQTTBroker
	if !strings.Contains(host, ":") {
		host = fmt.Sprintf("%s:%d", host, c.MQTTPort)
	}
	return "tcp://" + host
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("failed to parse env var as int, using default", "key", key, "error", err)
		return defaultValue
	}
	return intValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("failed to parse env var as bool, using default", "key", key, "error", err)
		return defaultValue
	}
	return boolValue
}

func getEnvLevel(key string, defaultValue slog.Level) slog.Level {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		slog.Warn("failed to parse env var as log level, using default", "key", key, "error", err)
		return defaultValue
	}
	return level
}
