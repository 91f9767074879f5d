package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	BotToken   string
	BaseURL    string
	ListenAddr string

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	VisionCredentialsFile string

	ReminderTime    string
	SessionTTLHours int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		BotToken:              getEnv("BOT_TOKEN", ""),
		BaseURL:               getEnv("BASE_URL", ""),
		ListenAddr:            getEnv("LISTEN_ADDR", ":3000"),
		PostgresDSN:           getEnv("POSTGRES_DSN", ""),
		RedisAddr:             getEnv("REDIS_HOST", "localhost") + ":" + getEnv("REDIS_PORT", "6379"),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		VisionCredentialsFile: getEnv("VISION_CREDENTIALS_FILE", "/etc/secrets/vision_key.json"),
		ReminderTime:          getEnv("REMINDER_TIME", "09:00"),
		SessionTTLHours:       getEnvInt("SESSION_TTL_HOURS", 24),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid %s value %q, using default: %d", key, value, fallback)
		return fallback
	}
	return n
}
