package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	ZAPIBaseURL     string
	ZAPIInstanceID  string
	ZAPIToken       string
	ZAPIClientToken string
	GeminiAPIKey    string
	JWTSecret       string
	DBPath          string
	DBHost          string
	DBPort          string
	DBUser          string
	DBPassword      string
	DBName          string
	DBSSLMode       string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		ZAPIBaseURL:     getEnv("ZAPI_BASE_URL", "https://api.z-api.io/instances"),
		ZAPIInstanceID:  getEnv("ZAPI_INSTANCE_ID", ""),
		ZAPIToken:       getEnv("ZAPI_TOKEN", ""),
		ZAPIClientToken: getEnv("ZAPI_CLIENT_TOKEN", ""),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		JWTSecret:       getEnv("JWT_SECRET", "change-me"),
		DBPath:          getEnv("DB_PATH", "./leadbot.db"),
		DBHost:          getEnv("DB_HOST", ""),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", ""),
		DBName:          getEnv("DB_NAME", "leadbot"),
		DBSSLMode:       getEnv("DB_SSLMODE", "disable"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
