package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort string

	JWTSecret string

	// AccessTokenMaxAge is in seconds.
	AccessTokenMaxAge int

	// StoreTimeout bounds every database and cache call made on behalf of a request.
	StoreTimeout time.Duration

	RedisURL string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string

	DefaultAvatarURL string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	// TrustedProxies lists IPs or CIDRs whose forwarding headers are believed.
	TrustedProxies []string

	LogLevel  string
	LogPretty bool

	WSWriteWait      time.Duration
	WSPongWait       time.Duration
	WSMaxMessageSize int64
	WSSendBuffer     int
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "require"
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  sslMode,

		ServerPort: serverPort,

		JWTSecret: os.Getenv("JWT_SECRET"),

		// Tokens live for 7 days unless overridden
		AccessTokenMaxAge: intEnv("ACCESS_TOKEN_MAX_AGE", 7*24*60*60),

		StoreTimeout: durationEnv("STORE_TIMEOUT", 5*time.Second),

		RedisURL: os.Getenv("REDIS_URL"),

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicURL:       os.Getenv("R2_PUBLIC_URL"),

		DefaultAvatarURL: os.Getenv("DEFAULT_AVATAR_URL"),

		RateLimitRequests: intEnv("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   durationEnv("RATE_LIMIT_WINDOW", 15*time.Minute),
		TrustedProxies:    listEnv("TRUSTED_PROXIES"),

		LogLevel:  os.Getenv("LOG_LEVEL"),
		LogPretty: boolEnv("LOG_PRETTY", false),

		WSWriteWait:      durationEnv("WS_WRITE_WAIT", 10*time.Second),
		WSPongWait:       durationEnv("WS_PONG_WAIT", 60*time.Second),
		WSMaxMessageSize: int64(intEnv("WS_MAX_MESSAGE_SIZE", 4096)),
		WSSendBuffer:     intEnv("WS_SEND_BUFFER", 256),
	}, nil
}

// MediaConfigured reports whether every R2 setting needed for uploads is present.
func (c *Config) MediaConfigured() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicURL != ""
}

func intEnv(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func boolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func listEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
