package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	BaseURL string

	StoreDriver  string
	JobsFile     string
	DatabaseURL  string
	PDFOutputDir string

	FollowUpInterval   time.Duration
	FollowUpRunOnStart bool

	GoogleClientID       string
	GoogleClientSecret   string
	GoogleTokenFile      string
	GoogleAPITimeout     time.Duration
	GoogleProjectID      string
	GooglePubSubTopic    string
	GoogleCredentials    string
	GmailWatchRenewEvery time.Duration

	FirebaseCredentials string

	TelegramBotToken        string
	TelegramChatIDs         string
	TelegramPolling         bool
	TelegramWebhookSecret   string
	NotifyDestinationsFile  string
	NotifyMessageTimeout    time.Duration
	NotifyAttachmentTimeout time.Duration
	NotifyRatePerSecond     float64

	LogJSON  bool
	LogLevel string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:    getEnv("PORT", "5350"),
		BaseURL: strings.TrimRight(getEnv("BASE_URL", "http://localhost:5350"), "/"),

		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", "json")),
		JobsFile:     getEnv("JOBS_FILE", "jobs.json"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		PDFOutputDir: getEnv("PDF_OUTPUT_DIR", "generated_pdfs"),

		FollowUpInterval:   getDuration("FOLLOWUP_INTERVAL", time.Hour),
		FollowUpRunOnStart: getBool("FOLLOWUP_RUN_ON_START", false),

		GoogleClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleTokenFile:      getEnv("GOOGLE_TOKEN_FILE", "token.json"),
		GoogleAPITimeout:     getDuration("GOOGLE_API_TIMEOUT", 30*time.Second),
		GoogleProjectID:      getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:    getEnv("GOOGLE_PUBSUB_TOPIC", ""),
		GoogleCredentials:    getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GmailWatchRenewEvery: getDuration("GMAIL_WATCH_RENEW_INTERVAL", 24*time.Hour), // watches expire after 7 days

		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		TelegramBotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatIDs:         getEnv("TELEGRAM_CHAT_IDS", ""),
		TelegramPolling:         getBool("TELEGRAM_POLLING", false),
		TelegramWebhookSecret:   getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		NotifyDestinationsFile:  getEnv("NOTIFY_DESTINATIONS_FILE", ""),
		NotifyMessageTimeout:    getDuration("NOTIFY_MESSAGE_TIMEOUT", 10*time.Second),
		NotifyAttachmentTimeout: getDuration("NOTIFY_ATTACHMENT_TIMEOUT", 20*time.Second),
		NotifyRatePerSecond:     getFloat("NOTIFY_RATE_PER_SECOND", 0),

		LogJSON:  getBool("LOG_JSON", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultValue
}
