package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/linesmerrill/case-portal-api/logging"
	"github.com/linesmerrill/case-portal-api/models"
)

// MemoryURL selects the in-process store instead of mongo
const MemoryURL = "memory://"

// Config holds the project config values
type Config struct {
	URL          string
	DatabaseName string
	BaseURL      string
	Port         string
	Environment  string

	JWTSecret      string
	RequestTimeout time.Duration

	RabbitMQURL    string
	EventsQueue    string
	SendGridAPIKey string
	MailFrom       string

	StripeWebhookSecret string

	// PolicyFile overrides the built in role matrix when set
	PolicyFile      string
	RequireSuspects bool
}

// New loads .env if present, reads the environment and installs the global logger
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	conf := &Config{
		URL:                 getEnv("DB_URI", MemoryURL),
		DatabaseName:        getEnv("DB_NAME", "case-portal"),
		BaseURL:             os.Getenv("BASE_URL"),
		Port:                getEnv("PORT", "8080"),
		Environment:         getEnv("ENVIRONMENT", "local"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		RabbitMQURL:         os.Getenv("RABBITMQ_URL"),
		EventsQueue:         getEnv("EVENTS_QUEUE", "case-events"),
		SendGridAPIKey:      os.Getenv("SENDGRID_API_KEY"),
		MailFrom:            getEnv("MAIL_FROM", "no-reply@case-portal.local"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PolicyFile:          os.Getenv("POLICY_FILE"),
	}

	var err error
	conf.RequireSuspects, err = strconv.ParseBool(getEnv("REQUIRE_SUSPECTS_FOR_RESOLUTION", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUIRE_SUSPECTS_FOR_RESOLUTION: %w", err)
	}
	conf.RequestTimeout, err = time.ParseDuration(getEnv("REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	if _, err := setLogger(conf.Environment); err != nil {
		return nil, err
	}
	return conf, nil
}

// setLogger builds the logger for environment and replaces the zap globals with it
func setLogger(environment string) (*zap.Logger, error) {
	logger, err := logging.New(environment)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().Errorw(message, "status", httpStatusCode, "error", err)
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	_ = json.NewEncoder(w).Encode(models.ErrorMessageResponse{
		Response: models.MessageError{
			Message: message,
			Error:   errMsg,
			Code:    strconv.Itoa(httpStatusCode),
		},
	})
}
