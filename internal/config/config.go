// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"opsdesk/internal/logger"
)

// Variables available everywhere
var (
	baseDir       string
	dataDirectory string
	logsDirectory string
	databasePath  string
	catalogPath   string

	LogFileFormat string
	AllowedOrigin string // For CORS

	sessionTTL      time.Duration
	oracleTimeout   time.Duration
	seedDemoData    bool
	overrideAllowed bool
)

//
// --- Utility Helpers ---
//

// Helper: get a setting based on ENVIRONMENT (dev or prod)
func GetEnvBasedSetting(base string) string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	return os.Getenv(fmt.Sprintf("%s_%s", base, strings.ToUpper(env)))
}

// Helper: log which environment is running
func LogCurrentEnvironment() {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	if env == "dev" {
		logger.LogInfo("Running in development environment")
	} else {
		logger.LogInfo("Running in production environment")
	}
}

//
// --- Loaders ---
//

// LoadEnv reads .env file
func LoadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Could not determine working directory: %v", err)
	} else {
		log.Printf("Current working directory: %s", wd)
	}

	err = godotenv.Load(".env")
	if err != nil {
		log.Printf("No .env file found in %s. Using system environment variables.", wd)
	} else {
		log.Printf("Loaded environment variables from .env file in %s", wd)
	}

	seedDemoData = os.Getenv("SEED_DEMO_DATA") == "true"
	overrideAllowed = os.Getenv("ALLOW_SHORTAGE_OVERRIDE") != "false"
}

// LoggerConfig returns a logger.Config struct populated from environment
func LoggerConfig() logger.Config {
	logDir := GetEnvBasedSetting("LOGS_DIRECTORY")
	if logDir == "" {
		logDir = "./logs"
	}

	logFormat := GetEnvBasedSetting("LOG_FILE_FORMAT")
	if logFormat == "" {
		logFormat = "./logs/opsdesk_%s.log"
	}

	timezone := os.Getenv("TIME_ZONE")
	if timezone == "" {
		timezone = "Local"
	}

	return logger.Config{
		LogsDirectory: logDir,
		LogFileFormat: logFormat,
		TimeZone:      timezone,
		MinLevel:      os.Getenv("LOG_LEVEL"),
	}
}

// ConfigurePaths sets up folders and paths
func ConfigurePaths() {
	wd, err := os.Getwd()
	if err != nil {
		logger.LogFatal("Failed to get working directory: %v", err)
	}
	baseDir = wd

	env := os.Getenv("APP_ENV")
	if env == "production" {
		AllowedOrigin = os.Getenv("ALLOWED_ORIGIN_PROD")
	} else {
		AllowedOrigin = os.Getenv("ALLOWED_ORIGIN_DEV")
	}

	dataDir := GetEnvBasedSetting("DATA_DIRECTORY")
	if dataDir != "" {
		dataDirectory = dataDir
	} else {
		dataDirectory = filepath.Join(baseDir, "data")
	}

	logsDir := GetEnvBasedSetting("LOGS_DIRECTORY")
	if logsDir != "" {
		logsDirectory = logsDir
	} else {
		logsDirectory = filepath.Join(baseDir, "logs")
	}

	dbPath := GetEnvBasedSetting("DATABASE_PATH")
	if dbPath != "" {
		databasePath = dbPath
	} else {
		databasePath = filepath.Join(dataDirectory, "opsdesk.db")
	}

	catPath := GetEnvBasedSetting("CATALOG_PATH")
	if catPath != "" {
		catalogPath = catPath
	} else {
		catalogPath = filepath.Join(dataDirectory, "catalog.json")
	}

	LogFileFormat = filepath.Join(logsDirectory, "opsdesk_%s.log")
}

// LoadSessionConfig loads wizard session tuning from environment
func LoadSessionConfig() {
	sessionTTL = durationSetting("SESSION_TTL_MINUTES", 120*time.Minute)
	oracleTimeout = durationSetting("ORACLE_TIMEOUT_SECONDS", 10*time.Second)
	logger.LogInfo("Session TTL set to %v, oracle timeout %v", sessionTTL, oracleTimeout)
}

func durationSetting(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		logger.LogWarn("Invalid %s: %q, using default %v", name, raw, fallback)
		return fallback
	}
	if strings.Contains(name, "SECONDS") {
		return time.Duration(n) * time.Second
	}
	return time.Duration(n) * time.Minute
}

// LoadCORSConfig loads CORS settings
func LoadCORSConfig() {
	if AllowedOrigin == "" {
		AllowedOrigin = GetEnvBasedSetting("ALLOWED_ORIGIN")
	}
	if AllowedOrigin == "" {
		AllowedOrigin = "*" // Allow all - be careful in prod
		logger.LogWarn("ALLOWED_ORIGIN not set, using '*' (allow all origins) - SECURITY RISK")
	} else {
		logger.LogInfo("Allowed Origin: %s", AllowedOrigin)
	}
}

//
// --- Getters (exported) ---
//

func DataDirectory() string {
	return dataDirectory
}

func LogsDirectory() string {
	return logsDirectory
}

func DatabasePath() string {
	return databasePath
}

func CatalogPath() string {
	return catalogPath
}

func SessionTTL() time.Duration {
	return sessionTTL
}

func OracleTimeout() time.Duration {
	return oracleTimeout
}

func SeedDemoData() bool {
	return seedDemoData
}

func OverrideAllowed() bool {
	return overrideAllowed
}
