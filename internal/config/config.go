package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all configuration values.
type Config struct {
	// Ollama vision engine
	OllamaHost  string
	OllamaModel string

	// AWS Bedrock vision engine
	BedrockModel string
	AWSRegion    string

	// Optional SurrealDB archive (disabled when DBURL is empty)
	DBURL       string
	DBNamespace string
	DBDatabase  string
	DBUser      string
	DBPass      string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Server
	ServerPort string

	// Engine catalog
	EnginesFile   string
	TesseractLang string
	MaxPages      int

	// Working directory for temp page renders
	DataDir string
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		OllamaHost:  getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel: getEnv("PDFSTRACT_OLLAMA_MODEL", "llama3.2-vision"),

		BedrockModel: getEnv("PDFSTRACT_BEDROCK_MODEL", "anthropic.claude-3-5-sonnet-20241022-v2:0"),
		AWSRegion:    getEnv("AWS_REGION", ""),

		DBURL:       getEnv("PDFSTRACT_DB_URL", ""),
		DBNamespace: getEnv("PDFSTRACT_DB_NAMESPACE", "pdfstract"),
		DBDatabase:  getEnv("PDFSTRACT_DB_DATABASE", "archive"),
		DBUser:      getEnv("PDFSTRACT_DB_USER", "root"),
		DBPass:      getEnv("PDFSTRACT_DB_PASS", "root"),

		LogFile:  getEnv("PDFSTRACT_LOG_FILE", filepath.Join(os.TempDir(), "pdfstract.log")),
		LogLevel: parseLogLevel(getEnv("PDFSTRACT_LOG_LEVEL", "INFO")),

		ServerPort: getEnv("PDFSTRACT_SERVER_PORT", "8090"),

		EnginesFile:   getEnv("PDFSTRACT_ENGINES_FILE", ""),
		TesseractLang: getEnv("PDFSTRACT_TESSERACT_LANG", "eng"),
		MaxPages:      getEnvInt("PDFSTRACT_MAX_PAGES", 20),

		DataDir: getEnv("PDFSTRACT_DATA_DIR", os.TempDir()),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
