package logx

import (
	"io"
	"os"
	"strings"
	"time"
)

// Format is the output encoding.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Config holds the logger configuration
type Config struct {
	Level  Level
	Format Format

	// EnableColors only applies to the console format
	EnableColors    bool
	EnableCaller    bool
	EnableTimestamp bool

	// TimeFormat is a Go layout, or "unix" / "unixmilli"
	TimeFormat string

	// Output defaults to os.Stdout
	Output io.Writer
}

func DefaultConfig() *Config {
	return &Config{
		Level:           LevelInfo,
		Format:          FormatConsole,
		EnableColors:    true,
		EnableTimestamp: true,
		TimeFormat:      time.RFC3339,
		Output:          os.Stdout,
	}
}

// LoadFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_COLOR, LOG_CALLER and
// LOG_TIME_FORMAT on top of the defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Level = ParseLevel(level)
	}

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		config.Format = FormatJSON
	}

	if color := os.Getenv("LOG_COLOR"); color != "" {
		config.EnableColors = isTrue(color)
	}

	if caller := os.Getenv("LOG_CALLER"); caller != "" {
		config.EnableCaller = isTrue(caller)
	}

	switch tf := os.Getenv("LOG_TIME_FORMAT"); strings.ToUpper(tf) {
	case "":
	case "RFC3339NANO":
		config.TimeFormat = time.RFC3339Nano
	case "UNIX":
		config.TimeFormat = "unix"
	case "UNIXMILLI":
		config.TimeFormat = "unixmilli"
	default:
		config.TimeFormat = tf
	}

	return config
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
