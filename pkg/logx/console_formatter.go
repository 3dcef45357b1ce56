package logx

import (
	"fmt"
	"strings"
)

const (
	colorReset      = "\033[0m"
	colorRed        = "\033[31m"
	colorCyan       = "\033[36m"
	colorGray       = "\033[90m"
	colorWhite      = "\033[97m"
	colorBoldRed    = "\033[1;31m"
	colorBoldYellow = "\033[1;33m"
	colorBoldCyan   = "\033[1;36m"
	colorBoldGreen  = "\033[1;32m"
)

// ConsoleFormatter writes human-readable, optionally colored lines.
type ConsoleFormatter struct {
	config *Config
}

func NewConsoleFormatter(config *Config) *ConsoleFormatter {
	return &ConsoleFormatter{config: config}
}

func (f *ConsoleFormatter) Format(entry *LogEntry) ([]byte, error) {
	var b strings.Builder

	if f.config.EnableTimestamp {
		f.paint(&b, colorGray, formatTimestamp(entry.Timestamp, f.config.TimeFormat))
		b.WriteString(" ")
	}

	b.WriteString(f.formatLevel(entry.Level))
	b.WriteString(" ")

	if f.config.EnableCaller && entry.Caller != "" {
		f.paint(&b, colorGray, "["+entry.Caller+"]")
		b.WriteString(" ")
	}

	f.paint(&b, colorWhite, entry.Message)

	if fields := safeFields(entry.Fields); len(fields) > 0 {
		parts := make([]string, 0, len(fields))
		for _, k := range sortedKeys(fields) {
			parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
		}
		b.WriteString(" ")
		f.paint(&b, colorCyan, strings.Join(parts, " "))
	}

	if entry.Error != nil {
		b.WriteString("\n")
		if f.config.EnableColors {
			f.paint(&b, colorRed, "  ╰─→ error: "+entry.Error.Error())
		} else {
			b.WriteString("  error: " + entry.Error.Error())
		}
	}

	b.WriteString("\n")

	if entry.Data != nil {
		for _, line := range strings.Split(prettyJSON(entry.Data), "\n") {
			f.paint(&b, colorGray, "  "+line)
			b.WriteString("\n")
		}
	}

	return []byte(b.String()), nil
}

func (f *ConsoleFormatter) paint(b *strings.Builder, color, s string) {
	if !f.config.EnableColors {
		b.WriteString(s)
		return
	}
	b.WriteString(color)
	b.WriteString(s)
	b.WriteString(colorReset)
}

func (f *ConsoleFormatter) formatLevel(level Level) string {
	if !f.config.EnableColors {
		return fmt.Sprintf("[%s]", level.String())
	}

	switch level {
	case LevelTrace:
		return colorGray + "[TRACE]" + colorReset
	case LevelDebug:
		return colorBoldCyan + "[DEBUG]" + colorReset
	case LevelInfo:
		return colorBoldGreen + "[INFO ]" + colorReset
	case LevelWarn:
		return colorBoldYellow + "[WARN ]" + colorReset
	case LevelError, LevelFatal:
		return colorBoldRed + "[" + fmt.Sprintf("%-5s", level.String()) + "]" + colorReset
	default:
		return fmt.Sprintf("[%s]", level.String())
	}
}
