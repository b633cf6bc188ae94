package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EnvironmentConfig builds a logger configuration from FETCHVIDEO_LOG_*
// environment variables, starting from defaults.
//
//	FETCHVIDEO_LOG_LEVEL       TRACE|DEBUG|INFO|WARN|ERROR
//	FETCHVIDEO_LOG_FORMAT      text|json|color
//	FETCHVIDEO_LOG_OUTPUT      stdout|stderr|null|file:/path/to/log
//	FETCHVIDEO_LOG_TIMESTAMP   true|1
//	FETCHVIDEO_LOG_COMPONENTS  comma-separated component names to enable
func EnvironmentConfig() (*Config, error) {
	config := DefaultConfig()

	if level := os.Getenv("FETCHVIDEO_LOG_LEVEL"); level != "" {
		parsed, err := parseLevel(level)
		if err != nil {
			return nil, err
		}
		config.Level = parsed
	}
	if format := os.Getenv("FETCHVIDEO_LOG_FORMAT"); format != "" {
		parsed, err := parseFormat(format)
		if err != nil {
			return nil, err
		}
		config.Format = parsed
	}
	if output := os.Getenv("FETCHVIDEO_LOG_OUTPUT"); output != "" {
		parsed, err := parseOutput(output)
		if err != nil {
			return nil, err
		}
		config.Output = parsed
	}
	if timestamp := os.Getenv("FETCHVIDEO_LOG_TIMESTAMP"); timestamp != "" {
		config.Timestamp = timestamp == "true" || timestamp == "1"
	}

	if components := os.Getenv("FETCHVIDEO_LOG_COMPONENTS"); components != "" {
		config.Components = make(map[Component]bool)
		for _, comp := range strings.Split(components, ",") {
			comp = strings.TrimSpace(comp)
			if comp != "" {
				config.Components[Component(comp)] = true
			}
		}
	}

	return config, nil
}

// parseLevel parses level string to Level enum
func parseLevel(levelStr string) (Level, error) {
	switch strings.ToUpper(levelStr) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown level: %s", levelStr)
	}
}

// parseFormat parses format string to Format enum
func parseFormat(formatStr string) (Format, error) {
	switch strings.ToLower(formatStr) {
	case "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "color", "colored":
		return FormatColor, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", formatStr)
	}
}

// parseOutput parses output string to io.Writer
func parseOutput(outputStr string) (io.Writer, error) {
	switch strings.ToLower(outputStr) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "null", "none":
		return io.Discard, nil
	default:
		if strings.HasPrefix(outputStr, "file:") {
			filePath := strings.TrimPrefix(outputStr, "file:")
			if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
				return nil, fmt.Errorf("create log directory: %v", err)
			}
			file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return nil, fmt.Errorf("open log file: %v", err)
			}
			return file, nil
		}
		return nil, fmt.Errorf("unknown output: %s", outputStr)
	}
}
