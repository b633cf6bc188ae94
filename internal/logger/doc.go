// Package logger provides structured logging for the fetchvideo project.
//
// Features:
//   - Multiple log levels (TRACE, DEBUG, INFO, WARN, ERROR)
//   - Component-based filtering
//   - Multiple output formats (text, JSON, color)
//   - Thread-safe operations
//
// Usage:
//
//	log := logger.WithComponent(logger.ComponentPipeline)
//	log.Info("Starting download", map[string]interface{}{
//		"video_id": "dQw4w9WgXcQ",
//		"quality":  "1080p",
//	})
package logger
