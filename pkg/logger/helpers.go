package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// LogRequest logs the outcome of one HTTP exchange against log.
func LogRequest(log Logger, method, path string, statusCode int, durationMs float64) {
	fields := map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": durationMs,
	}

	switch {
	case statusCode >= 500:
		log.WarnWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		log.WarnWithFields("HTTP request client error", fields)
	default:
		log.DebugWithFields("HTTP request completed", fields)
	}
}

// LogRateLimit logs a backoff after a rate-limited response
func LogRateLimit(log Logger, path string, retryAfterMs int64) {
	log.WithFields(map[string]interface{}{
		"path":           path,
		"retry_after_ms": retryAfterMs,
		"action":         "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogDownload logs a single media placement. A nil err with placed false
// means the item was already present.
func LogDownload(log Logger, username, sourceType string, mediaID int64, placed bool, err error) {
	l := log.WithFields(map[string]interface{}{
		"username":    username,
		"source_type": sourceType,
		"media_id":    mediaID,
	})

	switch {
	case err != nil:
		l.WithError(err).Error("Download failed")
	case placed:
		l.Debug("Download completed")
	default:
		l.Debug("Download skipped")
	}
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (n nopLogger) Debug(string)                                       {}
func (n nopLogger) Info(string)                                        {}
func (n nopLogger) Warn(string)                                        {}
func (n nopLogger) Error(string)                                       {}
func (n nopLogger) Fatal(string)                                       {}
func (n nopLogger) WithField(string, interface{}) Logger               { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger           { return n }
func (n nopLogger) WithError(error) Logger                             { return n }
func (n nopLogger) WithContext(context.Context) Logger                 { return n }
func (n nopLogger) DebugWithFields(string, map[string]interface{})     {}
func (n nopLogger) InfoWithFields(string, map[string]interface{})      {}
func (n nopLogger) WarnWithFields(string, map[string]interface{})      {}
func (n nopLogger) ErrorWithFields(string, map[string]interface{})     {}
func (n nopLogger) FatalWithFields(string, map[string]interface{})     {}
func (n nopLogger) GetZerolog() *zerolog.Logger                        { nop := zerolog.Nop(); return &nop }
