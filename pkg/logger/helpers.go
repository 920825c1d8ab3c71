package logger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// LogDownload logs the outcome of a single media download
func LogDownload(l Logger, itemID, src string, success bool, err error) {
	entry := Or(l).WithFields(map[string]interface{}{
		"item_id": itemID,
		"src":     src,
		"success": success,
	})

	switch {
	case err != nil:
		entry.WithError(err).Warn("Download failed")
	case success:
		entry.Debug("Download completed")
	default:
		entry.Debug("Download skipped")
	}
}

// LogCrawlProgress logs how far a crawl session has come
func LogCrawlProgress(l Logger, query string, found, target, pass int) {
	percentage := 0.0
	if target > 0 {
		percentage = float64(found) / float64(target) * 100
	}

	Or(l).WithFields(map[string]interface{}{
		"query":      query,
		"found":      found,
		"target":     target,
		"pass":       pass,
		"percentage": fmt.Sprintf("%.1f%%", percentage),
	}).Debug("Crawl progress")
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, config map[string]interface{}) {
	entry := Or(l).WithField("component", component)
	if len(config) > 0 {
		entry = entry.WithFields(config)
	}
	entry.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	Or(l).WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// LogMetrics logs counters for a finished operation
func LogMetrics(l Logger, operation string, metrics map[string]interface{}) {
	fields := map[string]interface{}{
		"operation": operation,
		"type":      "metrics",
	}
	for k, v := range metrics {
		fields[k] = v
	}
	Or(l).InfoWithFields("Operation metrics", fields)
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return nopLogger{}
}

// nopLogger discards everything
type nopLogger struct{}

func (n nopLogger) Debug(string) {}
func (n nopLogger) Info(string) {}
func (n nopLogger) Warn(string) {}
func (n nopLogger) Error(string) {}
func (n nopLogger) Fatal(string) {}
func (n nopLogger) WithField(string, interface{}) Logger { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger { return n }
func (n nopLogger) WithError(error) Logger { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }
func (n nopLogger) DebugWithFields(string, map[string]interface{}) {}
func (n nopLogger) InfoWithFields(string, map[string]interface{}) {}
func (n nopLogger) WarnWithFields(string, map[string]interface{}) {}
func (n nopLogger) ErrorWithFields(string, map[string]interface{}) {}
func (n nopLogger) FatalWithFields(string, map[string]interface{}) {}
func (n nopLogger) GetZerolog() *zerolog.Logger { return nil }
