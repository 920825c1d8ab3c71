// Package logger provides structured logging for pinscraper.
//
// It wraps zerolog behind the Logger interface so components can be handed
// a logger explicitly, swapped for NewNopLogger or NewTestLogger in tests,
// or fall back to the process-wide logger set up by Initialize.
//
//	_ = logger.Initialize(&cfg.Logging)
//
//	log := logger.GetLogger().WithField("component", "downloader")
//	log.InfoWithFields("batch finished", map[string]interface{}{
//	    "succeeded": 12,
//	    "failed":    1,
//	})
//
// Console output is colored. Setting logging.file additionally appends
// JSON lines to that file.
package logger
