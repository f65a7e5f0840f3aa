// Package logger provides the structured logging interface used across ofdl.
//
// It wraps zerolog behind a small Logger interface with bound fields,
// error attachment and a process-wide default instance:
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "debug"})
//
//	log := logger.GetLogger().WithField("scraper", "main")
//	log.InfoWithFields("user pass finished", map[string]interface{}{
//	    "username": "alice",
//	    "new":      12,
//	})
//
// Console output is coloured and human oriented. When a log file is
// configured the same events are also appended to it as JSON lines.
//
// Tests use NewNopLogger to silence output or NewTestLogger to capture and
// assert on emitted messages.
package logger
